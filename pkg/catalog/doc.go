/*
Package catalog is the durable registry of named collections a host
directory holds: for each collection, which kind it is (a bare B-Tree
index or a table with secondary indexes), its schema, and every one of
its indexes' current root block id, so a process restart can reopen every
collection at exactly the root its last commit left behind.

Grounded on the teacher's pkg/storage/boltdb.go: a single bbolt file under
the data directory, one bucket, JSON-encoded values keyed by name, same
upsert-by-Put convention. Unlike the teacher's per-entity-kind buckets
(nodes, services, containers, ...), the catalog has exactly one kind of
entity — a collection descriptor — so one bucket suffices.
*/
package catalog
