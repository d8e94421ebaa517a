/*
Package metrics provides Prometheus metrics collection and component health
tracking for datahost.

Counters and histograms are registered at package init and track cache hit
rate, lock conflicts, commit latency, B-Tree maintenance, and query planner
index selection. Handler exposes them over HTTP for scraping; cmd/datahost's
serve-metrics subcommand mounts it.

HealthChecker tracks the liveness of individual components (a host directory
root, a block file, a B-Tree index, a table) by name, independent of the
Prometheus registry; GetHealth returns a summary of them. No cmd/datahost
subcommand calls GetHealth.
*/
package metrics
