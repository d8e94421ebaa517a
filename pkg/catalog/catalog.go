package catalog

import (
	"encoding/json"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/table"
	"github.com/cuemby/datahost/pkg/value"
)

var bucketCollections = []byte("collections")

// Kind tags which shape a registered collection has: a bare B-Tree index
// (component F on its own) or a table with secondary indexes (component G).
type Kind int

const (
	KindBTree Kind = iota
	KindTable
)

// Descriptor is everything the catalog persists about one collection: its
// schema and, for every index it owns (just "primary" for a bare B-Tree; one
// entry per primary/auxiliary pair for a table), that index's current root
// block id. Roots is read fresh after every commit and rewritten via Put so
// a restart always resumes from the last committed root, never a
// mid-transaction one.
type Descriptor struct {
	Name        string
	Kind        Kind
	BTreeSchema value.Schema       `json:",omitempty"`
	TableSchema *table.TableSchema `json:",omitempty"`
	Roots       map[string]string
}

// Catalog is a single bbolt-backed registry file, one entry per collection.
type Catalog struct {
	db *bolt.DB
}

// Open mounts (creating if absent) the catalog database under dataDir.
func Open(dataDir string) (*Catalog, error) {
	dbPath := filepath.Join(dataDir, "datahost.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "catalog.Open", "failed to open catalog database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, dberr.Wrap(dberr.Internal, "catalog.Open", "failed to create collections bucket", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database file.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Put creates or overwrites a collection's descriptor (an upsert, matching
// the teacher's own Create/Update-share-a-method convention).
func (c *Catalog) Put(desc Descriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "catalog.Put", "failed to marshal descriptor", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCollections)
		return b.Put([]byte(desc.Name), data)
	})
}

// Get returns the named collection's descriptor, or (_, false, nil) on a
// clean miss.
func (c *Catalog) Get(name string) (Descriptor, bool, error) {
	var desc Descriptor
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCollections)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &desc)
	})
	if err != nil {
		return Descriptor{}, false, dberr.Wrap(dberr.Internal, "catalog.Get", "failed to read descriptor", err)
	}
	return desc, found, nil
}

// List returns every registered collection's descriptor.
func (c *Catalog) List() ([]Descriptor, error) {
	var out []Descriptor
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCollections)
		return b.ForEach(func(k, v []byte) error {
			var desc Descriptor
			if err := json.Unmarshal(v, &desc); err != nil {
				return err
			}
			out = append(out, desc)
			return nil
		})
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "catalog.List", "failed to scan collections", err)
	}
	return out, nil
}

// Delete removes a collection's descriptor. Idempotent: no error if name is
// not registered.
func (c *Catalog) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCollections)
		return b.Delete([]byte(name))
	})
}
