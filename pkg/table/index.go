package table

import (
	"iter"

	"github.com/cuemby/datahost/pkg/btree"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

// Index wraps one btree.Index with the row-shaped schema a table operates
// in terms of: every row flowing through Index is a full value.Row, converted
// to and from the underlying B-Tree's flat value.Key at the boundary.
type Index struct {
	name   string
	schema IndexSchema
	tree   *btree.Index
}

func createIndex(txn txid.ID, name string, dir *hostdir.Dir, schema IndexSchema) (*Index, string, error) {
	tree, rootID, err := btree.Create(txn, name, dir, schema.Combined())
	if err != nil {
		return nil, "", err
	}
	return &Index{name: name, schema: schema, tree: tree}, rootID, nil
}

func openIndex(name string, dir *hostdir.Dir, schema IndexSchema, rootID string) (*Index, error) {
	tree, err := btree.Open(name, dir, schema.Combined(), rootID)
	if err != nil {
		return nil, err
	}
	return &Index{name: name, schema: schema, tree: tree}, nil
}

// RootID exposes the underlying B-Tree's current root id, for a catalog to
// persist durably.
func (idx *Index) RootID(txn txid.ID) string { return idx.tree.RootID(txn) }

func (idx *Index) insertRow(txn txid.ID, row value.Row) error {
	key, err := idx.schema.Combined().ToKey(row)
	if err != nil {
		return err
	}
	return idx.tree.Insert(txn, key)
}

func (idx *Index) deleteRow(txn txid.ID, row value.Row) error {
	key, err := idx.schema.Combined().ToKey(row)
	if err != nil {
		return err
	}
	return idx.tree.Delete(txn, value.KeyRange(key))
}

func (idx *Index) rowFromKey(key value.Key) value.Row {
	return idx.schema.Combined().ToRow(key)
}

// Get returns the row whose own leading Key columns equal key, if any. key
// may be shorter than the index's full combined schema (the common case: a
// lookup by primary key against the primary index, whose combined schema
// also carries value columns).
func (idx *Index) Get(txn txid.ID, key value.Key) (value.Row, bool, error) {
	seq, err := idx.tree.Stream(txn, value.KeyRange(key), false)
	if err != nil {
		return nil, false, err
	}
	for k := range seq {
		return idx.rowFromKey(k), true, nil
	}
	return nil, false, nil
}

// Stream yields rows in range, in collator order (or reversed).
func (idx *Index) Stream(txn txid.ID, r value.Range, reverse bool) (iter.Seq[value.Row], error) {
	seq, err := idx.tree.Stream(txn, r, reverse)
	if err != nil {
		return nil, err
	}
	return func(yield func(value.Row) bool) {
		for k := range seq {
			if !yield(idx.rowFromKey(k)) {
				return
			}
		}
	}, nil
}

func (idx *Index) Len(txn txid.ID, r value.Range) (int, error) {
	return idx.tree.Len(txn, r)
}

func (idx *Index) IsEmpty(txn txid.ID) (bool, error) {
	n, err := idx.tree.Len(txn, value.FullRange())
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (idx *Index) Truncate(txn txid.ID) error {
	return idx.tree.Delete(txn, value.FullRange())
}

func (idx *Index) Commit(txn txid.ID) error {
	return idx.tree.Commit(txn)
}

func (idx *Index) Rollback(txn txid.ID) {
	idx.tree.Rollback(txn)
}

func (idx *Index) Finalize(txn txid.ID) error {
	return idx.tree.Finalize(txn)
}

// supportsBounds reports whether cols (in order, paired with cbs) form a
// prefix of this index's key columns with every bound but the last an
// equality (spec.md §4.G: "An index supports a bound set iff the bound's
// columns form a prefix of its key columns and at most the last bound is a
// range").
func (idx *Index) supportsBounds(cols []string, cbs []ColumnBound) bool {
	keyNames := idx.schema.KeyNames()
	if len(cols) == 0 || len(cols) > len(keyNames) {
		return false
	}
	for i, name := range cols {
		if name != keyNames[i] {
			return false
		}
		if i < len(cols)-1 && cbs[i].isRange() {
			return false
		}
	}
	return true
}

// supportsOrderPrefix reports whether cols form a prefix of this index's key
// columns, i.e. the index's natural order already satisfies an order_by on
// exactly these columns.
func (idx *Index) supportsOrderPrefix(cols []string) bool {
	keyNames := idx.schema.KeyNames()
	if len(cols) == 0 || len(cols) > len(keyNames) {
		return false
	}
	for i, name := range cols {
		if name != keyNames[i] {
			return false
		}
	}
	return true
}
