/*
Package btree implements the B-Tree index (spec.md §4.F): a transactional,
disk-backed B-Tree over schema-typed keys, with logical (tombstone) delete
and bounded-concurrency ordered range streaming.

Grounded on original_source/prototype/collection/btree/file.rs's BTreeFile:
order derivation, proactive top-down split on insert, and the _slice/
_slice_reverse traversal this package's Stream adapts into a Go 1.23
range-over-func iterator. pkg/blockfile supplies the node storage; pkg/collate
supplies bisection.
*/
package btree

import (
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/datahost/pkg/blockfile"
	"github.com/cuemby/datahost/pkg/collate"
	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/log"
	"github.com/cuemby/datahost/pkg/metrics"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/txlock"
	"github.com/cuemby/datahost/pkg/value"
)

func cloneNodeID(s string) string { return s }

// Index is a single B-Tree index over a schema.
type Index struct {
	name     string
	schema   value.Schema
	collator *collate.Collator
	order    int
	file     *blockfile.File[Node]
	root     *txlock.Lock[string]
	logger   zerolog.Logger
}

// Create mounts a brand new B-Tree index named name over dir, rooted at a
// fresh empty leaf. Returns the index and its initial root block id, which
// the caller (typically pkg/table or pkg/catalog) is responsible for
// persisting durably across restarts — the root pointer is not itself part
// of the block file's on-disk listing.
func Create(txn txid.ID, name string, dir *hostdir.Dir, schema value.Schema) (*Index, string, error) {
	order, err := ComputeOrder(schema, DefaultBlockSize)
	if err != nil {
		return nil, "", err
	}

	file, err := blockfile.Create[Node](name, dir, blockfile.JSONCodec[Node]{})
	if err != nil {
		return nil, "", err
	}

	rootID := file.UniqueID(txn)
	if _, err := file.CreateBlock(txn, rootID, Node{Leaf: true}); err != nil {
		return nil, "", err
	}

	idx := &Index{
		name:     name,
		schema:   schema,
		collator: collate.New(schema),
		order:    order,
		file:     file,
		root:     txlock.New(name+".root", rootID, cloneNodeID),
		logger:   log.WithCollection(name),
	}
	return idx, rootID, nil
}

// Open reopens an existing B-Tree index, given the root block id last
// persisted by the caller.
func Open(name string, dir *hostdir.Dir, schema value.Schema, rootID string) (*Index, error) {
	order, err := ComputeOrder(schema, DefaultBlockSize)
	if err != nil {
		return nil, err
	}
	file, err := blockfile.Open[Node](name, dir, blockfile.JSONCodec[Node]{})
	if err != nil {
		return nil, err
	}
	return &Index{
		name:     name,
		schema:   schema,
		collator: collate.New(schema),
		order:    order,
		file:     file,
		root:     txlock.New(name+".root", rootID, cloneNodeID),
		logger:   log.WithCollection(name),
	}, nil
}

// Name returns the index's collection name.
func (idx *Index) Name() string { return idx.name }

// Order returns the derived B-Tree order m.
func (idx *Index) Order() int { return idx.order }

// Schema returns the index's key schema.
func (idx *Index) Schema() value.Schema { return idx.schema }

// RootID returns the block id currently serving as root under txn, for a
// caller that needs to persist it durably (pkg/catalog, at commit time).
func (idx *Index) RootID(txn txid.ID) string { return idx.root.Read(txn) }

func validateKey(key value.Key, schema value.Schema) error {
	if len(key) != len(schema) {
		return dberr.New(dberr.BadRequest, "btree.validateKey",
			fmt.Sprintf("key has %d columns, schema has %d", len(key), len(schema)))
	}
	for i, v := range key {
		if v.Kind != schema[i].Kind {
			return dberr.New(dberr.BadRequest, "btree.validateKey",
				fmt.Sprintf("column %d: value kind %s does not match schema kind %s", i, v.Kind, schema[i].Kind))
		}
	}
	return nil
}

func validateRange(r value.Range, schema value.Schema) error {
	if r.Width() > len(schema) {
		return dberr.New(dberr.BadRequest, "btree.validateRange", "range constrains more columns than the schema declares")
	}
	return nil
}

// Insert inserts one validated key. Idempotent: re-inserting an
// already-present tombstoned key un-tombstones it; re-inserting a live key
// is a no-op (spec.md §4.F).
func (idx *Index) Insert(txn txid.ID, key value.Key) error {
	if err := validateKey(key, idx.schema); err != nil {
		return err
	}

	rootID := idx.root.Read(txn)
	root, err := idx.file.GetBlock(txn, rootID)
	if err != nil {
		return err
	}

	if len(root.Keys) == 2*idx.order-1 {
		newRootID := idx.file.UniqueID(txn)
		newRoot := Node{Leaf: false, Children: []string{rootID}}
		if _, err := idx.file.CreateBlock(txn, newRootID, newRoot); err != nil {
			return err
		}
		if _, err := idx.root.Write(txn); err != nil {
			return err
		}
		idx.root.Store(txn, newRootID)

		metrics.BTreeSplits.WithLabelValues(idx.name).Inc()
		if err := idx.splitChild(txn, newRootID, 0); err != nil {
			return err
		}
		return idx.insertInto(txn, newRootID, key)
	}

	return idx.insertInto(txn, rootID, key)
}

func (idx *Index) insertInto(txn txid.ID, nodeID string, key value.Key) error {
	node, err := idx.file.GetBlock(txn, nodeID)
	if err != nil {
		return err
	}

	i := idx.collator.BisectLeft(keysOf(node), key)
	if i < len(node.Keys) && idx.collator.Compare(node.Keys[i].Value, key) == collate.Equal {
		if node.Keys[i].Deleted {
			return idx.untombstoneAt(txn, nodeID, i)
		}
		return nil
	}

	if node.Leaf {
		node, err := idx.file.GetBlockForWrite(txn, nodeID)
		if err != nil {
			return err
		}
		node.Keys = insertNodeKey(node.Keys, i, NodeKey{Value: key})
		return idx.file.StoreBlock(txn, nodeID, node)
	}

	childID := node.Children[i]
	child, err := idx.file.GetBlock(txn, childID)
	if err != nil {
		return err
	}

	if len(child.Keys) == 2*idx.order-1 {
		metrics.BTreeSplits.WithLabelValues(idx.name).Inc()
		if err := idx.splitChild(txn, nodeID, i); err != nil {
			return err
		}
		node, err = idx.file.GetBlock(txn, nodeID)
		if err != nil {
			return err
		}
		switch idx.collator.Compare(key, node.Keys[i].Value) {
		case collate.Less:
			// descend into the left half, unchanged childID
		case collate.Equal:
			if node.Keys[i].Deleted {
				return idx.untombstoneAt(txn, nodeID, i)
			}
			return nil
		case collate.Greater:
			childID = node.Children[i+1]
		}
	}

	return idx.insertInto(txn, childID, key)
}

func (idx *Index) untombstoneAt(txn txid.ID, nodeID string, i int) error {
	node, err := idx.file.GetBlockForWrite(txn, nodeID)
	if err != nil {
		return err
	}
	node.Keys[i].Deleted = false
	return idx.file.StoreBlock(txn, nodeID, node)
}

func insertNodeKey(keys []NodeKey, i int, k NodeKey) []NodeKey {
	keys = append(keys, NodeKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	return keys
}

// splitChild splits child i of the node at parentID. Spec.md §4.F "Split":
// remove keys [m, 2m-1) from the child into a new sibling; promote key m-1
// into the parent at position i; insert the sibling's block id at i+1; for
// non-leaf children also move child ids [m, 2m) to the sibling.
func (idx *Index) splitChild(txn txid.ID, parentID string, i int) error {
	parent, err := idx.file.GetBlockForWrite(txn, parentID)
	if err != nil {
		return err
	}
	childID := parent.Children[i]
	child, err := idx.file.GetBlockForWrite(txn, childID)
	if err != nil {
		return err
	}

	m := idx.order
	median := child.Keys[m-1]
	sibling := Node{Leaf: child.Leaf}
	sibling.Keys = append([]NodeKey(nil), child.Keys[m:]...)
	child.Keys = append([]NodeKey(nil), child.Keys[:m-1]...)

	if !child.Leaf {
		sibling.Children = append([]string(nil), child.Children[m:]...)
		child.Children = append([]string(nil), child.Children[:m]...)
	}

	newNodeID := idx.file.UniqueID(txn)
	if _, err := idx.file.CreateBlock(txn, newNodeID, sibling); err != nil {
		return err
	}

	parent.Keys = insertNodeKey(parent.Keys, i, median)
	parent.Children = insertChildID(parent.Children, i+1, newNodeID)

	if err := idx.file.StoreBlock(txn, childID, child); err != nil {
		return err
	}
	return idx.file.StoreBlock(txn, parentID, parent)
}

func insertChildID(children []string, i int, id string) []string {
	children = append(children, "")
	copy(children[i+1:], children[i:])
	children[i] = id
	return children
}

// Delete tombstones every live key in range (spec.md §4.F "Deletion": a
// logical mark, never a physical removal).
func (idx *Index) Delete(txn txid.ID, r value.Range) error {
	if err := validateRange(r, idx.schema); err != nil {
		return err
	}
	rootID := idx.root.Read(txn)
	return idx.deleteFrom(txn, rootID, r)
}

func (idx *Index) deleteFrom(txn txid.ID, nodeID string, r value.Range) error {
	node, err := idx.file.GetBlock(txn, nodeID)
	if err != nil {
		return err
	}
	keys := keysOf(node)
	l := idx.collator.BisectLeftRange(keys, r.Lower)
	right := idx.collator.BisectRightRange(keys, r.Upper)

	if node.Leaf {
		if l == right {
			return nil
		}
		node, err := idx.file.GetBlockForWrite(txn, nodeID)
		if err != nil {
			return err
		}
		for i := l; i < right; i++ {
			node.Keys[i].Deleted = true
			metrics.BTreeTombstones.WithLabelValues(idx.name).Inc()
		}
		node.Rebalance = true
		return idx.file.StoreBlock(txn, nodeID, node)
	}

	if right > l {
		node, err := idx.file.GetBlockForWrite(txn, nodeID)
		if err != nil {
			return err
		}
		children := append([]string(nil), node.Children...)
		for i := l; i < right; i++ {
			node.Keys[i].Deleted = true
			metrics.BTreeTombstones.WithLabelValues(idx.name).Inc()
		}
		node.Rebalance = true
		if err := idx.file.StoreBlock(txn, nodeID, node); err != nil {
			return err
		}

		g := new(errgroup.Group)
		g.SetLimit(2 * idx.order)
		for i := l; i <= right; i++ {
			childID := children[i]
			g.Go(func() error { return idx.deleteFrom(txn, childID, r) })
		}
		return g.Wait()
	}

	return idx.deleteFrom(txn, node.Children[right], r)
}

// Update overwrites every live key in range with values (spec.md §4.F
// "update"); values must equal the schema width.
func (idx *Index) Update(txn txid.ID, r value.Range, values value.Key) error {
	if err := validateRange(r, idx.schema); err != nil {
		return err
	}
	if err := validateKey(values, idx.schema); err != nil {
		return err
	}
	rootID := idx.root.Read(txn)
	return idx.updateFrom(txn, rootID, r, values)
}

func (idx *Index) updateFrom(txn txid.ID, nodeID string, r value.Range, values value.Key) error {
	node, err := idx.file.GetBlock(txn, nodeID)
	if err != nil {
		return err
	}
	keys := keysOf(node)
	l := idx.collator.BisectLeftRange(keys, r.Lower)
	right := idx.collator.BisectRightRange(keys, r.Upper)

	if node.Leaf {
		if l == right {
			return nil
		}
		node, err := idx.file.GetBlockForWrite(txn, nodeID)
		if err != nil {
			return err
		}
		for i := l; i < right; i++ {
			if node.Keys[i].Deleted {
				continue
			}
			node.Keys[i] = NodeKey{Value: values}
		}
		return idx.file.StoreBlock(txn, nodeID, node)
	}

	if right > l {
		node, err := idx.file.GetBlockForWrite(txn, nodeID)
		if err != nil {
			return err
		}
		children := append([]string(nil), node.Children...)
		for i := l; i < right; i++ {
			if node.Keys[i].Deleted {
				continue
			}
			node.Keys[i] = NodeKey{Value: values}
		}
		if err := idx.file.StoreBlock(txn, nodeID, node); err != nil {
			return err
		}

		g := new(errgroup.Group)
		g.SetLimit(2 * idx.order)
		for i := l; i <= right; i++ {
			childID := children[i]
			g.Go(func() error { return idx.updateFrom(txn, childID, r, values) })
		}
		return g.Wait()
	}

	return idx.updateFrom(txn, node.Children[right], r, values)
}

// Stream returns a restartable, finite ordered sequence of the live keys in
// range (spec.md §4.F "Range iteration"). The keys are collected eagerly,
// by a bounded-concurrency traversal, before Stream returns; the iterator
// only replays that slice, so no block is read lazily as it is consumed.
// Order is reversed, not per-block, when reverse is set.
func (idx *Index) Stream(txn txid.ID, r value.Range, reverse bool) (iter.Seq[value.Key], error) {
	if err := validateRange(r, idx.schema); err != nil {
		return nil, err
	}
	rootID := idx.root.Read(txn)
	keys, err := idx.collectKeys(txn, rootID, r, reverse)
	if err != nil {
		return nil, err
	}
	return func(yield func(value.Key) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}, nil
}

func (idx *Index) collectKeys(txn txid.ID, nodeID string, r value.Range, reverse bool) ([]value.Key, error) {
	node, err := idx.file.GetBlock(txn, nodeID)
	if err != nil {
		return nil, err
	}
	keys := keysOf(node)
	l := idx.collator.BisectLeftRange(keys, r.Lower)
	right := idx.collator.BisectRightRange(keys, r.Upper)

	if node.Leaf {
		out := make([]value.Key, 0, right-l)
		if reverse {
			for i := right - 1; i >= l; i-- {
				if !node.Keys[i].Deleted {
					out = append(out, node.Keys[i].Value)
				}
			}
		} else {
			for i := l; i < right; i++ {
				if !node.Keys[i].Deleted {
					out = append(out, node.Keys[i].Value)
				}
			}
		}
		return out, nil
	}

	childResults := make([][]value.Key, right-l+1)
	g := new(errgroup.Group)
	g.SetLimit(2 * idx.order)
	for i := l; i <= right; i++ {
		i, childID := i, node.Children[i]
		g.Go(func() error {
			ks, err := idx.collectKeys(txn, childID, r, reverse)
			if err != nil {
				return err
			}
			childResults[i-l] = ks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []value.Key
	if !reverse {
		for i := l; i < right; i++ {
			out = append(out, childResults[i-l]...)
			if !node.Keys[i].Deleted {
				out = append(out, node.Keys[i].Value)
			}
		}
		out = append(out, childResults[right-l]...)
	} else {
		out = append(out, childResults[right-l]...)
		for i := right - 1; i >= l; i-- {
			if !node.Keys[i].Deleted {
				out = append(out, node.Keys[i].Value)
			}
			out = append(out, childResults[i-l]...)
		}
	}
	return out, nil
}

// Len counts the live keys in range.
func (idx *Index) Len(txn txid.ID, r value.Range) (int, error) {
	seq, err := idx.Stream(txn, r, false)
	if err != nil {
		return 0, err
	}
	n := 0
	for range seq {
		n++
	}
	return n, nil
}

// IsEmpty reports whether the root holds no keys at all.
func (idx *Index) IsEmpty(txn txid.ID) (bool, error) {
	root, err := idx.file.GetBlock(txn, idx.root.Read(txn))
	if err != nil {
		return false, err
	}
	return len(root.Keys) == 0, nil
}

// InsertFrom bulk-inserts every key from source with bounded concurrency
// 2*order (spec.md §5).
func (idx *Index) InsertFrom(txn txid.ID, source iter.Seq[value.Key]) error {
	g := new(errgroup.Group)
	g.SetLimit(2 * idx.order)
	for key := range source {
		key := key
		g.Go(func() error { return idx.Insert(txn, key) })
	}
	return g.Wait()
}

// TryInsertFrom bulk-inserts from a fallible source, propagating the first
// error the source itself yields immediately rather than scheduling further
// inserts.
func (idx *Index) TryInsertFrom(txn txid.ID, source iter.Seq2[value.Key, error]) error {
	g := new(errgroup.Group)
	g.SetLimit(2 * idx.order)
	for key, err := range source {
		if err != nil {
			return err
		}
		key := key
		g.Go(func() error { return idx.Insert(txn, key) })
	}
	return g.Wait()
}

// Commit commits the underlying block file and the root pointer.
func (idx *Index) Commit(txn txid.ID) error {
	if err := idx.file.Commit(txn); err != nil {
		return err
	}
	idx.root.Commit(txn)
	return nil
}

// Rollback discards every pending mutation made under txn.
func (idx *Index) Rollback(txn txid.ID) {
	idx.file.Rollback(txn)
	idx.root.Rollback(txn)
}

// Finalize releases per-txn bookkeeping.
func (idx *Index) Finalize(txn txid.ID) error {
	if err := idx.file.Finalize(txn); err != nil {
		return err
	}
	idx.root.Finalize(txn)
	return nil
}

// AssertValid checks the structural invariants spec.md §4.F names for
// debug/test builds: sorted keys, child-count bounds, and parent-key
// ordering against each child's boundary keys.
func (idx *Index) AssertValid(txn txid.ID) error {
	rootID := idx.root.Read(txn)
	root, err := idx.file.GetBlock(txn, rootID)
	if err != nil {
		return err
	}
	if !idx.collator.IsSorted(keysOf(root)) {
		return dberr.New(dberr.Internal, "btree.AssertValid", "root keys are not sorted")
	}
	if len(root.Children) > 2*idx.order {
		return dberr.New(dberr.Internal, "btree.AssertValid", "root has too many children")
	}

	queue := append([]string(nil), root.Children...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, err := idx.file.GetBlock(txn, id)
		if err != nil {
			return err
		}
		if len(node.Keys) == 0 {
			return dberr.New(dberr.Internal, "btree.AssertValid", fmt.Sprintf("node %s has no keys", id))
		}
		if !idx.collator.IsSorted(keysOf(node)) {
			return dberr.New(dberr.Internal, "btree.AssertValid", fmt.Sprintf("node %s keys are not sorted", id))
		}
		if len(node.Children) > 2*idx.order {
			return dberr.New(dberr.Internal, "btree.AssertValid", fmt.Sprintf("node %s has too many children", id))
		}
		if !node.Leaf {
			if len(node.Children) != len(node.Keys)+1 {
				return dberr.New(dberr.Internal, "btree.AssertValid", fmt.Sprintf("node %s children/keys mismatch", id))
			}
			minChildren := (idx.order + 1) / 2
			if len(node.Children) < minChildren {
				return dberr.New(dberr.Internal, "btree.AssertValid", fmt.Sprintf("node %s has too few children", id))
			}
			for i := 0; i < len(node.Keys); i++ {
				childAt, err := idx.file.GetBlock(txn, node.Children[i])
				if err != nil {
					return err
				}
				childAfter, err := idx.file.GetBlock(txn, node.Children[i+1])
				if err != nil {
					return err
				}
				if len(childAt.Keys) == 0 || len(childAfter.Keys) == 0 {
					return dberr.New(dberr.Internal, "btree.AssertValid", "empty child node")
				}
				if idx.collator.Compare(childAt.Keys[len(childAt.Keys)-1].Value, node.Keys[i].Value) != collate.Less {
					return dberr.New(dberr.Internal, "btree.AssertValid", "left child boundary key out of order")
				}
				if idx.collator.Compare(childAfter.Keys[0].Value, node.Keys[i].Value) != collate.Greater {
					return dberr.New(dberr.Internal, "btree.AssertValid", "right child boundary key out of order")
				}
			}
		}
		queue = append(queue, node.Children...)
	}
	return nil
}
