/*
Package blockcache implements the Transactional block cache (spec.md §4.C):
an in-memory map of block-id to a per-transaction lock over the block's
decoded value. pkg/blockfile is the sole intended caller — it owns cache
population (on first read or create) and eviction policy.
*/
package blockcache

import (
	"sync"

	"github.com/cuemby/datahost/pkg/txlock"
	"github.com/cuemby/datahost/pkg/txid"
)

// Cache is a block-id keyed map of transactional locks over decoded block
// values of type T.
type Cache[T any] struct {
	mu    sync.Mutex
	slots map[string]*txlock.Lock[T]
	clone txlock.Clone[T]
}

// New constructs an empty cache. clone must return an independent copy of a
// block value (see txlock.Clone for why this matters).
func New[T any](clone txlock.Clone[T]) *Cache[T] {
	return &Cache[T]{slots: make(map[string]*txlock.Lock[T]), clone: clone}
}

// Insert creates a cache slot initialized to value, as spec.md §4.D's
// create_block requires ("inserts a cache slot initialized to data").
// Overwrites any prior slot under the same id.
func (c *Cache[T]) Insert(id string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[id] = txlock.New(id, value, c.clone)
}

// Get returns the value visible to txn and whether the slot exists.
func (c *Cache[T]) Get(id string, txn txid.ID) (T, bool) {
	c.mu.Lock()
	lock, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	return lock.Read(txn), true
}

// GetForWrite opens (or re-enters) a pending write on the slot under txn,
// returning the value to mutate. The caller must call Store with the
// mutated value.
func (c *Cache[T]) GetForWrite(id string, txn txid.ID) (T, bool, error) {
	c.mu.Lock()
	lock, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, false, nil
	}
	v, err := lock.Write(txn)
	return v, true, err
}

// Store persists a mutated value under txn's pending write.
func (c *Cache[T]) Store(id string, txn txid.ID, value T) {
	c.mu.Lock()
	lock, ok := c.slots[id]
	c.mu.Unlock()
	if ok {
		lock.Store(txn, value)
	}
}

// Remove deletes a slot entirely (used when a block is deleted).
func (c *Cache[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, id)
}

// CommitAll promotes every slot's pending value under txn, a no-op for
// slots txn does not hold the pending write on (spec.md §4.D step 5).
func (c *Cache[T]) CommitAll(txn txid.ID) {
	c.mu.Lock()
	locks := make([]*txlock.Lock[T], 0, len(c.slots))
	for _, l := range c.slots {
		locks = append(locks, l)
	}
	c.mu.Unlock()
	for _, l := range locks {
		l.Commit(txn)
	}
}

// RollbackAll discards every slot's pending value under txn.
func (c *Cache[T]) RollbackAll(txn txid.ID) {
	c.mu.Lock()
	locks := make([]*txlock.Lock[T], 0, len(c.slots))
	for _, l := range c.slots {
		locks = append(locks, l)
	}
	c.mu.Unlock()
	for _, l := range locks {
		l.Rollback(txn)
	}
}

// FinalizeAll releases per-txn bookkeeping across every slot.
func (c *Cache[T]) FinalizeAll(txn txid.ID) {
	c.mu.Lock()
	locks := make([]*txlock.Lock[T], 0, len(c.slots))
	for _, l := range c.slots {
		locks = append(locks, l)
	}
	c.mu.Unlock()
	for _, l := range locks {
		l.Finalize(txn)
	}
}

// EvictClean drops every slot with no pending write. Caches are advisory
// (spec.md §4.C: "eviction of a clean slot is permitted between TXIDs"); a
// caller typically invokes this after a commit to bound memory use, and the
// next read simply re-materializes the slot from disk.
func (c *Cache[T]) EvictClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, l := range c.slots {
		if !l.HasPending() {
			delete(c.slots, id)
		}
	}
}

// PendingFor returns (value, hasPending, exists): exists reports whether the
// slot is resident at all, hasPending whether txn specifically holds a
// pending write on it. Used by blockfile's commit to decide which mutated
// blocks are actually dirty and need serializing to the staging directory.
func (c *Cache[T]) PendingFor(id string, txn txid.ID) (T, bool, bool) {
	c.mu.Lock()
	lock, ok := c.slots[id]
	c.mu.Unlock()
	if !ok {
		var zero T
		return zero, false, false
	}
	v, has := lock.PendingFor(txn)
	return v, has, true
}

// Len reports the number of resident slots, for diagnostics/metrics.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}
