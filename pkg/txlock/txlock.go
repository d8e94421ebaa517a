/*
Package txlock implements the Transactional lock (spec.md §4.B): a slot
holding a canonical value plus at most one pending value, keyed by the
transaction that opened it. It is the MVCC primitive every other datahost
component (blockcache, blockfile, btree, table) is built from.

Grounded on original_source/host/transact/src/fs/file.rs's use of
`TxnLock<Mutable<T>>` for `listing` and `mutated`, generalized here into a
standalone generic package since Go lacks a direct analogue to the
original's `Mutable<T>` wrapper trait.
*/
package txlock

import (
	"fmt"
	"sync"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/metrics"
	"github.com/cuemby/datahost/pkg/txid"
)

// Clone copies a value of type T. Lock requires one because the canonical
// and pending values must never alias the same backing storage (e.g. the
// same underlying map/slice) — §4.B's invariant that concurrent readers at
// distinct TXIDs see independent snapshots would otherwise break.
type Clone[T any] func(T) T

// Lock is a transactional slot over a single logical value.
type Lock[T any] struct {
	mu    sync.Mutex
	clone Clone[T]
	name  string // for diagnostics only

	canonical T
	writer    *txid.ID
	pending   T
}

// New constructs a Lock with the given canonical initial value. name is
// used only in error messages and logs.
func New[T any](name string, initial T, clone Clone[T]) *Lock[T] {
	return &Lock[T]{name: name, canonical: initial, clone: clone}
}

// Read returns the value visible to txn: the pending value if txn is the
// active writer, otherwise the canonical value. Per spec.md §4.B this never
// blocks on another TXID's writer — only same-TXID races are serialized, and
// the lock's own mutex already provides that (no torn reads are possible
// while it is held).
func (l *Lock[T]) Read(txn txid.ID) T {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && *l.writer == txn {
		return l.pending
	}
	return l.canonical
}

// Write opens (or re-enters) a pending value for txn and returns it for the
// caller to mutate; call Store to persist the mutation. Fails with
// dberr.ErrConflict if a different TXID already holds the pending write.
func (l *Lock[T]) Write(txn txid.ID) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		if *l.writer == txn {
			return l.pending, nil
		}
		metrics.LockConflicts.WithLabelValues(l.name).Inc()
		var zero T
		return zero, dberr.New(dberr.Conflict, "txlock.Write",
			fmt.Sprintf("%s: txn %s already holds the pending write (wanted by %s)", l.name, l.writer, txn))
	}

	l.writer = &txn
	l.pending = l.clone(l.canonical)
	return l.pending, nil
}

// Store persists a mutated pending value under txn. txn must currently hold
// the pending write (i.e. have called Write first); this is enforced by
// every caller in this module always pairing Write+Store within one
// operation. A Store from a TXID that does not hold the pending write is
// silently ignored.
func (l *Lock[T]) Store(txn txid.ID, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && *l.writer == txn {
		l.pending = v
	}
}

// Commit promotes the pending value to canonical if txn holds it; otherwise
// it is a no-op, matching spec.md §4.B.
func (l *Lock[T]) Commit(txn txid.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && *l.writer == txn {
		l.canonical = l.pending
		l.writer = nil
	}
}

// Rollback discards the pending value if txn holds it.
func (l *Lock[T]) Rollback(txn txid.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && *l.writer == txn {
		l.writer = nil
		var zero T
		l.pending = zero
	}
}

// Finalize releases per-txn bookkeeping at or before txn. In this lock's
// single-pending-slot design there is nothing left to release beyond what
// Commit/Rollback already cleared, so Finalize is a defensive no-op that
// also clears a lingering pending write if it belongs to txn or to an
// earlier TXID — this keeps Finalize safe to call even when a caller skipped
// an explicit Rollback, and makes repeated calls idempotent per spec.md §8.
func (l *Lock[T]) Finalize(txn txid.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && !txn.Less(*l.writer) {
		l.writer = nil
		var zero T
		l.pending = zero
	}
}

// HasPending reports whether any TXID currently holds a pending write.
func (l *Lock[T]) HasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer != nil
}

// Canonical returns the current canonical value, bypassing any TXID's
// pending view. Used by commit's before/after diff (spec.md §4.D step 1),
// which needs the pre-commit canonical independent of the committing TXID.
func (l *Lock[T]) Canonical() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canonical
}

// PendingFor returns txn's pending value and true if txn currently holds the
// pending write; otherwise the zero value and false. Used by commit to test
// whether a given slot is actually dirty before serializing it.
func (l *Lock[T]) PendingFor(txn txid.ID) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil && *l.writer == txn {
		return l.pending, true
	}
	var zero T
	return zero, false
}
