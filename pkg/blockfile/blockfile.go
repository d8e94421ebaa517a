/*
Package blockfile implements the Transactional block file (spec.md §4.D): a
named collection of typed, transactionally versioned blocks layered over a
host directory. It is the storage primitive pkg/btree builds its nodes on.

Grounded on original_source/host/transact/src/fs/file.rs's File<T>, whose
Inner{dir, pending, listing, cache, mutated} fields map directly onto this
package's fields of the same names; commit/finalize/rollback follow that
file's Transact impl, adapted to the six explicit steps spec.md §4.D numbers.
*/
package blockfile

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/datahost/pkg/blockcache"
	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/log"
	"github.com/cuemby/datahost/pkg/metrics"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/txlock"
)

type idSet map[string]bool

func cloneIDSet(s idSet) idSet {
	out := make(idSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// File is a Transactional block file over typed values of type T.
type File[T any] struct {
	name    string
	dir     *hostdir.Dir
	pending *hostdir.Dir
	listing *txlock.Lock[idSet]
	mutated *txlock.Lock[idSet]
	cache   *blockcache.Cache[T]
	codec   Codec[T]
	logger  zerolog.Logger
}

// cloneBlockValue returns a Clone that deep-copies a block value by a round
// trip through codec, so a pending value never shares slices or maps with
// the canonical one (pkg/btree mutates node key slices in place). A value
// the codec cannot round-trip is returned as is.
func cloneBlockValue[T any](codec Codec[T]) txlock.Clone[T] {
	return func(v T) T {
		data, err := codec.Encode(v)
		if err != nil {
			return v
		}
		out, err := codec.Decode(data)
		if err != nil {
			return v
		}
		return out
	}
}

// Open mounts a block file named name over dir, replaying any stale
// per-transaction staging directories left behind by a crash between commit
// steps 5 and 6 (spec.md §4.D's recovery rule), then loading the listing
// from the blocks now present in dir.
func Open[T any](name string, dir *hostdir.Dir, codec Codec[T]) (*File[T], error) {
	pending, err := dir.GetOrCreateDir(hostdir.PendingName)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "blockfile.Open", "create pending root failed", err)
	}

	logger := log.WithCollection(name)

	stale, err := pending.ListDirs()
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "blockfile.Open", "list stale txn dirs failed", err)
	}
	for _, txn := range stale {
		txnDir, err := pending.GetDir(txn)
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, "blockfile.Open", "open stale txn dir failed", err)
		}
		logger.Warn().Str("txn", txn).Msg("replaying stale pending directory from an interrupted commit")
		if err := dir.CopyAll(txnDir); err != nil {
			return nil, dberr.Wrap(dberr.Internal, "blockfile.Open", "replay failed", err)
		}
	}

	ids, err := dir.ListBlocks()
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "blockfile.Open", "list blocks failed", err)
	}
	listing := make(idSet, len(ids))
	for _, id := range ids {
		listing[id] = true
	}

	return &File[T]{
		name:    name,
		dir:     dir,
		pending: pending,
		listing: txlock.New(name+".listing", listing, cloneIDSet),
		mutated: txlock.New(name+".mutated", idSet{}, cloneIDSet),
		cache:   blockcache.New(cloneBlockValue(codec)),
		codec:   codec,
		logger:  logger,
	}, nil
}

// Create mounts a fresh block file over dir, which must be empty. Mirrors
// the original's create(), which rejects an already-populated directory.
func Create[T any](name string, dir *hostdir.Dir, codec Codec[T]) (*File[T], error) {
	empty, err := dir.IsEmpty()
	if err != nil {
		return nil, err
	}
	if !empty {
		return nil, dberr.New(dberr.BadRequest, "blockfile.Create",
			"tried to create a new block file but the directory already holds data")
	}
	return Open(name, dir, codec)
}

// CreateBlock adds id to the visible listing and caches it initialized to
// data. Fails with dberr.BadRequest if id is the reserved sentinel or
// already present. The new slot is opened as txn's pending write (rather
// than a bare canonical value) so that commit's mutated-flush step actually
// finds it dirty and persists it; see DESIGN.md for why this departs from a
// literal reading of the original's plain cache insert.
func (f *File[T]) CreateBlock(txn txid.ID, id string, data T) (T, error) {
	if id == hostdir.PendingName {
		var zero T
		return zero, dberr.New(dberr.BadRequest, "blockfile.CreateBlock", "this name is reserved")
	}

	listing, err := f.listing.Write(txn)
	if err != nil {
		var zero T
		return zero, err
	}
	if listing[id] {
		var zero T
		return zero, dberr.New(dberr.BadRequest, "blockfile.CreateBlock", fmt.Sprintf("there is already a block called %q", id))
	}
	listing = cloneIDSet(listing)
	listing[id] = true
	f.listing.Store(txn, listing)

	var zero T
	f.cache.Insert(id, zero)
	if _, err := f.cache.GetForWrite(id, txn); err != nil {
		return zero, err
	}
	f.cache.Store(id, txn, data)
	if err := f.markMutated(txn, id); err != nil {
		return zero, err
	}
	return data, nil
}

// GetBlockForWrite materializes id (as GetBlock does) and opens a pending
// write on it under txn, returning the current value for the caller to
// mutate and pass to StoreBlock.
func (f *File[T]) GetBlockForWrite(txn txid.ID, id string) (T, error) {
	if _, err := f.GetBlock(txn, id); err != nil {
		var zero T
		return zero, err
	}
	v, _, err := f.cache.GetForWrite(id, txn)
	return v, err
}

// StoreBlock persists a mutated value into id's pending write under txn
// (opened by a prior GetBlockForWrite) and records id as mutated so commit
// flushes it.
func (f *File[T]) StoreBlock(txn txid.ID, id string, value T) error {
	f.cache.Store(id, txn, value)
	return f.markMutated(txn, id)
}

func (f *File[T]) markMutated(txn txid.ID, id string) error {
	mutated, err := f.mutated.Write(txn)
	if err != nil {
		return err
	}
	mutated = cloneIDSet(mutated)
	mutated[id] = true
	f.mutated.Store(txn, mutated)
	return nil
}

// GetBlock returns the TXID-correct view of id, materializing it from disk
// on first access. Raises dberr.Internal("data corrupt") if id is listed but
// absent from both the per-txn staging directory and the canonical one.
func (f *File[T]) GetBlock(txn txid.ID, id string) (T, error) {
	if v, ok := f.cache.Get(id, txn); ok {
		metrics.CacheHits.WithLabelValues(f.name).Inc()
		return v, nil
	}

	listing := f.listing.Read(txn)
	if !listing[id] {
		var zero T
		return zero, dberr.New(dberr.NotFound, "blockfile.GetBlock", fmt.Sprintf("block %q not found", id))
	}

	metrics.CacheMisses.WithLabelValues(f.name).Inc()

	data, found, err := f.lookupPending(txn, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if !found {
		data, found, err = f.dir.GetBlock(id)
		if err != nil {
			var zero T
			return zero, err
		}
	}
	if !found {
		var zero T
		return zero, dberr.New(dberr.Internal, "blockfile.GetBlock", "data corruption error detected: listed block missing from disk")
	}

	value, err := f.codec.Decode(data)
	if err != nil {
		var zero T
		return zero, dberr.Wrap(dberr.Internal, "blockfile.GetBlock", "decode failed", err)
	}

	f.cache.Insert(id, value)
	if v, ok := f.cache.Get(id, txn); ok {
		return v, nil
	}
	return value, nil
}

func (f *File[T]) lookupPending(txn txid.ID, id string) ([]byte, bool, error) {
	txnDir, err := f.pending.GetDir(txn.String())
	if dberr.Is(err, dberr.NotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return txnDir.GetBlock(id)
}

// MutateBlock records id as needing a flush on the next commit. Most callers
// should prefer GetBlockForWrite+StoreBlock, which call this automatically;
// MutateBlock remains public for spec.md §4.D parity and for callers that
// mutate a cached value in place without going through StoreBlock.
func (f *File[T]) MutateBlock(txn txid.ID, id string) error {
	return f.markMutated(txn, id)
}

// DeleteBlock removes id from the visible listing; commit will delete the
// canonical blob.
func (f *File[T]) DeleteBlock(txn txid.ID, id string) error {
	listing, err := f.listing.Write(txn)
	if err != nil {
		return err
	}
	if !listing[id] {
		return dberr.New(dberr.NotFound, "blockfile.DeleteBlock", fmt.Sprintf("block %q not found", id))
	}
	listing = cloneIDSet(listing)
	delete(listing, id)
	f.listing.Store(txn, listing)
	return nil
}

// UniqueID returns a fresh identifier not already present in the listing
// visible to txn.
func (f *File[T]) UniqueID(txn txid.ID) string {
	listing := f.listing.Read(txn)
	for {
		id := uuid.NewString()
		if !listing[id] {
			return id
		}
	}
}

// IsEmpty reports whether the listing visible to txn has no blocks.
func (f *File[T]) IsEmpty(txn txid.ID) bool {
	return len(f.listing.Read(txn)) == 0
}

// Commit runs the six steps of spec.md §4.D: delete blocks dropped from the
// listing, commit the listing, snapshot and commit the mutated set, flush
// dirty blocks into a per-txn staging directory, promote the cache, and
// finally copy the staged blobs into the canonical directory.
func (f *File[T]) Commit(txn txid.ID) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommitDuration, f.name)

	newListing := f.listing.Read(txn)
	oldListing := f.listing.Canonical()

	for id := range oldListing {
		if !newListing[id] {
			if err := f.dir.DeleteBlock(id); err != nil {
				return err
			}
			f.cache.Remove(id)
		}
	}
	f.listing.Commit(txn)

	mutated := f.mutated.Read(txn)
	ids := make([]string, 0, len(mutated))
	for id := range mutated {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	f.mutated.Commit(txn)

	if len(ids) > 0 {
		pendingTxnDir, err := f.pending.GetOrCreateDir(txn.String())
		if err != nil {
			return dberr.Wrap(dberr.Internal, "blockfile.Commit", "create staging dir failed", err)
		}
		for _, id := range ids {
			value, dirty, exists := f.cache.PendingFor(id, txn)
			if !exists || !dirty {
				continue
			}
			data, err := f.codec.Encode(value)
			if err != nil {
				return dberr.Wrap(dberr.Internal, "blockfile.Commit", "encode failed", err)
			}
			if err := pendingTxnDir.PutBlock(id, data); err != nil {
				return err
			}
		}
	}

	f.cache.CommitAll(txn)

	pendingTxnDir, err := f.pending.GetOrCreateDir(txn.String())
	if err != nil {
		return dberr.Wrap(dberr.Internal, "blockfile.Commit", "open staging dir failed", err)
	}
	if err := f.dir.CopyAll(pendingTxnDir); err != nil {
		return dberr.Wrap(dberr.Internal, "blockfile.Commit", "copy staged blocks failed", err)
	}
	return nil
}

// Rollback discards every pending mutation made under txn; no disk writes
// occur.
func (f *File[T]) Rollback(txn txid.ID) {
	f.listing.Rollback(txn)
	f.mutated.Rollback(txn)
	f.cache.RollbackAll(txn)
}

// Finalize deletes txn's staging directory (if any survived commit) and
// releases per-txn bookkeeping.
func (f *File[T]) Finalize(txn txid.ID) error {
	if err := f.pending.DeleteDir(txn.String()); err != nil {
		return err
	}
	f.listing.Finalize(txn)
	f.mutated.Finalize(txn)
	f.cache.FinalizeAll(txn)
	return nil
}

// Name returns the block file's collection name, used for log/metric labels.
func (f *File[T]) Name() string { return f.name }
