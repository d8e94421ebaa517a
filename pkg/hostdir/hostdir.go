/*
Package hostdir implements the Host directory (spec.md §4.A): an
untransacted, filesystem-backed directory tree of named sub-directories and
block bags. It is the bottom layer the transactional block file (pkg/blockfile)
builds on; hostdir itself has no notion of a transaction id.

Grounded on original_source/host/transact/src/fs/file.rs's `hostfs::Dir`
collaborator and, for on-disk layout conventions (data directory rooted
under a configurable path, atomic rename-on-publish), on the teacher's
pkg/storage/boltdb.go (`filepath.Join(dataDir, ...)`).
*/
package hostdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/rs/zerolog"
)

// PendingName is the reserved identifier for the per-transaction staging
// subdirectory (spec.md §6: "The identifier \".pending\" is reserved").
const PendingName = ".pending"

// Dir is a single node of the host directory tree, rooted at Path on disk.
// Every mutating operation takes an exclusive lock on this node only;
// callers crossing multiple directories must lock in identifier-lexicographic
// order to avoid cycles (spec.md §4.A).
type Dir struct {
	Path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// Open mounts a Dir rooted at path, creating the directory if absent.
func Open(path string, logger zerolog.Logger) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "hostdir.Open", "mkdir failed", err)
	}
	return &Dir{Path: path, logger: logger}, nil
}

// sub returns the child Dir's filesystem path without validating it exists.
func (d *Dir) sub(name string) string {
	return filepath.Join(d.Path, name)
}

// CreateDir creates a new child directory node. Fails with dberr.ErrConflict
// if name already exists.
func (d *Dir) CreateDir(name string) (*Dir, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.sub(name)
	if _, err := os.Stat(path); err == nil {
		return nil, dberr.New(dberr.Conflict, "hostdir.CreateDir", fmt.Sprintf("directory %q already exists", name))
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "hostdir.CreateDir", "mkdir failed", err)
	}
	return &Dir{Path: path, logger: d.logger}, nil
}

// GetDir returns the child directory node, or dberr.ErrNotFound.
func (d *Dir) GetDir(name string) (*Dir, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.sub(name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, dberr.New(dberr.NotFound, "hostdir.GetDir", fmt.Sprintf("directory %q not found", name))
	}
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "hostdir.GetDir", "stat failed", err)
	}
	if !info.IsDir() {
		return nil, dberr.New(dberr.Internal, "hostdir.GetDir", fmt.Sprintf("%q is not a directory", name))
	}
	return &Dir{Path: path, logger: d.logger}, nil
}

// GetOrCreateDir returns the named child, creating it if absent. Used by
// blockfile to lazily materialize a TXID's staging subdirectory.
func (d *Dir) GetOrCreateDir(name string) (*Dir, error) {
	sub, err := d.GetDir(name)
	if dberr.Is(err, dberr.NotFound) {
		return d.CreateDir(name)
	}
	return sub, err
}

// DeleteDir removes a child directory and everything under it.
func (d *Dir) DeleteDir(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.sub(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.DeleteDir", "remove failed", err)
	}
	return nil
}

// CreateBlock writes a new block bag entry. Fails with dberr.ErrConflict if
// id already names a block in this directory.
func (d *Dir) CreateBlock(id string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.sub(id)
	if _, err := os.Stat(path); err == nil {
		return dberr.New(dberr.Conflict, "hostdir.CreateBlock", fmt.Sprintf("block %q already exists", id))
	}
	return d.writeLocked(path, data)
}

// PutBlock writes or overwrites a block bag entry unconditionally (used by
// commit replay, which always wants the staged bytes to win).
func (d *Dir) PutBlock(id string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeLocked(d.sub(id), data)
}

func (d *Dir) writeLocked(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.writeLocked", "write failed", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.writeLocked", "rename failed", err)
	}
	return nil
}

// GetBlock reads a block bag entry. Returns (nil, false, nil) on a clean
// miss so callers can fall back to another directory without treating a
// miss as an error.
func (d *Dir) GetBlock(id string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.sub(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "hostdir.GetBlock", "read failed", err)
	}
	return data, true, nil
}

// DeleteBlock removes a block bag entry. Missing entries are not an error
// (commit's delete step is idempotent by construction).
func (d *Dir) DeleteBlock(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.sub(id)); err != nil && !os.IsNotExist(err) {
		return dberr.Wrap(dberr.Internal, "hostdir.DeleteBlock", "remove failed", err)
	}
	return nil
}

// CopyAll moves every blob from src into d, overwriting collisions, then
// removes src. Cross-directory operations lock in identifier-lexicographic
// order (spec.md §4.A) to avoid deadlocking against a concurrent CopyAll in
// the opposite direction.
func (d *Dir) CopyAll(src *Dir) error {
	first, second := d, src
	if src.Path < d.Path {
		first, second = src, d
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	entries, err := os.ReadDir(src.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberr.Wrap(dberr.Internal, "hostdir.CopyAll", "readdir failed", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(src.Path, name))
		if err != nil {
			return dberr.Wrap(dberr.Internal, "hostdir.CopyAll", "read failed", err)
		}
		if err := d.writeLockedNoLock(filepath.Join(d.Path, name), data); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(src.Path); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.CopyAll", "cleanup failed", err)
	}
	return nil
}

// writeLockedNoLock writes without re-acquiring d.mu; only safe when the
// caller already holds the relevant lock (CopyAll's lock-ordering path).
func (d *Dir) writeLockedNoLock(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.CopyAll", "write failed", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return dberr.Wrap(dberr.Internal, "hostdir.CopyAll", "rename failed", err)
	}
	return nil
}

// IsEmpty reports whether the directory holds no entries at all.
func (d *Dir) IsEmpty() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, dberr.Wrap(dberr.Internal, "hostdir.IsEmpty", "readdir failed", err)
	}
	return len(entries) == 0, nil
}

// ListBlocks returns the ids of every block bag entry directly under d
// (excluding child directories and the reserved pending subdirectory).
func (d *Dir) ListBlocks() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberr.Wrap(dberr.Internal, "hostdir.ListBlocks", "readdir failed", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == PendingName || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// ListDirs returns the names of every child directory directly under d. Used
// by blockfile at Open time to discover stale per-transaction staging
// directories left behind by a crash between commit steps 5 and 6.
func (d *Dir) ListDirs() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberr.Wrap(dberr.Internal, "hostdir.ListDirs", "readdir failed", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
