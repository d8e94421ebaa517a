package txlock

import (
	"testing"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/txid"
)

func cloneStringSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestReadReturnsCanonicalWithoutWriter(t *testing.T) {
	l := New("test", map[string]bool{"a": true}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}
	got := l.Read(t1)
	if !got["a"] {
		t.Fatal("expected canonical value visible to a reader with no pending write")
	}
}

func TestWriteConflictsAcrossTxns(t *testing.T) {
	l := New("test", map[string]bool{}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}
	t2 := txid.ID{Timestamp: 2}

	if _, err := l.Write(t1); err != nil {
		t.Fatalf("Write(t1): %v", err)
	}
	_, err := l.Write(t2)
	if !dberr.Is(err, dberr.Conflict) {
		t.Fatalf("expected Conflict from a second writer, got %v", err)
	}
}

func TestWriteReentrantSameTxn(t *testing.T) {
	l := New("test", map[string]bool{}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}

	v, err := l.Write(t1)
	if err != nil {
		t.Fatal(err)
	}
	v["x"] = true
	l.Store(t1, v)

	v2, err := l.Write(t1)
	if err != nil {
		t.Fatalf("reentrant Write should succeed: %v", err)
	}
	if !v2["x"] {
		t.Fatal("reentrant write should observe the earlier mutation")
	}
}

func TestCommitPromotesPending(t *testing.T) {
	l := New("test", map[string]bool{}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}
	t2 := txid.ID{Timestamp: 2}

	v, _ := l.Write(t1)
	v["x"] = true
	l.Store(t1, v)
	l.Commit(t1)

	// A fresh reader TXID after commit should see the promoted canonical.
	if !l.Read(t2)["x"] {
		t.Fatal("expected committed value visible to a later TXID")
	}
	// Writer slot should be free for a new writer.
	if _, err := l.Write(t2); err != nil {
		t.Fatalf("expected writer slot free after commit: %v", err)
	}
}

func TestRollbackDiscardsPending(t *testing.T) {
	l := New("test", map[string]bool{"keep": true}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}

	v, _ := l.Write(t1)
	delete(v, "keep")
	l.Store(t1, v)
	l.Rollback(t1)

	if !l.Read(t1)["keep"] {
		t.Fatal("rollback should discard the pending mutation")
	}
}

func TestRollbackAndFinalizeAreIdempotent(t *testing.T) {
	l := New("test", map[string]bool{}, cloneStringSet)
	t1 := txid.ID{Timestamp: 1}
	l.Rollback(t1)
	l.Rollback(t1)
	l.Finalize(t1)
	l.Finalize(t1)
}
