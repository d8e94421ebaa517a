package hostdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestCreateAndGetBlock(t *testing.T) {
	d := newDir(t)
	if err := d.CreateBlock("a", []byte("hello")); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	data, ok, err := d.GetBlock("a")
	if err != nil || !ok {
		t.Fatalf("GetBlock: ok=%v err=%v", ok, err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want hello", data)
	}
}

func TestCreateBlockDuplicateConflict(t *testing.T) {
	d := newDir(t)
	if err := d.CreateBlock("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := d.CreateBlock("a", []byte("2")); err == nil {
		t.Fatal("expected conflict on duplicate create")
	}
}

func TestGetBlockMissingIsCleanMiss(t *testing.T) {
	d := newDir(t)
	_, ok, err := d.GetBlock("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing block")
	}
}

func TestCopyAllMovesAndOverwrites(t *testing.T) {
	src := newDir(t)
	dst := newDir(t)

	if err := src.CreateBlock("x", []byte("from-src")); err != nil {
		t.Fatal(err)
	}
	if err := dst.CreateBlock("y", []byte("existing")); err != nil {
		t.Fatal(err)
	}
	if err := dst.CreateBlock("x", []byte("stale")); err != nil {
		t.Fatal(err)
	}

	if err := dst.CopyAll(src); err != nil {
		t.Fatalf("CopyAll dst<-src: %v", err)
	}

	data, ok, err := dst.GetBlock("x")
	if err != nil || !ok {
		t.Fatalf("GetBlock x: ok=%v err=%v", ok, err)
	}
	if string(data) != "from-src" {
		t.Errorf("x = %q, want overwritten value from-src", data)
	}
	if _, ok, _ := dst.GetBlock("y"); !ok {
		t.Error("y should still be present after CopyAll")
	}
	if _, err := os.Stat(src.Path); !os.IsNotExist(err) {
		t.Error("src directory should be removed after CopyAll")
	}
}

func TestIsEmpty(t *testing.T) {
	d := newDir(t)
	empty, err := d.IsEmpty()
	if err != nil || !empty {
		t.Fatalf("expected empty, got empty=%v err=%v", empty, err)
	}
	if err := d.CreateBlock("a", []byte("x")); err != nil {
		t.Fatal(err)
	}
	empty, err = d.IsEmpty()
	if err != nil || empty {
		t.Fatalf("expected non-empty, got empty=%v err=%v", empty, err)
	}
}

func TestPendingNameReserved(t *testing.T) {
	d := newDir(t)
	sub, err := d.GetOrCreateDir(PendingName)
	if err != nil {
		t.Fatalf("GetOrCreateDir(.pending): %v", err)
	}
	if filepath.Base(sub.Path) != PendingName {
		t.Errorf("expected pending dir name %q, got %q", PendingName, sub.Path)
	}
}
