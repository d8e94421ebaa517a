package blockcache

import (
	"testing"

	"github.com/cuemby/datahost/pkg/txid"
)

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func TestInsertAndGet(t *testing.T) {
	c := New(cloneBytes)
	t1 := txid.ID{Timestamp: 1}
	c.Insert("block-1", []byte("hello"))

	v, ok := c.Get("block-1", t1)
	if !ok || string(v) != "hello" {
		t.Fatalf("Get = %q, ok=%v", v, ok)
	}
}

func TestGetForWriteThenCommitVisibleToLaterTxn(t *testing.T) {
	c := New(cloneBytes)
	t1 := txid.ID{Timestamp: 1}
	t2 := txid.ID{Timestamp: 2}
	c.Insert("b", []byte("orig"))

	v, ok, err := c.GetForWrite("b", t1)
	if !ok || err != nil {
		t.Fatalf("GetForWrite: ok=%v err=%v", ok, err)
	}
	v = append(v[:0], []byte("mutated")...)
	c.Store("b", t1, v)
	c.CommitAll(t1)

	got, _ := c.Get("b", t2)
	if string(got) != "mutated" {
		t.Errorf("got %q after commit, want mutated", got)
	}
}

func TestEvictCleanKeepsDirty(t *testing.T) {
	c := New(cloneBytes)
	t1 := txid.ID{Timestamp: 1}
	c.Insert("clean", []byte("a"))
	c.Insert("dirty", []byte("b"))
	if _, _, err := c.GetForWrite("dirty", t1); err != nil {
		t.Fatal(err)
	}

	c.EvictClean()
	if _, ok := c.Get("clean", t1); ok {
		t.Error("clean slot should have been evicted")
	}
	if _, ok := c.Get("dirty", t1); !ok {
		t.Error("dirty slot must not be evicted")
	}
}
