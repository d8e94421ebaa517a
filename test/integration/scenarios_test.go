// Package integration exercises spec.md §8's end-to-end scenarios across
// package boundaries, the way test/integration does for the teacher's own
// containerd and cluster workflows: real files on disk, no mocks.
package integration

import (
	"testing"

	"github.com/cuemby/datahost/pkg/btree"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/log"
	"github.com/cuemby/datahost/pkg/table"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func openDir(t *testing.T) *hostdir.Dir {
	t.Helper()
	dir, err := hostdir.Open(t.TempDir(), log.Logger)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func streamInts(t *testing.T, idx *btree.Index, txn txid.ID, reverse bool) []int64 {
	t.Helper()
	seq, err := idx.Stream(txn, value.FullRange(), reverse)
	if err != nil {
		t.Fatal(err)
	}
	var out []int64
	for k := range seq {
		n, err := k[0].AsInt()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, n)
	}
	return out
}

// Scenario 1: single-column index, forward/reverse streaming, range length.
func TestSingleColumnIndexStreamAndLen(t *testing.T) {
	dir := openDir(t)
	schema := value.Schema{{Name: "x", Kind: value.KindI64}}
	t1 := txid.New(1)
	idx, _, err := btree.Create(t1, "x", dir, schema)
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int64{3, 1, 4, 1, 5, 9, 2, 6} {
		_ = idx.Insert(t1, value.Key{value.I64(n)})
	}

	forward := streamInts(t, idx, t1, false)
	want := []int64{1, 2, 3, 4, 5, 6, 9}
	if !intsEqual(forward, want) {
		t.Fatalf("forward stream = %v, want %v", forward, want)
	}

	reverse := streamInts(t, idx, t1, true)
	wantReverse := []int64{9, 6, 5, 4, 3, 2, 1}
	if !intsEqual(reverse, wantReverse) {
		t.Fatalf("reverse stream = %v, want %v", reverse, wantReverse)
	}

	r := value.Range{
		Lower: []value.Bound{value.IncludeBound(value.I64(2))},
		Upper: []value.Bound{value.IncludeBound(value.I64(6))},
	}
	n, err := idx.Len(t1, r)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("Len([2,6]) = %d, want 5", n)
	}
}

// Scenario 2: two-column index, partial-prefix range bounds.
func TestTwoColumnIndexRangeBounds(t *testing.T) {
	dir := openDir(t)
	schema := value.Schema{{Name: "a", Kind: value.KindI32}, {Name: "b", Kind: value.KindI32}}
	t1 := txid.New(1)
	idx, _, err := btree.Create(t1, "ab", dir, schema)
	if err != nil {
		t.Fatal(err)
	}

	for _, pair := range [][2]int32{{1, 10}, {1, 20}, {2, 10}, {2, 20}} {
		_ = idx.Insert(t1, value.Key{value.I32(pair[0]), value.I32(pair[1])})
	}

	r1 := value.Range{
		Lower: []value.Bound{value.IncludeBound(value.I32(1)), value.IncludeBound(value.I32(15))},
		Upper: []value.Bound{value.IncludeBound(value.I32(1)), value.UnboundedBound()},
	}
	got1 := collectPairs(t, idx, t1, r1)
	want1 := [][2]int32{{1, 20}}
	if !pairsEqual(got1, want1) {
		t.Fatalf("range 1 = %v, want %v", got1, want1)
	}

	r2 := value.Range{
		Lower: []value.Bound{value.UnboundedBound()},
		Upper: []value.Bound{value.IncludeBound(value.I32(2)), value.IncludeBound(value.I32(10))},
	}
	got2 := collectPairs(t, idx, t1, r2)
	want2 := [][2]int32{{1, 10}, {1, 20}, {2, 10}}
	if !pairsEqual(got2, want2) {
		t.Fatalf("range 2 = %v, want %v", got2, want2)
	}
}

func collectPairs(t *testing.T, idx *btree.Index, txn txid.ID, r value.Range) [][2]int32 {
	t.Helper()
	seq, err := idx.Stream(txn, r, false)
	if err != nil {
		t.Fatal(err)
	}
	var out [][2]int32
	for k := range seq {
		a, err := k[0].AsInt()
		if err != nil {
			t.Fatal(err)
		}
		b, err := k[1].AsInt()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, [2]int32{int32(a), int32(b)})
	}
	return out
}

// Scenario 3: tombstone then re-insert.
func TestTombstoneThenReinsert(t *testing.T) {
	dir := openDir(t)
	schema := value.Schema{{Name: "n", Kind: value.KindI64}}
	t1 := txid.New(1)
	idx, _, err := btree.Create(t1, "n", dir, schema)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.Insert(t1, value.Key{value.I64(5)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(t1, value.KeyRange(value.Key{value.I64(5)})); err != nil {
		t.Fatal(err)
	}
	if got := streamInts(t, idx, t1, false); len(got) != 0 {
		t.Fatalf("after delete, stream = %v, want empty", got)
	}

	if err := idx.Insert(t1, value.Key{value.I64(5)}); err != nil {
		t.Fatal(err)
	}
	if got := streamInts(t, idx, t1, false); !intsEqual(got, []int64{5}) {
		t.Fatalf("after reinsert, stream = %v, want [5]", got)
	}
}

// Scenario 4: a table with one auxiliary index on (name, id).
func TestTableAuxiliaryIndexSlice(t *testing.T) {
	dir := openDir(t)
	schema := table.TableSchema{
		Primary: table.IndexSchema{
			Key:    value.Schema{{Name: "id", Kind: value.KindU64}},
			Values: value.Schema{{Name: "name", Kind: value.KindString, MaxBytes: 16}},
		},
		Auxiliary: []table.AuxiliaryDef{
			{Name: "by_name", Columns: []string{"name", "id"}},
		},
	}
	t1 := txid.New(1)
	tbl, _, err := table.Create(t1, "people", dir, schema)
	if err != nil {
		t.Fatal(err)
	}

	insertPerson := func(id uint64, name string) {
		t.Helper()
		if err := tbl.Insert(t1, value.Key{value.U64(id)}, value.Key{value.String(name)}); err != nil {
			t.Fatal(err)
		}
	}
	insertPerson(1, "amy")
	insertPerson(2, "bob")
	insertPerson(3, "amy")

	idsForName := func(name string) []uint64 {
		t.Helper()
		view, err := tbl.Slice(t1, table.Bounds{"name": table.Equal(value.String(name))})
		if err != nil {
			t.Fatal(err)
		}
		seq, err := view.Stream(t1)
		if err != nil {
			t.Fatal(err)
		}
		var ids []uint64
		for row := range seq {
			id, err := row["id"].AsInt()
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, uint64(id))
		}
		return ids
	}

	if got := idsForName("amy"); !u64Equal(got, []uint64{1, 3}) {
		t.Fatalf("slice(name=amy) ids = %v, want [1 3]", got)
	}
	if got := idsForName("zed"); len(got) != 0 {
		t.Fatalf("slice(name=zed) = %v, want empty", got)
	}

	if err := tbl.Upsert(t1, value.Key{value.U64(2)}, value.Key{value.String("amy")}); err != nil {
		t.Fatal(err)
	}
	if got := idsForName("amy"); !u64Equal(got, []uint64{1, 2, 3}) {
		t.Fatalf("slice(name=amy) after upsert = %v, want [1 2 3]", got)
	}
}

// Scenario 5: commit durability across a reopen made before Finalize.
func TestCommitDurabilityAcrossReopen(t *testing.T) {
	dir := openDir(t)
	schema := value.Schema{{Name: "n", Kind: value.KindI64}}
	t1 := txid.New(1)
	idx, _, err := btree.Create(t1, "n", dir, schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert(t1, value.Key{value.I64(42)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Commit(t1); err != nil {
		t.Fatal(err)
	}
	root := idx.RootID(t1)

	// Finalize deliberately deferred here, mirroring "crash between commit
	// and finalize": Commit has already moved pending/<t1> into the
	// canonical directory and removed it, so every value a new reader needs
	// is visible through the canonical listing.
	reopened, err := btree.Open("n", dir, schema, root)
	if err != nil {
		t.Fatal(err)
	}
	t2 := txid.New(2)
	got := streamInts(t, reopened, t2, false)
	if !intsEqual(got, []int64{42}) {
		t.Fatalf("reopened stream = %v, want [42]", got)
	}

	if err := idx.Finalize(t1); err != nil {
		t.Fatal(err)
	}
	t3 := txid.New(3)
	got = streamInts(t, idx, t3, false)
	if !intsEqual(got, []int64{42}) {
		t.Fatalf("post-finalize stream = %v, want [42]", got)
	}
}

// Scenario 6: query planner composes a bound on the primary with a range on
// an auxiliary, the result landing in the auxiliary's order. The primary
// key carries a disambiguating seq column (a user has many events), so the
// planner genuinely has to use both indexes rather than satisfying the
// whole bound set from one of them alone.
func TestQueryPlannerComposesBoundAcrossIndexes(t *testing.T) {
	dir := openDir(t)
	schema := table.TableSchema{
		Primary: table.IndexSchema{
			Key:    value.Schema{{Name: "user_id", Kind: value.KindI64}, {Name: "seq", Kind: value.KindI64}},
			Values: value.Schema{{Name: "created_at", Kind: value.KindI64}},
		},
		Auxiliary: []table.AuxiliaryDef{
			{Name: "by_created", Columns: []string{"created_at", "user_id"}},
		},
	}
	t1 := txid.New(1)
	tbl, _, err := table.Create(t1, "events", dir, schema)
	if err != nil {
		t.Fatal(err)
	}

	insert := func(userID, seq, createdAt int64) {
		t.Helper()
		key := value.Key{value.I64(userID), value.I64(seq)}
		values := value.Key{value.I64(createdAt)}
		if err := tbl.Insert(t1, key, values); err != nil {
			t.Fatal(err)
		}
	}
	insert(42, 1, 100)
	insert(42, 2, 300)
	insert(7, 1, 200)
	insert(42, 3, 200)

	sliced, err := tbl.Slice(t1, table.Bounds{
		"user_id": table.Equal(value.I64(42)),
		"created_at": {
			Lower: value.IncludeBound(value.I64(100)),
			Upper: value.IncludeBound(value.I64(250)),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	seq, err := sliced.Stream(t1)
	if err != nil {
		t.Fatal(err)
	}
	var created []int64
	for row := range seq {
		c, err := row["created_at"].AsInt()
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, c)
	}
	want := []int64{100, 200}
	if !intsEqual(created, want) {
		t.Fatalf("slice(user_id=42, created_at in [100,250]) = %v, want %v", created, want)
	}
}

func intsEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func u64Equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pairsEqual(a, b [][2]int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
