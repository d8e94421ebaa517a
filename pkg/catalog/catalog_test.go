package catalog

import (
	"testing"

	"github.com/cuemby/datahost/pkg/table"
	"github.com/cuemby/datahost/pkg/value"
)

func TestPutGetRoundTrip(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	desc := Descriptor{
		Name:        "widgets",
		Kind:        KindBTree,
		BTreeSchema: value.Schema{{Name: "id", Kind: value.KindI64}},
		Roots:       map[string]string{"primary": "root-1"},
	}
	if err := cat.Put(desc); err != nil {
		t.Fatal(err)
	}

	got, found, err := cat.Get("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected widgets to be found")
	}
	if got.Name != "widgets" || got.Kind != KindBTree || got.Roots["primary"] != "root-1" {
		t.Fatalf("unexpected descriptor: %+v", got)
	}
}

func TestGetMissingIsCleanMiss(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	_, found, err := cat.Get("nope")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected clean miss")
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	schema := TableSchemaFixture()
	desc := Descriptor{Name: "people", Kind: KindTable, TableSchema: &schema, Roots: map[string]string{"primary": "r1"}}
	if err := cat.Put(desc); err != nil {
		t.Fatal(err)
	}
	desc.Roots = map[string]string{"primary": "r2", "by_name": "r3"}
	if err := cat.Put(desc); err != nil {
		t.Fatal(err)
	}

	got, found, err := cat.Get("people")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected people to be found")
	}
	if got.Roots["primary"] != "r2" || got.Roots["by_name"] != "r3" {
		t.Fatalf("Put should overwrite roots, got %+v", got.Roots)
	}
	if got.TableSchema == nil || len(got.TableSchema.Auxiliary) != 1 {
		t.Fatalf("unexpected table schema after round trip: %+v", got.TableSchema)
	}
}

func TestListReturnsAllCollections(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	for _, name := range []string{"a", "b", "c"} {
		desc := Descriptor{Name: name, Kind: KindBTree, Roots: map[string]string{"primary": name + "-root"}}
		if err := cat.Put(desc); err != nil {
			t.Fatal(err)
		}
	}

	all, err := cat.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d collections, want 3", len(all))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()

	desc := Descriptor{Name: "widgets", Kind: KindBTree, Roots: map[string]string{"primary": "root-1"}}
	if err := cat.Put(desc); err != nil {
		t.Fatal(err)
	}
	if err := cat.Delete("widgets"); err != nil {
		t.Fatal(err)
	}
	if err := cat.Delete("widgets"); err != nil {
		t.Fatal(err)
	}
	_, found, err := cat.Get("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected widgets to be gone after Delete")
	}
}

func TestCatalogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	desc := Descriptor{Name: "widgets", Kind: KindBTree, Roots: map[string]string{"primary": "root-1"}}
	if err := cat.Put(desc); err != nil {
		t.Fatal(err)
	}
	if err := cat.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, found, err := reopened.Get("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Roots["primary"] != "root-1" {
		t.Fatalf("unexpected descriptor after reopen: found=%v %+v", found, got)
	}
}

// TableSchemaFixture builds a small table.TableSchema for catalog tests,
// independent of pkg/table's own test fixtures.
func TableSchemaFixture() table.TableSchema {
	return table.TableSchema{
		Primary: table.IndexSchema{
			Key:    value.Schema{{Name: "id", Kind: value.KindI64}},
			Values: value.Schema{{Name: "name", Kind: value.KindString, MaxBytes: 64}},
		},
		Auxiliary: []table.AuxiliaryDef{
			{Name: "by_name", Columns: []string{"name", "id"}},
		},
	}
}
