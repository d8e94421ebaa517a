/*
Package table implements the Table with secondary indexes (spec.md §4.G): a
primary B-Tree index plus zero or more named auxiliary B-Tree indexes kept in
sync on every mutation, a greedy query planner composing bound/order requests
into a chain of index slices, and a tagged TableView variant (spec.md §9
"Deep trait hierarchies over collection views") exposing the read-only `where`
/`order_by`/`limit`/`select`/`group_by`/`reverse` verbs spec.md §6 names.

Grounded on original_source/prototype/collection/table/index.rs's
TableIndex/Index/Merged types.
*/
package table

import (
	"fmt"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/value"
)

// PrimaryName is the reserved auxiliary index name (spec.md §4.G).
const PrimaryName = "primary"

// IndexSchema describes one index's row shape: Key is the index's own sort
// key (the B-Tree's ordering columns); Values are additional columns carried
// in every leaf alongside Key so the index's row always holds enough data to
// reconstruct the primary key (for auxiliaries) or the full row (primary).
type IndexSchema struct {
	Key    value.Schema
	Values value.Schema
}

// Combined returns Key followed by Values: the full schema the underlying
// B-Tree is built over.
func (s IndexSchema) Combined() value.Schema {
	out := make(value.Schema, 0, len(s.Key)+len(s.Values))
	out = append(out, s.Key...)
	out = append(out, s.Values...)
	return out
}

// KeyNames returns the index's key column names in order.
func (s IndexSchema) KeyNames() []string { return s.Key.Names() }

// AuxiliaryDef declares one auxiliary index at table-creation time: a name
// and the ordered list of column names (drawn from the primary's key or
// value columns) forming the auxiliary's own key. The remaining primary key
// columns not named here become the auxiliary's value columns automatically.
type AuxiliaryDef struct {
	Name    string
	Columns []string
}

// TableSchema is a primary schema plus an ordered set of auxiliary
// definitions (declaration order matters: the planner tries auxiliaries in
// this order after the primary).
type TableSchema struct {
	Primary   IndexSchema
	Auxiliary []AuxiliaryDef
}

// deriveAuxiliarySchema builds an auxiliary's IndexSchema from the primary
// schema and a column-name list, matching
// original_source/prototype/collection/table/index.rs's create_index: the
// auxiliary's key columns are looked up by name across the primary's full
// column set (key and value columns alike), and its value columns are
// whatever primary key columns are not already part of the auxiliary key.
func deriveAuxiliarySchema(primary IndexSchema, name string, columns []string) (IndexSchema, error) {
	if name == PrimaryName {
		return IndexSchema{}, dberr.New(dberr.BadRequest, "table.deriveAuxiliarySchema", "this index name is reserved")
	}

	byName := make(map[string]value.Column, len(primary.Key)+len(primary.Values))
	for _, c := range primary.Combined() {
		byName[c.Name] = c
	}

	seen := make(map[string]bool, len(columns))
	key := make(value.Schema, 0, len(columns))
	for _, name := range columns {
		if seen[name] {
			return IndexSchema{}, dberr.New(dberr.BadRequest, "table.deriveAuxiliarySchema",
				fmt.Sprintf("duplicate column %q in index", name))
		}
		seen[name] = true
		col, ok := byName[name]
		if !ok {
			return IndexSchema{}, dberr.New(dberr.NotFound, "table.deriveAuxiliarySchema",
				fmt.Sprintf("unknown column %q", name))
		}
		key = append(key, col)
	}

	values := make(value.Schema, 0, len(primary.Key))
	for _, c := range primary.Key {
		if !seen[c.Name] {
			values = append(values, c)
		}
	}

	return IndexSchema{Key: key, Values: values}, nil
}

// combineRow assembles a full primary row from a key and values tuple
// matching primary's own schema widths.
func combineRow(primary IndexSchema, key, values value.Key) (value.Row, error) {
	if len(key) != len(primary.Key) {
		return nil, dberr.New(dberr.BadRequest, "table.combineRow",
			fmt.Sprintf("key has %d columns, schema declares %d", len(key), len(primary.Key)))
	}
	if len(values) != len(primary.Values) {
		return nil, dberr.New(dberr.BadRequest, "table.combineRow",
			fmt.Sprintf("values has %d columns, schema declares %d", len(values), len(primary.Values)))
	}
	row := make(value.Row, len(key)+len(values))
	for i, c := range primary.Key {
		row[c.Name] = key[i]
	}
	for i, c := range primary.Values {
		row[c.Name] = values[i]
	}
	return row, nil
}
