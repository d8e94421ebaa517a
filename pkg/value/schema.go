package value

import (
	"fmt"

	"github.com/cuemby/datahost/pkg/dberr"
)

// Column describes one schema column: its name, value kind, and (for
// variable-length kinds) a declared maximum byte length. spec.md §4.F: "A
// column with no inherent size and no declared max length is a schema
// error."
type Column struct {
	Name     string
	Kind     Kind
	MaxBytes int // only meaningful when the kind has no fixed size (Value.Size() == -1)
}

// Validate checks the column declares enough information to compute a fixed
// on-disk footprint.
func (c Column) Validate() error {
	if c.Name == "" {
		return dberr.New(dberr.BadRequest, "schema.Validate", "column name must not be empty")
	}
	if Kind(c.Kind).sizeOrNeg() == -1 && c.MaxBytes <= 0 {
		return dberr.New(dberr.BadRequest, "schema.Validate",
			fmt.Sprintf("column %q of kind %s has no inherent size and no declared max_bytes", c.Name, c.Kind))
	}
	return nil
}

func (k Kind) sizeOrNeg() int {
	return Value{Kind: k}.Size()
}

// ByteWidth returns the column's fixed serialized width: the kind's
// inherent size, or MaxBytes for variable-length kinds.
func (c Column) ByteWidth() int {
	if w := (Value{Kind: c.Kind}).Size(); w != -1 {
		return w
	}
	return c.MaxBytes
}

// Schema is an ordered list of columns. Row schemas (spec.md §3) conform to
// this for both full rows and partial rows/bounds.
type Schema []Column

// Validate validates every column and rejects empty schemas.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return dberr.New(dberr.BadRequest, "schema.Validate", "schema must declare at least one column")
	}
	seen := make(map[string]bool, len(s))
	for _, c := range s {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Name] {
			return dberr.New(dberr.BadRequest, "schema.Validate", fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
	}
	return nil
}

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// KeySize is the serialized footprint of one full key: the sum of every
// column's byte width plus two flag bytes (leaf, deleted), matching
// spec.md §4.F's `key_size = Σ column_max_bytes + 2`.
func (s Schema) KeySize() int {
	total := 2
	for _, c := range s {
		total += c.ByteWidth()
	}
	return total
}

// Row maps column name to value. A full row has every schema column
// present; a partial row (bounds, updates) may have a subset.
type Row map[string]Value

// Key is an ordered tuple of values, one per schema column, in schema
// column order (spec.md §3 "Row").
type Key []Value

// ToKey projects a full row into an ordered Key following schema order.
func (s Schema) ToKey(row Row) (Key, error) {
	key := make(Key, len(s))
	for i, c := range s {
		v, ok := row[c.Name]
		if !ok {
			return nil, dberr.New(dberr.BadRequest, "schema.ToKey", fmt.Sprintf("row missing column %q", c.Name))
		}
		key[i] = v
	}
	return key, nil
}

// ToRow expands a Key (or prefix of one) back into a Row using schema
// column names in order.
func (s Schema) ToRow(key Key) Row {
	row := make(Row, len(key))
	for i, v := range key {
		if i >= len(s) {
			break
		}
		row[s[i].Name] = v
	}
	return row
}

// Project returns a copy of the schema containing only the named columns,
// in the requested order. Used by table views' `select` operation.
func (s Schema) Project(names []string) (Schema, error) {
	out := make(Schema, 0, len(names))
	for _, n := range names {
		i := s.IndexOf(n)
		if i == -1 {
			return nil, dberr.New(dberr.BadRequest, "schema.Project", fmt.Sprintf("unknown column %q", n))
		}
		out = append(out, s[i])
	}
	return out, nil
}
