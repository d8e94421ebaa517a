package value

// BoundKind tags a Bound's variant: Unbounded, Inclusive, or Exclusive,
// matching spec.md §4.E exactly.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Inclusive
	Exclusive
)

// Bound is a per-column endpoint of a range. Grounded on
// original_source/prototype/collection/btree/bounds.rs's `Bound` enum
// (`Un`, `In(Value)`, `Ex(Value)`).
type Bound struct {
	Kind  BoundKind
	Value Value
}

// UnboundedBound constructs the absence of a constraint on a column.
func UnboundedBound() Bound { return Bound{Kind: Unbounded} }

// IncludeBound constructs an inclusive endpoint.
func IncludeBound(v Value) Bound { return Bound{Kind: Inclusive, Value: v} }

// ExcludeBound constructs an exclusive endpoint.
func ExcludeBound(v Value) Bound { return Bound{Kind: Exclusive, Value: v} }

// Range is a per-column pair of (lower, upper) bounds across a Schema
// prefix. Missing trailing bounds are treated as Unbounded (spec.md §4.E).
type Range struct {
	Lower []Bound
	Upper []Bound
}

// FullRange is the range matching every key.
func FullRange() Range { return Range{} }

// KeyRange constructs the single-key range [key, key] (an equality range),
// matching original_source's `impl From<Key> for BTreeRange`.
func KeyRange(key Key) Range {
	lower := make([]Bound, len(key))
	upper := make([]Bound, len(key))
	for i, v := range key {
		lower[i] = IncludeBound(v)
		upper[i] = IncludeBound(v)
	}
	return Range{Lower: lower, Upper: upper}
}

// boundAt returns the bound at position i, treating an out-of-range index
// (a trailing omitted bound) as Unbounded.
func boundAt(bounds []Bound, i int) Bound {
	if i >= len(bounds) {
		return UnboundedBound()
	}
	return bounds[i]
}

// LowerAt returns the lower bound for column i (Unbounded if not specified).
func (r Range) LowerAt(i int) Bound { return boundAt(r.Lower, i) }

// UpperAt returns the upper bound for column i (Unbounded if not specified).
func (r Range) UpperAt(i int) Bound { return boundAt(r.Upper, i) }

// Width is the number of columns this range constrains explicitly (the
// longer of the lower/upper bound lists).
func (r Range) Width() int {
	w := len(r.Lower)
	if len(r.Upper) > w {
		w = len(r.Upper)
	}
	return w
}

// IsKey reports whether the range denotes exactly one key: equal-width
// lower/upper lists, all Inclusive, with matching values.
func (r Range) IsKey() bool {
	if len(r.Lower) != len(r.Upper) || len(r.Lower) == 0 {
		return false
	}
	for i := range r.Lower {
		if r.Lower[i].Kind != Inclusive || r.Upper[i].Kind != Inclusive {
			return false
		}
		if !r.Lower[i].Value.Equal(r.Upper[i].Value) {
			return false
		}
	}
	return true
}

// IsEqualityPrefix reports whether the first n columns of the range are
// equality constraints (Inclusive lower == Inclusive upper), the shape the
// table planner (spec.md §4.G) requires for every leading bound but the
// last.
func (r Range) IsEqualityPrefix(n int) bool {
	for i := 0; i < n; i++ {
		lo, hi := boundAt(r.Lower, i), boundAt(r.Upper, i)
		if lo.Kind != Inclusive || hi.Kind != Inclusive || !lo.Value.Equal(hi.Value) {
			return false
		}
	}
	return true
}
