/*
Package collate implements the Collator (spec.md §4.E): a schema-aware total
ordering over rows and bounds. It compares values column-by-column using
per-type total orderings — lexicographic for strings, numeric for numbers
under a promotion lattice, tuple-lex for composites — and exposes the
bisection helpers B-Tree nodes use to locate a key's position among sorted
siblings.
*/
package collate

import (
	"bytes"

	"github.com/cuemby/datahost/pkg/value"
)

// Ordering is the three-way result of a comparison.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Collator compares values and keys under a fixed schema.
type Collator struct {
	schema value.Schema
}

// New constructs a Collator for the given schema.
func New(schema value.Schema) *Collator {
	return &Collator{schema: schema}
}

// CompareValue orders two values of the same declared kind.
func (c *Collator) CompareValue(k value.Kind, a, b value.Value) Ordering {
	switch k {
	case value.KindBool:
		av, _ := a.AsBool()
		bv, _ := b.AsBool()
		return compareBool(av, bv)
	case value.KindString, value.KindID:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return compareOrdered(as, bs)
	case value.KindBytes:
		ab, _ := a.AsBytes()
		bb, _ := b.AsBytes()
		return Ordering(clamp(bytes.Compare(ab, bb)))
	case value.KindTuple:
		at, _ := a.AsTuple()
		bt, _ := b.AsTuple()
		return c.compareTuple(at, bt)
	case value.KindComplex64, value.KindComplex128:
		ac, _ := a.AsComplex()
		bc, _ := b.AsComplex()
		return compareComplex(ac, bc)
	case value.KindLink:
		al, _ := a.AsLink()
		bl, _ := b.AsLink()
		if o := compareOrdered(al.Host, bl.Host); o != Equal {
			return o
		}
		return compareOrdered(al.Path, bl.Path)
	default:
		// Numeric promotion lattice: every integer/float kind compares as
		// float64, with NaN sorting greater than every other float so the
		// order stays total (spec.md §4.E).
		if a.IsNaN() && b.IsNaN() {
			return Equal
		}
		if a.IsNaN() {
			return Greater
		}
		if b.IsNaN() {
			return Less
		}
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return compareOrdered(af, bf)
	}
}

func (c *Collator) compareTuple(a, b []value.Value) Ordering {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Kind != b[i].Kind {
			// Heterogeneous tuples compare by kind ordinal as a last resort;
			// well-formed schemas never produce this, but the ordering must
			// stay total for arbitrary tuples.
			return compareOrdered(int(a[i].Kind), int(b[i].Kind))
		}
		if o := c.CompareValue(a[i].Kind, a[i], b[i]); o != Equal {
			return o
		}
	}
	return compareOrdered(len(a), len(b))
}

type ordered interface {
	~string | ~float64 | ~int
}

func compareOrdered[T ordered](a, b T) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func compareBool(a, b bool) Ordering {
	if a == b {
		return Equal
	}
	if !a && b {
		return Less
	}
	return Greater
}

func compareComplex(a, b complex128) Ordering {
	if o := compareOrdered(real(a), real(b)); o != Equal {
		return o
	}
	return compareOrdered(imag(a), imag(b))
}

func clamp(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}

// Compare orders two full keys column-by-column under the collator's
// schema.
func (c *Collator) Compare(a, b value.Key) Ordering {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if o := c.CompareValue(c.schema[i].Kind, a[i], b[i]); o != Equal {
			return o
		}
	}
	return compareOrdered(len(a), len(b))
}

// IsSorted reports whether seq is non-decreasing under Compare.
func (c *Collator) IsSorted(seq []value.Key) bool {
	for i := 1; i < len(seq); i++ {
		if c.Compare(seq[i-1], seq[i]) == Greater {
			return false
		}
	}
	return true
}

// BisectLeft returns the first index i in sorted keys such that
// keys[i] >= key (insertion point preceding any equal element).
func (c *Collator) BisectLeft(keys []value.Key, key value.Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.Compare(keys[mid], key) == Less {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BisectRight returns the first index i in sorted keys such that
// keys[i] > key (insertion point following any equal element).
func (c *Collator) BisectRight(keys []value.Key, key value.Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.Compare(keys[mid], key) == Greater {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// compareKeyToBounds compares a key against a sequence of per-column lower
// bounds (lower set) or upper bounds (lower unset): Less if the key falls
// strictly below the bounds, Greater if strictly above, Equal if it falls
// inside them.
func (c *Collator) compareKeyToBounds(key value.Key, bounds []value.Bound, lower bool) Ordering {
	for i, b := range bounds {
		if b.Kind == value.Unbounded {
			continue
		}
		if i >= len(key) {
			return Equal
		}
		o := c.CompareValue(c.schema[i].Kind, key[i], b.Value)
		if lower {
			switch b.Kind {
			case value.Inclusive:
				if o == Less {
					return Less
				}
				if o == Greater {
					return Greater
				}
			case value.Exclusive:
				if o != Greater {
					return Less
				}
				return Greater
			}
		} else {
			switch b.Kind {
			case value.Inclusive:
				if o == Greater {
					return Greater
				}
				if o == Less {
					return Less
				}
			case value.Exclusive:
				if o != Less {
					return Greater
				}
				return Less
			}
		}
	}
	return Equal
}

// BisectLeftRange returns the first index i in sorted keys whose key is
// not strictly below the given per-column lower bounds.
func (c *Collator) BisectLeftRange(keys []value.Key, lowerBounds []value.Bound) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.compareKeyToBounds(keys[mid], lowerBounds, true) == Less {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BisectRightRange returns the first index i in sorted keys whose key is
// strictly above the given per-column upper bounds.
func (c *Collator) BisectRightRange(keys []value.Key, upperBounds []value.Bound) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.compareKeyToBounds(keys[mid], upperBounds, false) == Greater {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Contains reports whether key satisfies every bound in r.
func (c *Collator) Contains(r value.Range, key value.Key) bool {
	for i := 0; i < r.Width(); i++ {
		if i >= len(key) {
			return false
		}
		lo := r.LowerAt(i)
		if lo.Kind != value.Unbounded {
			o := c.CompareValue(c.schema[i].Kind, key[i], lo.Value)
			if lo.Kind == value.Inclusive && o == Less {
				return false
			}
			if lo.Kind == value.Exclusive && o != Greater {
				return false
			}
		}
		hi := r.UpperAt(i)
		if hi.Kind != value.Unbounded {
			o := c.CompareValue(c.schema[i].Kind, key[i], hi.Value)
			if hi.Kind == value.Inclusive && o == Greater {
				return false
			}
			if hi.Kind == value.Exclusive && o != Less {
				return false
			}
		}
	}
	return true
}
