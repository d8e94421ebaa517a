/*
Package value implements datahost's dynamic value variant: the closed set of
scalar types a row column can hold (spec.md §6 "Value types (for keys)").
Every Value is a tagged union dispatched on Kind; "casting" between kinds is
a fallible conversion that surfaces dberr.ErrBadRequest on mismatch, per
SPEC_FULL.md §9 ("Dynamic value types").
*/
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cuemby/datahost/pkg/dberr"
)

// Kind is the closed set of value variants datahost keys may hold.
type Kind int

const (
	KindBool Kind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindComplex64
	KindComplex128
	KindString
	KindBytes
	KindTuple
	KindLink
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindComplex64:
		return "complex64"
	case KindComplex128:
		return "complex128"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTuple:
		return "tuple"
	case KindLink:
		return "link"
	case KindID:
		return "id"
	default:
		return "unknown"
	}
}

// Link is a reference to a block bag on some host plus a path within it
// (spec.md §6, value type "links (host + path)").
type Link struct {
	Host string
	Path string
}

// Value is a single column value. Exactly one of the typed fields is valid,
// selected by Kind; this mirrors the tagged-variant dispatch recommended by
// SPEC_FULL.md §9 rather than an interface-per-type hierarchy.
type Value struct {
	Kind Kind

	b  bool
	i  int64
	u  uint64
	f  float64
	c  complex128
	s  string
	by []byte
	tu []Value
	ln Link
}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, b: b} }

// I16 constructs a signed 16-bit value.
func I16(v int16) Value { return Value{Kind: KindI16, i: int64(v)} }

// I32 constructs a signed 32-bit value.
func I32(v int32) Value { return Value{Kind: KindI32, i: int64(v)} }

// I64 constructs a signed 64-bit value.
func I64(v int64) Value { return Value{Kind: KindI64, i: v} }

// U8 constructs an unsigned 8-bit value.
func U8(v uint8) Value { return Value{Kind: KindU8, u: uint64(v)} }

// U16 constructs an unsigned 16-bit value.
func U16(v uint16) Value { return Value{Kind: KindU16, u: uint64(v)} }

// U32 constructs an unsigned 32-bit value.
func U32(v uint32) Value { return Value{Kind: KindU32, u: uint64(v)} }

// U64 constructs an unsigned 64-bit value.
func U64(v uint64) Value { return Value{Kind: KindU64, u: v} }

// F32 constructs a 32-bit float value.
func F32(v float32) Value { return Value{Kind: KindF32, f: float64(v)} }

// F64 constructs a 64-bit float value.
func F64(v float64) Value { return Value{Kind: KindF64, f: v} }

// Complex64 constructs a complex value backed by two 32-bit floats.
func Complex64(v complex64) Value { return Value{Kind: KindComplex64, c: complex128(v)} }

// Complex128 constructs a complex value backed by two 64-bit floats.
func Complex128(v complex128) Value { return Value{Kind: KindComplex128, c: v} }

// String constructs a string value.
func String(s string) Value { return Value{Kind: KindString, s: s} }

// Bytes constructs a byte-buffer value. The slice is retained, not copied.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, by: b} }

// Tuple constructs a composite value over a fixed sequence of sub-values.
func Tuple(vs []Value) Value { return Value{Kind: KindTuple, tu: vs} }

// LinkValue constructs a host+path reference value.
func LinkValue(l Link) Value { return Value{Kind: KindLink, ln: l} }

// ID constructs an identifier value (an opaque non-empty path segment).
func ID(id string) Value { return Value{Kind: KindID, s: id} }

// AsBool returns the boolean payload, failing if Kind != KindBool.
func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, dberr.New(dberr.BadRequest, "value.AsBool", fmt.Sprintf("cannot cast %s to bool", v.Kind))
	}
	return v.b, nil
}

// AsInt returns the value widened to int64, accepting any signed or
// unsigned integer kind.
func (v Value) AsInt() (int64, error) {
	switch v.Kind {
	case KindI16, KindI32, KindI64:
		return v.i, nil
	case KindU8, KindU16, KindU32, KindU64:
		return int64(v.u), nil
	default:
		return 0, dberr.New(dberr.BadRequest, "value.AsInt", fmt.Sprintf("cannot cast %s to int", v.Kind))
	}
}

// AsFloat returns the value widened to float64, accepting any float or
// integer kind (the numeric promotion lattice referenced by spec.md §4.E).
func (v Value) AsFloat() (float64, error) {
	switch v.Kind {
	case KindF32, KindF64:
		return v.f, nil
	case KindI16, KindI32, KindI64, KindU8, KindU16, KindU32, KindU64:
		i, _ := v.AsInt()
		return float64(i), nil
	default:
		return 0, dberr.New(dberr.BadRequest, "value.AsFloat", fmt.Sprintf("cannot cast %s to float", v.Kind))
	}
}

// AsComplex returns the complex payload, accepting a complex or real kind.
func (v Value) AsComplex() (complex128, error) {
	switch v.Kind {
	case KindComplex64, KindComplex128:
		return v.c, nil
	case KindF32, KindF64, KindI16, KindI32, KindI64, KindU8, KindU16, KindU32, KindU64:
		f, _ := v.AsFloat()
		return complex(f, 0), nil
	default:
		return 0, dberr.New(dberr.BadRequest, "value.AsComplex", fmt.Sprintf("cannot cast %s to complex", v.Kind))
	}
}

// AsString returns the string payload, accepting KindString or KindID.
func (v Value) AsString() (string, error) {
	if v.Kind != KindString && v.Kind != KindID {
		return "", dberr.New(dberr.BadRequest, "value.AsString", fmt.Sprintf("cannot cast %s to string", v.Kind))
	}
	return v.s, nil
}

// AsBytes returns the byte-buffer payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.Kind != KindBytes {
		return nil, dberr.New(dberr.BadRequest, "value.AsBytes", fmt.Sprintf("cannot cast %s to bytes", v.Kind))
	}
	return v.by, nil
}

// AsTuple returns the tuple payload.
func (v Value) AsTuple() ([]Value, error) {
	if v.Kind != KindTuple {
		return nil, dberr.New(dberr.BadRequest, "value.AsTuple", fmt.Sprintf("cannot cast %s to tuple", v.Kind))
	}
	return v.tu, nil
}

// AsLink returns the link payload.
func (v Value) AsLink() (Link, error) {
	if v.Kind != KindLink {
		return Link{}, dberr.New(dberr.BadRequest, "value.AsLink", fmt.Sprintf("cannot cast %s to link", v.Kind))
	}
	return v.ln, nil
}

// Size returns the value's fixed serialized byte footprint, or -1 for
// variable-length kinds (string, bytes, tuple) whose length is bounded only
// by the owning column's declared MaxBytes (spec.md §4.F "Order derivation").
func (v Value) Size() int {
	switch v.Kind {
	case KindBool, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64, KindComplex64:
		return 8
	case KindComplex128:
		return 16
	default:
		return -1
	}
}

// Equal reports bytewise/numeric equality without regard to collation
// ordering quirks (used by uniqueness checks, not range comparisons).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.b == o.b
	case KindI16, KindI32, KindI64:
		return v.i == o.i
	case KindU8, KindU16, KindU32, KindU64:
		return v.u == o.u
	case KindF32, KindF64:
		return v.f == o.f
	case KindComplex64, KindComplex128:
		return v.c == o.c
	case KindString, KindID:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.by, o.by)
	case KindLink:
		return v.ln == o.ln
	case KindTuple:
		if len(v.tu) != len(o.tu) {
			return false
		}
		for i := range v.tu {
			if !v.tu[i].Equal(o.tu[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// wireValue is Value's on-the-wire shape. Value's payload fields are
// unexported (every public accessor goes through the fallible AsXxx casts),
// so a block's node keys need an explicit codec to survive the JSON
// round-trip blockfile.JSONCodec performs on every commit/materialize.
type wireValue struct {
	Kind    Kind    `json:"kind"`
	Bool    bool    `json:"b,omitempty"`
	Int     int64   `json:"i,omitempty"`
	Uint    uint64  `json:"u,omitempty"`
	Float   float64 `json:"f,omitempty"`
	Real    float64 `json:"re,omitempty"`
	Imag    float64 `json:"im,omitempty"`
	Str     string  `json:"s,omitempty"`
	Bytes   string  `json:"by,omitempty"` // base64
	Tuple   []Value `json:"tu,omitempty"`
	Link    Link    `json:"ln,omitempty"`
}

// MarshalJSON encodes v via its kind-dispatched wire shape.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind}
	switch v.Kind {
	case KindBool:
		w.Bool = v.b
	case KindI16, KindI32, KindI64:
		w.Int = v.i
	case KindU8, KindU16, KindU32, KindU64:
		w.Uint = v.u
	case KindF32, KindF64:
		w.Float = v.f
	case KindComplex64, KindComplex128:
		w.Real, w.Imag = real(v.c), imag(v.c)
	case KindString, KindID:
		w.Str = v.s
	case KindBytes:
		w.Bytes = base64.StdEncoding.EncodeToString(v.by)
	case KindTuple:
		w.Tuple = v.tu
	case KindLink:
		w.Link = v.ln
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes v from its kind-dispatched wire shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Value{Kind: w.Kind}
	switch w.Kind {
	case KindBool:
		v.b = w.Bool
	case KindI16, KindI32, KindI64:
		v.i = w.Int
	case KindU8, KindU16, KindU32, KindU64:
		v.u = w.Uint
	case KindF32, KindF64:
		v.f = w.Float
	case KindComplex64, KindComplex128:
		v.c = complex(w.Real, w.Imag)
	case KindString, KindID:
		v.s = w.Str
	case KindBytes:
		b, err := base64.StdEncoding.DecodeString(w.Bytes)
		if err != nil {
			return err
		}
		v.by = b
	case KindTuple:
		v.tu = w.Tuple
	case KindLink:
		v.ln = w.Link
	}
	return nil
}

// IsNaN reports whether v is a floating point NaN, used by the collator to
// keep NaN comparisons total (NaN sorts as greater than all other floats,
// consistent with itself, so the ordering stays total per spec.md §4.E).
func (v Value) IsNaN() bool {
	switch v.Kind {
	case KindF32, KindF64:
		return math.IsNaN(v.f)
	default:
		return false
	}
}
