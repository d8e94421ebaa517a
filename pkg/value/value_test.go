package value

import (
	"encoding/json"
	"testing"
)

func TestAsIntAcceptsSignedAndUnsigned(t *testing.T) {
	cases := []Value{I16(-5), I32(-5), I64(-5), U8(5), U16(5), U32(5), U64(5)}
	for _, v := range cases {
		got, err := v.AsInt()
		if err != nil {
			t.Fatalf("AsInt(%v) returned error: %v", v, err)
		}
		if got != 5 && got != -5 {
			t.Errorf("AsInt(%v) = %d, want +-5", v, got)
		}
	}
}

func TestAsIntRejectsString(t *testing.T) {
	if _, err := String("x").AsInt(); err == nil {
		t.Fatal("expected error casting string to int")
	}
}

func TestEqual(t *testing.T) {
	if !I32(7).Equal(I32(7)) {
		t.Error("I32(7) should equal I32(7)")
	}
	if I32(7).Equal(I64(7)) {
		t.Error("values of different kinds should never be equal")
	}
	if !Tuple([]Value{I32(1), String("a")}).Equal(Tuple([]Value{I32(1), String("a")})) {
		t.Error("equal tuples should compare equal")
	}
}

func TestSizeFixedVsVariable(t *testing.T) {
	if I64(0).Size() != 8 {
		t.Errorf("I64 size = %d, want 8", I64(0).Size())
	}
	if String("x").Size() != -1 {
		t.Errorf("string size = %d, want -1 (variable)", String("x").Size())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	cases := []Value{
		Bool(true),
		I64(-42),
		U64(42),
		F64(3.5),
		Complex128(complex(1, 2)),
		String("hello"),
		Bytes([]byte{0, 1, 2, 255}),
		Tuple([]Value{I32(1), String("a")}),
		LinkValue(Link{Host: "h", Path: "/p"}),
		ID("seg"),
	}
	for _, v := range cases {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if !got.Equal(v) {
			t.Errorf("round trip %v -> %s -> %v, not equal", v, data, got)
		}
	}
}
