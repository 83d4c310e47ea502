package types

import "testing"

func TestStringCanonical(t *testing.T) {
	tests := []struct {
		ty   *Type
		want string
	}{
		{Bool(), "bool"},
		{Buffer(32), "(buff 32)"},
		{List(StringASCII(4), 3), "(list 3 (string-ascii 4))"},
		{Response(Optional(UInt()), Int()), "(response (optional uint) int)"},
		{Tuple(Field{"a", Bool()}, Field{"b", Principal()}), "(tuple (a bool) (b principal))"},
	}
	for _, tt := range tests {
		if got := tt.ty.String(); got != tt.want {
			t.Fatalf("got %q, want %q", got, tt.want)
		}
	}
}

func TestEqualRespectsFieldOrder(t *testing.T) {
	ab := Tuple(Field{"a", Int()}, Field{"b", Bool()})
	ba := Tuple(Field{"b", Bool()}, Field{"a", Int()})
	if Equal(ab, ba) {
		t.Fatalf("field order must be part of tuple identity")
	}
	if !Equal(ab, Tuple(Field{"a", Int()}, Field{"b", Bool()})) {
		t.Fatalf("structurally equal tuples must compare equal")
	}
}

func TestMerge(t *testing.T) {
	got, ok := Merge(Optional(NoType()), Optional(Int()))
	if !ok || got.String() != "(optional int)" {
		t.Fatalf("merge none/some: %v %v", got, ok)
	}
	got, ok = Merge(Response(Bool(), NoType()), Response(NoType(), UInt()))
	if !ok || got.String() != "(response bool uint)" {
		t.Fatalf("merge ok/err: %v %v", got, ok)
	}
	got, ok = Merge(Buffer(3), Buffer(10))
	if !ok || got.MaxLen != 10 {
		t.Fatalf("merge buffers: %v", got)
	}
	got, ok = Merge(List(NoType(), 0), List(Int(), 2))
	if !ok || got.String() != "(list 2 int)" {
		t.Fatalf("merge empty list: %v", got)
	}
	if _, ok := Merge(Int(), UInt()); ok {
		t.Fatalf("int and uint must not merge")
	}
}

func TestAdmits(t *testing.T) {
	if !Admits(Buffer(10), Buffer(4)) || Admits(Buffer(4), Buffer(10)) {
		t.Fatalf("buffer bound check failed")
	}
	if !Admits(Optional(Int()), Optional(NoType())) {
		t.Fatalf("none must be admitted by any optional")
	}
	if !Admits(List(Int(), 5), List(NoType(), 0)) {
		t.Fatalf("empty list must be admitted")
	}
}
