package main

import (
	"strings"
	"testing"

	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

func TestParseArg(t *testing.T) {
	pair := types.Tuple(types.Field{Name: "a", Type: types.UInt()}, types.Field{Name: "b", Type: types.Bool()})
	tests := []struct {
		src  string
		typ  *types.Type
		want value.Value
	}{
		{"u5", types.UInt(), value.UIntOf(5)},
		{"5", types.UInt(), value.UIntOf(5)},
		{"-3", types.Int(), value.IntOf(-3)},
		{"true", types.Bool(), value.Bool(true)},
		{"0xbeef", types.Buffer(4), value.Buffer([]byte{0xbe, 0xef})},
		{`"hi"`, types.StringASCII(8), value.ASCII("hi")},
		{`"hi"`, types.StringUTF8(8), value.UTF8("hi")},
		{"(list 1 u2)", types.List(types.UInt(), 4), value.List(value.UIntOf(1), value.UIntOf(2))},
		{"none", types.Optional(types.UInt()), value.None()},
		{"(some 7)", types.Optional(types.UInt()), value.Some(value.UIntOf(7))},
		{"(err 1)", types.Response(types.Bool(), types.Int()), value.Err(value.IntOf(1))},
		{"{b: false, a: 9}", pair, value.Tuple(
			value.TupleField{Name: "a", Value: value.UIntOf(9)},
			value.TupleField{Name: "b", Value: value.Bool(false)})},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.src, tt.typ)
		if err != nil {
			t.Fatalf("parseArg(%q): %v", tt.src, err)
		}
		if !value.Equal(got, tt.want) {
			t.Fatalf("parseArg(%q) = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestParseArgNegativeStaysSigned(t *testing.T) {
	got, err := parseArg("-1", types.UInt())
	if err != nil {
		t.Fatalf("parseArg: %v", err)
	}
	if got.Kind != types.KindInt {
		t.Fatalf("kind %s, want int so the host rejects it", got.Kind)
	}
}

func TestParseArgRejects(t *testing.T) {
	pair := types.Tuple(types.Field{Name: "a", Type: types.UInt()}, types.Field{Name: "b", Type: types.Bool()})
	tests := []struct {
		src  string
		typ  *types.Type
		want string
	}{
		{"oops", types.UInt(), "not a value"},
		{"1 2", types.Int(), "exactly one value"},
		{"(list 1", types.List(types.Int(), 2), `"(list 1"`},
		{"{a: u1}", pair, "missing tuple member b"},
		{"{a: u1, b: true, c: 1}", pair, "unknown tuple member c"},
		{"{a: u1, a: u2, b: true}", pair, "given twice"},
		{"(some 1)", types.List(types.Int(), 2), "not a value"},
	}
	for _, tt := range tests {
		_, err := parseArg(tt.src, tt.typ)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("parseArg(%q) error = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestParseBalance(t *testing.T) {
	p, n, err := parseBalance("'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM=1000")
	if err != nil {
		t.Fatalf("parseBalance: %v", err)
	}
	if p != "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM" || n.Int64() != 1000 {
		t.Fatalf("got %s=%s", p, n)
	}
	for _, bad := range []string{"ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM=-1", "nobody=5"} {
		if _, _, err := parseBalance(bad); err == nil {
			t.Fatalf("parseBalance(%q) accepted", bad)
		}
	}
}
