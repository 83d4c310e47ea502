// Package value models literal and runtime values of the contract language.
package value

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"clarwasm/internal/types"
)

// Value is a tagged variant. Only the fields of its Kind are meaningful.
type Value struct {
	Kind types.Kind

	Int       *big.Int // int, uint
	Bool      bool
	Bytes     []byte // buffer, string-ascii, string-utf8 (UTF-8 encoded)
	Principal Principal

	Items  []Value      // list elements
	Fields []TupleField // tuple members in type order
	// Inner is the payload of some, ok and err; nil for none.
	Inner *Value
	// IsOk selects the response arm.
	IsOk bool
}

// TupleField is one named member of a tuple value.
type TupleField struct {
	Name  string
	Value Value
}

func Int(v *big.Int) Value  { return Value{Kind: types.KindInt, Int: new(big.Int).Set(v)} }
func UInt(v *big.Int) Value { return Value{Kind: types.KindUInt, Int: new(big.Int).Set(v)} }
func IntOf(v int64) Value   { return Value{Kind: types.KindInt, Int: big.NewInt(v)} }
func UIntOf(v uint64) Value { return Value{Kind: types.KindUInt, Int: new(big.Int).SetUint64(v)} }
func Bool(b bool) Value     { return Value{Kind: types.KindBool, Bool: b} }
func Buffer(b []byte) Value { return Value{Kind: types.KindBuffer, Bytes: b} }
func ASCII(s string) Value  { return Value{Kind: types.KindStringASCII, Bytes: []byte(s)} }
func UTF8(s string) Value   { return Value{Kind: types.KindStringUTF8, Bytes: []byte(s)} }
func None() Value           { return Value{Kind: types.KindOptional} }

func PrincipalValue(p Principal) Value {
	return Value{Kind: types.KindPrincipal, Principal: p}
}

func Some(v Value) Value {
	return Value{Kind: types.KindOptional, Inner: &v}
}

func Ok(v Value) Value {
	return Value{Kind: types.KindResponse, Inner: &v, IsOk: true}
}

func Err(v Value) Value {
	return Value{Kind: types.KindResponse, Inner: &v}
}

func List(items ...Value) Value {
	return Value{Kind: types.KindList, Items: items}
}

func Tuple(fields ...TupleField) Value {
	return Value{Kind: types.KindTuple, Fields: fields}
}

// Field returns a tuple member by name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// String renders v the way the contract language prints values.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.Kind {
	case types.KindInt:
		sb.WriteString(v.Int.String())
	case types.KindUInt:
		sb.WriteByte('u')
		sb.WriteString(v.Int.String())
	case types.KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case types.KindBuffer:
		sb.WriteString("0x")
		sb.WriteString(hex.EncodeToString(v.Bytes))
	case types.KindStringASCII:
		sb.WriteString(strconv.Quote(string(v.Bytes)))
	case types.KindStringUTF8:
		sb.WriteByte('u')
		sb.WriteString(strconv.Quote(string(v.Bytes)))
	case types.KindPrincipal:
		sb.WriteByte('\'')
		sb.WriteString(v.Principal.String())
	case types.KindOptional:
		if v.Inner == nil {
			sb.WriteString("none")
			return
		}
		sb.WriteString("(some ")
		v.Inner.write(sb)
		sb.WriteByte(')')
	case types.KindResponse:
		if v.IsOk {
			sb.WriteString("(ok ")
		} else {
			sb.WriteString("(err ")
		}
		if v.Inner != nil {
			v.Inner.write(sb)
		}
		sb.WriteByte(')')
	case types.KindList:
		sb.WriteString("(list")
		for _, it := range v.Items {
			sb.WriteByte(' ')
			it.write(sb)
		}
		sb.WriteByte(')')
	case types.KindTuple:
		sb.WriteString("(tuple")
		for _, f := range v.Fields {
			fmt.Fprintf(sb, " (%s ", f.Name)
			f.Value.write(sb)
			sb.WriteByte(')')
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%s>", v.Kind)
	}
}

// Equal compares two values structurally. Principals compare by account
// identity and contract name.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case types.KindInt, types.KindUInt:
		return a.Int.Cmp(b.Int) == 0
	case types.KindBool:
		return a.Bool == b.Bool
	case types.KindBuffer, types.KindStringASCII, types.KindStringUTF8:
		return string(a.Bytes) == string(b.Bytes)
	case types.KindPrincipal:
		return a.Principal.SameAccount(b.Principal)
	case types.KindOptional:
		if a.Inner == nil || b.Inner == nil {
			return a.Inner == nil && b.Inner == nil
		}
		return Equal(*a.Inner, *b.Inner)
	case types.KindResponse:
		return a.IsOk == b.IsOk && Equal(*a.Inner, *b.Inner)
	case types.KindList:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case types.KindTuple:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// sized builds a sequence type of length n, or Invalid when n does not fit
// a type length.
func sized(n int, mk func(uint32) *types.Type) *types.Type {
	l, err := safecast.Conv[uint32](n)
	if err != nil {
		return types.Invalid()
	}
	return mk(l)
}

// TypeOf infers the most specific type of a literal value. Lengths are exact;
// a literal too long for a type length yields Invalid.
func TypeOf(v Value) *types.Type {
	switch v.Kind {
	case types.KindInt:
		return types.Int()
	case types.KindUInt:
		return types.UInt()
	case types.KindBool:
		return types.Bool()
	case types.KindPrincipal:
		return types.Principal()
	case types.KindBuffer:
		return sized(len(v.Bytes), types.Buffer)
	case types.KindStringASCII:
		return sized(len(v.Bytes), types.StringASCII)
	case types.KindStringUTF8:
		return sized(len([]rune(string(v.Bytes))), types.StringUTF8)
	case types.KindOptional:
		if v.Inner == nil {
			return types.Optional(types.NoType())
		}
		return types.Optional(TypeOf(*v.Inner))
	case types.KindResponse:
		if v.IsOk {
			return types.Response(TypeOf(*v.Inner), types.NoType())
		}
		return types.Response(types.NoType(), TypeOf(*v.Inner))
	case types.KindList:
		elem := types.NoType()
		for _, it := range v.Items {
			if m, ok := types.Merge(elem, TypeOf(it)); ok {
				elem = m
			}
		}
		return sized(len(v.Items), func(n uint32) *types.Type { return types.List(elem, n) })
	case types.KindTuple:
		fields := make([]types.Field, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = types.Field{Name: f.Name, Type: TypeOf(f.Value)}
		}
		return types.Tuple(fields...)
	}
	return types.Invalid()
}
