package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the value types of the contract language.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNoType
	KindBool
	KindInt
	KindUInt
	KindPrincipal
	KindBuffer
	KindStringASCII
	KindStringUTF8
	KindList
	KindTuple
	KindOptional
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNoType:
		return "notype"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindPrincipal:
		return "principal"
	case KindBuffer:
		return "buff"
	case KindStringASCII:
		return "string-ascii"
	case KindStringUTF8:
		return "string-utf8"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindOptional:
		return "optional"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Field is one named member of a tuple type.
type Field struct {
	Name string
	Type *Type
}

// Type describes a value type. Values are immutable once constructed;
// constructors never mutate their arguments.
type Type struct {
	Kind Kind
	// MaxLen bounds buffers and strings (bytes for buff/string-ascii,
	// characters for string-utf8) and lists (elements).
	MaxLen uint32
	// Elem is the element type of lists and the payload of optionals.
	Elem *Type
	Ok   *Type
	Err  *Type
	// Fields of a tuple in declared order.
	Fields []Field
}

var (
	boolType      = &Type{Kind: KindBool}
	intType       = &Type{Kind: KindInt}
	uintType      = &Type{Kind: KindUInt}
	principalType = &Type{Kind: KindPrincipal}
	noType        = &Type{Kind: KindNoType}
	invalidType   = &Type{Kind: KindInvalid}
)

func Bool() *Type      { return boolType }
func Int() *Type       { return intType }
func UInt() *Type      { return uintType }
func Principal() *Type { return principalType }

// NoType is the placeholder for a value that is never populated, such as the
// payload of none or the error arm of (ok x).
func NoType() *Type { return noType }

// Invalid marks an unresolved type.
func Invalid() *Type { return invalidType }

func Buffer(n uint32) *Type      { return &Type{Kind: KindBuffer, MaxLen: n} }
func StringASCII(n uint32) *Type { return &Type{Kind: KindStringASCII, MaxLen: n} }
func StringUTF8(n uint32) *Type  { return &Type{Kind: KindStringUTF8, MaxLen: n} }

func List(elem *Type, n uint32) *Type {
	return &Type{Kind: KindList, Elem: elem, MaxLen: n}
}

func Optional(elem *Type) *Type {
	return &Type{Kind: KindOptional, Elem: elem}
}

func Response(ok, err *Type) *Type {
	return &Type{Kind: KindResponse, Ok: ok, Err: err}
}

// Tuple keeps fields in the order given.
func Tuple(fields ...Field) *Type {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return &Type{Kind: KindTuple, Fields: fs}
}

// IsSequence reports whether the type supports len, concat and friends.
func (t *Type) IsSequence() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindBuffer, KindStringASCII, KindStringUTF8, KindList:
		return true
	}
	return false
}

// IsInteger reports whether t is int or uint.
func (t *Type) IsInteger() bool {
	return t != nil && (t.Kind == KindInt || t.Kind == KindUInt)
}

// Field returns the type of the named tuple member.
func (t *Type) Field(name string) (*Type, bool) {
	i := t.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.Fields[i].Type, true
}

// FieldIndex returns the position of name in a tuple, or -1.
func (t *Type) FieldIndex(name string) int {
	if t == nil || t.Kind != KindTuple {
		return -1
	}
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// String renders the type in contract syntax. The result is canonical and
// doubles as a structural key.
func (t *Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Type) write(sb *strings.Builder) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case KindBuffer, KindStringASCII, KindStringUTF8:
		fmt.Fprintf(sb, "(%s %d)", t.Kind, t.MaxLen)
	case KindList:
		fmt.Fprintf(sb, "(list %d ", t.MaxLen)
		t.Elem.write(sb)
		sb.WriteByte(')')
	case KindOptional:
		sb.WriteString("(optional ")
		t.Elem.write(sb)
		sb.WriteByte(')')
	case KindResponse:
		sb.WriteString("(response ")
		t.Ok.write(sb)
		sb.WriteByte(' ')
		t.Err.write(sb)
		sb.WriteByte(')')
	case KindTuple:
		sb.WriteString("(tuple")
		for _, f := range t.Fields {
			sb.WriteString(" (")
			sb.WriteString(f.Name)
			sb.WriteByte(' ')
			f.Type.write(sb)
			sb.WriteByte(')')
		}
		sb.WriteByte(')')
	default:
		sb.WriteString(t.Kind.String())
	}
}

// Equal reports structural identity, including tuple field order.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind || a.MaxLen != b.MaxLen {
		return false
	}
	switch a.Kind {
	case KindList, KindOptional:
		return Equal(a.Elem, b.Elem)
	case KindResponse:
		return Equal(a.Ok, b.Ok) && Equal(a.Err, b.Err)
	case KindTuple:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
	}
	return true
}
