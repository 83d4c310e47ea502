// Package ast is the typed expression tree handed from the checker to code
// generation. Every node carries the type the checker resolved for it.
package ast

import (
	"clarwasm/internal/source"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// Kind distinguishes the three node shapes of an S-expression.
type Kind uint8

const (
	// KindAtom is a bare identifier: a variable, a keyword or a callee name.
	KindAtom Kind = iota
	// KindLiteral is a constant value.
	KindLiteral
	// KindList is a parenthesized form.
	KindList
)

// Expr is one node of the tree.
type Expr struct {
	Kind  Kind
	Name  string      // KindAtom
	Value value.Value // KindLiteral
	Args  []*Expr     // KindList
	Span  source.Span

	// Type is set by the checker on every evaluated node.
	Type *types.Type
	// Decl is set by the checker on define-* forms.
	Decl *Decl
}

// DeclKind classifies top-level definitions.
type DeclKind uint8

const (
	DeclNone DeclKind = iota
	DeclConstant
	DeclDataVar
	DeclMap
	DeclPublic
	DeclPrivate
	DeclReadOnly
	DeclFungibleToken
	DeclNonFungibleToken
)

// IsFunction reports whether the definition produces a function.
func (k DeclKind) IsFunction() bool {
	return k == DeclPublic || k == DeclPrivate || k == DeclReadOnly
}

// Exported reports whether the function is callable from outside.
func (k DeclKind) Exported() bool {
	return k == DeclPublic || k == DeclReadOnly
}

func (k DeclKind) String() string {
	switch k {
	case DeclConstant:
		return "constant"
	case DeclDataVar:
		return "data-var"
	case DeclMap:
		return "map"
	case DeclPublic:
		return "public"
	case DeclPrivate:
		return "private"
	case DeclReadOnly:
		return "read-only"
	case DeclFungibleToken:
		return "fungible-token"
	case DeclNonFungibleToken:
		return "non-fungible-token"
	}
	return "none"
}

// Param is a named, typed function parameter.
type Param struct {
	Name string
	Type *types.Type
	Span source.Span
}

// Decl describes a top-level definition.
type Decl struct {
	Kind DeclKind
	Name string
	// Params of functions.
	Params []Param
	// Result is the function result, the constant and data var type, the
	// map value type, or uint for fungible tokens.
	Result *types.Type
	// Key is the map key type or the asset type of a non-fungible token.
	Key *types.Type
	// Body holds the function body forms, the initial value expression, or
	// the optional total supply of a fungible token.
	Body []*Expr
}

// Contract is one parsed and checked compilation unit.
type Contract struct {
	Name  string
	File  source.FileID
	Exprs []*Expr
}

// Head returns the callee name of a list form, or "".
func (e *Expr) Head() string {
	if e == nil || e.Kind != KindList || len(e.Args) == 0 || e.Args[0].Kind != KindAtom {
		return ""
	}
	return e.Args[0].Name
}

// IsCall reports whether e is a list form headed by name.
func (e *Expr) IsCall(name string) bool {
	return e.Head() == name
}

// Operands returns the elements after the head.
func (e *Expr) Operands() []*Expr {
	if e == nil || e.Kind != KindList || len(e.Args) == 0 {
		return nil
	}
	return e.Args[1:]
}

// IsAtom reports whether e is the atom name.
func (e *Expr) IsAtom(name string) bool {
	return e != nil && e.Kind == KindAtom && e.Name == name
}

// Walk visits e and its descendants depth first in source order. Returning
// false from fn skips the node's children.
func Walk(e *Expr, fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, a := range e.Args {
		Walk(a, fn)
	}
}

// Atom builds an identifier node.
func Atom(name string, sp source.Span) *Expr {
	return &Expr{Kind: KindAtom, Name: name, Span: sp}
}

// Literal builds a constant node.
func Literal(v value.Value, sp source.Span) *Expr {
	return &Expr{Kind: KindLiteral, Value: v, Span: sp}
}

// List builds a form node.
func List(sp source.Span, args ...*Expr) *Expr {
	return &Expr{Kind: KindList, Args: args, Span: sp}
}
