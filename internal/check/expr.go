package check

import (
	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/types"
)

type handler func(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type

var (
	builtins     map[string]handler
	builtinNames map[string]bool
)

// Keywords are atoms with a fixed meaning.
var keywords = map[string]*types.Type{
	"tx-sender":       types.Principal(),
	"contract-caller": types.Principal(),
	"block-height":    types.UInt(),
	"none":            types.Optional(types.NoType()),
}

func init() {
	builtins = map[string]handler{
		"+": arith, "-": arith, "*": arith, "/": arith, "mod": arith,
		"pow": binaryArith, "xor": binaryArith,
		"log2": unaryArith, "sqrti": unaryArith, "bit-not": unaryArith,
		"bit-and": arith, "bit-or": arith, "bit-xor": arith,
		"<": compare, "<=": compare, ">": compare, ">=": compare,
		"to-int": convert, "to-uint": convert,
		"not": not, "and": logic, "or": logic,
		"is-eq": isEq,
		"if": ifForm, "begin": begin, "let": let, "match": match,
		"asserts!": asserts, "unwrap!": unwrap, "unwrap-err!": unwrap,
		"unwrap-panic": unwrapPanic, "unwrap-err-panic": unwrapPanic,
		"try!": try, "default-to": defaultTo,
		"some": some, "ok": okErr, "err": okErr,
		"is-some": isVariant, "is-none": isVariant, "is-ok": isVariant, "is-err": isVariant,
		"tuple": tuple, "get": get, "merge": mergeTuples,
		"list": list, "len": length, "element-at?": elementAt, "element-at": elementAt,
		"concat": concat, "append": appendForm, "as-max-len?": asMaxLen, "index-of?": indexOf,
		"map": mapForm, "filter": filter, "fold": fold,
		"var-get": varGet, "var-set": varSet,
		"map-get?": mapGet, "map-set": mapWrite, "map-insert": mapWrite, "map-delete": mapDelete,
		"sha256": hash, "keccak256": hash, "hash160": hash,
		"stx-get-balance": stxBalance, "stx-transfer?": stxTransfer,
		"stx-transfer-memo?": stxTransferMemo, "stx-burn?": stxBurn, "stx-account": stxAccount,
		"ft-mint?": ftMint, "ft-transfer?": ftTransfer, "ft-burn?": ftBurn,
		"ft-get-balance": ftBalance, "ft-get-supply": ftSupply,
		"nft-mint?": nftMint, "nft-transfer?": nftTransfer, "nft-burn?": nftBurn,
		"nft-get-owner?": nftOwner,
		"print": printForm, "contract-call?": contractCall,
	}
	builtinNames = make(map[string]bool, len(builtins)+len(keywords)+8)
	for name := range builtins {
		builtinNames[name] = true
	}
	for name := range keywords {
		builtinNames[name] = true
	}
	for name := range definitions {
		builtinNames[name] = true
	}
	builtinNames["true"] = true
	builtinNames["false"] = true
}

// definitions are the forms allowed only at the top level of a contract.
var definitions = map[string]bool{
	"define-constant": true, "define-data-var": true, "define-map": true,
	"define-fungible-token": true, "define-non-fungible-token": true,
	"define-public": true, "define-private": true, "define-read-only": true,
}

// IsBuiltin reports whether name is reserved by the language.
func IsBuiltin(name string) bool {
	return builtinNames[name]
}

func (c *checker) expr(e *ast.Expr) *types.Type {
	t := c.exprType(e)
	e.Type = t
	return t
}

func (c *checker) exprType(e *ast.Expr) *types.Type {
	switch e.Kind {
	case ast.KindLiteral:
		return c.literalType(e)
	case ast.KindAtom:
		return c.atom(e)
	}
	if len(e.Args) == 0 {
		return c.errorf(diag.CheckBadForm, e.Span, "empty form")
	}
	head := e.Args[0]
	if head.Kind != ast.KindAtom {
		return c.errorf(diag.CheckBadForm, head.Span, "expected a function name")
	}
	if h, ok := builtins[head.Name]; ok {
		return h(c, e, e.Args[1:])
	}
	if definitions[head.Name] {
		return c.errorf(diag.CheckBadForm, e.Span, "%s is only allowed at the top level", head.Name)
	}
	return c.call(e, head, e.Args[1:])
}

func (c *checker) atom(e *ast.Expr) *types.Type {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if t, ok := c.scopes[i][e.Name]; ok {
			return t
		}
	}
	if t, ok := keywords[e.Name]; ok {
		return t
	}
	if t, ok := c.consts[e.Name]; ok {
		return t
	}
	return c.errorf(diag.CheckUnknownName, e.Span, "unknown name %q", e.Name)
}

// expect checks e against a required type and returns e's own type.
func (c *checker) expect(e *ast.Expr, want *types.Type) *types.Type {
	t := c.expr(e)
	if t.Kind == types.KindInvalid || want.Kind == types.KindInvalid {
		return t
	}
	if !types.Admits(want, t) {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "expected %s, found %s", want, t)
	}
	return t
}

func (c *checker) arity(e *ast.Expr, args []*ast.Expr, n int) bool {
	if len(args) != n {
		c.errorf(diag.CheckArity, e.Span, "%s expects %d argument(s), got %d", e.Head(), n, len(args))
		return false
	}
	return true
}

func (c *checker) arityMin(e *ast.Expr, args []*ast.Expr, n int) bool {
	if len(args) < n {
		c.errorf(diag.CheckArity, e.Span, "%s expects at least %d argument(s), got %d", e.Head(), n, len(args))
		return false
	}
	return true
}

// merge joins branch types, reporting incompatible ones at sp.
func (c *checker) merge(e *ast.Expr, a, b *types.Type) *types.Type {
	if a.Kind == types.KindInvalid || b.Kind == types.KindInvalid {
		return types.Invalid()
	}
	m, ok := types.Merge(a, b)
	if !ok {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "incompatible types %s and %s", a, b)
	}
	return m
}

// exit records an early return of t from the enclosing function.
func (c *checker) exit(e *ast.Expr, t *types.Type) {
	if c.fn == nil {
		c.errorf(diag.CheckBadForm, e.Span, "%s outside of a function", e.Head())
		return
	}
	if t.Kind == types.KindInvalid {
		return
	}
	if c.ret == nil {
		c.ret = t
		return
	}
	c.ret = c.merge(e, c.ret, t)
}

func (c *checker) pushScope() map[string]*types.Type {
	s := make(map[string]*types.Type)
	c.scopes = append(c.scopes, s)
	return s
}

func (c *checker) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

func (c *checker) bind(scope map[string]*types.Type, name *ast.Expr, t *types.Type) {
	switch {
	case name.Kind != ast.KindAtom:
		c.errorf(diag.CheckBadForm, name.Span, "expected a binding name")
	case builtinNames[name.Name]:
		c.errorf(diag.CheckDuplicateDef, name.Span, "%q shadows a builtin", name.Name)
	default:
		name.Type = t
		scope[name.Name] = t
	}
}

func (c *checker) call(e, head *ast.Expr, args []*ast.Expr) *types.Type {
	if _, ok := c.funcs[head.Name]; !ok {
		for _, a := range args {
			c.expr(a)
		}
		return c.errorf(diag.CheckUnknownFunction, head.Span, "unknown function %q", head.Name)
	}
	d := c.checkFunction(head.Name)
	if d == nil || d.Result == nil {
		return types.Invalid()
	}
	if !c.arity(e, args, len(d.Params)) {
		return types.Invalid()
	}
	for i, a := range args {
		c.expect(a, d.Params[i].Type)
	}
	return d.Result
}
