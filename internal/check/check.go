// Package check resolves names and annotates every evaluated node of a
// contract with its type. It covers the subset of the language the code
// generator understands plus a few forms it only types, so unsupported
// constructs surface as located code generation errors.
package check

import (
	"fmt"

	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/source"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// ExternalFunc is the signature of a function in another contract.
type ExternalFunc struct {
	Kind   ast.DeclKind
	Params []*types.Type
	Result *types.Type
}

// Config carries what the checker needs beyond the contract itself.
type Config struct {
	// Deployer resolves .name contract shorthands.
	Deployer value.Principal
	// Externals maps a contract principal (ADDR.name) to its exported
	// functions, for contract-call?.
	Externals map[string]map[string]ExternalFunc
}

type fnState uint8

const (
	fnPending fnState = iota
	fnChecking
	fnDone
)

type function struct {
	decl  *ast.Decl
	expr  *ast.Expr
	state fnState
}

type mapDecl struct {
	key, val *types.Type
}

type checker struct {
	cfg      Config
	reporter diag.Reporter
	errors   int

	consts map[string]*types.Type
	vars   map[string]*types.Type
	maps   map[string]mapDecl
	fts    map[string]bool
	nfts   map[string]*types.Type
	funcs  map[string]*function
	names  map[string]source.Span

	scopes []map[string]*types.Type
	fn     *ast.Decl
	// ret accumulates the types of early exits from fn.
	ret *types.Type
	// placeholders admits notype in signatures.
	placeholders bool
}

// Check annotates c in place and reports whether it is free of errors.
func Check(c *ast.Contract, cfg Config, r diag.Reporter) bool {
	if r == nil {
		r = diag.NopReporter{}
	}
	ck := &checker{
		cfg:      cfg,
		reporter: r,
		consts:   make(map[string]*types.Type),
		vars:     make(map[string]*types.Type),
		maps:     make(map[string]mapDecl),
		fts:      make(map[string]bool),
		nfts:     make(map[string]*types.Type),
		funcs:    make(map[string]*function),
		names:    make(map[string]source.Span),
	}
	ck.resolveShorthands(c)

	// declarations with explicit types first, so bodies may refer forward
	for _, e := range c.Exprs {
		switch e.Head() {
		case "define-data-var":
			ck.declareVar(e)
		case "define-map":
			ck.declareMap(e)
		case "define-fungible-token":
			ck.declareFungibleToken(e)
		case "define-non-fungible-token":
			ck.declareNonFungibleToken(e)
		case "define-public", "define-private", "define-read-only":
			ck.declareFunction(e)
		}
	}
	for _, e := range c.Exprs {
		switch e.Head() {
		case "define-constant":
			ck.checkConstant(e)
		case "define-data-var":
			if e.Decl != nil {
				ck.expect(e.Decl.Body[0], e.Decl.Result)
			}
		case "define-fungible-token":
			if e.Decl != nil && len(e.Decl.Body) == 1 {
				ck.expect(e.Decl.Body[0], types.UInt())
			}
		}
	}
	for _, e := range c.Exprs {
		if e.Decl != nil && e.Decl.Kind.IsFunction() {
			ck.checkFunction(e.Decl.Name)
		}
	}
	for _, e := range c.Exprs {
		if !definitions[e.Head()] {
			ck.expr(e)
		}
	}
	return ck.errors == 0
}

// Exports returns the signatures of a checked contract's public and
// read-only functions, for use as Config.Externals of other contracts.
func Exports(c *ast.Contract) map[string]ExternalFunc {
	out := make(map[string]ExternalFunc)
	for _, e := range c.Exprs {
		d := e.Decl
		if d == nil || !d.Kind.Exported() || d.Result == nil {
			continue
		}
		params := make([]*types.Type, len(d.Params))
		for i, p := range d.Params {
			params[i] = p.Type
		}
		out[d.Name] = ExternalFunc{Kind: d.Kind, Params: params, Result: d.Result}
	}
	return out
}

func (c *checker) errorf(code diag.Code, sp source.Span, format string, args ...any) *types.Type {
	c.errors++
	diag.ReportError(c.reporter, code, sp, fmt.Sprintf(format, args...)).Emit()
	return types.Invalid()
}

func (c *checker) define(name string, sp source.Span) bool {
	if prev, ok := c.names[name]; ok {
		diag.ReportError(c.reporter, diag.CheckDuplicateDef, sp, fmt.Sprintf("%q is already defined", name)).
			WithNote(prev, "previous definition").Emit()
		c.errors++
		return false
	}
	if builtinNames[name] {
		c.errorf(diag.CheckDuplicateDef, sp, "%q shadows a builtin", name)
		return false
	}
	c.names[name] = sp
	return true
}

// .name is shorthand for the contract principal name deployed by Deployer.
func (c *checker) resolveShorthands(con *ast.Contract) {
	for _, top := range con.Exprs {
		ast.Walk(top, func(e *ast.Expr) bool {
			if e.Kind == ast.KindAtom && len(e.Name) > 1 && e.Name[0] == '.' {
				e.Kind = ast.KindLiteral
				e.Value = value.PrincipalValue(c.cfg.Deployer.Contract(e.Name[1:]))
				e.Name = ""
			}
			return true
		})
	}
}

func (c *checker) declareVar(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) != 3 || ops[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (define-data-var name type value)")
		return
	}
	t := c.parseType(ops[1])
	if !c.define(ops[0].Name, ops[0].Span) || t.Kind == types.KindInvalid {
		return
	}
	c.vars[ops[0].Name] = t
	e.Decl = &ast.Decl{Kind: ast.DeclDataVar, Name: ops[0].Name, Result: t, Body: ops[2:]}
}

func (c *checker) declareMap(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) != 3 || ops[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (define-map name key-type value-type)")
		return
	}
	k, v := c.parseType(ops[1]), c.parseType(ops[2])
	if !c.define(ops[0].Name, ops[0].Span) || k.Kind == types.KindInvalid || v.Kind == types.KindInvalid {
		return
	}
	c.maps[ops[0].Name] = mapDecl{key: k, val: v}
	e.Decl = &ast.Decl{Kind: ast.DeclMap, Name: ops[0].Name, Key: k, Result: v}
}

func (c *checker) declareFunction(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) != 2 || ops[0].Kind != ast.KindList || len(ops[0].Args) == 0 || ops[0].Args[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (%s (name (param type)...) body)", e.Head())
		return
	}
	sig := ops[0]
	d := &ast.Decl{Name: sig.Args[0].Name, Body: ops[1:]}
	switch e.Head() {
	case "define-public":
		d.Kind = ast.DeclPublic
	case "define-private":
		d.Kind = ast.DeclPrivate
	default:
		d.Kind = ast.DeclReadOnly
	}
	seen := make(map[string]bool)
	for _, p := range sig.Args[1:] {
		if p.Kind != ast.KindList || len(p.Args) != 2 || p.Args[0].Kind != ast.KindAtom {
			c.errorf(diag.CheckBadForm, p.Span, "expected (name type) parameter")
			return
		}
		name := p.Args[0].Name
		if seen[name] {
			c.errorf(diag.CheckDuplicateDef, p.Span, "duplicate parameter %q", name)
			return
		}
		seen[name] = true
		t := c.parseType(p.Args[1])
		if t.Kind == types.KindInvalid {
			return
		}
		d.Params = append(d.Params, ast.Param{Name: name, Type: t, Span: p.Span})
	}
	if !c.define(d.Name, sig.Args[0].Span) {
		return
	}
	e.Decl = d
	c.funcs[d.Name] = &function{decl: d, expr: e}
}

func (c *checker) checkConstant(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) != 2 || ops[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (define-constant name value)")
		return
	}
	t := c.expr(ops[1])
	if !c.define(ops[0].Name, ops[0].Span) || t.Kind == types.KindInvalid {
		return
	}
	c.consts[ops[0].Name] = t
	e.Decl = &ast.Decl{Kind: ast.DeclConstant, Name: ops[0].Name, Result: t, Body: ops[1:]}
}

// checkFunction checks a body on first use, so calls may precede definitions.
func (c *checker) checkFunction(name string) *ast.Decl {
	f := c.funcs[name]
	if f == nil {
		return nil
	}
	switch f.state {
	case fnDone:
		return f.decl
	case fnChecking:
		c.errorf(diag.CheckBadForm, f.expr.Span, "function %q is recursive", name)
		return nil
	}
	f.state = fnChecking
	savedScopes, savedFn, savedRet := c.scopes, c.fn, c.ret
	scope := make(map[string]*types.Type, len(f.decl.Params))
	for _, p := range f.decl.Params {
		scope[p.Name] = p.Type
	}
	c.scopes = []map[string]*types.Type{scope}
	c.fn = f.decl

	c.ret = nil
	t := c.expr(f.decl.Body[0])
	if c.ret != nil && t.Kind != types.KindInvalid {
		merged, ok := types.Merge(t, c.ret)
		if !ok {
			t = c.errorf(diag.CheckTypeMismatch, f.decl.Body[0].Span,
				"function %q returns %s but exits early with %s", name, t, c.ret)
		} else {
			t = merged
		}
	}
	f.decl.Result = t
	if t.Kind != types.KindInvalid && f.decl.Kind == ast.DeclPublic && t.Kind != types.KindResponse {
		diag.ReportWarning(c.reporter, diag.CheckBadReturn, f.decl.Body[0].Span,
			fmt.Sprintf("public function %q returns %s; hosts expect a response", name, t)).Emit()
	}
	if t.Kind != types.KindInvalid && undetermined(t) {
		c.errorf(diag.CheckUndeterminedType, f.decl.Body[0].Span, "cannot determine the result type of %q: %s", name, t)
	}
	c.scopes, c.fn, c.ret = savedScopes, savedFn, savedRet
	f.state = fnDone
	return f.decl
}

// undetermined reports a response or optional result whose payload is
// never known, e.g. a function that only ever returns none.
func undetermined(t *types.Type) bool {
	return t.Kind == types.KindNoType
}
