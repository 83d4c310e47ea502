package check

import (
	"math"

	"fortio.org/safecast"

	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

func (c *checker) literalType(e *ast.Expr) *types.Type {
	t := value.TypeOf(e.Value)
	if t.Kind == types.KindInvalid {
		return c.errorf(diag.CheckValueTooLarge, e.Span, "literal is too long")
	}
	return t
}

func (c *checker) integer(e *ast.Expr) *types.Type {
	t := c.expr(e)
	if t.Kind != types.KindInvalid && !t.IsInteger() {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "expected int or uint, found %s", t)
	}
	return t
}

// sameInteger checks that every operand has the integer type of the first.
func (c *checker) sameInteger(args []*ast.Expr) *types.Type {
	first := c.integer(args[0])
	for _, a := range args[1:] {
		if first.Kind == types.KindInvalid {
			c.expr(a)
			continue
		}
		c.expect(a, first)
	}
	return first
}

func arith(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 1) {
		return types.Invalid()
	}
	return c.sameInteger(args)
}

func binaryArith(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	return c.sameInteger(args)
}

func unaryArith(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	return c.integer(args[0])
}

func compare(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	if c.sameInteger(args).Kind == types.KindInvalid {
		return types.Invalid()
	}
	return types.Bool()
}

func convert(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	if e.Head() == "to-int" {
		c.expect(args[0], types.UInt())
		return types.Int()
	}
	c.expect(args[0], types.Int())
	return types.UInt()
}

func not(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	c.expect(args[0], types.Bool())
	return types.Bool()
}

func logic(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 1) {
		return types.Invalid()
	}
	for _, a := range args {
		c.expect(a, types.Bool())
	}
	return types.Bool()
}

func isEq(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 1) {
		return types.Invalid()
	}
	t := c.expr(args[0])
	for _, a := range args[1:] {
		t = c.merge(a, t, c.expr(a))
	}
	if t.Kind == types.KindInvalid {
		return t
	}
	return types.Bool()
}

func ifForm(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	c.expect(args[0], types.Bool())
	return c.merge(e, c.expr(args[1]), c.expr(args[2]))
}

func begin(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 1) {
		return types.Invalid()
	}
	var t *types.Type
	for _, a := range args {
		t = c.expr(a)
	}
	return t
}

// (let ((name expr) ...) body...)
func let(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 2) {
		return types.Invalid()
	}
	if args[0].Kind != ast.KindList {
		return c.errorf(diag.CheckBadForm, args[0].Span, "expected a binding list")
	}
	scope := c.pushScope()
	defer c.popScope()
	for _, b := range args[0].Args {
		if b.Kind != ast.KindList || len(b.Args) != 2 {
			c.errorf(diag.CheckBadForm, b.Span, "expected (name value) binding")
			continue
		}
		c.bind(scope, b.Args[0], c.expr(b.Args[1]))
	}
	var t *types.Type
	for _, a := range args[1:] {
		t = c.expr(a)
	}
	return t
}

// (match opt name some-branch none-branch)
// (match resp ok-name ok-branch err-name err-branch)
func match(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if len(args) == 0 {
		return c.errorf(diag.CheckArity, e.Span, "match expects an input")
	}
	in := c.expr(args[0])
	switch in.Kind {
	case types.KindInvalid:
		return in
	case types.KindOptional:
		if !c.arity(e, args, 4) {
			return types.Invalid()
		}
		scope := c.pushScope()
		c.bind(scope, args[1], in.Elem)
		some := c.expr(args[2])
		c.popScope()
		return c.merge(e, some, c.expr(args[3]))
	case types.KindResponse:
		if !c.arity(e, args, 5) {
			return types.Invalid()
		}
		scope := c.pushScope()
		c.bind(scope, args[1], in.Ok)
		okT := c.expr(args[2])
		c.popScope()
		scope = c.pushScope()
		c.bind(scope, args[3], in.Err)
		errT := c.expr(args[4])
		c.popScope()
		return c.merge(e, okT, errT)
	}
	return c.errorf(diag.CheckTypeMismatch, args[0].Span, "match expects an optional or a response, found %s", in)
}

func asserts(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	c.expect(args[0], types.Bool())
	c.exit(e, c.expr(args[1]))
	return types.Bool()
}

func unwrap(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	in := c.expr(args[0])
	c.exit(e, c.expr(args[1]))
	return c.unwrapped(e, args[0], in)
}

func unwrapPanic(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	return c.unwrapped(e, args[0], c.expr(args[0]))
}

func (c *checker) unwrapped(e, arg *ast.Expr, in *types.Type) *types.Type {
	wantErr := e.Head() == "unwrap-err!" || e.Head() == "unwrap-err-panic"
	switch {
	case in.Kind == types.KindInvalid:
		return in
	case in.Kind == types.KindResponse && wantErr:
		return in.Err
	case in.Kind == types.KindResponse:
		return in.Ok
	case in.Kind == types.KindOptional && !wantErr:
		return in.Elem
	}
	return c.errorf(diag.CheckTypeMismatch, arg.Span, "%s cannot unwrap %s", e.Head(), in)
}

func try(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	in := c.expr(args[0])
	switch in.Kind {
	case types.KindInvalid:
		return in
	case types.KindOptional:
		c.exit(e, types.Optional(types.NoType()))
		return in.Elem
	case types.KindResponse:
		c.exit(e, types.Response(types.NoType(), in.Err))
		return in.Ok
	}
	return c.errorf(diag.CheckTypeMismatch, args[0].Span, "try! expects an optional or a response, found %s", in)
}

func defaultTo(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	def := c.expr(args[0])
	in := c.expr(args[1])
	if in.Kind == types.KindInvalid {
		return in
	}
	if in.Kind != types.KindOptional {
		return c.errorf(diag.CheckTypeMismatch, args[1].Span, "default-to expects an optional, found %s", in)
	}
	return c.merge(e, def, in.Elem)
}

func some(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	t := c.expr(args[0])
	if t.Kind == types.KindInvalid {
		return t
	}
	return types.Optional(t)
}

func okErr(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	t := c.expr(args[0])
	if t.Kind == types.KindInvalid {
		return t
	}
	if e.Head() == "ok" {
		return types.Response(t, types.NoType())
	}
	return types.Response(types.NoType(), t)
}

func isVariant(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	t := c.expr(args[0])
	want := types.KindOptional
	if e.Head() == "is-ok" || e.Head() == "is-err" {
		want = types.KindResponse
	}
	if t.Kind != types.KindInvalid && t.Kind != want {
		return c.errorf(diag.CheckTypeMismatch, args[0].Span, "%s expects %s, found %s", e.Head(), want, t)
	}
	return types.Bool()
}

// (tuple (name expr) ...)
func tuple(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 1) {
		return types.Invalid()
	}
	fields := make([]types.Field, 0, len(args))
	bad := false
	for _, f := range args {
		if f.Kind != ast.KindList || len(f.Args) != 2 || f.Args[0].Kind != ast.KindAtom {
			c.errorf(diag.CheckBadForm, f.Span, "expected (name value) tuple field")
			bad = true
			continue
		}
		t := c.expr(f.Args[1])
		bad = bad || t.Kind == types.KindInvalid
		fields = append(fields, types.Field{Name: f.Args[0].Name, Type: t})
	}
	if bad {
		return types.Invalid()
	}
	return c.tupleType(e, fields)
}

func get(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	if args[0].Kind != ast.KindAtom {
		return c.errorf(diag.CheckBadForm, args[0].Span, "expected a field name")
	}
	t := c.expr(args[1])
	if t.Kind == types.KindInvalid {
		return t
	}
	if t.Kind != types.KindTuple {
		return c.errorf(diag.CheckTypeMismatch, args[1].Span, "get expects a tuple, found %s", t)
	}
	ft, ok := t.Field(args[0].Name)
	if !ok {
		return c.errorf(diag.CheckUnknownName, args[0].Span, "tuple %s has no field %q", t, args[0].Name)
	}
	return ft
}

func mergeTuples(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	a, b := c.expr(args[0]), c.expr(args[1])
	if a.Kind == types.KindInvalid || b.Kind == types.KindInvalid {
		return types.Invalid()
	}
	if a.Kind != types.KindTuple || b.Kind != types.KindTuple {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "merge expects two tuples, found %s and %s", a, b)
	}
	fields := make([]types.Field, 0, len(a.Fields)+len(b.Fields))
	for _, f := range a.Fields {
		if _, over := b.Field(f.Name); !over {
			fields = append(fields, f)
		}
	}
	fields = append(fields, b.Fields...)
	return c.tupleType(e, fields)
}

func list(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	elem := types.NoType()
	for _, a := range args {
		elem = c.merge(a, elem, c.expr(a))
	}
	if elem.Kind == types.KindInvalid {
		return elem
	}
	n, err := safecast.Conv[uint32](len(args))
	if err != nil {
		return c.errorf(diag.CheckValueTooLarge, e.Span, "list is too long")
	}
	return types.List(elem, n)
}

func (c *checker) sequence(e *ast.Expr) *types.Type {
	t := c.expr(e)
	if t.Kind != types.KindInvalid && !t.IsSequence() {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "expected a sequence, found %s", t)
	}
	return t
}

// elementType is the type of one item of a sequence.
func elementType(seq *types.Type) *types.Type {
	switch seq.Kind {
	case types.KindBuffer:
		return types.Buffer(1)
	case types.KindStringASCII:
		return types.StringASCII(1)
	case types.KindStringUTF8:
		return types.StringUTF8(1)
	}
	return seq.Elem
}

func length(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	if c.sequence(args[0]).Kind == types.KindInvalid {
		return types.Invalid()
	}
	return types.UInt()
}

func elementAt(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	seq := c.sequence(args[0])
	c.expect(args[1], types.UInt())
	if seq.Kind == types.KindInvalid {
		return seq
	}
	return types.Optional(elementType(seq))
}

func indexOf(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	seq := c.sequence(args[0])
	if seq.Kind == types.KindInvalid {
		c.expr(args[1])
		return seq
	}
	c.expect(args[1], elementType(seq))
	return types.Optional(types.UInt())
}

func concat(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	a, b := c.sequence(args[0]), c.sequence(args[1])
	if a.Kind == types.KindInvalid || b.Kind == types.KindInvalid {
		return types.Invalid()
	}
	if a.Kind != b.Kind {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "cannot concat %s and %s", a, b)
	}
	n, err := safecast.Conv[uint32](uint64(a.MaxLen) + uint64(b.MaxLen))
	if err != nil {
		return c.errorf(diag.CheckValueTooLarge, e.Span, "concatenation is too long")
	}
	if a.Kind != types.KindList {
		m, _ := types.Merge(a, b)
		out := *m
		out.MaxLen = n
		return &out
	}
	elem, ok := types.Merge(seqElem(a), seqElem(b))
	if !ok {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "cannot concat %s and %s", a, b)
	}
	return types.List(elem, n)
}

// seqElem treats the element of an empty list as unknown.
func seqElem(t *types.Type) *types.Type {
	if t.MaxLen == 0 {
		return types.NoType()
	}
	return t.Elem
}

func appendForm(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	l, item := c.expr(args[0]), c.expr(args[1])
	if l.Kind == types.KindInvalid || item.Kind == types.KindInvalid {
		return types.Invalid()
	}
	if l.Kind != types.KindList {
		return c.errorf(diag.CheckTypeMismatch, args[0].Span, "append expects a list, found %s", l)
	}
	elem := c.merge(args[1], seqElem(l), item)
	if elem.Kind == types.KindInvalid {
		return elem
	}
	return types.List(elem, l.MaxLen+1)
}

func asMaxLen(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	seq := c.sequence(args[0])
	n := args[1]
	if n.Kind != ast.KindLiteral || n.Value.Kind != types.KindUInt || !n.Value.Int.IsUint64() || n.Value.Int.Uint64() > MaxValueSize {
		return c.errorf(diag.CheckBadForm, n.Span, "as-max-len? expects a uint literal length")
	}
	limit, err := safecast.Conv[uint32](n.Value.Int.Uint64())
	if err != nil {
		return c.errorf(diag.CheckValueTooLarge, n.Span, "length %s exceeds the value size limit", n.Value.Int)
	}
	n.Type = types.UInt()
	if seq.Kind == types.KindInvalid {
		return seq
	}
	out := *seq
	out.MaxLen = limit
	return types.Optional(&out)
}

// fnRef resolves the function argument of map, filter and fold.
func (c *checker) fnRef(e *ast.Expr) *ast.Decl {
	if e.Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected a function name")
		return nil
	}
	if _, ok := c.funcs[e.Name]; !ok {
		c.errorf(diag.CheckUnknownFunction, e.Span, "unknown function %q", e.Name)
		return nil
	}
	d := c.checkFunction(e.Name)
	if d == nil || d.Result == nil || d.Result.Kind == types.KindInvalid {
		return nil
	}
	return d
}

func (c *checker) listArg(e *ast.Expr) *types.Type {
	t := c.expr(e)
	if t.Kind != types.KindInvalid && t.Kind != types.KindList {
		return c.errorf(diag.CheckTypeMismatch, e.Span, "expected a list, found %s", t)
	}
	return t
}

func (c *checker) fnParams(e *ast.Expr, d *ast.Decl, args ...*types.Type) bool {
	if len(d.Params) != len(args) {
		c.errorf(diag.CheckArity, e.Span, "%s takes %d argument(s), %s passes %d", d.Name, len(d.Params), e.Head(), len(args))
		return false
	}
	for i, t := range args {
		if !types.Admits(d.Params[i].Type, t) {
			c.errorf(diag.CheckTypeMismatch, e.Span, "%s expects %s for %s, %s passes %s", d.Name, d.Params[i].Type, d.Params[i].Name, e.Head(), t)
			return false
		}
	}
	return true
}

// (map f list...)
func mapForm(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 2) {
		return types.Invalid()
	}
	d := c.fnRef(args[0])
	elems := make([]*types.Type, 0, len(args)-1)
	n := uint32(math.MaxUint32)
	bad := d == nil
	for _, a := range args[1:] {
		t := c.listArg(a)
		if t.Kind == types.KindInvalid {
			bad = true
			continue
		}
		elems = append(elems, t.Elem)
		n = min(n, t.MaxLen)
	}
	if bad || !c.fnParams(e, d, elems...) {
		return types.Invalid()
	}
	return types.List(d.Result, n)
}

// (filter f list)
func filter(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	d := c.fnRef(args[0])
	l := c.listArg(args[1])
	if d == nil || l.Kind == types.KindInvalid || !c.fnParams(e, d, l.Elem) {
		return types.Invalid()
	}
	if d.Result.Kind != types.KindBool {
		return c.errorf(diag.CheckTypeMismatch, args[0].Span, "filter expects a bool predicate, %s returns %s", d.Name, d.Result)
	}
	return l
}

// (fold f list initial)
func fold(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	d := c.fnRef(args[0])
	l := c.listArg(args[1])
	init := c.expr(args[2])
	if d == nil || l.Kind == types.KindInvalid || init.Kind == types.KindInvalid {
		return types.Invalid()
	}
	if !c.fnParams(e, d, l.Elem, init) || !c.fnParams(e, d, l.Elem, d.Result) {
		return types.Invalid()
	}
	return c.merge(e, init, d.Result)
}

func (c *checker) dataVar(e *ast.Expr) *types.Type {
	if e.Kind == ast.KindAtom {
		if t, ok := c.vars[e.Name]; ok {
			return t
		}
	}
	return c.errorf(diag.CheckUnknownName, e.Span, "unknown data var %s", describe(e))
}

func varGet(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	return c.dataVar(args[0])
}

func varSet(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	if t := c.dataVar(args[0]); t.Kind != types.KindInvalid {
		c.expect(args[1], t)
	}
	return types.Bool()
}

func (c *checker) mapRef(e *ast.Expr) (mapDecl, bool) {
	if e.Kind == ast.KindAtom {
		if m, ok := c.maps[e.Name]; ok {
			return m, true
		}
	}
	c.errorf(diag.CheckUnknownName, e.Span, "unknown map %s", describe(e))
	return mapDecl{}, false
}

func mapGet(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	m, ok := c.mapRef(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expect(args[1], m.key)
	return types.Optional(m.val)
}

func mapWrite(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	m, ok := c.mapRef(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expect(args[1], m.key)
	c.expect(args[2], m.val)
	return types.Bool()
}

func mapDelete(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	m, ok := c.mapRef(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expect(args[1], m.key)
	return types.Bool()
}

func describe(e *ast.Expr) string {
	if e.Kind == ast.KindAtom {
		return "\"" + e.Name + "\""
	}
	return "expression"
}

func hash(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	t := c.expr(args[0])
	if t.Kind != types.KindInvalid && t.Kind != types.KindBuffer && !t.IsInteger() {
		return c.errorf(diag.CheckTypeMismatch, args[0].Span, "%s expects a buffer, int or uint, found %s", e.Head(), t)
	}
	if e.Head() == "hash160" {
		return types.Buffer(20)
	}
	return types.Buffer(32)
}

func stxBalance(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	c.expect(args[0], types.Principal())
	return types.UInt()
}

func stxTransfer(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	c.expectAll(args, types.UInt(), types.Principal(), types.Principal())
	return transferResult()
}

func printForm(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	return c.expr(args[0])
}

// (contract-call? 'SP...contract fn args...)
func contractCall(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arityMin(e, args, 2) {
		return types.Invalid()
	}
	target, fn := args[0], args[1]
	if target.Kind != ast.KindLiteral || target.Value.Kind != types.KindPrincipal || target.Value.Principal.Name == "" {
		return c.errorf(diag.CheckBadForm, target.Span, "contract-call? expects a contract principal literal")
	}
	target.Type = types.Principal()
	if fn.Kind != ast.KindAtom {
		return c.errorf(diag.CheckBadForm, fn.Span, "expected a function name")
	}
	contract := target.Value.Principal.String()
	ext, ok := c.cfg.Externals[contract][fn.Name]
	if !ok {
		for _, a := range args[2:] {
			c.expr(a)
		}
		if _, known := c.cfg.Externals[contract]; !known {
			return c.errorf(diag.CheckUnknownContract, target.Span, "unknown contract %s", contract)
		}
		return c.errorf(diag.CheckUnknownFunction, fn.Span, "contract %s has no public function %q", contract, fn.Name)
	}
	if !ext.Kind.Exported() {
		return c.errorf(diag.CheckUnknownFunction, fn.Span, "%q is not callable from another contract", fn.Name)
	}
	if !c.arity(e, args[2:], len(ext.Params)) {
		return types.Invalid()
	}
	for i, a := range args[2:] {
		c.expect(a, ext.Params[i])
	}
	return ext.Result
}
