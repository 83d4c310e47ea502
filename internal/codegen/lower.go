package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/memory"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

type binding struct {
	shape  *abi.Shape
	locals []uint32
}

type lowerFunc func(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error)

var lowerers map[string]lowerFunc

// funcLowerer lowers the body of one function or of the initializer.
type funcLowerer struct {
	g    *Generator
	fn   *wasm.Function
	decl *ast.Decl
	// result is the shape of early exits; nil in the initializer
	result *abi.Shape
	frame  uint32
	exits  bool
	code   []wasm.Instr
	scopes []map[string]binding
}

// LowerFunction translates a public, private or read-only function.
func (g *Generator) LowerFunction(d *ast.Decl) (*wasm.Function, error) {
	sig, err := g.Signature(d)
	if err != nil {
		return nil, err
	}
	res, err := g.shape(d.Result)
	if err != nil {
		return nil, err
	}
	fn := &wasm.Function{Name: d.Name, Type: sig}
	fl := &funcLowerer{g: g, fn: fn, decl: d, result: res}

	scope := make(map[string]binding, len(d.Params))
	var idx uint32
	for _, p := range d.Params {
		s, err := g.shape(p.Type)
		if err != nil {
			return nil, err
		}
		b := binding{shape: s, locals: make([]uint32, len(s.Slots))}
		for i := range b.locals {
			b.locals[i] = idx
			idx++
		}
		scope[p.Name] = b
	}
	fl.scopes = []map[string]binding{scope}
	fl.frame = fn.AddLocal(api.ValueTypeI32)

	if err := g.alloc.EnterScope(d.Name); err != nil {
		return nil, err
	}
	err = fl.lower(d.Body[0], d.Result)
	size := memory.AlignUp(g.alloc.ExitScope(), 8)
	if err != nil {
		return nil, err
	}
	if size == 0 && !fl.exits {
		fn.Body = fl.code
		return fn, nil
	}
	body := fl.prologue(size)
	body = append(body, fl.code...)
	if res.Flat() {
		body = append(body, wasm.LocalGet(fl.frame), wasm.GlobalSet(StackPointer))
	}
	fn.Body = body
	return fn, nil
}

// prologue claims the activation frame: frame = sp; sp += size, trapping
// when the stack limit is crossed.
func (fl *funcLowerer) prologue(size uint32) []wasm.Instr {
	out := []wasm.Instr{wasm.GlobalGet(StackPointer), wasm.LocalSet(fl.frame)}
	if size == 0 {
		return out
	}
	top := fl.fn.AddLocal(api.ValueTypeI32)
	return append(out,
		wasm.LocalGet(fl.frame), wasm.U32Const(size), wasm.Op(wasm.OpI32Add), wasm.LocalTee(top),
		wasm.GlobalGet(StackLimit), wasm.Op(wasm.OpI32GtU),
		wasm.If(nil, fl.trap(hostcall.ErrStackExhausted), nil),
		wasm.LocalGet(top), wasm.GlobalSet(StackPointer),
	)
}

// LowerTopLevel builds the initializer from every top-level form that is not
// a function definition, in source order. Its frame lives in permanent
// memory so computed constants outlive it.
func (g *Generator) LowerTopLevel(exprs []*ast.Expr) (*wasm.Function, error) {
	fn := &wasm.Function{Name: TopLevel}
	fl := &funcLowerer{g: g, fn: fn}
	if err := g.alloc.EnterPermanentScope(TopLevel); err != nil {
		return nil, err
	}
	defer g.alloc.ExitScope()
	for _, e := range exprs {
		if err := fl.topLevel(e); err != nil {
			return nil, err
		}
	}
	fn.Body = fl.code
	return fn, nil
}

func (fl *funcLowerer) topLevel(e *ast.Expr) error {
	d := e.Decl
	if d == nil {
		return fl.discard(e)
	}
	switch d.Kind {
	case ast.DeclConstant:
		k := fl.g.consts[d.Name]
		if k == nil {
			return internalf(e.Span, "constant %q was not declared", d.Name)
		}
		if k.literal != nil {
			return nil
		}
		loc, err := fl.lowerLoc(d.Body[0], d.Result)
		if err != nil {
			return err
		}
		return fl.store(loc, d.Result, absolute(k.slot.Offset), d.Body[0])
	case ast.DeclDataVar:
		return fl.defineVar(e, d)
	case ast.DeclMap:
		return fl.defineMap(e, d)
	case ast.DeclFungibleToken:
		return fl.defineFungibleToken(e, d)
	case ast.DeclNonFungibleToken:
		return fl.defineNonFungibleToken(e, d)
	}
	return nil
}

func (fl *funcLowerer) emit(ins ...wasm.Instr) {
	fl.code = append(fl.code, ins...)
}

// capture collects the instructions emitted by body instead of emitting them.
func (fl *funcLowerer) capture(body func() error) ([]wasm.Instr, error) {
	saved := fl.code
	fl.code = nil
	err := body()
	out := fl.code
	fl.code = saved
	return out, err
}

func (fl *funcLowerer) local(vt api.ValueType) uint32 {
	return fl.fn.AddLocal(vt)
}

func (fl *funcLowerer) locals(slots []api.ValueType) []uint32 {
	out := make([]uint32, len(slots))
	for i, vt := range slots {
		out[i] = fl.local(vt)
	}
	return out
}

// spill pops a value of shape s into fresh locals.
func (fl *funcLowerer) spill(s *abi.Shape) []uint32 {
	ls := fl.locals(s.Slots)
	for i := len(ls) - 1; i >= 0; i-- {
		fl.emit(wasm.LocalSet(ls[i]))
	}
	return ls
}

func pushLocals(ls []uint32) []wasm.Instr {
	out := make([]wasm.Instr, len(ls))
	for i, l := range ls {
		out[i] = wasm.LocalGet(l)
	}
	return out
}

// childLocals selects the locals of child i of a composite value.
func childLocals(s *abi.Shape, ls []uint32, i int) []uint32 {
	start := s.ChildSlot[i]
	return ls[start : start+len(s.Children[i].Slots)]
}

func (fl *funcLowerer) trap(code hostcall.ErrorCode) []wasm.Instr {
	return fl.g.trapCode(code)
}

// alloc reserves size bytes of the current activation.
func (fl *funcLowerer) alloc(size uint32) (addr, error) {
	r, err := fl.g.alloc.Allocate(size, 8)
	if err != nil {
		return addr{}, err
	}
	return regionAddr(r, fl.frame), nil
}

// exit returns the value of the result shape on the stack from the function.
func (fl *funcLowerer) exit(e *ast.Expr) error {
	if fl.result == nil {
		return internalf(e.Span, "%s outside of a function", e.Head())
	}
	fl.exits = true
	if fl.result.Flat() {
		fl.emit(wasm.LocalGet(fl.frame), wasm.GlobalSet(StackPointer))
	}
	fl.emit(wasm.Op(wasm.OpReturn))
	return nil
}

// lower leaves the slots of want on the stack.
func (fl *funcLowerer) lower(e *ast.Expr, want *types.Type) error {
	if want == nil || !types.Admits(want, e.Type) {
		want = e.Type
	}
	loc, err := fl.lowerLoc(e, want)
	if err != nil {
		return err
	}
	ws, err := fl.g.shape(want)
	if err != nil {
		return err
	}
	fl.emit(materialize(loc)...)
	return fl.coerce(loc.Shape, ws, e)
}

// coerce rewrites the value on the stack from shape from to shape to.
// Shapes only differ where one side has a placeholder; the placeholder side
// has no data and becomes zeros.
func (fl *funcLowerer) coerce(from, to *abi.Shape, e *ast.Expr) error {
	if sameLayout(from, to) {
		return nil
	}
	ls := fl.spill(from)
	return fl.pushCoerced(ls, from, to, e)
}

func (fl *funcLowerer) pushCoerced(ls []uint32, from, to *abi.Shape, e *ast.Expr) error {
	switch {
	case sameLayout(from, to):
		fl.emit(pushLocals(ls)...)
	case from.Form == abi.FormPlaceholder:
		fl.emit(zeros(to.Slots)...)
	case from.Form == abi.FormComposite && to.Form == abi.FormComposite && len(from.Children) == len(to.Children):
		if from.HasDiscriminant() {
			fl.emit(wasm.LocalGet(ls[0]))
		}
		for i := range from.Children {
			if err := fl.pushCoerced(childLocals(from, ls, i), from.Children[i], to.Children[i], e); err != nil {
				return err
			}
		}
	case from.Form == abi.FormMemory && from.Type.Kind == types.KindList && from.Type.MaxLen == 0:
		fl.emit(pushLocals(ls)...)
	case from.Form == abi.FormMemory && from.Type.Kind == types.KindList:
		return unsupported("list conversion", e.Span,
			"elements of "+from.Type.String()+" would need re-encoding as "+to.Type.String())
	default:
		return internalf(e.Span, "cannot convert %s to %s", from.Type, to.Type)
	}
	return nil
}

// lowerLocals evaluates e as want into fresh locals.
func (fl *funcLowerer) lowerLocals(e *ast.Expr, want *types.Type) ([]uint32, *abi.Shape, error) {
	if want == nil || !types.Admits(want, e.Type) {
		want = e.Type
	}
	if err := fl.lower(e, want); err != nil {
		return nil, nil, err
	}
	s, err := fl.g.shape(want)
	if err != nil {
		return nil, nil, err
	}
	return fl.spill(s), s, nil
}

// discard evaluates e for its effects.
func (fl *funcLowerer) discard(e *ast.Expr) error {
	loc, err := fl.lowerLoc(e, e.Type)
	if err != nil {
		return err
	}
	if loc.Kind == LocStack {
		fl.emit(drops(len(loc.Shape.Slots))...)
	}
	return nil
}

// store writes the value at loc, viewed as type t, to dst.
func (fl *funcLowerer) store(loc Location, t *types.Type, dst addr, e *ast.Expr) error {
	s, err := fl.g.shape(t)
	if err != nil {
		return err
	}
	if loc.Kind == LocStored && sameLayout(loc.Shape, s) {
		fl.emit(pushAddr(dst)...)
		fl.emit(pushAddr(loc.Addr)...)
		fl.emit(wasm.U32Const(s.Size), wasm.Op(wasm.OpMemoryCopy))
		return nil
	}
	fl.emit(materialize(loc)...)
	if err := fl.coerce(loc.Shape, s, e); err != nil {
		return err
	}
	fl.emit(storeLocals(s, fl.spill(s), dst)...)
	return nil
}

// storeExpr evaluates e as t into dst.
func (fl *funcLowerer) storeExpr(e *ast.Expr, t *types.Type, dst addr) error {
	if !types.Admits(t, e.Type) {
		t = e.Type
	}
	loc, err := fl.lowerLoc(e, t)
	if err != nil {
		return err
	}
	return fl.store(loc, t, dst, e)
}

// spillToMemory evaluates e as t into a fresh frame region and returns its
// address; used for arguments passed by representation.
func (fl *funcLowerer) spillToMemory(e *ast.Expr, t *types.Type) (addr, *abi.Shape, error) {
	if !types.Admits(t, e.Type) {
		t = e.Type
	}
	s, err := fl.g.shape(t)
	if err != nil {
		return addr{}, nil, err
	}
	loc, err := fl.lowerLoc(e, t)
	if err != nil {
		return addr{}, nil, err
	}
	if loc.Kind == LocStored && sameLayout(loc.Shape, s) {
		return loc.Addr, s, nil
	}
	dst, err := fl.alloc(s.Size)
	if err != nil {
		return addr{}, nil, err
	}
	return dst, s, fl.store(loc, t, dst, e)
}

func (fl *funcLowerer) lowerLoc(e *ast.Expr, want *types.Type) (Location, error) {
	if e.Type == nil {
		return Location{}, internalf(e.Span, "expression has no type")
	}
	if want == nil || !types.Admits(want, e.Type) {
		want = e.Type
	}
	switch e.Kind {
	case ast.KindLiteral:
		return fl.literal(e)
	case ast.KindAtom:
		return fl.atom(e, want)
	}
	head := e.Head()
	if h, ok := lowerers[head]; ok {
		return h(fl, e, e.Args[1:], want)
	}
	if d, ok := fl.g.funcs[head]; ok {
		return fl.call(e, d)
	}
	return Location{}, unsupported(head, e.Span, "")
}

func (fl *funcLowerer) literal(e *ast.Expr) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	v := e.Value
	switch v.Kind {
	case types.KindBool:
		b := int32(0)
		if v.Bool {
			b = 1
		}
		fl.emit(wasm.I32Const(b))
		return onStack(s), nil
	case types.KindInt, types.KindUInt:
		lo, hi := abi.SplitInt128(v.Int)
		fl.emit(wasm.I64Const(int64(lo)), wasm.I64Const(int64(hi))) // #nosec G115 -- bit patterns
		return onStack(s), nil
	}
	b, ok := literalBytes(e)
	if !ok {
		return Location{}, unsupported(v.Kind.String()+" literal", e.Span, "")
	}
	r, err := fl.g.alloc.Literal(b)
	if err != nil {
		return Location{}, internalf(e.Span, "%v", err)
	}
	return Location{Kind: LocRef, Shape: s, Ptr: r.Offset, Len: r.Len}, nil
}

func (fl *funcLowerer) atom(e *ast.Expr, want *types.Type) (Location, error) {
	for i := len(fl.scopes) - 1; i >= 0; i-- {
		if b, ok := fl.scopes[i][e.Name]; ok {
			fl.emit(pushLocals(b.locals)...)
			return onStack(b.shape), nil
		}
	}
	switch e.Name {
	case "none":
		s, err := fl.g.shape(want)
		if err != nil {
			return Location{}, err
		}
		fl.emit(zeros(s.Slots)...)
		return onStack(s), nil
	case "tx-sender", "contract-caller", "block-height":
		return fl.keyword(e)
	}
	if k, ok := fl.g.consts[e.Name]; ok {
		if k.literal != nil {
			return fl.literal(k.literal)
		}
		return stored(k.shape, absolute(k.slot.Offset)), nil
	}
	return Location{}, internalf(e.Span, "unresolved name %q", e.Name)
}

func (fl *funcLowerer) call(e *ast.Expr, d *ast.Decl) (Location, error) {
	args := e.Operands()
	if len(args) != len(d.Params) {
		return Location{}, internalf(e.Span, "%s takes %d arguments, got %d", d.Name, len(d.Params), len(args))
	}
	for i, a := range args {
		if err := fl.lower(a, d.Params[i].Type); err != nil {
			return Location{}, err
		}
	}
	s, err := fl.g.shape(d.Result)
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.Call(d.Name))
	return onStack(s), nil
}

func (fl *funcLowerer) pushScope() map[string]binding {
	s := make(map[string]binding)
	fl.scopes = append(fl.scopes, s)
	return s
}

func (fl *funcLowerer) popScope() {
	fl.scopes = fl.scopes[:len(fl.scopes)-1]
}
