package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// count pushes the number of items of the sequence held in (ptr, n) as i32.
func (fl *funcLowerer) count(s *abi.Shape, ptr, n uint32) {
	switch {
	case s.Type.Kind == types.KindStringUTF8:
		fl.emit(get(ptr), get(n), fl.g.helper(helperUTF8Len, buildUTF8Len))
	case s.Elem != nil:
		fl.emit(get(n), wasm.U32Const(s.Elem.Size), op(wasm.OpI32DivU))
	default:
		fl.emit(get(n))
	}
}

// offsetLocal computes base + i*size into a fresh local.
func (fl *funcLowerer) offsetLocal(base []wasm.Instr, i, size uint32) uint32 {
	a := fl.local(api.ValueTypeI32)
	fl.emit(base...)
	fl.emit(get(i))
	if size != 1 {
		fl.emit(wasm.U32Const(size), op(wasm.OpI32Mul))
	}
	fl.emit(op(wasm.OpI32Add), set(a))
	return a
}

// loop emits block { loop { body; br 0 } }. Inside body, br 1 leaves.
func (fl *funcLowerer) loop(body func() error) error {
	code, err := fl.capture(body)
	if err != nil {
		return err
	}
	fl.emit(wasm.Block(nil, wasm.Loop(nil, append(code, wasm.Br(0))...)))
	return nil
}

func lowerLen(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	ls, s, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	fl.count(s, ls[0], ls[1])
	fl.emit(op(wasm.OpI64ExtendI32U), i64c(0))
	out, err := fl.g.shape(types.UInt())
	return onStack(out), err
}

func lowerElementAt(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	if args[0].Type.Kind == types.KindStringUTF8 {
		return Location{}, unsupported(e.Head(), e.Span, "indexing string-utf8 by character")
	}
	_, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	seq, ss, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	idx, _, err := fl.lowerLocals(args[1], types.UInt())
	if err != nil {
		return Location{}, err
	}
	ptr, n := seq[0], seq[1]
	lo, hi := idx[0], idx[1]
	size := elemSize(ss)

	then, err := fl.capture(func() error {
		fl.emit(i32c(1))
		a := fl.offsetLocal([]wasm.Instr{get(ptr)}, fl.wrapLocal(lo), size)
		if ss.Elem == nil {
			fl.emit(get(a), i32c(1))
			return nil
		}
		fl.emit(loadSlots(ss.Elem, addr{base: int64(a)})...)
		return fl.coerce(ss.Elem, s.Children[0], e)
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(
		get(hi), op(wasm.OpI64Eqz),
		get(lo), get(n), wasm.U32Const(size), op(wasm.OpI32DivU), op(wasm.OpI64ExtendI32U), op(wasm.OpI64LtU),
		op(wasm.OpI32And),
		wasm.If(wasm.BlockType(s.Slots), then, zeros(s.Slots)),
	)
	return onStack(s), nil
}

// wrapLocal stores the low 32 bits of an i64 local in a new i32 local.
func (fl *funcLowerer) wrapLocal(l uint32) uint32 {
	w := fl.local(api.ValueTypeI32)
	fl.emit(get(l), op(wasm.OpI32WrapI64), set(w))
	return w
}

// capacity is the room a sequence of type t needs for its items.
func capacity(s *abi.Shape) uint32 {
	if s.Elem != nil {
		return s.Type.MaxLen * s.Elem.Size
	}
	return s.DataSize
}

func lowerConcat(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	a, _, err := fl.lowerLocals(args[0], e.Type)
	if err != nil {
		return Location{}, err
	}
	b, _, err := fl.lowerLocals(args[1], e.Type)
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(capacity(s))
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(get(a[0]), get(a[1]), op(wasm.OpMemoryCopy))
	fl.emit(pushAddr(dst)...)
	fl.emit(get(a[1]), op(wasm.OpI32Add), get(b[0]), get(b[1]), op(wasm.OpMemoryCopy))
	fl.emit(pushAddr(dst)...)
	fl.emit(get(a[1]), get(b[1]), op(wasm.OpI32Add))
	return onStack(s), nil
}

func lowerAppend(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	l, _, err := fl.lowerLocals(args[0], e.Type)
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(capacity(s))
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(get(l[0]), get(l[1]), op(wasm.OpMemoryCopy))
	end := fl.local(api.ValueTypeI32)
	fl.emit(pushAddr(dst)...)
	fl.emit(get(l[1]), op(wasm.OpI32Add), set(end))
	if err := fl.storeExpr(args[1], e.Type.Elem, addr{base: int64(end)}); err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(get(l[1]), wasm.U32Const(s.Elem.Size), op(wasm.OpI32Add))
	return onStack(s), nil
}

func lowerAsMaxLen(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	_, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	seq, ss, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	limit := e.Type.Elem.MaxLen
	fl.count(ss, seq[0], seq[1])
	fl.emit(wasm.U32Const(limit), op(wasm.OpI32LeU))
	then := []wasm.Instr{i32c(1), get(seq[0]), get(seq[1])}
	fl.emit(wasm.If(wasm.BlockType(s.Slots), then, zeros(s.Slots)))
	return onStack(s), nil
}

// listParam checks that the items of list shape ls can be passed as a
// function parameter of type p without re-encoding.
func (fl *funcLowerer) listParam(e *ast.Expr, ls *abi.Shape, p *types.Type) (*abi.Shape, error) {
	ps, err := fl.g.shape(p)
	if err != nil {
		return nil, err
	}
	if ls.Type.MaxLen > 0 && !sameLayout(ls.Elem, ps) {
		return nil, unsupported(e.Head(), e.Span, "list items of "+ls.Elem.Type.String()+" passed as "+p.String())
	}
	return ls.Elem, nil
}

// (map f l1 l2 ...) stops at the shortest list.
func lowerMap(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	d := fl.g.funcs[args[0].Name]
	if d == nil {
		return Location{}, internalf(e.Span, "unknown function %q", args[0].Name)
	}
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	type input struct {
		ptr, n uint32
		elem   *abi.Shape
	}
	inputs := make([]input, len(args)-1)
	for j, a := range args[1:] {
		ls, shape, err := fl.lowerLocals(a, a.Type)
		if err != nil {
			return Location{}, err
		}
		elem, err := fl.listParam(e, shape, d.Params[j].Type)
		if err != nil {
			return Location{}, err
		}
		inputs[j] = input{ptr: ls[0], n: ls[1], elem: elem}
	}
	count := fl.local(api.ValueTypeI32)
	for j, in := range inputs {
		fl.emit(get(in.n), wasm.U32Const(in.elem.Size), op(wasm.OpI32DivU))
		if j > 0 {
			// min
			t := fl.local(api.ValueTypeI32)
			fl.emit(tee(t), get(count), get(t), get(count), op(wasm.OpI32LtU), op(wasm.OpSelect))
		}
		fl.emit(set(count))
	}
	dst, err := fl.alloc(capacity(s))
	if err != nil {
		return Location{}, err
	}
	i := fl.local(api.ValueTypeI32)
	err = fl.loop(func() error {
		fl.emit(get(i), get(count), op(wasm.OpI32GeU), wasm.BrIf(1))
		for _, in := range inputs {
			a := fl.offsetLocal([]wasm.Instr{get(in.ptr)}, i, in.elem.Size)
			fl.emit(loadSlots(in.elem, addr{base: int64(a)})...)
		}
		fl.emit(wasm.Call(d.Name))
		ls := fl.spill(s.Elem)
		o := fl.offsetLocal(pushAddr(dst), i, s.Elem.Size)
		fl.emit(storeLocals(s.Elem, ls, addr{base: int64(o)})...)
		fl.emit(get(i), i32c(1), op(wasm.OpI32Add), set(i))
		return nil
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(get(count), wasm.U32Const(s.Elem.Size), op(wasm.OpI32Mul))
	return onStack(s), nil
}

// (filter f l) copies the items for which f holds, keeping their order.
func lowerFilter(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	d := fl.g.funcs[args[0].Name]
	if d == nil {
		return Location{}, internalf(e.Span, "unknown function %q", args[0].Name)
	}
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	l, ls, err := fl.lowerLocals(args[1], args[1].Type)
	if err != nil {
		return Location{}, err
	}
	elem, err := fl.listParam(e, ls, d.Params[0].Type)
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(capacity(s))
	if err != nil {
		return Location{}, err
	}
	i, out := fl.local(api.ValueTypeI32), fl.local(api.ValueTypeI32)
	err = fl.loop(func() error {
		fl.emit(get(i), get(l[1]), op(wasm.OpI32GeU), wasm.BrIf(1))
		a := fl.offsetLocal([]wasm.Instr{get(l[0])}, i, 1)
		fl.emit(loadSlots(elem, addr{base: int64(a)})...)
		fl.emit(wasm.Call(d.Name))
		keep := flat(pushAddr(dst), []wasm.Instr{
			get(out), op(wasm.OpI32Add), get(a), wasm.U32Const(elem.Size), op(wasm.OpMemoryCopy),
			get(out), wasm.U32Const(elem.Size), op(wasm.OpI32Add), set(out),
		})
		fl.emit(wasm.If(nil, keep, nil))
		fl.emit(get(i), wasm.U32Const(elem.Size), op(wasm.OpI32Add), set(i))
		return nil
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(get(out))
	return onStack(s), nil
}

// (fold f l init) calls (f item acc) for each item in order.
func lowerFold(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	d := fl.g.funcs[args[0].Name]
	if d == nil {
		return Location{}, internalf(e.Span, "unknown function %q", args[0].Name)
	}
	l, ls, err := fl.lowerLocals(args[1], args[1].Type)
	if err != nil {
		return Location{}, err
	}
	elem, err := fl.listParam(e, ls, d.Params[0].Type)
	if err != nil {
		return Location{}, err
	}
	acc, as, err := fl.lowerLocals(args[2], e.Type)
	if err != nil {
		return Location{}, err
	}
	accParam, err := fl.g.shape(d.Params[1].Type)
	if err != nil {
		return Location{}, err
	}
	res, err := fl.g.shape(d.Result)
	if err != nil {
		return Location{}, err
	}
	i := fl.local(api.ValueTypeI32)
	err = fl.loop(func() error {
		fl.emit(get(i), get(l[1]), op(wasm.OpI32GeU), wasm.BrIf(1))
		a := fl.offsetLocal([]wasm.Instr{get(l[0])}, i, 1)
		fl.emit(loadSlots(elem, addr{base: int64(a)})...)
		if err := fl.pushCoerced(acc, as, accParam, e); err != nil {
			return err
		}
		fl.emit(wasm.Call(d.Name))
		if err := fl.coerce(res, as, e); err != nil {
			return err
		}
		for k := len(acc) - 1; k >= 0; k-- {
			fl.emit(set(acc[k]))
		}
		fl.emit(get(i), wasm.U32Const(elem.Size), op(wasm.OpI32Add), set(i))
		return nil
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushLocals(acc)...)
	return onStack(as), nil
}
