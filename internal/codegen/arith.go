package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/ast"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// arithHelper returns the call implementing a binary integer operator.
func (g *Generator) arithHelper(head string, signed bool) (wasm.Instr, bool) {
	pick := func(sName string, sBuild func(*Generator) *wasm.Function, uName string, uBuild func(*Generator) *wasm.Function) wasm.Instr {
		if signed {
			return g.helper(sName, sBuild)
		}
		return g.helper(uName, uBuild)
	}
	switch head {
	case "+":
		return pick(helperAddInt, buildAdd(true), helperAddUInt, buildAdd(false)), true
	case "-":
		return pick(helperSubInt, buildSub(true), helperSubUInt, buildSub(false)), true
	case "*":
		return pick(helperMulInt, buildMulInt, helperMulUInt, buildMulUInt), true
	case "/", "mod":
		return pick(helperDivModInt, buildDivModInt, helperDivModUInt, buildDivModUInt), true
	case "pow":
		return pick(helperPowInt, buildPow(true), helperPowUInt, buildPow(false)), true
	}
	return wasm.Instr{}, false
}

var bitOps = map[string]wasm.Opcode{
	"bit-and": wasm.OpI64And,
	"bit-or":  wasm.OpI64Or,
	"bit-xor": wasm.OpI64Xor,
	"xor":     wasm.OpI64Xor,
}

// Operators fold left: (- a b c) is ((a - b) - c); (- a) negates.
func lowerArith(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t := e.Type
	s, err := fl.g.shape(t)
	if err != nil {
		return Location{}, err
	}
	head := e.Head()
	signed := t.Kind == types.KindInt
	if head == "-" && len(args) == 1 {
		fl.emit(i64c(0), i64c(0))
		if err := fl.lower(args[0], t); err != nil {
			return Location{}, err
		}
		call, _ := fl.g.arithHelper(head, signed)
		fl.emit(call)
		return onStack(s), nil
	}
	if err := fl.lower(args[0], t); err != nil {
		return Location{}, err
	}
	for _, a := range args[1:] {
		if err := fl.lower(a, t); err != nil {
			return Location{}, err
		}
		fl.applyArith(head, signed)
	}
	return onStack(s), nil
}

// applyArith combines the two integers on top of the stack.
func (fl *funcLowerer) applyArith(head string, signed bool) {
	if bop, ok := bitOps[head]; ok {
		blo, bhi, ahi := fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64)
		fl.emit(set(bhi), set(blo), set(ahi),
			get(blo), op(bop),
			get(ahi), get(bhi), op(bop))
		return
	}
	call, _ := fl.g.arithHelper(head, signed)
	fl.emit(call)
	switch head {
	case "/":
		fl.emit(drops(2)...)
	case "mod":
		rlo, rhi := fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64)
		fl.emit(set(rhi), set(rlo), op(wasm.OpDrop), op(wasm.OpDrop), get(rlo), get(rhi))
	}
}

func lowerBitNot(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[0], e.Type); err != nil {
		return Location{}, err
	}
	hi := fl.local(api.ValueTypeI64)
	fl.emit(set(hi), i64c(-1), op(wasm.OpI64Xor), get(hi), i64c(-1), op(wasm.OpI64Xor))
	return onStack(s), nil
}

// log2 is floor(log2 x), trapping on zero and on negative ints.
func lowerLog2(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[0], e.Type); err != nil {
		return Location{}, err
	}
	lo, hi := fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64)
	fl.emit(set(hi), set(lo))
	if e.Type.Kind == types.KindInt {
		fl.emit(get(hi), i64c(0), op(wasm.OpI64LtS), wasm.If(nil, fl.trap(hostcall.ErrLog2), nil))
	}
	fl.emit(
		get(lo), get(hi), op(wasm.OpI64Or), op(wasm.OpI64Eqz), wasm.If(nil, fl.trap(hostcall.ErrLog2), nil),
		i64c(127), get(hi), op(wasm.OpI64Clz), op(wasm.OpI64Sub),
		i64c(63), get(lo), op(wasm.OpI64Clz), op(wasm.OpI64Sub),
		get(hi), op(wasm.OpI64Eqz), op(wasm.OpI32Eqz),
		op(wasm.OpSelect),
		i64c(0),
	)
	return onStack(s), nil
}

func lowerSqrti(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[0], e.Type); err != nil {
		return Location{}, err
	}
	if e.Type.Kind == types.KindInt {
		hi := fl.local(api.ValueTypeI64)
		fl.emit(tee(hi), i64c(0), op(wasm.OpI64LtS), wasm.If(nil, fl.trap(hostcall.ErrSqrti), nil), get(hi))
	}
	fl.emit(fl.g.helper(helperSqrt, buildSqrt))
	return onStack(s), nil
}

var compareOps = map[string]struct{ lo, hiS, hiU wasm.Opcode }{
	"<":  {wasm.OpI64LtU, wasm.OpI64LtS, wasm.OpI64LtU},
	"<=": {wasm.OpI64LeU, wasm.OpI64LtS, wasm.OpI64LtU},
	">":  {wasm.OpI64GtU, wasm.OpI64GtS, wasm.OpI64GtU},
	">=": {wasm.OpI64GeU, wasm.OpI64GtS, wasm.OpI64GtU},
}

// Comparisons decide on the high limbs unless they are equal.
func lowerCompare(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t := args[0].Type
	if m, ok := types.Merge(args[0].Type, args[1].Type); ok {
		t = m
	}
	if err := fl.lower(args[0], t); err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[1], t); err != nil {
		return Location{}, err
	}
	alo, ahi, blo, bhi := fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64), fl.local(api.ValueTypeI64)
	ops := compareOps[e.Head()]
	hiOp := ops.hiU
	if t.Kind == types.KindInt {
		hiOp = ops.hiS
	}
	fl.emit(set(bhi), set(blo), set(ahi), set(alo),
		get(alo), get(blo), op(ops.lo),
		get(ahi), get(bhi), op(hiOp),
		get(ahi), get(bhi), op(wasm.OpI64Eq),
		op(wasm.OpSelect))
	return fl.boolResult(e)
}

// to-int and to-uint trap when the value is outside the target range; for
// both directions that is exactly when the high limb's sign bit is set.
func lowerConvert(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[0], args[0].Type); err != nil {
		return Location{}, err
	}
	code := hostcall.ErrArithmeticOverflow
	if e.Head() == "to-uint" {
		code = hostcall.ErrArithmeticUnderflow
	}
	hi := fl.local(api.ValueTypeI64)
	fl.emit(set(hi), get(hi), i64c(0), op(wasm.OpI64LtS), wasm.If(nil, fl.trap(code), nil), get(hi))
	return onStack(s), nil
}
