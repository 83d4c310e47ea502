package codegen

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/hostcall"
	"clarwasm/internal/wasm"
)

// Runtime helpers are module functions synthesized on first use. Their
// names start with '$' so they never collide with contract functions.
const (
	helperMul64      = "$mul64"
	helperNeg128     = "$neg128"
	helperAbs128     = "$abs128"
	helperAddInt     = "$add-int"
	helperAddUInt    = "$add-uint"
	helperSubInt     = "$sub-int"
	helperSubUInt    = "$sub-uint"
	helperMulInt     = "$mul-int"
	helperMulUInt    = "$mul-uint"
	helperDivModInt  = "$divmod-int"
	helperDivModUInt = "$divmod-uint"
	helperPowInt     = "$pow-int"
	helperPowUInt    = "$pow-uint"
	helperSqrt       = "$sqrti"
	helperMemEq      = "$memeq"
	helperUTF8Len    = "$utf8-len"
)

const low32 = math.MaxUint32

var (
	i64x2 = []api.ValueType{api.ValueTypeI64, api.ValueTypeI64}
	i64x4 = []api.ValueType{api.ValueTypeI64, api.ValueTypeI64, api.ValueTypeI64, api.ValueTypeI64}
)

func get(l uint32) wasm.Instr     { return wasm.LocalGet(l) }
func set(l uint32) wasm.Instr     { return wasm.LocalSet(l) }
func tee(l uint32) wasm.Instr     { return wasm.LocalTee(l) }
func op(o wasm.Opcode) wasm.Instr { return wasm.Op(o) }
func i64c(v int64) wasm.Instr     { return wasm.I64Const(v) }
func i32c(v int32) wasm.Instr     { return wasm.I32Const(v) }

func flat(parts ...[]wasm.Instr) []wasm.Instr {
	var out []wasm.Instr
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func (g *Generator) trapCode(code hostcall.ErrorCode) []wasm.Instr {
	call, err := g.host("runtime-error")
	if err != nil {
		panic(err)
	}
	return []wasm.Instr{i32c(int32(code)), call, op(wasm.OpUnreachable)}
}

// trapIf runs a trap when the i32 on the stack is non-zero.
func (g *Generator) trapIf(code hostcall.ErrorCode) wasm.Instr {
	return wasm.If(nil, g.trapCode(code), nil)
}

func newHelper(params, results []api.ValueType) *wasm.Function {
	return &wasm.Function{Type: wasm.FuncType{Params: params, Results: results}}
}

// mul64 returns the full 128-bit product of two u64 using 32-bit limbs.
func buildMul64(*Generator) *wasm.Function {
	f := newHelper(i64x2, i64x2)
	const x, y = 0, 1
	x0, x1, y0, y1 := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	p00, p01, p10, mid := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	f.Body = []wasm.Instr{
		get(x), i64c(low32), op(wasm.OpI64And), set(x0),
		get(x), i64c(32), op(wasm.OpI64ShrU), set(x1),
		get(y), i64c(low32), op(wasm.OpI64And), set(y0),
		get(y), i64c(32), op(wasm.OpI64ShrU), set(y1),
		get(x0), get(y0), op(wasm.OpI64Mul), set(p00),
		get(x0), get(y1), op(wasm.OpI64Mul), set(p01),
		get(x1), get(y0), op(wasm.OpI64Mul), set(p10),
		get(p00), i64c(32), op(wasm.OpI64ShrU),
		get(p01), i64c(low32), op(wasm.OpI64And), op(wasm.OpI64Add),
		get(p10), i64c(low32), op(wasm.OpI64And), op(wasm.OpI64Add), set(mid),
		// low
		get(mid), i64c(32), op(wasm.OpI64Shl), get(p00), i64c(low32), op(wasm.OpI64And), op(wasm.OpI64Or),
		// high
		get(x1), get(y1), op(wasm.OpI64Mul),
		get(p01), i64c(32), op(wasm.OpI64ShrU), op(wasm.OpI64Add),
		get(p10), i64c(32), op(wasm.OpI64ShrU), op(wasm.OpI64Add),
		get(mid), i64c(32), op(wasm.OpI64ShrU), op(wasm.OpI64Add),
	}
	return f
}

// neg128 is two's complement negation.
func buildNeg128(*Generator) *wasm.Function {
	f := newHelper(i64x2, i64x2)
	const lo, hi = 0, 1
	f.Body = []wasm.Instr{
		i64c(0), get(lo), op(wasm.OpI64Sub),
		i64c(0), get(hi), op(wasm.OpI64Sub),
		get(lo), i64c(0), op(wasm.OpI64Ne), op(wasm.OpI64ExtendI32U), op(wasm.OpI64Sub),
	}
	return f
}

// abs128 maps MinInt128 onto 2^127, which is only meaningful unsigned.
func buildAbs128(g *Generator) *wasm.Function {
	f := newHelper(i64x2, i64x2)
	const lo, hi = 0, 1
	neg := g.helper(helperNeg128, buildNeg128)
	f.Body = []wasm.Instr{
		get(hi), i64c(0), op(wasm.OpI64LtS),
		wasm.If(wasm.BlockType(i64x2), []wasm.Instr{get(lo), get(hi), neg}, []wasm.Instr{get(lo), get(hi)}),
	}
	return f
}

func buildAdd(signed bool) func(*Generator) *wasm.Function {
	return func(g *Generator) *wasm.Function {
		f := newHelper(i64x4, i64x2)
		const alo, ahi, blo, bhi = 0, 1, 2, 3
		lo, hi, carry, t := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
		f.Body = []wasm.Instr{
			get(alo), get(blo), op(wasm.OpI64Add), tee(lo),
			get(alo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U), set(carry),
			get(ahi), get(bhi), op(wasm.OpI64Add), tee(t),
			get(carry), op(wasm.OpI64Add), set(hi),
		}
		if signed {
			// operands agree in sign and the result does not
			f.Body = append(f.Body,
				get(ahi), get(hi), op(wasm.OpI64Xor),
				get(bhi), get(hi), op(wasm.OpI64Xor), op(wasm.OpI64And),
				i64c(0), op(wasm.OpI64LtS),
			)
		} else {
			f.Body = append(f.Body,
				get(t), get(ahi), op(wasm.OpI64LtU),
				get(hi), get(t), op(wasm.OpI64LtU), op(wasm.OpI32Or),
			)
		}
		f.Body = append(f.Body, g.trapIf(hostcall.ErrArithmeticOverflow), get(lo), get(hi))
		return f
	}
}

func buildSub(signed bool) func(*Generator) *wasm.Function {
	return func(g *Generator) *wasm.Function {
		f := newHelper(i64x4, i64x2)
		const alo, ahi, blo, bhi = 0, 1, 2, 3
		lo, hi, borrow, t := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
		f.Body = []wasm.Instr{
			get(alo), get(blo), op(wasm.OpI64Sub), set(lo),
			get(alo), get(blo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U), set(borrow),
			get(ahi), get(bhi), op(wasm.OpI64Sub), tee(t),
			get(borrow), op(wasm.OpI64Sub), set(hi),
		}
		if signed {
			// operands differ in sign and the result takes the subtrahend's
			f.Body = append(f.Body,
				get(ahi), get(bhi), op(wasm.OpI64Xor),
				get(ahi), get(hi), op(wasm.OpI64Xor), op(wasm.OpI64And),
				i64c(0), op(wasm.OpI64LtS),
				g.trapIf(hostcall.ErrArithmeticOverflow),
			)
		} else {
			f.Body = append(f.Body,
				get(ahi), get(bhi), op(wasm.OpI64LtU),
				get(t), get(borrow), op(wasm.OpI64LtU), op(wasm.OpI32Or),
				g.trapIf(hostcall.ErrArithmeticUnderflow),
			)
		}
		f.Body = append(f.Body, get(lo), get(hi))
		return f
	}
}

func buildMulUInt(g *Generator) *wasm.Function {
	f := newHelper(i64x4, i64x2)
	const alo, ahi, blo, bhi = 0, 1, 2, 3
	lo, h, clo, chi, hi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	mul := g.helper(helperMul64, buildMul64)
	f.Body = []wasm.Instr{
		// both high limbs set: at least 2^128
		get(ahi), op(wasm.OpI64Eqz), get(bhi), op(wasm.OpI64Eqz), op(wasm.OpI32Or), op(wasm.OpI32Eqz),
		g.trapIf(hostcall.ErrArithmeticOverflow),
		get(alo), get(blo), mul, set(h), set(lo),
		get(ahi), op(wasm.OpI64Eqz),
		wasm.If(wasm.BlockType(i64x2), []wasm.Instr{get(alo), get(bhi), mul}, []wasm.Instr{get(ahi), get(blo), mul}),
		set(chi), set(clo),
		get(chi), op(wasm.OpI64Eqz), op(wasm.OpI32Eqz),
		g.trapIf(hostcall.ErrArithmeticOverflow),
		get(h), get(clo), op(wasm.OpI64Add), set(hi),
		get(hi), get(h), op(wasm.OpI64LtU),
		g.trapIf(hostcall.ErrArithmeticOverflow),
		get(lo), get(hi),
	}
	return f
}

func buildMulInt(g *Generator) *wasm.Function {
	f := newHelper(i64x4, i64x2)
	const alo, ahi, blo, bhi = 0, 1, 2, 3
	neg := f.AddLocal(api.ValueTypeI32)
	lo, hi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	abs := g.helper(helperAbs128, buildAbs128)
	negate := g.helper(helperNeg128, buildNeg128)
	mulu := g.helper(helperMulUInt, buildMulUInt)
	f.Body = []wasm.Instr{
		get(ahi), get(bhi), op(wasm.OpI64Xor), i64c(0), op(wasm.OpI64LtS), set(neg),
		get(alo), get(ahi), abs, get(blo), get(bhi), abs, mulu, set(hi), set(lo),
		// magnitudes of 2^127 and above only fit as exactly MinInt128
		get(hi), i64c(0), op(wasm.OpI64LtS),
		wasm.If(nil, []wasm.Instr{
			get(neg), op(wasm.OpI32Eqz),
			get(lo), i64c(0), op(wasm.OpI64Ne), op(wasm.OpI32Or),
			get(hi), i64c(math.MinInt64), op(wasm.OpI64Ne), op(wasm.OpI32Or),
			g.trapIf(hostcall.ErrArithmeticOverflow),
		}, nil),
		get(neg),
		wasm.If(wasm.BlockType(i64x2), []wasm.Instr{get(lo), get(hi), negate}, []wasm.Instr{get(lo), get(hi)}),
	}
	return f
}

// divmod-uint is restoring shift-subtract division, one quotient bit per
// iteration.
func buildDivModUInt(g *Generator) *wasm.Function {
	f := newHelper(i64x4, i64x4)
	const alo, ahi, blo, bhi = 0, 1, 2, 3
	qlo, qhi, rlo, rhi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	i, carry := f.AddLocal(api.ValueTypeI32), f.AddLocal(api.ValueTypeI32)
	shl1 := func(hi, lo uint32, in []wasm.Instr) []wasm.Instr {
		// hi:lo <<= 1, shifting in the top bit produced by in
		return flat(
			[]wasm.Instr{get(hi), i64c(1), op(wasm.OpI64Shl), get(lo), i64c(63), op(wasm.OpI64ShrU), op(wasm.OpI64Or), set(hi)},
			[]wasm.Instr{get(lo), i64c(1), op(wasm.OpI64Shl)}, in, []wasm.Instr{set(lo)},
		)
	}
	topBit := func(l uint32) []wasm.Instr {
		return []wasm.Instr{get(l), i64c(63), op(wasm.OpI64ShrU), op(wasm.OpI64Or)}
	}
	loop := flat(
		[]wasm.Instr{get(rhi), i64c(63), op(wasm.OpI64ShrU), op(wasm.OpI32WrapI64), set(carry)},
		shl1(rhi, rlo, topBit(ahi)),
		shl1(ahi, alo, nil),
		shl1(qhi, qlo, nil),
		[]wasm.Instr{
			get(carry),
			get(rlo), get(blo), op(wasm.OpI64GeU),
			get(rhi), get(bhi), op(wasm.OpI64GtU),
			get(rhi), get(bhi), op(wasm.OpI64Eq),
			op(wasm.OpSelect),
			op(wasm.OpI32Or),
			wasm.If(nil, []wasm.Instr{
				get(rhi), get(bhi), op(wasm.OpI64Sub),
				get(rlo), get(blo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U), op(wasm.OpI64Sub), set(rhi),
				get(rlo), get(blo), op(wasm.OpI64Sub), set(rlo),
				get(qlo), i64c(1), op(wasm.OpI64Or), set(qlo),
			}, nil),
			get(i), i32c(1), op(wasm.OpI32Sub), tee(i),
			wasm.BrIf(0),
		},
	)
	f.Body = []wasm.Instr{
		get(blo), get(bhi), op(wasm.OpI64Or), op(wasm.OpI64Eqz),
		g.trapIf(hostcall.ErrDivisionByZero),
		i32c(128), set(i),
		wasm.Loop(nil, loop...),
		get(qlo), get(qhi), get(rlo), get(rhi),
	}
	return f
}

// divmod-int truncates toward zero; the remainder takes the dividend's sign.
func buildDivModInt(g *Generator) *wasm.Function {
	f := newHelper(i64x4, i64x4)
	const alo, ahi, blo, bhi = 0, 1, 2, 3
	qneg, rneg := f.AddLocal(api.ValueTypeI32), f.AddLocal(api.ValueTypeI32)
	qlo, qhi, rlo, rhi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	abs := g.helper(helperAbs128, buildAbs128)
	negate := g.helper(helperNeg128, buildNeg128)
	divu := g.helper(helperDivModUInt, buildDivModUInt)
	signed := func(lo, hi uint32) wasm.Instr {
		return wasm.If(wasm.BlockType(i64x2), []wasm.Instr{get(lo), get(hi), negate}, []wasm.Instr{get(lo), get(hi)})
	}
	f.Body = []wasm.Instr{
		get(ahi), i64c(0), op(wasm.OpI64LtS), set(rneg),
		get(ahi), get(bhi), op(wasm.OpI64Xor), i64c(0), op(wasm.OpI64LtS), set(qneg),
		get(alo), get(ahi), abs, get(blo), get(bhi), abs, divu,
		set(rhi), set(rlo), set(qhi), set(qlo),
		// MinInt128 / -1
		get(qhi), i64c(0), op(wasm.OpI64LtS), get(qneg), op(wasm.OpI32Eqz), op(wasm.OpI32And),
		g.trapIf(hostcall.ErrArithmeticOverflow),
		get(qneg), signed(qlo, qhi),
		get(rneg), signed(rlo, rhi),
	}
	return f
}

// pow is square-and-multiply; the exponent must fit in 32 bits.
func buildPow(signed bool) func(*Generator) *wasm.Function {
	return func(g *Generator) *wasm.Function {
		f := newHelper(i64x4, i64x2)
		const blo, bhi, elo, ehi = 0, 1, 2, 3
		rlo, rhi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
		mul := g.helper(helperMulUInt, buildMulUInt)
		if signed {
			mul = g.helper(helperMulInt, buildMulInt)
		}
		f.Body = []wasm.Instr{
			get(ehi), i64c(0), op(wasm.OpI64Ne),
			get(elo), i64c(low32), op(wasm.OpI64GtU), op(wasm.OpI32Or),
			g.trapIf(hostcall.ErrPow),
			i64c(1), set(rlo),
			wasm.Block(nil, wasm.Loop(nil,
				get(elo), op(wasm.OpI64Eqz), wasm.BrIf(1),
				get(elo), i64c(1), op(wasm.OpI64And), op(wasm.OpI64Eqz), op(wasm.OpI32Eqz),
				wasm.If(nil, []wasm.Instr{get(rlo), get(rhi), get(blo), get(bhi), mul, set(rhi), set(rlo)}, nil),
				get(elo), i64c(1), op(wasm.OpI64ShrU), tee(elo), op(wasm.OpI64Eqz), wasm.BrIf(1),
				get(blo), get(bhi), get(blo), get(bhi), mul, set(bhi), set(blo),
				wasm.Br(0),
			)),
			get(rlo), get(rhi),
		}
		return f
	}
}

// sqrti is the digit-by-digit integer square root of an unsigned 128-bit
// value, settling one result bit per iteration.
func buildSqrt(*Generator) *wasm.Function {
	f := newHelper(i64x2, i64x2)
	const nlo, nhi = 0, 1
	rlo, rhi, blo, bhi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	tlo, thi := f.AddLocal(api.ValueTypeI64), f.AddLocal(api.ValueTypeI64)
	i := f.AddLocal(api.ValueTypeI32)
	f.Body = []wasm.Instr{
		i64c(1 << 62), set(bhi),
		i32c(64), set(i),
		wasm.Loop(nil,
			// t = r + b
			get(rlo), get(blo), op(wasm.OpI64Add), tee(tlo),
			get(rlo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U),
			get(rhi), op(wasm.OpI64Add), get(bhi), op(wasm.OpI64Add), set(thi),
			// r >>= 1
			get(rlo), i64c(1), op(wasm.OpI64ShrU), get(rhi), i64c(63), op(wasm.OpI64Shl), op(wasm.OpI64Or), set(rlo),
			get(rhi), i64c(1), op(wasm.OpI64ShrU), set(rhi),
			get(nlo), get(tlo), op(wasm.OpI64GeU),
			get(nhi), get(thi), op(wasm.OpI64GtU),
			get(nhi), get(thi), op(wasm.OpI64Eq),
			op(wasm.OpSelect),
			wasm.If(nil, []wasm.Instr{
				get(nhi), get(thi), op(wasm.OpI64Sub),
				get(nlo), get(tlo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U), op(wasm.OpI64Sub), set(nhi),
				get(nlo), get(tlo), op(wasm.OpI64Sub), set(nlo),
				// r += b
				get(rlo), get(blo), op(wasm.OpI64Add), tee(tlo),
				get(rlo), op(wasm.OpI64LtU), op(wasm.OpI64ExtendI32U),
				get(rhi), op(wasm.OpI64Add), get(bhi), op(wasm.OpI64Add), set(rhi),
				get(tlo), set(rlo),
			}, nil),
			// b >>= 2
			get(blo), i64c(2), op(wasm.OpI64ShrU), get(bhi), i64c(62), op(wasm.OpI64Shl), op(wasm.OpI64Or), set(blo),
			get(bhi), i64c(2), op(wasm.OpI64ShrU), set(bhi),
			get(i), i32c(1), op(wasm.OpI32Sub), tee(i),
			wasm.BrIf(0),
		),
		get(rlo), get(rhi),
	}
	return f
}

// memeq compares n bytes at two addresses.
func buildMemEq(*Generator) *wasm.Function {
	i32 := api.ValueTypeI32
	f := newHelper([]api.ValueType{i32, i32, i32}, []api.ValueType{i32})
	const p, q, n = 0, 1, 2
	i := f.AddLocal(i32)
	f.Body = []wasm.Instr{
		wasm.Block(nil, wasm.Loop(nil,
			get(i), get(n), op(wasm.OpI32GeU), wasm.BrIf(1),
			get(p), get(i), op(wasm.OpI32Add), op(wasm.OpI32Load8U),
			get(q), get(i), op(wasm.OpI32Add), op(wasm.OpI32Load8U),
			op(wasm.OpI32Ne),
			wasm.If(nil, []wasm.Instr{i32c(0), op(wasm.OpReturn)}, nil),
			get(i), i32c(1), op(wasm.OpI32Add), set(i),
			wasm.Br(0),
		)),
		i32c(1),
	}
	return f
}

// utf8-len counts the characters of n bytes of valid UTF-8.
func buildUTF8Len(*Generator) *wasm.Function {
	i32 := api.ValueTypeI32
	f := newHelper([]api.ValueType{i32, i32}, []api.ValueType{i32})
	const p, n = 0, 1
	i, c := f.AddLocal(i32), f.AddLocal(i32)
	f.Body = []wasm.Instr{
		wasm.Block(nil, wasm.Loop(nil,
			get(i), get(n), op(wasm.OpI32GeU), wasm.BrIf(1),
			// every byte except continuation bytes starts a character
			get(p), get(i), op(wasm.OpI32Add), op(wasm.OpI32Load8U),
			i32c(0xC0), op(wasm.OpI32And), i32c(0x80), op(wasm.OpI32Ne),
			get(c), op(wasm.OpI32Add), set(c),
			get(i), i32c(1), op(wasm.OpI32Add), set(i),
			wasm.Br(0),
		)),
		get(c),
	}
	return f
}
