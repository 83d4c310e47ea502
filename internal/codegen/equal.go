package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// (is-eq a b ...) compares every operand with the first, viewing all of them
// as their merged type.
func lowerIsEq(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t := args[0].Type
	for _, a := range args[1:] {
		m, ok := types.Merge(t, a.Type)
		if !ok {
			return Location{}, internalf(a.Span, "is-eq of %s and %s", t, a.Type)
		}
		t = m
	}
	vals := make([][]uint32, len(args))
	var s *abi.Shape
	for i, a := range args {
		ls, as, err := fl.lowerLocals(a, t)
		if err != nil {
			return Location{}, err
		}
		vals[i], s = ls, as
	}
	fl.emit(i32c(1))
	for _, v := range vals[1:] {
		if err := fl.equal(s, vals[0], v); err != nil {
			return Location{}, err
		}
		fl.emit(op(wasm.OpI32And))
	}
	return fl.boolResult(e)
}

// equal pushes 1 when the values of shape s held in locals a and b are equal.
func (fl *funcLowerer) equal(s *abi.Shape, a, b []uint32) error {
	switch s.Form {
	case abi.FormPlaceholder:
		fl.emit(i32c(1))
	case abi.FormScalar:
		if s.Type.Kind == types.KindBool {
			fl.emit(get(a[0]), get(b[0]), op(wasm.OpI32Eq))
			return nil
		}
		fl.emit(get(a[0]), get(b[0]), op(wasm.OpI64Eq), get(a[1]), get(b[1]), op(wasm.OpI64Eq), op(wasm.OpI32And))
	case abi.FormPointer:
		call, err := fl.g.host("principal-eq")
		if err != nil {
			return err
		}
		fl.emit(get(a[0]), get(b[0]), call)
	case abi.FormMemory:
		return fl.equalBytes(s, a, b)
	case abi.FormComposite:
		return fl.equalComposite(s, a, b)
	}
	return nil
}

func (fl *funcLowerer) equalBytes(s *abi.Shape, a, b []uint32) error {
	if s.Elem == nil || s.Elem.Flat() {
		memeq := fl.g.helper(helperMemEq, buildMemEq)
		fl.emit(get(a[1]), get(b[1]), op(wasm.OpI32Eq),
			wasm.If(wasm.BlockType{api.ValueTypeI32},
				[]wasm.Instr{get(a[0]), get(b[0]), get(a[1]), memeq},
				[]wasm.Instr{i32c(0)}))
		return nil
	}
	// items with pointers compare value-wise
	r, i := fl.local(api.ValueTypeI32), fl.local(api.ValueTypeI32)
	fl.emit(get(a[1]), get(b[1]), op(wasm.OpI32Eq), set(r))
	err := fl.loop(func() error {
		fl.emit(get(r), op(wasm.OpI32Eqz), get(i), get(a[1]), op(wasm.OpI32GeU), op(wasm.OpI32Or), wasm.BrIf(1))
		pa := fl.offsetLocal([]wasm.Instr{get(a[0])}, i, 1)
		fl.emit(loadSlots(s.Elem, addr{base: int64(pa)})...)
		x := fl.spill(s.Elem)
		pb := fl.offsetLocal([]wasm.Instr{get(b[0])}, i, 1)
		fl.emit(loadSlots(s.Elem, addr{base: int64(pb)})...)
		y := fl.spill(s.Elem)
		if err := fl.equal(s.Elem, x, y); err != nil {
			return err
		}
		fl.emit(set(r))
		fl.emit(get(i), wasm.U32Const(s.Elem.Size), op(wasm.OpI32Add), set(i))
		return nil
	})
	if err != nil {
		return err
	}
	fl.emit(get(r))
	return nil
}

// Tuples compare field by field. Optionals and responses compare the
// discriminant and then only the selected arm.
func (fl *funcLowerer) equalComposite(s *abi.Shape, a, b []uint32) error {
	arm := func(i int) ([]wasm.Instr, error) {
		return fl.capture(func() error {
			return fl.equal(s.Children[i], childLocals(s, a, i), childLocals(s, b, i))
		})
	}
	if !s.HasDiscriminant() {
		fl.emit(i32c(1))
		for i := range s.Children {
			c, err := arm(i)
			if err != nil {
				return err
			}
			fl.emit(c...)
			fl.emit(op(wasm.OpI32And))
		}
		return nil
	}
	first, err := arm(0)
	if err != nil {
		return err
	}
	second := []wasm.Instr{i32c(1)}
	if len(s.Children) > 1 {
		if second, err = arm(1); err != nil {
			return err
		}
	}
	i32 := wasm.BlockType{api.ValueTypeI32}
	fl.emit(get(a[0]), get(b[0]), op(wasm.OpI32Eq),
		wasm.If(i32,
			[]wasm.Instr{get(a[0]), wasm.If(i32, first, second)},
			[]wasm.Instr{i32c(0)}))
	return nil
}
