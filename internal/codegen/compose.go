package codegen

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

func lowerSome(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	fl.emit(i32c(1))
	if err := fl.lower(args[0], want.Elem); err != nil {
		return Location{}, err
	}
	return onStack(s), nil
}

// ok and err fill the unselected arm with zeros.
func lowerResponse(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	if e.Head() == "ok" {
		fl.emit(i32c(1))
		if err := fl.lower(args[0], want.Ok); err != nil {
			return Location{}, err
		}
		fl.emit(zeros(s.Children[1].Slots)...)
		return onStack(s), nil
	}
	fl.emit(i32c(0))
	fl.emit(zeros(s.Children[0].Slots)...)
	if err := fl.lower(args[0], want.Err); err != nil {
		return Location{}, err
	}
	return onStack(s), nil
}

func lowerIsVariant(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	loc, err := fl.lowerLoc(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	// only the discriminant matters
	switch loc.Kind {
	case LocStored:
		fl.emit(pushBase(loc.Addr), wasm.Load(api.ValueTypeI32, loc.Addr.off))
	default:
		fl.emit(materialize(loc)...)
		ls := fl.spill(loc.Shape)
		fl.emit(get(ls[0]))
	}
	if h := e.Head(); h == "is-none" || h == "is-err" {
		fl.emit(op(wasm.OpI32Eqz))
	}
	return fl.boolResult(e)
}

// Tuple fields are evaluated in source order and pushed in type order.
func lowerTuple(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	byName := make(map[string][]uint32, len(args))
	for _, f := range args {
		name := f.Args[0].Name
		ft, _ := want.Field(name)
		ls, _, err := fl.lowerLocals(f.Args[1], ft)
		if err != nil {
			return Location{}, err
		}
		byName[name] = ls
	}
	for _, f := range want.Fields {
		fl.emit(pushLocals(byName[f.Name])...)
	}
	return onStack(s), nil
}

// get reads a field in place when the tuple is in memory.
func lowerGet(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	tt := args[1].Type
	i := tt.FieldIndex(args[0].Name)
	if i < 0 {
		return Location{}, internalf(e.Span, "tuple %s has no field %q", tt, args[0].Name)
	}
	loc, err := fl.lowerLoc(args[1], tt)
	if err != nil {
		return Location{}, err
	}
	s := loc.Shape
	if loc.Kind == LocStored {
		return stored(s.Children[i], loc.Addr.plus(s.ChildOffset[i])), nil
	}
	fl.emit(materialize(loc)...)
	ls := fl.spill(s)
	fl.emit(pushLocals(childLocals(s, ls, i))...)
	return onStack(s.Children[i]), nil
}

// merge takes every field of the second tuple and the rest of the first.
func lowerMerge(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	out, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	als, as, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	bls, bs, err := fl.lowerLocals(args[1], args[1].Type)
	if err != nil {
		return Location{}, err
	}
	for i, f := range e.Type.Fields {
		src, ls := bs, bls
		j := bs.Type.FieldIndex(f.Name)
		if j < 0 {
			src, ls = as, als
			j = as.Type.FieldIndex(f.Name)
		}
		if err := fl.pushCoerced(childLocals(src, ls, j), src.Children[j], out.Children[i], e); err != nil {
			return Location{}, err
		}
	}
	return onStack(out), nil
}

// A list is built in the frame: element i's stored representation at
// i*elem.Size.
func lowerList(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	if len(args) == 0 {
		fl.emit(i32c(0), i32c(0))
		return onStack(s), nil
	}
	elem := s.Elem
	n, err := safecast.Conv[uint32](len(args))
	if err != nil {
		return Location{}, fmt.Errorf("list of %d elements: %w", len(args), err)
	}
	base, err := fl.alloc(n * elem.Size)
	if err != nil {
		return Location{}, err
	}
	at := base
	for _, a := range args {
		if err := fl.storeExpr(a, want.Elem, at); err != nil {
			return Location{}, err
		}
		at = at.plus(elem.Size)
	}
	fl.emit(pushAddr(base)...)
	fl.emit(wasm.U32Const(n * elem.Size))
	return onStack(s), nil
}

// elemSize is the stored width of one sequence item; byte sequences use
// one-byte items.
func elemSize(s *abi.Shape) uint32 {
	if s.Elem != nil {
		return s.Elem.Size
	}
	return 1
}
