package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/source"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// name pushes (ptr, len) of an interned storage or function name.
func (fl *funcLowerer) name(sp source.Span, s string) ([]wasm.Instr, error) {
	r, err := fl.g.alloc.Literal([]byte(s))
	if err != nil {
		return nil, internalf(sp, "%v", err)
	}
	return []wasm.Instr{wasm.U32Const(r.Offset), wasm.U32Const(r.Len)}, nil
}

// hostCall emits the import serving builtin.
func (fl *funcLowerer) hostCall(builtin string) error {
	call, err := fl.g.host(builtin)
	if err != nil {
		return err
	}
	fl.emit(call)
	return nil
}

// byRepr pushes (ptr, Size) of the stored representation of e viewed as t.
func (fl *funcLowerer) byRepr(e *ast.Expr, t *types.Type) error {
	a, s, err := fl.spillToMemory(e, t)
	if err != nil {
		return err
	}
	fl.emit(pushAddr(a)...)
	fl.emit(wasm.U32Const(s.Size))
	return nil
}

// dest reserves room for the host to write a value of shape s.
func (fl *funcLowerer) dest(s *abi.Shape) (addr, error) {
	return fl.alloc(s.Footprint())
}

// keyword evaluates tx-sender, contract-caller and block-height.
func (fl *funcLowerer) keyword(e *ast.Expr) (Location, error) {
	if e.Name == "block-height" {
		s, err := fl.g.shape(types.UInt())
		if err != nil {
			return Location{}, err
		}
		return onStack(s), fl.hostCall(e.Name)
	}
	s, err := fl.g.shape(types.Principal())
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(s.DataSize)
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	if err := fl.hostCall(e.Name); err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	return onStack(s), nil
}

func (fl *funcLowerer) defineVar(e *ast.Expr, d *ast.Decl) error {
	n, err := fl.name(e.Span, d.Name)
	if err != nil {
		return err
	}
	fl.emit(n...)
	if err := fl.byRepr(d.Body[0], d.Result); err != nil {
		return err
	}
	return fl.hostCall("define-data-var")
}

func (fl *funcLowerer) defineMap(e *ast.Expr, d *ast.Decl) error {
	n, err := fl.name(e.Span, d.Name)
	if err != nil {
		return err
	}
	fl.emit(n...)
	return fl.hostCall("define-map")
}

func lowerVarGet(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t, ok := fl.g.vars[args[0].Name]
	if !ok {
		return Location{}, internalf(e.Span, "unknown data var %q", args[0].Name)
	}
	s, err := fl.g.shape(t)
	if err != nil {
		return Location{}, err
	}
	n, err := fl.name(e.Span, args[0].Name)
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.dest(s)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(dst)...)
	fl.emit(wasm.U32Const(s.Footprint()))
	if err := fl.hostCall("var-get"); err != nil {
		return Location{}, err
	}
	return stored(s, dst), nil
}

func lowerVarSet(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t, ok := fl.g.vars[args[0].Name]
	if !ok {
		return Location{}, internalf(e.Span, "unknown data var %q", args[0].Name)
	}
	n, err := fl.name(e.Span, args[0].Name)
	if err != nil {
		return Location{}, err
	}
	// the value is computed before the name is pushed
	a, s, err := fl.spillToMemory(args[1], t)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(a)...)
	fl.emit(wasm.U32Const(s.Size))
	if err := fl.hostCall("var-set"); err != nil {
		return Location{}, err
	}
	fl.emit(i32c(1))
	return fl.boolResult(e)
}

func (fl *funcLowerer) mapOf(e *ast.Expr, ref *ast.Expr) (mapDecl, []wasm.Instr, error) {
	m, ok := fl.g.maps[ref.Name]
	if !ok {
		return mapDecl{}, nil, internalf(e.Span, "unknown map %q", ref.Name)
	}
	n, err := fl.name(e.Span, ref.Name)
	return m, n, err
}

func lowerMapGet(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	m, n, err := fl.mapOf(e, args[0])
	if err != nil {
		return Location{}, err
	}
	_, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	vs, err := fl.g.shape(m.val)
	if err != nil {
		return Location{}, err
	}
	key, ks, err := fl.spillToMemory(args[1], m.key)
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.dest(vs)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(key)...)
	fl.emit(wasm.U32Const(ks.Size))
	fl.emit(pushAddr(dst)...)
	fl.emit(wasm.U32Const(vs.Footprint()))
	if err := fl.hostCall("map-get?"); err != nil {
		return Location{}, err
	}
	found, err := fl.capture(func() error {
		fl.emit(i32c(1))
		fl.emit(loadSlots(vs, dst)...)
		return fl.coerce(vs, s.Children[0], e)
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.If(wasm.BlockType(s.Slots), found, zeros(s.Slots)))
	return onStack(s), nil
}

// map-set and map-insert return the host's flag.
func lowerMapWrite(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	m, n, err := fl.mapOf(e, args[0])
	if err != nil {
		return Location{}, err
	}
	key, ks, err := fl.spillToMemory(args[1], m.key)
	if err != nil {
		return Location{}, err
	}
	val, vs, err := fl.spillToMemory(args[2], m.val)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(key)...)
	fl.emit(wasm.U32Const(ks.Size))
	fl.emit(pushAddr(val)...)
	fl.emit(wasm.U32Const(vs.Size))
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	return fl.boolResult(e)
}

func lowerMapDelete(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	m, n, err := fl.mapOf(e, args[0])
	if err != nil {
		return Location{}, err
	}
	key, ks, err := fl.spillToMemory(args[1], m.key)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(key)...)
	fl.emit(wasm.U32Const(ks.Size))
	if err := fl.hostCall("map-delete"); err != nil {
		return Location{}, err
	}
	return fl.boolResult(e)
}

// Hashes of integers hash the 16-byte little-endian stored representation.
func lowerHash(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	arg := args[0]
	if arg.Type.IsInteger() {
		if err := fl.byRepr(arg, arg.Type); err != nil {
			return Location{}, err
		}
	} else if err := fl.lower(arg, arg.Type); err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(e.Type.MaxLen)
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(dst)...)
	fl.emit(wasm.U32Const(e.Type.MaxLen))
	return onStack(s), nil
}

func lowerStxBalance(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	if err := fl.lower(args[0], types.Principal()); err != nil {
		return Location{}, err
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	s, err := fl.g.shape(types.UInt())
	return onStack(s), err
}

// The stx-* forms that move funds lower their operands in order and turn the
// host's code into (ok true) or (err code).
func lowerStxTransfer(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	operands := []*types.Type{types.UInt(), types.Principal(), types.Principal(), hostcall.MemoType()}
	if err := fl.lowerAll(args, operands[:len(args)]); err != nil {
		return Location{}, err
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	return fl.codeResult(e)
}

// lowerAll lowers each argument as the type at the same position.
func (fl *funcLowerer) lowerAll(args []*ast.Expr, want []*types.Type) error {
	for i, t := range want {
		if err := fl.lower(args[i], t); err != nil {
			return err
		}
	}
	return nil
}

// codeResult converts the i32 code on the stack into a (response bool uint).
func (fl *funcLowerer) codeResult(e *ast.Expr) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	code := fl.local(api.ValueTypeI32)
	fl.emit(tee(code), op(wasm.OpI32Eqz))
	fl.emit(get(code), op(wasm.OpI32Eqz))
	fl.emit(get(code), op(wasm.OpI64ExtendI32U), i64c(0))
	return onStack(s), nil
}

// print hands the host the value and its type name and returns the value.
func lowerPrint(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	t := args[0].Type
	a, s, err := fl.spillToMemory(args[0], t)
	if err != nil {
		return Location{}, err
	}
	n, err := fl.name(e.Span, t.String())
	if err != nil {
		return Location{}, err
	}
	fl.emit(pushAddr(a)...)
	fl.emit(wasm.U32Const(s.Size))
	fl.emit(n...)
	if err := fl.hostCall("print"); err != nil {
		return Location{}, err
	}
	return stored(s, a), nil
}

// contract-call? passes the arguments as one buffer of concatenated stored
// representations and receives the result in a dest region.
func lowerContractCall(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	target, fn, operands := args[0], args[1], args[2:]
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	params := make([]*types.Type, len(operands))
	ext, ok := fl.g.externals[target.Value.Principal.String()][fn.Name]
	for i, a := range operands {
		params[i] = a.Type
		if ok && i < len(ext.Params) {
			params[i] = ext.Params[i]
		}
	}
	shapes := make([]*abi.Shape, len(operands))
	var size uint32
	for i := range operands {
		as, err := fl.g.shape(params[i])
		if err != nil {
			return Location{}, err
		}
		shapes[i] = as
		size += as.Size
	}
	buf, err := fl.alloc(size)
	if err != nil {
		return Location{}, err
	}
	var off uint32
	for i, a := range operands {
		if err := fl.storeExpr(a, params[i], buf.plus(off)); err != nil {
			return Location{}, err
		}
		off += shapes[i].Size
	}
	dst, err := fl.dest(s)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(target, types.Principal()); err != nil {
		return Location{}, err
	}
	n, err := fl.name(fn.Span, fn.Name)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	fl.emit(pushAddr(buf)...)
	fl.emit(wasm.U32Const(size))
	fl.emit(pushAddr(dst)...)
	fl.emit(wasm.U32Const(s.Footprint()))
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	return stored(s, dst), nil
}
