package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

func init() {
	lowerers = map[string]lowerFunc{
		"if": lowerIf, "begin": lowerBegin, "let": lowerLet, "match": lowerMatch,
		"not": lowerNot, "and": lowerLogic, "or": lowerLogic,
		"asserts!": lowerAsserts, "unwrap!": lowerUnwrap, "unwrap-err!": lowerUnwrap,
		"unwrap-panic": lowerUnwrap, "unwrap-err-panic": lowerUnwrap,
		"try!": lowerTry, "default-to": lowerDefaultTo,
		"is-eq": lowerIsEq,

		"+": lowerArith, "-": lowerArith, "*": lowerArith, "/": lowerArith, "mod": lowerArith,
		"pow": lowerArith, "bit-and": lowerArith, "bit-or": lowerArith, "bit-xor": lowerArith, "xor": lowerArith,
		"bit-not": lowerBitNot, "log2": lowerLog2, "sqrti": lowerSqrti,
		"<": lowerCompare, "<=": lowerCompare, ">": lowerCompare, ">=": lowerCompare,
		"to-int": lowerConvert, "to-uint": lowerConvert,

		"some": lowerSome, "ok": lowerResponse, "err": lowerResponse,
		"is-some": lowerIsVariant, "is-none": lowerIsVariant, "is-ok": lowerIsVariant, "is-err": lowerIsVariant,
		"tuple": lowerTuple, "get": lowerGet, "merge": lowerMerge,

		"list": lowerList, "len": lowerLen, "element-at?": lowerElementAt, "element-at": lowerElementAt,
		"concat": lowerConcat, "append": lowerAppend, "as-max-len?": lowerAsMaxLen,
		"map": lowerMap, "filter": lowerFilter, "fold": lowerFold,

		"var-get": lowerVarGet, "var-set": lowerVarSet,
		"map-get?": lowerMapGet, "map-set": lowerMapWrite, "map-insert": lowerMapWrite, "map-delete": lowerMapDelete,
		"sha256": lowerHash, "keccak256": lowerHash, "hash160": lowerHash,
		"stx-get-balance": lowerStxBalance, "stx-transfer?": lowerStxTransfer,
		"stx-transfer-memo?": lowerStxTransfer, "stx-burn?": lowerStxTransfer, "stx-account": lowerStxAccount,
		"ft-mint?": lowerFtChange, "ft-transfer?": lowerFtChange, "ft-burn?": lowerFtChange,
		"ft-get-balance": lowerFtQuery, "ft-get-supply": lowerFtQuery,
		"nft-mint?": lowerNftChange, "nft-transfer?": lowerNftChange, "nft-burn?": lowerNftChange,
		"nft-get-owner?": lowerNftOwner,
		"print": lowerPrint, "contract-call?": lowerContractCall,
	}
}

// shapeFor resolves want, falling back to the node's own type.
func (fl *funcLowerer) shapeFor(e *ast.Expr, want *types.Type) (*types.Type, *abi.Shape, error) {
	if want == nil || !types.Admits(want, e.Type) {
		want = e.Type
	}
	s, err := fl.g.shape(want)
	return want, s, err
}

// branch lowers e as want into a detached instruction list.
func (fl *funcLowerer) branch(e *ast.Expr, want *types.Type) ([]wasm.Instr, error) {
	return fl.capture(func() error { return fl.lower(e, want) })
}

func lowerIf(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	if err := fl.lower(args[0], types.Bool()); err != nil {
		return Location{}, err
	}
	then, err := fl.branch(args[1], want)
	if err != nil {
		return Location{}, err
	}
	els, err := fl.branch(args[2], want)
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.If(wasm.BlockType(s.Slots), then, els))
	return onStack(s), nil
}

// sequence lowers all but the last form for effect and the last as want.
func (fl *funcLowerer) sequence(body []*ast.Expr, want *types.Type) (Location, error) {
	for _, b := range body[:len(body)-1] {
		if err := fl.discard(b); err != nil {
			return Location{}, err
		}
	}
	return fl.lowerLoc(body[len(body)-1], want)
}

func lowerBegin(fl *funcLowerer, _ *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	return fl.sequence(args, want)
}

func lowerLet(fl *funcLowerer, _ *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	scope := fl.pushScope()
	defer fl.popScope()
	for _, b := range args[0].Args {
		ls, s, err := fl.lowerLocals(b.Args[1], b.Args[1].Type)
		if err != nil {
			return Location{}, err
		}
		scope[b.Args[0].Name] = binding{shape: s, locals: ls}
	}
	return fl.sequence(args[1:], want)
}

// bindArm evaluates body with name bound to child i of the spilled input.
func (fl *funcLowerer) bindArm(in *abi.Shape, ls []uint32, i int, name *ast.Expr, body *ast.Expr, want *types.Type) ([]wasm.Instr, error) {
	scope := fl.pushScope()
	defer fl.popScope()
	scope[name.Name] = binding{shape: in.Children[i], locals: childLocals(in, ls, i)}
	return fl.branch(body, want)
}

func lowerMatch(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	ls, in, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	var then, els []wasm.Instr
	if in.Type.Kind == types.KindOptional {
		if then, err = fl.bindArm(in, ls, 0, args[1], args[2], want); err != nil {
			return Location{}, err
		}
		if els, err = fl.branch(args[3], want); err != nil {
			return Location{}, err
		}
	} else {
		if then, err = fl.bindArm(in, ls, 0, args[1], args[2], want); err != nil {
			return Location{}, err
		}
		if els, err = fl.bindArm(in, ls, 1, args[3], args[4], want); err != nil {
			return Location{}, err
		}
	}
	fl.emit(wasm.LocalGet(ls[0]), wasm.If(wasm.BlockType(s.Slots), then, els))
	return onStack(s), nil
}

func lowerNot(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	if err := fl.lower(args[0], types.Bool()); err != nil {
		return Location{}, err
	}
	fl.emit(wasm.Op(wasm.OpI32Eqz))
	return fl.boolResult(e)
}

func (fl *funcLowerer) boolResult(e *ast.Expr) (Location, error) {
	s, err := fl.g.shape(types.Bool())
	return onStack(s), err
}

// and/or short-circuit: later operands run only when still needed.
func lowerLogic(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	code, err := fl.logicChain(e.Head() == "and", args)
	if err != nil {
		return Location{}, err
	}
	fl.emit(code...)
	return fl.boolResult(e)
}

func (fl *funcLowerer) logicChain(and bool, args []*ast.Expr) ([]wasm.Instr, error) {
	first, err := fl.branch(args[0], types.Bool())
	if err != nil || len(args) == 1 {
		return first, err
	}
	rest, err := fl.logicChain(and, args[1:])
	if err != nil {
		return nil, err
	}
	bt := wasm.BlockType{api.ValueTypeI32}
	if and {
		return append(first, wasm.If(bt, rest, []wasm.Instr{wasm.I32Const(0)})), nil
	}
	return append(first, wasm.If(bt, []wasm.Instr{wasm.I32Const(1)}, rest)), nil
}

// pushExit evaluates e as the function result and returns early.
func (fl *funcLowerer) pushExit(e, thrown *ast.Expr) ([]wasm.Instr, error) {
	if fl.decl == nil {
		return nil, internalf(e.Span, "%s outside of a function", e.Head())
	}
	return fl.capture(func() error {
		if err := fl.lower(thrown, fl.decl.Result); err != nil {
			return err
		}
		return fl.exit(e)
	})
}

func lowerAsserts(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	if err := fl.lower(args[0], types.Bool()); err != nil {
		return Location{}, err
	}
	thrown, err := fl.pushExit(e, args[1])
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.Op(wasm.OpI32Eqz), wasm.If(nil, thrown, nil), wasm.I32Const(1))
	return fl.boolResult(e)
}

// unwrap!, unwrap-err!, unwrap-panic and unwrap-err-panic.
func lowerUnwrap(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	ls, in, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	head := e.Head()
	wantErr := head == "unwrap-err!" || head == "unwrap-err-panic"
	arm := 0
	if wantErr {
		arm = 1
	}

	var fail []wasm.Instr
	switch head {
	case "unwrap!", "unwrap-err!":
		if fail, err = fl.pushExit(e, args[1]); err != nil {
			return Location{}, err
		}
	default:
		code := hostcall.ErrShortReturnOptional
		if in.Type.Kind == types.KindResponse {
			code = hostcall.ErrShortReturnResponse
		}
		fail = fl.trap(code)
	}
	// disc is 1 for some/ok
	fl.emit(wasm.LocalGet(ls[0]))
	if !wantErr {
		fl.emit(wasm.Op(wasm.OpI32Eqz))
	}
	fl.emit(wasm.If(nil, fail, nil))
	fl.emit(pushLocals(childLocals(in, ls, arm))...)
	return onStack(in.Children[arm]), nil
}

func lowerTry(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	if fl.decl == nil {
		return Location{}, internalf(e.Span, "try! outside of a function")
	}
	ls, in, err := fl.lowerLocals(args[0], args[0].Type)
	if err != nil {
		return Location{}, err
	}
	fail, err := fl.capture(func() error {
		if in.Type.Kind == types.KindOptional {
			fl.emit(zeros(fl.result.Slots)...)
		} else if err := fl.pushErrArm(ls, in, e); err != nil {
			return err
		}
		return fl.exit(e)
	})
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.LocalGet(ls[0]), wasm.Op(wasm.OpI32Eqz), wasm.If(nil, fail, nil))
	fl.emit(pushLocals(childLocals(in, ls, 0))...)
	return onStack(in.Children[0]), nil
}

// pushErrArm pushes disc 0, a zero ok arm and the err payload of the
// spilled response in, laid out as the function's result.
func (fl *funcLowerer) pushErrArm(ls []uint32, in *abi.Shape, e *ast.Expr) error {
	res := fl.result
	if res.Type.Kind != types.KindResponse {
		return internalf(e.Span, "try! on a response in a function returning %s", res.Type)
	}
	fl.emit(wasm.I32Const(0))
	fl.emit(zeros(res.Children[0].Slots)...)
	return fl.pushCoerced(childLocals(in, ls, 1), in.Children[1], res.Children[1], e)
}

func lowerDefaultTo(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, want *types.Type) (Location, error) {
	want, s, err := fl.shapeFor(e, want)
	if err != nil {
		return Location{}, err
	}
	ls, in, err := fl.lowerLocals(args[1], args[1].Type)
	if err != nil {
		return Location{}, err
	}
	then, err := fl.capture(func() error {
		return fl.pushCoerced(childLocals(in, ls, 0), in.Children[0], s, e)
	})
	if err != nil {
		return Location{}, err
	}
	els, err := fl.branch(args[0], want)
	if err != nil {
		return Location{}, err
	}
	fl.emit(wasm.LocalGet(ls[0]), wasm.If(wasm.BlockType(s.Slots), then, els))
	return onStack(s), nil
}
