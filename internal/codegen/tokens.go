package codegen

import (
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/ast"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// define_ft takes a presence flag and the supply, which is zero when the
// token is unbounded.
func (fl *funcLowerer) defineFungibleToken(e *ast.Expr, d *ast.Decl) error {
	n, err := fl.name(e.Span, d.Name)
	if err != nil {
		return err
	}
	fl.emit(n...)
	if len(d.Body) == 0 {
		fl.emit(i32c(0), i64c(0), i64c(0))
	} else {
		fl.emit(i32c(1))
		if err := fl.lower(d.Body[0], types.UInt()); err != nil {
			return err
		}
	}
	return fl.hostCall("define-fungible-token")
}

func (fl *funcLowerer) defineNonFungibleToken(e *ast.Expr, d *ast.Decl) error {
	n, err := fl.name(e.Span, d.Name)
	if err != nil {
		return err
	}
	fl.emit(n...)
	return fl.hostCall("define-non-fungible-token")
}

// ft-mint?, ft-transfer? and ft-burn? pass the token name, the amount and
// one or two principals.
func lowerFtChange(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	n, err := fl.name(e.Span, args[0].Name)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	operands := []*types.Type{types.UInt(), types.Principal(), types.Principal()}
	if err := fl.lowerAll(args[1:], operands[:len(args)-1]); err != nil {
		return Location{}, err
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	return fl.codeResult(e)
}

// ft-get-balance and ft-get-supply return a uint.
func lowerFtQuery(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	n, err := fl.name(e.Span, args[0].Name)
	if err != nil {
		return Location{}, err
	}
	fl.emit(n...)
	if len(args) == 2 {
		if err := fl.lower(args[1], types.Principal()); err != nil {
			return Location{}, err
		}
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	s, err := fl.g.shape(types.UInt())
	return onStack(s), err
}

// asset spills the asset identifier of a non-fungible token to memory and
// returns the instructions pushing the token name and the asset reference.
func (fl *funcLowerer) asset(e *ast.Expr, token, id *ast.Expr) ([]wasm.Instr, error) {
	t, ok := fl.g.nfts[token.Name]
	if !ok {
		return nil, internalf(e.Span, "unknown non-fungible token %q", token.Name)
	}
	a, s, err := fl.spillToMemory(id, t)
	if err != nil {
		return nil, err
	}
	n, err := fl.name(e.Span, token.Name)
	if err != nil {
		return nil, err
	}
	return flat(n, pushAddr(a), []wasm.Instr{wasm.U32Const(s.Size)}), nil
}

// nft-mint?, nft-transfer? and nft-burn? pass the token name, the asset by
// representation and one or two principals.
func lowerNftChange(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	ref, err := fl.asset(e, args[0], args[1])
	if err != nil {
		return Location{}, err
	}
	fl.emit(ref...)
	owners := []*types.Type{types.Principal(), types.Principal()}
	if err := fl.lowerAll(args[2:], owners[:len(args)-2]); err != nil {
		return Location{}, err
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	return fl.codeResult(e)
}

// nft-get-owner? receives the owner in a dest region; none carries a null
// pointer.
func lowerNftOwner(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	s, err := fl.g.shape(e.Type)
	if err != nil {
		return Location{}, err
	}
	ps, err := fl.g.shape(types.Principal())
	if err != nil {
		return Location{}, err
	}
	ref, err := fl.asset(e, args[0], args[1])
	if err != nil {
		return Location{}, err
	}
	dst, err := fl.alloc(ps.DataSize)
	if err != nil {
		return Location{}, err
	}
	fl.emit(ref...)
	fl.emit(pushAddr(dst)...)
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	found := fl.local(api.ValueTypeI32)
	fl.emit(tee(found))
	fl.emit(pushAddr(dst)...)
	fl.emit(i32c(0), get(found), op(wasm.OpSelect))
	return onStack(s), nil
}

func lowerStxAccount(fl *funcLowerer, e *ast.Expr, args []*ast.Expr, _ *types.Type) (Location, error) {
	if err := fl.lower(args[0], types.Principal()); err != nil {
		return Location{}, err
	}
	if err := fl.hostCall(e.Head()); err != nil {
		return Location{}, err
	}
	s, err := fl.g.shape(hostcall.AccountType())
	return onStack(s), err
}
