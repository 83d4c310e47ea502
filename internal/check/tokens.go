package check

import (
	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/types"
)

// Token operations and the stx-* forms beyond transfer report failures as
// (err uint) codes from the host, so they all share one response type.
func transferResult() *types.Type {
	return types.Response(types.Bool(), types.UInt())
}

// (define-fungible-token name [supply])
func (c *checker) declareFungibleToken(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) < 1 || len(ops) > 2 || ops[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (define-fungible-token name [supply])")
		return
	}
	if !c.define(ops[0].Name, ops[0].Span) {
		return
	}
	c.fts[ops[0].Name] = true
	e.Decl = &ast.Decl{Kind: ast.DeclFungibleToken, Name: ops[0].Name, Result: types.UInt(), Body: ops[1:]}
}

// (define-non-fungible-token name asset-type)
func (c *checker) declareNonFungibleToken(e *ast.Expr) {
	ops := e.Operands()
	if len(ops) != 2 || ops[0].Kind != ast.KindAtom {
		c.errorf(diag.CheckBadForm, e.Span, "expected (define-non-fungible-token name asset-type)")
		return
	}
	t := c.parseType(ops[1])
	if !c.define(ops[0].Name, ops[0].Span) || t.Kind == types.KindInvalid {
		return
	}
	c.nfts[ops[0].Name] = t
	e.Decl = &ast.Decl{Kind: ast.DeclNonFungibleToken, Name: ops[0].Name, Key: t}
}

func (c *checker) fungible(e *ast.Expr) bool {
	if e.Kind == ast.KindAtom && c.fts[e.Name] {
		return true
	}
	c.errorf(diag.CheckUnknownName, e.Span, "unknown fungible token %s", describe(e))
	return false
}

func (c *checker) nonFungible(e *ast.Expr) (*types.Type, bool) {
	if e.Kind == ast.KindAtom {
		if t, ok := c.nfts[e.Name]; ok {
			return t, true
		}
	}
	c.errorf(diag.CheckUnknownName, e.Span, "unknown non-fungible token %s", describe(e))
	return nil, false
}

// expectAll checks each argument against the type at the same position.
func (c *checker) expectAll(args []*ast.Expr, want ...*types.Type) {
	for i, t := range want {
		c.expect(args[i], t)
	}
}

// (ft-mint? token amount recipient)
func ftMint(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) || !c.fungible(args[0]) {
		return types.Invalid()
	}
	c.expectAll(args[1:], types.UInt(), types.Principal())
	return transferResult()
}

// (ft-transfer? token amount sender recipient)
func ftTransfer(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 4) || !c.fungible(args[0]) {
		return types.Invalid()
	}
	c.expectAll(args[1:], types.UInt(), types.Principal(), types.Principal())
	return transferResult()
}

// (ft-burn? token amount sender)
func ftBurn(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) || !c.fungible(args[0]) {
		return types.Invalid()
	}
	c.expectAll(args[1:], types.UInt(), types.Principal())
	return transferResult()
}

func ftBalance(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) || !c.fungible(args[0]) {
		return types.Invalid()
	}
	c.expect(args[1], types.Principal())
	return types.UInt()
}

func ftSupply(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) || !c.fungible(args[0]) {
		return types.Invalid()
	}
	return types.UInt()
}

// (nft-mint? token asset recipient)
func nftMint(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	asset, ok := c.nonFungible(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expectAll(args[1:], asset, types.Principal())
	return transferResult()
}

// (nft-transfer? token asset sender recipient)
func nftTransfer(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 4) {
		return types.Invalid()
	}
	asset, ok := c.nonFungible(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expectAll(args[1:], asset, types.Principal(), types.Principal())
	return transferResult()
}

// (nft-burn? token asset sender)
func nftBurn(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 3) {
		return types.Invalid()
	}
	asset, ok := c.nonFungible(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expectAll(args[1:], asset, types.Principal())
	return transferResult()
}

func nftOwner(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	asset, ok := c.nonFungible(args[0])
	if !ok {
		return types.Invalid()
	}
	c.expect(args[1], asset)
	return types.Optional(types.Principal())
}

// (stx-burn? amount sender)
func stxBurn(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 2) {
		return types.Invalid()
	}
	c.expectAll(args, types.UInt(), types.Principal())
	return transferResult()
}

// (stx-transfer-memo? amount sender recipient memo)
func stxTransferMemo(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 4) {
		return types.Invalid()
	}
	c.expectAll(args, types.UInt(), types.Principal(), types.Principal(), hostcall.MemoType())
	return transferResult()
}

func stxAccount(c *checker, e *ast.Expr, args []*ast.Expr) *types.Type {
	if !c.arity(e, args, 1) {
		return types.Invalid()
	}
	c.expect(args[0], types.Principal())
	return hostcall.AccountType()
}
