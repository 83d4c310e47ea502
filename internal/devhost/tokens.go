package devhost

import (
	"context"
	"math/big"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

type fungible struct {
	defined bool
	// max is nil for tokens without a total supply
	max      *big.Int
	supply   *big.Int
	balances map[string]*big.Int
}

func (f *fungible) balance(p value.Principal) *big.Int {
	if b, ok := f.balances[p.String()]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// nonFungible maps the canonical text of each asset to its owner.
type nonFungible struct {
	asset   *types.Type
	defined bool
	owners  map[string]value.Principal
}

func (c *contract) fungible(name string) *fungible {
	f, ok := c.fts[name]
	if !ok {
		hostPanic("%s has no fungible token %q", c.principal, name)
	}
	return f
}

func (c *contract) nonFungible(name string) *nonFungible {
	n, ok := c.nfts[name]
	if !ok {
		hostPanic("%s has no non-fungible token %q", c.principal, name)
	}
	return n
}

func (h *Host) defineFT(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	if f.defined {
		panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrNameAlreadyUsed})
	}
	f.defined = true
	if api.DecodeI32(stack[2]) != 0 {
		f.max = abi.JoinInt128(stack[3], stack[4], false)
	}
}

func (h *Host) defineNFT(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	n := c.nonFungible(h.text(mod, stack[0], stack[1]))
	if n.defined {
		panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrNameAlreadyUsed})
	}
	n.defined = true
}

func (h *Host) ftGetSupply(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	stack[0], stack[1] = abi.SplitInt128(f.supply)
}

func (h *Host) ftGetBalance(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	p := h.reader(mod.Memory()).principal(uint32(stack[2]))
	stack[0], stack[1] = abi.SplitInt128(f.balance(p))
}

// ftMint fails at runtime when the new supply passes the declared total or
// no longer fits a uint.
func (h *Host) ftMint(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	amount := abi.JoinInt128(stack[2], stack[3], false)
	to := h.reader(mod.Memory()).principal(uint32(stack[4]))
	if amount.Sign() <= 0 {
		stack[0] = hostcall.MintNonPositive
		return
	}
	next := new(big.Int).Add(f.supply, amount)
	if f.max != nil && next.Cmp(f.max) > 0 || !abi.FitsInt128(next, false) {
		panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrSupplyOverflow})
	}
	f.supply = next
	f.balances[to.String()] = f.balance(to).Add(f.balance(to), amount)
	stack[0] = hostcall.TransferOK
}

func (h *Host) ftTransfer(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	amount := abi.JoinInt128(stack[2], stack[3], false)
	r := h.reader(mod.Memory())
	from, to := r.principal(uint32(stack[4])), r.principal(uint32(stack[5]))
	bal := f.balance(from)
	switch {
	case amount.Sign() <= 0:
		stack[0] = hostcall.TransferNonPositive
	case from.SameAccount(to):
		stack[0] = hostcall.TransferSenderIsRecipient
	case bal.Cmp(amount) < 0:
		stack[0] = hostcall.TransferNotEnoughBalance
	default:
		f.balances[from.String()] = bal.Sub(bal, amount)
		f.balances[to.String()] = f.balance(to).Add(f.balance(to), amount)
		stack[0] = hostcall.TransferOK
	}
}

func (h *Host) ftBurn(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	f := c.fungible(h.text(mod, stack[0], stack[1]))
	amount := abi.JoinInt128(stack[2], stack[3], false)
	from := h.reader(mod.Memory()).principal(uint32(stack[4]))
	bal := f.balance(from)
	if amount.Sign() <= 0 || bal.Cmp(amount) < 0 {
		stack[0] = hostcall.BurnNotEnoughBalance
		return
	}
	f.balances[from.String()] = bal.Sub(bal, amount)
	f.supply = new(big.Int).Sub(f.supply, amount)
	stack[0] = hostcall.TransferOK
}

// assetKey loads the asset passed by representation at stack[2:4].
func (h *Host) assetKey(mod api.Module, n *nonFungible, stack []uint64) string {
	return h.load(mod, n.asset, stack[2], stack[3]).String()
}

func (h *Host) nftGetOwner(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	n := c.nonFungible(h.text(mod, stack[0], stack[1]))
	owner, ok := n.owners[h.assetKey(mod, n, stack)]
	if !ok {
		stack[0] = 0
		return
	}
	h.writePrincipal(mod, owner, stack[4])
	stack[0] = 1
}

func (h *Host) nftMint(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	n := c.nonFungible(h.text(mod, stack[0], stack[1]))
	key := h.assetKey(mod, n, stack)
	to := h.reader(mod.Memory()).principal(uint32(stack[4]))
	if _, exists := n.owners[key]; exists {
		stack[0] = hostcall.MintAssetExists
		return
	}
	n.owners[key] = to
	stack[0] = hostcall.TransferOK
}

func (h *Host) nftTransfer(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	n := c.nonFungible(h.text(mod, stack[0], stack[1]))
	key := h.assetKey(mod, n, stack)
	r := h.reader(mod.Memory())
	from, to := r.principal(uint32(stack[4])), r.principal(uint32(stack[5]))
	owner, exists := n.owners[key]
	switch {
	case from.SameAccount(to):
		stack[0] = hostcall.AssetSenderIsRecipient
	case !exists:
		stack[0] = hostcall.AssetMissing
	case !owner.SameAccount(from):
		stack[0] = hostcall.AssetNotOwned
	default:
		n.owners[key] = to
		stack[0] = hostcall.TransferOK
	}
}

func (h *Host) nftBurn(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	n := c.nonFungible(h.text(mod, stack[0], stack[1]))
	key := h.assetKey(mod, n, stack)
	from := h.reader(mod.Memory()).principal(uint32(stack[4]))
	owner, exists := n.owners[key]
	switch {
	case !exists:
		stack[0] = hostcall.AssetMissing
	case !owner.SameAccount(from):
		stack[0] = hostcall.AssetNotOwned
	default:
		delete(n.owners, key)
		stack[0] = hostcall.TransferOK
	}
}

func (h *Host) stxTransferMemo(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	amount := abi.JoinInt128(stack[0], stack[1], false)
	r := h.reader(mod.Memory())
	from, to := r.principal(uint32(stack[2])), r.principal(uint32(stack[3]))
	memo := r.bytes(uint32(stack[4]), uint32(stack[5]))
	code := h.transfer(amount, from, to)
	if code == hostcall.TransferOK {
		h.transfers[len(h.transfers)-1].Memo = memo
	}
	stack[0] = uint64(code)
}

// stxBurn follows the transfer rules for the sender; burned STX leave the
// ledger.
func (h *Host) stxBurn(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	amount := abi.JoinInt128(stack[0], stack[1], false)
	from := h.reader(mod.Memory()).principal(uint32(stack[2]))
	bal := h.Balance(from)
	switch {
	case amount.Sign() <= 0:
		stack[0] = hostcall.TransferNonPositive
	case !from.SameAccount(h.opts.Sender) && !from.SameAccount(h.caller()):
		stack[0] = hostcall.TransferSenderNotCaller
	case bal.Cmp(amount) < 0:
		stack[0] = hostcall.TransferNotEnoughBalance
	default:
		h.ledger[from.String()] = bal.Sub(bal, amount)
		stack[0] = hostcall.TransferOK
	}
}

// stxAccount reports the whole balance as unlocked; the dev host has no
// stacking.
func (h *Host) stxAccount(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	p := h.reader(mod.Memory()).principal(uint32(stack[0]))
	lo, hi := abi.SplitInt128(h.Balance(p))
	copy(stack, []uint64{0, 0, 0, 0, lo, hi})
}

// FTBalance returns the balance of owner in a fungible token of target.
func (h *Host) FTBalance(target value.Principal, token string, owner value.Principal) (*big.Int, bool) {
	c, ok := h.contracts[target.String()]
	if !ok {
		return nil, false
	}
	f, ok := c.fts[token]
	if !ok {
		return nil, false
	}
	return f.balance(owner), true
}

// FTSupply returns the minted and not burned amount of a fungible token.
func (h *Host) FTSupply(target value.Principal, token string) (*big.Int, bool) {
	c, ok := h.contracts[target.String()]
	if !ok {
		return nil, false
	}
	f, ok := c.fts[token]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(f.supply), true
}

// NFTOwner returns the owner of asset in a non-fungible token of target.
func (h *Host) NFTOwner(target value.Principal, token string, asset value.Value) (value.Principal, bool) {
	c, ok := h.contracts[target.String()]
	if !ok {
		return value.Principal{}, false
	}
	n, ok := c.nfts[token]
	if !ok {
		return value.Principal{}, false
	}
	owner, ok := n.owners[asset.String()]
	return owner, ok
}
