package devhost

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/tetratelabs/wazero/api"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is defined over RIPEMD-160
	"golang.org/x/crypto/sha3"

	"clarwasm/internal/abi"
	"clarwasm/internal/check"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/trace"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// handler serves one host import for the contract instantiated as mod.
type handler func(ctx context.Context, c *contract, mod api.Module, stack []uint64)

func (h *Host) handlers() map[string]handler {
	return map[string]handler{
		"define_variable": h.defineVariable,
		"get_variable":    h.getVariable,
		"set_variable":    h.setVariable,
		"define_map":      h.defineMap,
		"map_get":         h.mapGet,
		"map_set":         h.mapWrite(true),
		"map_insert":      h.mapWrite(false),
		"map_delete":      h.mapDelete,
		"sha256":          h.hash(func(b []byte) []byte { d := sha256.Sum256(b); return d[:] }),
		"keccak256":       h.hash(keccak256),
		"hash160":         h.hash(hash160),
		"principal_eq":    h.principalEq,
		"contract_call":   h.contractCall,
		"tx_sender":       h.txSender,
		"contract_caller": h.contractCaller,
		"block_height":    h.blockHeight,
		"stx_get_balance": h.stxGetBalance,
		"stx_transfer":    h.stxTransfer,
		"print":           h.print,
		"runtime_error":   h.runtimeError,

		"stx_transfer_memo": h.stxTransferMemo,
		"stx_burn":          h.stxBurn,
		"stx_account":       h.stxAccount,
		"define_ft":         h.defineFT,
		"define_nft":        h.defineNFT,
		"ft_get_supply":     h.ftGetSupply,
		"ft_get_balance":    h.ftGetBalance,
		"ft_mint":           h.ftMint,
		"ft_transfer":       h.ftTransfer,
		"ft_burn":           h.ftBurn,
		"nft_get_owner":     h.nftGetOwner,
		"nft_mint":          h.nftMint,
		"nft_transfer":      h.nftTransfer,
		"nft_burn":          h.nftBurn,
	}
}

// register exports every import of the host table from the host module.
func (h *Host) register(ctx context.Context) error {
	byName := h.handlers()
	b := h.rt.NewHostModuleBuilder(hostcall.Module)
	for _, imp := range hostcall.Table() {
		fn, ok := byName[imp.Name]
		if !ok {
			return fmt.Errorf("devhost: no handler for host import %s", imp.Name)
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				trace.Point(trace.FromContext(ctx), trace.ScopeFunction, "host:"+imp.Name, mod.Name(), trace.CurrentSpan(ctx).SpanID)
				fn(ctx, h.contractOf(mod), mod, stack)
			}), imp.Params, imp.Results).
			WithName(imp.Name).
			Export(imp.Name)
	}
	_, err := b.Instantiate(ctx)
	return err
}

func (h *Host) text(mod api.Module, ptr, n uint64) string {
	return string(h.reader(mod.Memory()).bytes(uint32(ptr), uint32(n)))
}

func (c *contract) variable(name string) *variable {
	v, ok := c.vars[name]
	if !ok {
		hostPanic("%s has no data var %q", c.principal, name)
	}
	return v
}

func (c *contract) dataMap(name string) *dataMap {
	m, ok := c.maps[name]
	if !ok {
		hostPanic("%s has no map %q", c.principal, name)
	}
	return m
}

func (h *Host) shape(t *types.Type) *abi.Shape {
	s, err := h.mapper.ShapeOf(t)
	if err != nil {
		hostPanic("%v", err)
	}
	return s
}

// load decodes the stored representation passed as (ptr, size).
func (h *Host) load(mod api.Module, t *types.Type, ptr, size uint64) value.Value {
	s := h.shape(t)
	if uint32(size) != s.Size {
		hostPanic("%s passed in %d bytes, want %d", t, size, s.Size)
	}
	return h.reader(mod.Memory()).load(s, uint32(ptr))
}

// emit writes v into the dest region (ptr, room): the representation first,
// backing data after it.
func (h *Host) emit(mod api.Module, t *types.Type, v value.Value, ptr, room uint64) {
	s := h.shape(t)
	if uint32(room) < s.Size {
		hostPanic("dest of %d bytes cannot hold %s", room, t)
	}
	w := &writer{mem: mod.Memory(), next: uint32(ptr) + s.Size, end: uint32(ptr) + uint32(room)}
	w.put(s, uint32(ptr), v)
}

func (h *Host) defineVariable(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	v := c.variable(h.text(mod, stack[0], stack[1]))
	if v.defined {
		panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrNameAlreadyUsed})
	}
	v.val, v.defined = h.load(mod, v.typ, stack[2], stack[3]), true
}

func (h *Host) getVariable(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	name := h.text(mod, stack[0], stack[1])
	v := c.variable(name)
	if !v.defined {
		hostPanic("data var %q read before definition", name)
	}
	h.emit(mod, v.typ, v.val, stack[2], stack[3])
}

func (h *Host) setVariable(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	v := c.variable(h.text(mod, stack[0], stack[1]))
	v.val, v.defined = h.load(mod, v.typ, stack[2], stack[3]), true
}

func (h *Host) defineMap(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	m := c.dataMap(h.text(mod, stack[0], stack[1]))
	if m.defined {
		panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrNameAlreadyUsed})
	}
	m.defined = true
}

func (h *Host) mapGet(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	m := c.dataMap(h.text(mod, stack[0], stack[1]))
	key := h.load(mod, m.key, stack[2], stack[3])
	v, ok := m.entries[key.String()]
	if !ok {
		stack[0] = 0
		return
	}
	h.emit(mod, m.val, v, stack[4], stack[5])
	stack[0] = 1
}

// mapWrite serves map-set (overwrite) and map-insert (keep existing).
func (h *Host) mapWrite(overwrite bool) handler {
	return func(_ context.Context, c *contract, mod api.Module, stack []uint64) {
		m := c.dataMap(h.text(mod, stack[0], stack[1]))
		key := h.load(mod, m.key, stack[2], stack[3]).String()
		if _, exists := m.entries[key]; exists && !overwrite {
			stack[0] = 0
			return
		}
		m.entries[key] = h.load(mod, m.val, stack[4], stack[5])
		stack[0] = 1
	}
}

func (h *Host) mapDelete(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	m := c.dataMap(h.text(mod, stack[0], stack[1]))
	key := h.load(mod, m.key, stack[2], stack[3]).String()
	_, existed := m.entries[key]
	delete(m.entries, key)
	stack[0] = 0
	if existed {
		stack[0] = 1
	}
}

func keccak256(b []byte) []byte {
	d := sha3.NewLegacyKeccak256()
	d.Write(b)
	return d.Sum(nil)
}

func hash160(b []byte) []byte {
	inner := sha256.Sum256(b)
	d := ripemd160.New()
	d.Write(inner[:])
	return d.Sum(nil)
}

// hash reads (ptr, len) and writes the digest at dest.
func (h *Host) hash(sum func([]byte) []byte) handler {
	return func(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
		r := h.reader(mod.Memory())
		digest := sum(r.bytes(uint32(stack[0]), uint32(stack[1])))
		if !mod.Memory().Write(uint32(stack[2]), digest) {
			hostPanic("digest write at %d is out of bounds", stack[2])
		}
	}
}

func (h *Host) principalEq(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	r := h.reader(mod.Memory())
	same := r.principal(uint32(stack[0])).SameAccount(r.principal(uint32(stack[1])))
	stack[0] = 0
	if same {
		stack[0] = 1
	}
}

func (h *Host) writePrincipal(mod api.Module, p value.Principal, dest uint64) {
	if !mod.Memory().Write(uint32(dest), p.Bytes()) {
		hostPanic("principal write at %d is out of bounds", dest)
	}
}

func (h *Host) txSender(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	h.writePrincipal(mod, h.opts.Sender, stack[0])
}

func (h *Host) contractCaller(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	h.writePrincipal(mod, h.caller(), stack[0])
}

func (h *Host) blockHeight(_ context.Context, _ *contract, _ api.Module, stack []uint64) {
	stack[0], stack[1] = h.opts.BlockHeight, 0
}

func (h *Host) stxGetBalance(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	p := h.reader(mod.Memory()).principal(uint32(stack[0]))
	stack[0], stack[1] = abi.SplitInt128(h.Balance(p))
}

func (h *Host) stxTransfer(_ context.Context, _ *contract, mod api.Module, stack []uint64) {
	amount := abi.JoinInt128(stack[0], stack[1], false)
	r := h.reader(mod.Memory())
	from, to := r.principal(uint32(stack[2])), r.principal(uint32(stack[3]))
	stack[0] = uint64(h.transfer(amount, from, to))
}

func (h *Host) transfer(amount *big.Int, from, to value.Principal) int {
	switch {
	case amount.Sign() <= 0:
		return hostcall.TransferNonPositive
	case from.SameAccount(to):
		return hostcall.TransferSenderIsRecipient
	case !from.SameAccount(h.opts.Sender) && !from.SameAccount(h.caller()):
		return hostcall.TransferSenderNotCaller
	}
	bal := h.Balance(from)
	if bal.Cmp(amount) < 0 {
		return hostcall.TransferNotEnoughBalance
	}
	h.ledger[from.String()] = bal.Sub(bal, amount)
	h.ledger[to.String()] = new(big.Int).Add(h.Balance(to), amount)
	h.transfers = append(h.transfers, TransferEvent{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return hostcall.TransferOK
}

func (h *Host) print(_ context.Context, c *contract, mod api.Module, stack []uint64) {
	t, err := check.ParseType(h.text(mod, stack[2], stack[3]))
	if err != nil {
		hostPanic("print: %v", err)
	}
	v := h.load(mod, t, stack[0], stack[1])
	h.printed = append(h.printed, PrintEvent{Contract: c.principal, Value: v})
	if h.opts.Print != nil {
		h.opts.Print(c.principal, v)
	}
}

// contractCall decodes the packed arguments from the caller's memory,
// runs the callee with the caller as contract-caller, and writes the
// result into the caller's dest region.
func (h *Host) contractCall(ctx context.Context, c *contract, mod api.Module, stack []uint64) {
	r := h.reader(mod.Memory())
	target := r.principal(uint32(stack[0]))
	name := h.text(mod, stack[1], stack[2])
	callee, ok := h.contracts[target.String()]
	if !ok {
		hostPanic("%v: %s", ErrUnknownContract, target)
	}
	fn, ok := callee.funcs[name]
	if !ok {
		hostPanic("%v: %s.%s", ErrUnknownFunction, target, name)
	}

	at, end := uint32(stack[3]), uint32(stack[3])+uint32(stack[4])
	args := make([]value.Value, len(fn.params))
	for i, pt := range fn.params {
		s := h.shape(pt)
		if at+s.Size > end {
			hostPanic("%s.%s: packed arguments are %d bytes", target, name, stack[4])
		}
		args[i] = r.load(s, at)
		at += s.Size
	}

	h.callers = append(h.callers, c.principal)
	out, err := h.invoke(ctx, callee, fn, args)
	h.callers = h.callers[:len(h.callers)-1]
	if err != nil {
		panic(unwrap(err))
	}
	h.emit(mod, fn.result, out, stack[5], stack[6])
}

func (h *Host) runtimeError(_ context.Context, c *contract, _ api.Module, stack []uint64) {
	panic(&RuntimeError{Contract: c.principal.String(), Code: hostcall.ErrorCode(api.DecodeI32(stack[0]))})
}
