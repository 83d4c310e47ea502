// Package devhost runs compiled contracts on wazero with an in-memory
// implementation of the host interface. It is the reference host for tests
// and for the run command: storage lives in Go maps, balances in a ledger,
// and chain state (sender, block height) comes from Options.
//
// A Host is not safe for concurrent use.
package devhost

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/assemble"
	"clarwasm/internal/check"
	"clarwasm/internal/codegen"
	"clarwasm/internal/memory"
	"clarwasm/internal/trace"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// DefaultSender is the standard principal used when Options.Sender is unset.
var DefaultSender = value.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")

// Options is the chain state visible to contracts.
type Options struct {
	Sender      value.Principal
	BlockHeight uint64
	// Balances seeds the STX ledger, keyed by principal string.
	Balances map[string]*big.Int
	// Print receives every value a contract prints, in addition to Printed.
	Print func(contract value.Principal, v value.Value)
}

// PrintEvent is one print performed by a contract.
type PrintEvent struct {
	Contract value.Principal
	Value    value.Value
}

// TransferEvent is one successful STX transfer.
type TransferEvent struct {
	From, To value.Principal
	Amount   *big.Int
	Memo     []byte
}

// Host owns a wazero runtime, the deployed contracts and their state.
type Host struct {
	rt      wazero.Runtime
	opts    Options
	mapper  *abi.Mapper
	ledger  map[string]*big.Int
	printed []PrintEvent
	// transfers records STX movements in order
	transfers []TransferEvent

	contracts map[string]*contract
	// callers holds contract-caller for each active call, innermost last.
	callers []value.Principal
	closed  bool
}

type contract struct {
	principal value.Principal
	mod       api.Module
	funcs     map[string]*function
	vars      map[string]*variable
	maps      map[string]*dataMap
	fts       map[string]*fungible
	nfts      map[string]*nonFungible
}

type function struct {
	name   string
	params []*types.Type
	result *types.Type
	fn     api.Function
}

type variable struct {
	typ     *types.Type
	defined bool
	val     value.Value
}

type dataMap struct {
	key, val *types.Type
	defined  bool
	entries  map[string]value.Value
}

// New starts a runtime and registers the host module.
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.Sender == (value.Principal{}) {
		opts.Sender = DefaultSender
	}
	h := &Host{
		rt:        wazero.NewRuntime(ctx),
		opts:      opts,
		mapper:    abi.NewMapper(),
		ledger:    make(map[string]*big.Int, len(opts.Balances)),
		contracts: make(map[string]*contract),
	}
	for k, v := range opts.Balances {
		h.ledger[k] = new(big.Int).Set(v)
	}
	if err := h.register(ctx); err != nil {
		_ = h.rt.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Close releases the runtime and every deployed contract.
func (h *Host) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.rt.Close(ctx)
}

// SetSender changes tx-sender for subsequent calls.
func (h *Host) SetSender(p value.Principal) { h.opts.Sender = p }

// SetBlockHeight changes block-height for subsequent calls.
func (h *Host) SetBlockHeight(n uint64) { h.opts.BlockHeight = n }

// Deploy instantiates bin as contract name of the current sender and runs
// its initializer. desc supplies the source types the host needs to decode
// arguments, results and storage.
func (h *Host) Deploy(ctx context.Context, name string, bin []byte, desc assemble.ABI) (value.Principal, error) {
	if h.closed {
		return value.Principal{}, ErrClosed
	}
	p := h.opts.Sender.Contract(name)
	if _, dup := h.contracts[p.String()]; dup {
		return value.Principal{}, fmt.Errorf("devhost: contract %s is already deployed", p)
	}
	c, err := h.describe(p, desc)
	if err != nil {
		return value.Principal{}, err
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeContract, "deploy:"+p.String(), trace.CurrentSpan(ctx).SpanID)
	defer span.End("")

	compiled, err := h.rt.CompileModule(ctx, bin)
	if err != nil {
		return value.Principal{}, fmt.Errorf("devhost: compile %s: %w", p, err)
	}
	mod, err := h.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(p.String()))
	if err != nil {
		return value.Principal{}, fmt.Errorf("devhost: instantiate %s: %w", p, err)
	}
	c.mod = mod
	init, err := h.conform(c)
	if err != nil {
		_ = mod.Close(ctx)
		return value.Principal{}, err
	}

	h.contracts[p.String()] = c
	h.callers = append(h.callers, h.opts.Sender)
	_, err = init.Call(ctx)
	h.callers = h.callers[:len(h.callers)-1]
	if err != nil {
		delete(h.contracts, p.String())
		_ = mod.Close(ctx)
		return value.Principal{}, unwrap(err)
	}
	return p, nil
}

// conform binds the ABI functions to the module exports and checks that
// the exports follow the calling convention: a memory, a mutable i32 stack
// pointer, a () -> () initializer, and one export per function whose
// signature matches the mapped parameter and result slots.
func (h *Host) conform(c *contract) (api.Function, error) {
	p := c.principal
	if c.mod.ExportedMemory(assemble.MemoryExport) == nil {
		return nil, fmt.Errorf("%w: %s does not export %s", ErrNonConforming, p, assemble.MemoryExport)
	}
	sp, ok := c.mod.ExportedGlobal(codegen.StackPointer).(api.MutableGlobal)
	if !ok || sp.Type() != api.ValueTypeI32 {
		return nil, fmt.Errorf("%w: %s does not export a mutable i32 %s", ErrNonConforming, p, codegen.StackPointer)
	}
	for _, fn := range c.funcs {
		if fn.fn = c.mod.ExportedFunction(fn.name); fn.fn == nil {
			return nil, fmt.Errorf("%w: %s does not export %s", ErrUnknownFunction, p, fn.name)
		}
		in, out, err := h.mapper.Signature(fn.params, fn.result)
		if err != nil {
			return nil, err
		}
		def := fn.fn.Definition()
		if !slices.Equal(def.ParamTypes(), in) || !slices.Equal(def.ResultTypes(), out) {
			return nil, fmt.Errorf("%w: %s: %s has signature %s -> %s, want %s -> %s", ErrNonConforming, p, fn.name,
				valueTypes(def.ParamTypes()), valueTypes(def.ResultTypes()), valueTypes(in), valueTypes(out))
		}
	}
	init := c.mod.ExportedFunction(codegen.TopLevel)
	if init == nil {
		return nil, fmt.Errorf("%w: %s has no initializer", ErrUnknownFunction, p)
	}
	if def := init.Definition(); len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return nil, fmt.Errorf("%w: %s: %s must take and return nothing", ErrNonConforming, p, codegen.TopLevel)
	}
	return init, nil
}

func valueTypes(vts []api.ValueType) string {
	names := make([]string, len(vts))
	for i, vt := range vts {
		names[i] = api.ValueTypeName(vt)
	}
	return "(" + strings.Join(names, " ") + ")"
}

func (h *Host) describe(p value.Principal, desc assemble.ABI) (*contract, error) {
	if desc.Version != abi.Version {
		return nil, fmt.Errorf("devhost: %s uses ABI version %d, want %d", p, desc.Version, abi.Version)
	}
	c := &contract{
		principal: p,
		funcs:     make(map[string]*function, len(desc.Functions)),
		vars:      make(map[string]*variable, len(desc.Vars)),
		maps:      make(map[string]*dataMap, len(desc.Maps)),
		fts:       make(map[string]*fungible, len(desc.FungibleTokens)),
		nfts:      make(map[string]*nonFungible, len(desc.NonFungibleTokens)),
	}
	for _, f := range desc.Functions {
		fn := &function{name: f.Name}
		for _, prm := range f.Params {
			t, err := check.ParseType(prm.Type)
			if err != nil {
				return nil, err
			}
			fn.params = append(fn.params, t)
		}
		t, err := check.ParseType(f.Result)
		if err != nil {
			return nil, err
		}
		fn.result = t
		c.funcs[f.Name] = fn
	}
	for _, v := range desc.Vars {
		t, err := check.ParseType(v.Value)
		if err != nil {
			return nil, err
		}
		c.vars[v.Name] = &variable{typ: t}
	}
	for _, m := range desc.Maps {
		k, err := check.ParseType(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := check.ParseType(m.Value)
		if err != nil {
			return nil, err
		}
		c.maps[m.Name] = &dataMap{key: k, val: v, entries: make(map[string]value.Value)}
	}
	for _, ft := range desc.FungibleTokens {
		c.fts[ft.Name] = &fungible{supply: new(big.Int), balances: make(map[string]*big.Int)}
	}
	for _, nft := range desc.NonFungibleTokens {
		t, err := check.ParseType(nft.Key)
		if err != nil {
			return nil, err
		}
		c.nfts[nft.Name] = &nonFungible{asset: t, owners: make(map[string]value.Principal)}
	}
	return c, nil
}

// Call invokes a public or read-only function with tx-sender as caller.
func (h *Host) Call(ctx context.Context, target value.Principal, name string, args ...value.Value) (value.Value, error) {
	if h.closed {
		return value.Value{}, ErrClosed
	}
	c, ok := h.contracts[target.String()]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", ErrUnknownContract, target)
	}
	fn, ok := c.funcs[name]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownFunction, target, name)
	}
	if len(args) != len(fn.params) {
		return value.Value{}, &ArgumentError{Function: name, Index: -1, Reason: fmt.Sprintf("got %d arguments, want %d", len(args), len(fn.params))}
	}
	for i, a := range args {
		if why := conforms(fn.params[i], a); why != "" {
			return value.Value{}, &ArgumentError{Function: name, Index: i, Reason: why}
		}
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeFunction, "call:"+name, trace.CurrentSpan(ctx).SpanID)
	h.callers = append(h.callers, h.opts.Sender)
	out, err := h.invoke(trace.WithSpan(ctx, span), c, fn, args)
	h.callers = h.callers[:len(h.callers)-1]
	if err != nil {
		span.End("error")
		return value.Value{}, unwrap(err)
	}
	span.End(out.String())
	return out, nil
}

// invoke writes args at the callee's stack pointer, runs fn and decodes its
// result. The stack pointer is restored afterwards so frames kept alive by
// a memory result are released.
func (h *Host) invoke(ctx context.Context, c *contract, fn *function, args []value.Value) (value.Value, error) {
	sp, ok := c.mod.ExportedGlobal(codegen.StackPointer).(api.MutableGlobal)
	if !ok {
		return value.Value{}, fmt.Errorf("devhost: %s does not export a mutable %s", c.principal, codegen.StackPointer)
	}
	mem := c.mod.Memory()
	base := uint32(sp.Get())
	w := &writer{mem: mem, next: base, end: mem.Size()}
	var params []uint64
	for i, a := range args {
		s, err := h.mapper.ShapeOf(fn.params[i])
		if err != nil {
			return value.Value{}, err
		}
		params = append(params, w.slots(s, a)...)
	}
	sp.Set(uint64(memory.AlignUp(w.next, 8)))
	defer sp.Set(uint64(base))

	res, err := fn.fn.Call(ctx, params...)
	if err != nil {
		return value.Value{}, err
	}
	rs, err := h.mapper.ShapeOf(fn.result)
	if err != nil {
		return value.Value{}, err
	}
	return h.reader(mem).value(rs, res), nil
}

func (h *Host) reader(mem api.Memory) reader {
	return reader{mem: mem, version: h.opts.Sender.Version}
}

// Var returns the current value of a data var.
func (h *Host) Var(target value.Principal, name string) (value.Value, bool) {
	c, ok := h.contracts[target.String()]
	if !ok {
		return value.Value{}, false
	}
	v, ok := c.vars[name]
	if !ok || !v.defined {
		return value.Value{}, false
	}
	return v.val, true
}

// MapEntry looks up a map entry by key.
func (h *Host) MapEntry(target value.Principal, name string, key value.Value) (value.Value, bool) {
	c, ok := h.contracts[target.String()]
	if !ok {
		return value.Value{}, false
	}
	m, ok := c.maps[name]
	if !ok {
		return value.Value{}, false
	}
	v, ok := m.entries[key.String()]
	return v, ok
}

// Balance returns the STX balance of p.
func (h *Host) Balance(p value.Principal) *big.Int {
	if b, ok := h.ledger[p.String()]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Printed returns every print event so far in order.
func (h *Host) Printed() []PrintEvent {
	out := make([]PrintEvent, len(h.printed))
	copy(out, h.printed)
	return out
}

// Transfers returns every successful STX transfer so far in order.
func (h *Host) Transfers() []TransferEvent {
	out := make([]TransferEvent, len(h.transfers))
	copy(out, h.transfers)
	return out
}

// caller is contract-caller for the running call.
func (h *Host) caller() value.Principal {
	if len(h.callers) == 0 {
		return h.opts.Sender
	}
	return h.callers[len(h.callers)-1]
}

func (h *Host) contractOf(mod api.Module) *contract {
	c, ok := h.contracts[mod.Name()]
	if !ok {
		hostPanic("call from unknown module %q", mod.Name())
	}
	return c
}
