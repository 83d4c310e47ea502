// Package hostcall is the fixed table of host functions a compiled contract
// imports. Every signature is built from abi shapes, so the slots the host
// sees are exactly the slots the lowering engine produces.
//
// Conventions:
//
//   - A value passed "by representation" is an (i32 ptr, i32 len) pair where
//     ptr addresses the stored representation and len is its Size.
//   - A "dest" pair names caller memory of Footprint bytes. The host writes
//     the stored representation at ptr and places any backing data after it,
//     pointing the written pointers there.
//   - Storage names (data vars, maps, tokens) and function names are ASCII
//     strings.
//   - Token and STX operations that can fail return an i32 code: zero for
//     success, otherwise the err payload of the resulting response.
package hostcall

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// Module is the import module name of every host function.
const Module = "clarity"

// Import is one host function.
type Import struct {
	// Builtin is the source-level operation served by this import.
	Builtin string
	// Name is the import field name.
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// FuncType returns the signature for the module's import section.
func (i Import) FuncType() wasm.FuncType {
	return wasm.FuncType{Params: i.Params, Results: i.Results}
}

// WasmImport returns the import declaration.
func (i Import) WasmImport() wasm.Import {
	return wasm.Import{Module: Module, Name: i.Name, Type: i.FuncType()}
}

var (
	tableOnce sync.Once
	table     []Import
	byBuiltin map[string]Import
	byName    map[string]Import
)

func build() {
	m := abi.NewMapper()
	slots := func(ts ...*types.Type) []api.ValueType {
		var out []api.ValueType
		for _, t := range ts {
			s, err := m.ShapeOf(t)
			if err != nil {
				panic(fmt.Sprintf("hostcall: %v", err))
			}
			out = append(out, s.Slots...)
		}
		return out
	}
	name := types.StringASCII(128)
	bytesRef := types.Buffer(1 << 20)
	ptr := types.Principal()
	flag := types.Bool()
	amount := types.UInt()
	code := []api.ValueType{api.ValueTypeI32}

	table = []Import{
		{Builtin: "define-data-var", Name: "define_variable", Params: slots(name, bytesRef)},
		{Builtin: "var-get", Name: "get_variable", Params: slots(name, bytesRef)},
		{Builtin: "var-set", Name: "set_variable", Params: slots(name, bytesRef)},
		{Builtin: "define-map", Name: "define_map", Params: slots(name)},
		{Builtin: "map-get?", Name: "map_get", Params: slots(name, bytesRef, bytesRef), Results: slots(flag)},
		{Builtin: "map-set", Name: "map_set", Params: slots(name, bytesRef, bytesRef), Results: slots(flag)},
		{Builtin: "map-insert", Name: "map_insert", Params: slots(name, bytesRef, bytesRef), Results: slots(flag)},
		{Builtin: "map-delete", Name: "map_delete", Params: slots(name, bytesRef), Results: slots(flag)},
		{Builtin: "sha256", Name: "sha256", Params: append(slots(bytesRef), api.ValueTypeI32)},
		{Builtin: "keccak256", Name: "keccak256", Params: append(slots(bytesRef), api.ValueTypeI32)},
		{Builtin: "hash160", Name: "hash160", Params: append(slots(bytesRef), api.ValueTypeI32)},
		{Builtin: "principal-eq", Name: "principal_eq", Params: slots(ptr, ptr), Results: slots(flag)},
		{Builtin: "contract-call?", Name: "contract_call", Params: slots(ptr, name, bytesRef, bytesRef)},
		{Builtin: "tx-sender", Name: "tx_sender", Params: code},
		{Builtin: "contract-caller", Name: "contract_caller", Params: code},
		{Builtin: "block-height", Name: "block_height", Results: slots(amount)},
		{Builtin: "stx-get-balance", Name: "stx_get_balance", Params: slots(ptr), Results: slots(amount)},
		{Builtin: "stx-transfer?", Name: "stx_transfer", Params: slots(amount, ptr, ptr), Results: code},
		{Builtin: "stx-transfer-memo?", Name: "stx_transfer_memo", Params: slots(amount, ptr, ptr, MemoType()), Results: code},
		{Builtin: "stx-burn?", Name: "stx_burn", Params: slots(amount, ptr), Results: code},
		{Builtin: "stx-account", Name: "stx_account", Params: slots(ptr), Results: slots(AccountType())},
		{Builtin: "define-fungible-token", Name: "define_ft", Params: slots(name, flag, amount)},
		{Builtin: "define-non-fungible-token", Name: "define_nft", Params: slots(name)},
		{Builtin: "ft-get-supply", Name: "ft_get_supply", Params: slots(name), Results: slots(amount)},
		{Builtin: "ft-get-balance", Name: "ft_get_balance", Params: slots(name, ptr), Results: slots(amount)},
		{Builtin: "ft-mint?", Name: "ft_mint", Params: slots(name, amount, ptr), Results: code},
		{Builtin: "ft-transfer?", Name: "ft_transfer", Params: slots(name, amount, ptr, ptr), Results: code},
		{Builtin: "ft-burn?", Name: "ft_burn", Params: slots(name, amount, ptr), Results: code},
		{Builtin: "nft-get-owner?", Name: "nft_get_owner", Params: append(slots(name, bytesRef), api.ValueTypeI32), Results: slots(flag)},
		{Builtin: "nft-mint?", Name: "nft_mint", Params: slots(name, bytesRef, ptr), Results: code},
		{Builtin: "nft-transfer?", Name: "nft_transfer", Params: slots(name, bytesRef, ptr, ptr), Results: code},
		{Builtin: "nft-burn?", Name: "nft_burn", Params: slots(name, bytesRef, ptr), Results: code},
		{Builtin: "print", Name: "print", Params: slots(bytesRef, name)},
		{Builtin: "runtime-error", Name: "runtime_error", Params: code},
	}
	byBuiltin = make(map[string]Import, len(table))
	byName = make(map[string]Import, len(table))
	for _, imp := range table {
		byBuiltin[imp.Builtin] = imp
		byName[imp.Name] = imp
	}
}

// MemoType is the memo argument of stx-transfer-memo?.
func MemoType() *types.Type {
	return types.Buffer(34)
}

// AccountType is the result of stx-account.
func AccountType() *types.Type {
	return types.Tuple(
		types.Field{Name: "locked", Type: types.UInt()},
		types.Field{Name: "unlock-height", Type: types.UInt()},
		types.Field{Name: "unlocked", Type: types.UInt()},
	)
}

// Table returns every host import in declaration order.
func Table() []Import {
	tableOnce.Do(build)
	out := make([]Import, len(table))
	copy(out, table)
	return out
}

// Lookup returns the import serving a builtin.
func Lookup(builtin string) (Import, bool) {
	tableOnce.Do(build)
	imp, ok := byBuiltin[builtin]
	return imp, ok
}

// ByName returns the import with the given field name.
func ByName(name string) (Import, bool) {
	tableOnce.Do(build)
	imp, ok := byName[name]
	return imp, ok
}

// Builtins lists the builtin names served by the host, sorted.
func Builtins() []string {
	tableOnce.Do(build)
	out := make([]string, 0, len(byBuiltin))
	for b := range byBuiltin {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
