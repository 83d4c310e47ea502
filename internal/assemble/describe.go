package assemble

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/types"
)

// ABI describes the exported surface of a compiled contract for tools and
// hosts: every public and read-only function with its source types and the
// slots they travel in, plus the storage the initializer defines.
type ABI struct {
	Version           int           `msgpack:"version" json:"version"`
	Contract          string        `msgpack:"contract" json:"contract"`
	Functions         []FunctionABI `msgpack:"functions" json:"functions"`
	Vars              []StorageABI  `msgpack:"vars,omitempty" json:"vars,omitempty"`
	Maps              []StorageABI  `msgpack:"maps,omitempty" json:"maps,omitempty"`
	FungibleTokens    []StorageABI  `msgpack:"fungible_tokens,omitempty" json:"fungible_tokens,omitempty"`
	NonFungibleTokens []StorageABI  `msgpack:"non_fungible_tokens,omitempty" json:"non_fungible_tokens,omitempty"`
}

type FunctionABI struct {
	Name    string     `msgpack:"name" json:"name"`
	Kind    string     `msgpack:"kind" json:"kind"`
	Params  []ParamABI `msgpack:"params" json:"params"`
	Result  string     `msgpack:"result" json:"result"`
	Slots   []string   `msgpack:"slots" json:"slots"`
	Returns []string   `msgpack:"returns" json:"returns"`
}

type ParamABI struct {
	Name string `msgpack:"name" json:"name"`
	Type string `msgpack:"type" json:"type"`
}

// StorageABI names a data var (Value), a map (Key and Value) or a token.
// Fungible tokens have Value uint; non-fungible tokens keep their asset
// type in Key.
type StorageABI struct {
	Name  string `msgpack:"name" json:"name"`
	Key   string `msgpack:"key,omitempty" json:"key,omitempty"`
	Value string `msgpack:"value" json:"value"`
}

func describe(c *ast.Contract, m *abi.Mapper) (ABI, error) {
	out := ABI{Version: abi.Version, Contract: c.Name}
	for _, e := range c.Exprs {
		d := e.Decl
		if d == nil {
			continue
		}
		switch d.Kind {
		case ast.DeclDataVar:
			out.Vars = append(out.Vars, StorageABI{Name: d.Name, Value: d.Result.String()})
		case ast.DeclMap:
			out.Maps = append(out.Maps, StorageABI{Name: d.Name, Key: d.Key.String(), Value: d.Result.String()})
		case ast.DeclFungibleToken:
			out.FungibleTokens = append(out.FungibleTokens, StorageABI{Name: d.Name, Value: d.Result.String()})
		case ast.DeclNonFungibleToken:
			out.NonFungibleTokens = append(out.NonFungibleTokens, StorageABI{Name: d.Name, Key: d.Key.String(), Value: types.Principal().String()})
		case ast.DeclPublic, ast.DeclReadOnly:
			fn := FunctionABI{Name: d.Name, Kind: d.Kind.String(), Result: d.Result.String()}
			params := make([]*types.Type, len(d.Params))
			for i, p := range d.Params {
				params[i] = p.Type
				fn.Params = append(fn.Params, ParamABI{Name: p.Name, Type: p.Type.String()})
			}
			in, res, err := m.Signature(params, d.Result)
			if err != nil {
				return ABI{}, err
			}
			fn.Slots, fn.Returns = slotNames(in), slotNames(res)
			out.Functions = append(out.Functions, fn)
		}
	}
	return out, nil
}

func slotNames(vts []api.ValueType) []string {
	out := make([]string, len(vts))
	for i, vt := range vts {
		out[i] = api.ValueTypeName(vt)
	}
	return out
}

// Signatures parses the exported functions back into checker signatures so
// a compiled contract can be called without its source.
func (a ABI) Signatures() (map[string]check.ExternalFunc, error) {
	if a.Version != abi.Version {
		return nil, fmt.Errorf("contract %s uses ABI version %d, want %d", a.Contract, a.Version, abi.Version)
	}
	out := make(map[string]check.ExternalFunc, len(a.Functions))
	for _, f := range a.Functions {
		var ext check.ExternalFunc
		switch f.Kind {
		case ast.DeclPublic.String():
			ext.Kind = ast.DeclPublic
		case ast.DeclReadOnly.String():
			ext.Kind = ast.DeclReadOnly
		default:
			return nil, fmt.Errorf("function %s: unexpected kind %q", f.Name, f.Kind)
		}
		for _, p := range f.Params {
			t, err := check.ParseType(p.Type)
			if err != nil {
				return nil, fmt.Errorf("function %s: parameter %s: %w", f.Name, p.Name, err)
			}
			ext.Params = append(ext.Params, t)
		}
		t, err := check.ParseType(f.Result)
		if err != nil {
			return nil, fmt.Errorf("function %s: result: %w", f.Name, err)
		}
		ext.Result = t
		out[f.Name] = ext
	}
	return out, nil
}
