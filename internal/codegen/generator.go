// Package codegen lowers a checked contract into WebAssembly functions.
//
// Values travel as the slots of their abi shape. Memory-backed data lives in
// the permanent region (literals, constants, the initializer frame) or in the
// static frame of the running activation, carved from a stack whose pointer
// is the global StackPointer.
package codegen

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/memory"
	"clarwasm/internal/types"
	"clarwasm/internal/wasm"
)

// Names of the globals every module defines.
const (
	StackPointer = "stack-pointer"
	StackLimit   = "stack-limit"
)

// TopLevel is the export name of the initializer.
const TopLevel = ".top-level"

type constant struct {
	shape *abi.Shape
	// literal initializers are inlined at each use
	literal *ast.Expr
	slot    memory.Region
}

type mapDecl struct {
	key, val *types.Type
}

// Generator holds the per-contract lowering state. It is not safe for
// concurrent use.
type Generator struct {
	mapper *abi.Mapper
	alloc  *memory.Allocator

	// externals are the callees of contract-call?, by contract principal
	externals map[string]map[string]check.ExternalFunc

	funcs   map[string]*ast.Decl
	consts  map[string]*constant
	vars    map[string]*types.Type
	maps    map[string]mapDecl
	nfts    map[string]*types.Type
	imports map[string]bool
	helpers map[string]*wasm.Function
	order   []string
}

// New creates a generator drawing shapes from mapper and memory from alloc.
func New(mapper *abi.Mapper, alloc *memory.Allocator) *Generator {
	return &Generator{
		mapper:  mapper,
		alloc:   alloc,
		funcs:   make(map[string]*ast.Decl),
		consts:  make(map[string]*constant),
		vars:    make(map[string]*types.Type),
		maps:    make(map[string]mapDecl),
		nfts:    make(map[string]*types.Type),
		imports: make(map[string]bool),
		helpers: make(map[string]*wasm.Function),
	}
}

// SetExternals provides the signatures of contracts this one calls. Arguments
// of contract-call? are encoded as the callee declares its parameters.
func (g *Generator) SetExternals(ext map[string]map[string]check.ExternalFunc) {
	g.externals = ext
}

// InternLiterals places every byte string the contract's code refers to in
// the literal pool: buffer, string and principal literals and the names of
// storage, called functions and printed types.
func (g *Generator) InternLiterals(c *ast.Contract) error {
	var err error
	intern := func(b []byte) {
		if err == nil {
			_, err = g.alloc.InternLiteral(b)
		}
	}
	for _, top := range c.Exprs {
		ast.Walk(top, func(e *ast.Expr) bool {
			switch e.Kind {
			case ast.KindLiteral:
				if b, ok := literalBytes(e); ok {
					intern(b)
				}
			case ast.KindList:
				args := e.Args
				switch e.Head() {
				case "var-get", "var-set", "map-get?", "map-set", "map-insert", "map-delete", "define-data-var", "define-map",
					"define-fungible-token", "ft-mint?", "ft-transfer?", "ft-burn?", "ft-get-balance", "ft-get-supply",
					"define-non-fungible-token", "nft-mint?", "nft-transfer?", "nft-burn?", "nft-get-owner?":
					if len(args) > 1 && args[1].Kind == ast.KindAtom {
						intern([]byte(args[1].Name))
					}
				case "contract-call?":
					if len(args) > 2 && args[2].Kind == ast.KindAtom {
						intern([]byte(args[2].Name))
					}
				case "print":
					if len(args) > 1 && args[1].Type != nil {
						intern([]byte(args[1].Type.String()))
					}
				}
			}
			return err == nil
		})
	}
	return err
}

// literalBytes returns the memory image of a memory-backed literal.
func literalBytes(e *ast.Expr) ([]byte, bool) {
	switch e.Value.Kind {
	case types.KindBuffer, types.KindStringASCII, types.KindStringUTF8:
		return e.Value.Bytes, true
	case types.KindPrincipal:
		p := e.Value.Principal
		return abi.PrincipalData(p.Hash, p.Name), true
	}
	return nil, false
}

// Declare records every top-level definition so bodies may refer to each
// other in any order, and reserves permanent slots for computed constants.
// It must run after the literal pool is sealed.
func (g *Generator) Declare(c *ast.Contract) error {
	for _, e := range c.Exprs {
		d := e.Decl
		if d == nil {
			continue
		}
		switch d.Kind {
		case ast.DeclPublic, ast.DeclPrivate, ast.DeclReadOnly:
			g.funcs[d.Name] = d
		case ast.DeclDataVar:
			g.vars[d.Name] = d.Result
		case ast.DeclMap:
			g.maps[d.Name] = mapDecl{key: d.Key, val: d.Result}
		case ast.DeclNonFungibleToken:
			g.nfts[d.Name] = d.Key
		case ast.DeclConstant:
			s, err := g.mapper.ShapeOf(d.Result)
			if err != nil {
				return fmt.Errorf("constant %q: %w", d.Name, err)
			}
			k := &constant{shape: s}
			if d.Body[0].Kind == ast.KindLiteral {
				k.literal = d.Body[0]
			} else {
				if k.slot, err = g.alloc.AllocatePermanent(s.Size, 8); err != nil {
					return fmt.Errorf("constant %q: %w", d.Name, err)
				}
			}
			g.consts[d.Name] = k
		}
	}
	return nil
}

// Signature returns the wasm type of a declared function.
func (g *Generator) Signature(d *ast.Decl) (wasm.FuncType, error) {
	params := make([]*types.Type, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.Type
	}
	in, out, err := g.mapper.Signature(params, d.Result)
	if err != nil {
		return wasm.FuncType{}, err
	}
	return wasm.FuncType{Params: in, Results: out}, nil
}

// Imports returns the host functions referenced so far, in table order.
func (g *Generator) Imports() []wasm.Import {
	var out []wasm.Import
	for _, imp := range hostcall.Table() {
		if g.imports[imp.Name] {
			out = append(out, imp.WasmImport())
		}
	}
	return out
}

// Helpers returns the synthesized runtime functions, in creation order.
func (g *Generator) Helpers() []*wasm.Function {
	out := make([]*wasm.Function, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.helpers[name])
	}
	return out
}

// Globals returns the stack globals for a stack starting at base and
// ending at limit.
func Globals(base, limit uint32) []wasm.Global {
	return []wasm.Global{
		{Name: StackPointer, Type: api.ValueTypeI32, Mutable: true, Init: int64(base)},
		{Name: StackLimit, Type: api.ValueTypeI32, Init: int64(limit)},
	}
}

// host marks an import as used and returns the call instruction.
func (g *Generator) host(builtin string) (wasm.Instr, error) {
	imp, ok := hostcall.Lookup(builtin)
	if !ok {
		return wasm.Instr{}, fmt.Errorf("codegen: no host function serves %q", builtin)
	}
	g.imports[imp.Name] = true
	return wasm.Call(imp.Name), nil
}

// helper returns a call to a synthesized function, building it on first use.
func (g *Generator) helper(name string, build func(g *Generator) *wasm.Function) wasm.Instr {
	if _, ok := g.helpers[name]; !ok {
		// reserve the name first; builders may depend on other helpers
		g.helpers[name] = nil
		f := build(g)
		f.Name = name
		g.helpers[name] = f
		g.order = append(g.order, name)
	}
	return wasm.Call(name)
}

func (g *Generator) shape(t *types.Type) (*abi.Shape, error) {
	return g.mapper.ShapeOf(t)
}

// IsReserved reports whether a function name collides with a host import or
// the initializer. Helpers start with '$', which identifiers cannot contain.
func IsReserved(name string) bool {
	if _, ok := hostcall.ByName(name); ok {
		return true
	}
	return name == TopLevel
}
