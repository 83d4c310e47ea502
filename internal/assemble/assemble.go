// Package assemble turns a checked contract into a complete WebAssembly
// module: lowered functions, the synthesized initializer, memory layout,
// globals and exports.
package assemble

import (
	"context"
	"fmt"

	"fortio.org/safecast"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/codegen"
	"clarwasm/internal/memory"
	"clarwasm/internal/source"
	"clarwasm/internal/trace"
	"clarwasm/internal/wasm"
)

// MemoryExport is the export name of the linear memory.
const MemoryExport = "memory"

const (
	DefaultStackBudget = 1 << 20
	DefaultMaxFrame    = 64 << 10
)

// Options tune the memory layout of the produced module.
type Options struct {
	// StackBudget is the room reserved for activation frames after the
	// permanent region.
	StackBudget uint32
	// MaxFrame bounds the static frame of any single function, including
	// the initializer.
	MaxFrame uint32
	// MinPages raises the initial memory size.
	MinPages uint32
	// Externals are the exported signatures of contracts reached through
	// contract-call?, keyed by contract principal.
	Externals map[string]map[string]check.ExternalFunc
}

func (o Options) withDefaults() Options {
	if o.StackBudget == 0 {
		o.StackBudget = DefaultStackBudget
	}
	if o.MaxFrame == 0 {
		o.MaxFrame = DefaultMaxFrame
	}
	return o
}

// FunctionArtifact is one lowered contract function.
type FunctionArtifact struct {
	Name     string
	Kind     ast.DeclKind
	Exported bool
	Func     *wasm.Function
}

// Module is the result of assembling one contract.
type Module struct {
	Name string
	Wasm *wasm.Module
	// Functions in source order; helpers and the initializer are not listed.
	Functions []FunctionArtifact
	Exports   []string
	// PermanentSize counts literals, constant slots and the initializer frame.
	PermanentSize uint32
	StackBase     uint32
	StackLimit    uint32
	MemoryPages   uint32
	ABI           ABI
}

// Encode produces the binary module.
func (m *Module) Encode() ([]byte, error) {
	return wasm.Encode(m.Wasm)
}

// ReservedNameError reports a contract function whose name collides with a
// host import or a synthesized export.
type ReservedNameError struct {
	Name string
	Span source.Span
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("function name %q is reserved", e.Name)
}

// FunctionError locates a failure inside one function body.
type FunctionError struct {
	Name string
	Span source.Span
	Err  error
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s: %v", e.Name, e.Err)
}

func (e *FunctionError) Unwrap() error { return e.Err }

// Assemble compiles c. Any failure aborts the whole contract; no partial
// module is returned.
func Assemble(ctx context.Context, c *ast.Contract, opts Options) (*Module, error) {
	opts = opts.withDefaults()
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeContract, "assemble:"+c.Name, trace.CurrentSpan(ctx).SpanID)
	defer span.End("")

	mapper := abi.NewMapper()
	alloc := memory.NewAllocator(opts.MaxFrame)
	g := codegen.New(mapper, alloc)
	g.SetExternals(opts.Externals)

	if err := g.InternLiterals(c); err != nil {
		return nil, err
	}
	alloc.Seal()
	if err := g.Declare(c); err != nil {
		return nil, err
	}

	var (
		decls []*ast.Expr
		top   []*ast.Expr
	)
	for _, e := range c.Exprs {
		if e.Decl != nil && e.Decl.Kind.IsFunction() {
			if codegen.IsReserved(e.Decl.Name) || e.Decl.Name == MemoryExport || e.Decl.Name == codegen.StackPointer {
				return nil, &ReservedNameError{Name: e.Decl.Name, Span: e.Span}
			}
			decls = append(decls, e)
			continue
		}
		top = append(top, e)
	}

	out := &Module{Name: c.Name}
	var funcs []*wasm.Function
	for _, e := range decls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := e.Decl
		fs := trace.Begin(tr, trace.ScopeFunction, d.Name, span.ID())
		fn, err := g.LowerFunction(d)
		fs.End("")
		if err != nil {
			return nil, &FunctionError{Name: d.Name, Span: e.Span, Err: err}
		}
		funcs = append(funcs, fn)
		out.Functions = append(out.Functions, FunctionArtifact{Name: d.Name, Kind: d.Kind, Exported: d.Kind.Exported(), Func: fn})
	}

	ts := trace.Begin(tr, trace.ScopeFunction, codegen.TopLevel, span.ID())
	init, err := g.LowerTopLevel(top)
	ts.End("")
	if err != nil {
		return nil, &FunctionError{Name: codegen.TopLevel, Err: err}
	}
	funcs = append(funcs, init)
	funcs = append(funcs, g.Helpers()...)

	if err := out.layout(alloc, opts); err != nil {
		return nil, err
	}

	m := &wasm.Module{
		Imports:     g.Imports(),
		Funcs:       funcs,
		Globals:     codegen.Globals(out.StackBase, out.StackLimit),
		MemoryPages: out.MemoryPages,
	}
	if img := alloc.Image(); len(img) > 0 {
		m.Data = []wasm.DataSegment{{Offset: alloc.Base(), Bytes: img}}
	}
	for _, f := range out.Functions {
		if f.Exported {
			m.Exports = append(m.Exports, wasm.Export{Name: f.Name, Kind: wasm.ExportFunc, Target: f.Name})
		}
	}
	m.Exports = append(m.Exports,
		wasm.Export{Name: codegen.TopLevel, Kind: wasm.ExportFunc, Target: codegen.TopLevel},
		wasm.Export{Name: MemoryExport, Kind: wasm.ExportMemory},
		wasm.Export{Name: codegen.StackPointer, Kind: wasm.ExportGlobal, Target: codegen.StackPointer},
	)
	for _, ex := range m.Exports {
		out.Exports = append(out.Exports, ex.Name)
	}
	if err := wasm.Validate(m); err != nil {
		return nil, err
	}
	out.Wasm = m

	abiDesc, err := describe(c, mapper)
	if err != nil {
		return nil, err
	}
	out.ABI = abiDesc
	span.WithExtra("pages", fmt.Sprint(out.MemoryPages))
	return out, nil
}

// layout places the stack right after the permanent region, 8-byte aligned.
func (m *Module) layout(alloc *memory.Allocator, opts Options) error {
	end := alloc.PermanentEnd()
	m.PermanentSize = end - alloc.Base()
	m.StackBase = memory.AlignUp(end, 8)
	limit := uint64(m.StackBase) + uint64(opts.StackBudget)
	if limit > 1<<32-wasm.PageSize {
		return &memory.ExhaustedError{Scope: "stack", Requested: opts.StackBudget, Used: m.StackBase, Limit: 1<<32 - wasm.PageSize}
	}
	stackLimit, err := safecast.Conv[uint32](limit)
	if err != nil {
		return fmt.Errorf("assemble: stack limit: %w", err)
	}
	pages, err := safecast.Conv[uint32]((limit + wasm.PageSize - 1) / wasm.PageSize)
	if err != nil {
		return fmt.Errorf("assemble: memory pages: %w", err)
	}
	m.StackLimit = stackLimit
	m.MemoryPages = max(pages, opts.MinPages)
	return nil
}
