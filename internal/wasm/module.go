package wasm

import (
	"slices"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

// FuncType is a function or multi-value block signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (t FuncType) key() string {
	b := make([]byte, 0, len(t.Params)+len(t.Results)+1)
	b = append(b, t.Params...)
	b = append(b, '|')
	b = append(b, t.Results...)
	return string(b)
}

// Equal reports whether both signatures match slot for slot.
func (t FuncType) Equal(o FuncType) bool {
	return slices.Equal(t.Params, o.Params) && slices.Equal(t.Results, o.Results)
}

// Import is an imported host function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Global is a module-defined global with a constant initializer.
type Global struct {
	Name    string
	Type    api.ValueType
	Mutable bool
	Init    int64
}

// Function is a module-defined function. Params occupy the first locals.
type Function struct {
	Name   string
	Type   FuncType
	Locals []api.ValueType
	Body   []Instr
}

// AddLocal appends a local and returns its index.
func (f *Function) AddLocal(vt api.ValueType) uint32 {
	f.Locals = append(f.Locals, vt)
	return safecast.MustConv[uint32](len(f.Type.Params) + len(f.Locals) - 1)
}

// ExportKind selects the exported entity.
type ExportKind byte

const (
	ExportFunc   ExportKind = 0x00
	ExportMemory ExportKind = 0x02
	ExportGlobal ExportKind = 0x03
)

// Export names a function, the memory or a global. Target is the function or
// global name and is ignored for memory.
type Export struct {
	Name   string
	Kind   ExportKind
	Target string
}

// DataSegment initializes memory at an absolute offset.
type DataSegment struct {
	Offset uint32
	Bytes  []byte
}

// Module is the in-memory description handed to Encode. Functions are
// referenced by name everywhere; indices are assigned during encoding with
// imports first.
type Module struct {
	Imports     []Import
	Funcs       []*Function
	Globals     []Global
	MemoryPages uint32
	Exports     []Export
	Data        []DataSegment
}

// Func returns the module-defined function with the given name.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Signature returns the type of an imported or defined function.
func (m *Module) Signature(name string) (FuncType, bool) {
	for _, imp := range m.Imports {
		if imp.Name == name {
			return imp.Type, true
		}
	}
	if f := m.Func(name); f != nil {
		return f.Type, true
	}
	return FuncType{}, false
}
