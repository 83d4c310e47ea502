package wasm

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// Validate checks the symbolic references of m: unique function names,
// existing call targets, globals and export targets.
func Validate(m *Module) error {
	if m == nil {
		return errors.New("wasm: nil module")
	}
	funcs := make(map[string]bool, len(m.Imports)+len(m.Funcs))
	for _, imp := range m.Imports {
		if funcs[imp.Name] {
			return fmt.Errorf("wasm: duplicate function %q", imp.Name)
		}
		funcs[imp.Name] = true
	}
	for _, f := range m.Funcs {
		if funcs[f.Name] {
			return fmt.Errorf("wasm: duplicate function %q", f.Name)
		}
		funcs[f.Name] = true
	}
	globals := make(map[string]bool, len(m.Globals))
	for _, g := range m.Globals {
		globals[g.Name] = true
	}
	var walk func(fn string, body []Instr) error
	walk = func(fn string, body []Instr) error {
		for i := range body {
			in := &body[i]
			switch in.Op {
			case OpCall:
				if !funcs[in.Sym] {
					return fmt.Errorf("wasm: %s calls unknown function %q", fn, in.Sym)
				}
			case OpGlobalGet, OpGlobalSet:
				if !globals[in.Sym] {
					return fmt.Errorf("wasm: %s uses unknown global %q", fn, in.Sym)
				}
			}
			if err := walk(fn, in.Body); err != nil {
				return err
			}
			if err := walk(fn, in.Else); err != nil {
				return err
			}
		}
		return nil
	}
	for _, f := range m.Funcs {
		if err := walk(f.Name, f.Body); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(m.Exports))
	for _, ex := range m.Exports {
		if seen[ex.Name] {
			return fmt.Errorf("wasm: duplicate export %q", ex.Name)
		}
		seen[ex.Name] = true
		switch ex.Kind {
		case ExportFunc:
			if !funcs[ex.Target] {
				return fmt.Errorf("wasm: export %q refers to unknown function %q", ex.Name, ex.Target)
			}
		case ExportGlobal:
			if !globals[ex.Target] {
				return fmt.Errorf("wasm: export %q refers to unknown global %q", ex.Name, ex.Target)
			}
		}
	}
	var last uint32
	for _, d := range m.Data {
		if d.Offset < last {
			return fmt.Errorf("wasm: data segments overlap at %d", d.Offset)
		}
		end, err := safecast.Conv[uint32](uint64(d.Offset) + uint64(len(d.Bytes)))
		if err != nil || uint64(end) > uint64(m.MemoryPages)*PageSize {
			return fmt.Errorf("wasm: data segment at %d with %d bytes ends beyond %d pages", d.Offset, len(d.Bytes), m.MemoryPages)
		}
		last = end
	}
	return nil
}
