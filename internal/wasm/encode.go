package wasm

import (
	"bytes"
	"fmt"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

const (
	secType   = 1
	secImport = 2
	secFunc   = 3
	secMemory = 5
	secGlobal = 6
	secExport = 7
	secCode   = 10
	secData   = 11
)

type encoder struct {
	m         *Module
	types     []FuncType
	typeIdx   map[string]uint32
	funcIdx   map[string]uint32
	globalIdx map[string]uint32
}

// Encode serializes m into the binary module format.
func Encode(m *Module) ([]byte, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	e := &encoder{
		m:         m,
		typeIdx:   make(map[string]uint32),
		funcIdx:   make(map[string]uint32),
		globalIdx: make(map[string]uint32),
	}
	for i, imp := range m.Imports {
		e.funcIdx[imp.Name] = safecast.MustConv[uint32](i)
	}
	for i, f := range m.Funcs {
		e.funcIdx[f.Name] = safecast.MustConv[uint32](len(m.Imports) + i)
	}
	for i, g := range m.Globals {
		e.globalIdx[g.Name] = safecast.MustConv[uint32](i)
	}

	importTypes := make([]uint32, len(m.Imports))
	for i, imp := range m.Imports {
		importTypes[i] = e.typeOf(imp.Type)
	}
	funcTypes := make([]uint32, len(m.Funcs))
	for i, f := range m.Funcs {
		funcTypes[i] = e.typeOf(f.Type)
	}
	// code first: multi-value block types extend the type section
	var code bytes.Buffer
	writeLen(&code, len(m.Funcs))
	for _, f := range m.Funcs {
		var body bytes.Buffer
		e.writeLocals(&body, f.Locals)
		if err := e.writeInstrs(&body, f, f.Body); err != nil {
			return nil, fmt.Errorf("wasm: function %q: %w", f.Name, err)
		}
		body.WriteByte(0x0B)
		n, err := safecast.Conv[uint32](body.Len())
		if err != nil {
			return nil, fmt.Errorf("wasm: function %q too large: %w", f.Name, err)
		}
		writeU32(&code, n)
		code.Write(body.Bytes())
	}

	var out bytes.Buffer
	out.Write(header)

	var sec bytes.Buffer
	writeLen(&sec, len(e.types))
	for _, t := range e.types {
		sec.WriteByte(0x60)
		writeValTypes(&sec, t.Params)
		writeValTypes(&sec, t.Results)
	}
	writeSection(&out, secType, &sec)

	if len(m.Imports) > 0 {
		sec.Reset()
		writeLen(&sec, len(m.Imports))
		for i, imp := range m.Imports {
			writeName(&sec, imp.Module)
			writeName(&sec, imp.Name)
			sec.WriteByte(0x00)
			writeU32(&sec, importTypes[i])
		}
		writeSection(&out, secImport, &sec)
	}

	sec.Reset()
	writeLen(&sec, len(funcTypes))
	for _, ti := range funcTypes {
		writeU32(&sec, ti)
	}
	writeSection(&out, secFunc, &sec)

	sec.Reset()
	writeU32(&sec, 1)
	sec.WriteByte(0x00)
	writeU32(&sec, m.MemoryPages)
	writeSection(&out, secMemory, &sec)

	if len(m.Globals) > 0 {
		sec.Reset()
		writeLen(&sec, len(m.Globals))
		for _, g := range m.Globals {
			sec.WriteByte(g.Type)
			if g.Mutable {
				sec.WriteByte(0x01)
			} else {
				sec.WriteByte(0x00)
			}
			if g.Type == api.ValueTypeI64 {
				sec.WriteByte(byte(OpI64Const))
				writeS64(&sec, g.Init)
			} else {
				sec.WriteByte(byte(OpI32Const))
				writeS64(&sec, int64(int32(g.Init))) // #nosec G115 -- i32 bit pattern
			}
			sec.WriteByte(0x0B)
		}
		writeSection(&out, secGlobal, &sec)
	}

	sec.Reset()
	writeLen(&sec, len(m.Exports))
	for _, ex := range m.Exports {
		writeName(&sec, ex.Name)
		sec.WriteByte(byte(ex.Kind))
		switch ex.Kind {
		case ExportFunc:
			writeU32(&sec, e.funcIdx[ex.Target])
		case ExportGlobal:
			writeU32(&sec, e.globalIdx[ex.Target])
		default:
			writeU32(&sec, 0)
		}
	}
	writeSection(&out, secExport, &sec)

	writeSection(&out, secCode, &code)

	if len(m.Data) > 0 {
		sec.Reset()
		writeLen(&sec, len(m.Data))
		for _, d := range m.Data {
			sec.WriteByte(0x00)
			sec.WriteByte(byte(OpI32Const))
			writeS64(&sec, int64(int32(d.Offset))) // #nosec G115 -- i32 bit pattern
			sec.WriteByte(0x0B)
			writeLen(&sec, len(d.Bytes))
			sec.Write(d.Bytes)
		}
		writeSection(&out, secData, &sec)
	}
	return out.Bytes(), nil
}

func writeSection(out *bytes.Buffer, id byte, contents *bytes.Buffer) {
	out.WriteByte(id)
	writeLen(out, contents.Len())
	out.Write(contents.Bytes())
}

func writeValTypes(w *bytes.Buffer, vts []api.ValueType) {
	writeLen(w, len(vts))
	w.Write(vts)
}

func (e *encoder) typeOf(t FuncType) uint32 {
	k := t.key()
	if idx, ok := e.typeIdx[k]; ok {
		return idx
	}
	idx := safecast.MustConv[uint32](len(e.types))
	e.types = append(e.types, t)
	e.typeIdx[k] = idx
	return idx
}

func (e *encoder) writeLocals(w *bytes.Buffer, locals []api.ValueType) {
	type run struct {
		n  uint32
		vt api.ValueType
	}
	var runs []run
	for _, vt := range locals {
		if len(runs) > 0 && runs[len(runs)-1].vt == vt {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, vt: vt})
	}
	writeLen(w, len(runs))
	for _, r := range runs {
		writeU32(w, r.n)
		w.WriteByte(r.vt)
	}
}

func (e *encoder) writeBlockType(w *bytes.Buffer, bt BlockType) {
	switch len(bt) {
	case 0:
		w.WriteByte(0x40)
	case 1:
		w.WriteByte(bt[0])
	default:
		writeS64(w, int64(e.typeOf(FuncType{Results: bt})))
	}
}

func (e *encoder) writeInstrs(w *bytes.Buffer, f *Function, body []Instr) error {
	for i := range body {
		if err := e.writeInstr(w, f, &body[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) writeInstr(w *bytes.Buffer, f *Function, in *Instr) error {
	switch in.Op {
	case OpBlock, OpLoop, OpIf:
		w.WriteByte(byte(in.Op))
		e.writeBlockType(w, in.Block)
		if err := e.writeInstrs(w, f, in.Body); err != nil {
			return err
		}
		if in.Op == OpIf && in.Else != nil {
			w.WriteByte(0x05)
			if err := e.writeInstrs(w, f, in.Else); err != nil {
				return err
			}
		}
		w.WriteByte(0x0B)
	case OpBr, OpBrIf, OpLocalGet, OpLocalSet, OpLocalTee:
		w.WriteByte(byte(in.Op))
		idx, err := safecast.Conv[uint32](in.Imm)
		if err != nil {
			return fmt.Errorf("bad immediate for opcode 0x%02x: %w", in.Op, err)
		}
		writeU32(w, idx)
	case OpCall:
		idx, ok := e.funcIdx[in.Sym]
		if !ok {
			return fmt.Errorf("call to unknown function %q", in.Sym)
		}
		w.WriteByte(byte(in.Op))
		writeU32(w, idx)
	case OpGlobalGet, OpGlobalSet:
		idx, ok := e.globalIdx[in.Sym]
		if !ok {
			return fmt.Errorf("unknown global %q", in.Sym)
		}
		w.WriteByte(byte(in.Op))
		writeU32(w, idx)
	case OpI32Const:
		w.WriteByte(byte(in.Op))
		writeS64(w, int64(int32(in.Imm))) // #nosec G115 -- i32 bit pattern
	case OpI64Const:
		w.WriteByte(byte(in.Op))
		writeS64(w, in.Imm)
	case OpMemorySize:
		w.WriteByte(byte(in.Op))
		w.WriteByte(0x00)
	case OpMemoryCopy:
		w.WriteByte(0xFC)
		writeU32(w, 10)
		w.WriteByte(0x00)
		w.WriteByte(0x00)
	case OpMemoryFill:
		w.WriteByte(0xFC)
		writeU32(w, 11)
		w.WriteByte(0x00)
	default:
		if in.Op > 0xFF {
			return fmt.Errorf("unknown prefixed opcode 0x%04x", uint16(in.Op))
		}
		w.WriteByte(byte(in.Op))
		if in.Op.isMemAccess() {
			writeU32(w, in.Op.naturalAlign())
			writeU32(w, in.Offset)
		}
	}
	return nil
}
