package wasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

var opNames = map[Opcode]string{
	OpUnreachable: "unreachable", OpNop: "nop", OpBlock: "block", OpLoop: "loop", OpIf: "if",
	OpBr: "br", OpBrIf: "br_if", OpReturn: "return", OpCall: "call", OpDrop: "drop", OpSelect: "select",
	OpLocalGet: "local.get", OpLocalSet: "local.set", OpLocalTee: "local.tee",
	OpGlobalGet: "global.get", OpGlobalSet: "global.set",
	OpI32Load: "i32.load", OpI64Load: "i64.load", OpI32Load8U: "i32.load8_u",
	OpI32Store: "i32.store", OpI64Store: "i64.store", OpI32Store8: "i32.store8",
	OpMemorySize: "memory.size", OpMemoryCopy: "memory.copy", OpMemoryFill: "memory.fill",
	OpI32Const: "i32.const", OpI64Const: "i64.const",
	OpI32Eqz: "i32.eqz", OpI32Eq: "i32.eq", OpI32Ne: "i32.ne", OpI32LtS: "i32.lt_s", OpI32LtU: "i32.lt_u",
	OpI32GtS: "i32.gt_s", OpI32GtU: "i32.gt_u", OpI32LeS: "i32.le_s", OpI32LeU: "i32.le_u",
	OpI32GeS: "i32.ge_s", OpI32GeU: "i32.ge_u",
	OpI64Eqz: "i64.eqz", OpI64Eq: "i64.eq", OpI64Ne: "i64.ne", OpI64LtS: "i64.lt_s", OpI64LtU: "i64.lt_u",
	OpI64GtS: "i64.gt_s", OpI64GtU: "i64.gt_u", OpI64LeS: "i64.le_s", OpI64LeU: "i64.le_u",
	OpI64GeS: "i64.ge_s", OpI64GeU: "i64.ge_u",
	OpI32Clz: "i32.clz", OpI32Add: "i32.add", OpI32Sub: "i32.sub", OpI32Mul: "i32.mul",
	OpI32DivU: "i32.div_u", OpI32RemU: "i32.rem_u", OpI32And: "i32.and", OpI32Or: "i32.or",
	OpI32Xor: "i32.xor", OpI32Shl: "i32.shl", OpI32ShrU: "i32.shr_u",
	OpI64Clz: "i64.clz", OpI64Add: "i64.add", OpI64Sub: "i64.sub", OpI64Mul: "i64.mul",
	OpI64DivU: "i64.div_u", OpI64RemU: "i64.rem_u", OpI64And: "i64.and", OpI64Or: "i64.or",
	OpI64Xor: "i64.xor", OpI64Shl: "i64.shl", OpI64ShrS: "i64.shr_s", OpI64ShrU: "i64.shr_u",
	OpI32WrapI64: "i32.wrap_i64", OpI64ExtendI32S: "i64.extend_i32_s", OpI64ExtendI32U: "i64.extend_i32_u",
}

func (op Opcode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(0x%x)", uint16(op))
}

// Dump writes a text listing of m for debugging. The output follows the
// folded text format loosely and is not meant to be parsed back.
func Dump(w io.Writer, m *Module) error {
	var sb strings.Builder
	sb.WriteString("(module\n")
	for _, imp := range m.Imports {
		fmt.Fprintf(&sb, "  (import %q %q (func $%s%s))\n", imp.Module, imp.Name, imp.Name, sigText(imp.Type))
	}
	fmt.Fprintf(&sb, "  (memory %d)\n", m.MemoryPages)
	for _, g := range m.Globals {
		mut := api.ValueTypeName(g.Type)
		if g.Mutable {
			mut = "(mut " + mut + ")"
		}
		fmt.Fprintf(&sb, "  (global $%s %s (%s.const %d))\n", g.Name, mut, api.ValueTypeName(g.Type), g.Init)
	}
	for _, f := range m.Funcs {
		fmt.Fprintf(&sb, "  (func $%s%s\n", f.Name, sigText(f.Type))
		if len(f.Locals) > 0 {
			sb.WriteString("    (local")
			for _, vt := range f.Locals {
				sb.WriteString(" " + api.ValueTypeName(vt))
			}
			sb.WriteString(")\n")
		}
		dumpInstrs(&sb, f.Body, 2)
		sb.WriteString("  )\n")
	}
	for _, ex := range m.Exports {
		fmt.Fprintf(&sb, "  (export %q (%d %s))\n", ex.Name, ex.Kind, ex.Target)
	}
	for _, d := range m.Data {
		fmt.Fprintf(&sb, "  (data (i32.const %d) %q)\n", d.Offset, d.Bytes)
	}
	sb.WriteString(")\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func sigText(t FuncType) string {
	var sb strings.Builder
	if len(t.Params) > 0 {
		sb.WriteString(" (param")
		for _, vt := range t.Params {
			sb.WriteString(" " + api.ValueTypeName(vt))
		}
		sb.WriteByte(')')
	}
	if len(t.Results) > 0 {
		sb.WriteString(" (result")
		for _, vt := range t.Results {
			sb.WriteString(" " + api.ValueTypeName(vt))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func dumpInstrs(sb *strings.Builder, body []Instr, depth int) {
	pad := strings.Repeat("  ", depth)
	for _, in := range body {
		sb.WriteString(pad)
		sb.WriteString(in.Op.String())
		switch in.Op {
		case OpBlock, OpLoop, OpIf:
			sb.WriteString(sigText(FuncType{Results: in.Block}))
			sb.WriteByte('\n')
			dumpInstrs(sb, in.Body, depth+1)
			if in.Else != nil {
				sb.WriteString(pad + "else\n")
				dumpInstrs(sb, in.Else, depth+1)
			}
			sb.WriteString(pad + "end\n")
			continue
		case OpCall, OpGlobalGet, OpGlobalSet:
			sb.WriteString(" $" + in.Sym)
		case OpI32Const, OpI64Const, OpLocalGet, OpLocalSet, OpLocalTee, OpBr, OpBrIf:
			fmt.Fprintf(sb, " %d", in.Imm)
		default:
			if in.Op.isMemAccess() && in.Offset != 0 {
				fmt.Fprintf(sb, " offset=%d", in.Offset)
			}
		}
		sb.WriteByte('\n')
	}
}
