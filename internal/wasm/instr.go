package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// Opcode is a single-byte instruction opcode. Prefixed instructions use the
// values above 0xFF, see OpMemoryCopy.
type Opcode uint16

const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpBlock       Opcode = 0x02
	OpLoop        Opcode = 0x03
	OpIf          Opcode = 0x04
	OpBr          Opcode = 0x0C
	OpBrIf        Opcode = 0x0D
	OpReturn      Opcode = 0x0F
	OpCall        Opcode = 0x10
	OpDrop        Opcode = 0x1A
	OpSelect      Opcode = 0x1B

	OpLocalGet  Opcode = 0x20
	OpLocalSet  Opcode = 0x21
	OpLocalTee  Opcode = 0x22
	OpGlobalGet Opcode = 0x23
	OpGlobalSet Opcode = 0x24

	OpI32Load    Opcode = 0x28
	OpI64Load    Opcode = 0x29
	OpI32Load8U  Opcode = 0x2D
	OpI32Store   Opcode = 0x36
	OpI64Store   Opcode = 0x37
	OpI32Store8  Opcode = 0x3A
	OpMemorySize Opcode = 0x3F

	OpI32Const Opcode = 0x41
	OpI64Const Opcode = 0x42

	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32LtU Opcode = 0x49
	OpI32GtS Opcode = 0x4A
	OpI32GtU Opcode = 0x4B
	OpI32LeS Opcode = 0x4C
	OpI32LeU Opcode = 0x4D
	OpI32GeS Opcode = 0x4E
	OpI32GeU Opcode = 0x4F

	OpI64Eqz Opcode = 0x50
	OpI64Eq  Opcode = 0x51
	OpI64Ne  Opcode = 0x52
	OpI64LtS Opcode = 0x53
	OpI64LtU Opcode = 0x54
	OpI64GtS Opcode = 0x55
	OpI64GtU Opcode = 0x56
	OpI64LeS Opcode = 0x57
	OpI64LeU Opcode = 0x58
	OpI64GeS Opcode = 0x59
	OpI64GeU Opcode = 0x5A

	OpI32Clz  Opcode = 0x67
	OpI32Add  Opcode = 0x6A
	OpI32Sub  Opcode = 0x6B
	OpI32Mul  Opcode = 0x6C
	OpI32DivU Opcode = 0x6E
	OpI32RemU Opcode = 0x70
	OpI32And  Opcode = 0x71
	OpI32Or   Opcode = 0x72
	OpI32Xor  Opcode = 0x73
	OpI32Shl  Opcode = 0x74
	OpI32ShrU Opcode = 0x76

	OpI64Clz  Opcode = 0x79
	OpI64Add  Opcode = 0x7C
	OpI64Sub  Opcode = 0x7D
	OpI64Mul  Opcode = 0x7E
	OpI64DivU Opcode = 0x80
	OpI64RemU Opcode = 0x82
	OpI64And  Opcode = 0x83
	OpI64Or   Opcode = 0x84
	OpI64Xor  Opcode = 0x85
	OpI64Shl  Opcode = 0x86
	OpI64ShrS Opcode = 0x87
	OpI64ShrU Opcode = 0x88

	OpI32WrapI64    Opcode = 0xA7
	OpI64ExtendI32S Opcode = 0xAC
	OpI64ExtendI32U Opcode = 0xAD

	// 0xFC prefixed bulk memory operations.
	OpMemoryCopy Opcode = 0xFC0A
	OpMemoryFill Opcode = 0xFC0B
)

// BlockType is the result signature of a block, loop or if.
type BlockType []api.ValueType

// Instr is one instruction. Structured instructions carry their bodies.
type Instr struct {
	Op Opcode
	// Imm is the constant of i32/i64.const, the index of local and global
	// accesses when Sym is empty, and the label depth of br/br_if.
	Imm int64
	// Offset is the static memarg offset of loads and stores.
	Offset uint32
	// Sym names the callee of call and the global of global.get/set.
	Sym string

	Block BlockType
	Body  []Instr
	Else  []Instr
}

func Op(op Opcode) Instr            { return Instr{Op: op} }
func I32Const(v int32) Instr        { return Instr{Op: OpI32Const, Imm: int64(v)} }
func I64Const(v int64) Instr        { return Instr{Op: OpI64Const, Imm: v} }
func LocalGet(idx uint32) Instr     { return Instr{Op: OpLocalGet, Imm: int64(idx)} }
func LocalSet(idx uint32) Instr     { return Instr{Op: OpLocalSet, Imm: int64(idx)} }
func LocalTee(idx uint32) Instr     { return Instr{Op: OpLocalTee, Imm: int64(idx)} }
func GlobalGet(name string) Instr   { return Instr{Op: OpGlobalGet, Sym: name} }
func GlobalSet(name string) Instr   { return Instr{Op: OpGlobalSet, Sym: name} }
func Call(name string) Instr        { return Instr{Op: OpCall, Sym: name} }
func Br(depth uint32) Instr         { return Instr{Op: OpBr, Imm: int64(depth)} }
func BrIf(depth uint32) Instr       { return Instr{Op: OpBrIf, Imm: int64(depth)} }
func Block(bt BlockType, body ...Instr) Instr {
	return Instr{Op: OpBlock, Block: bt, Body: body}
}
func Loop(bt BlockType, body ...Instr) Instr {
	return Instr{Op: OpLoop, Block: bt, Body: body}
}

// If builds an if/else. A nil els omits the else arm.
func If(bt BlockType, then, els []Instr) Instr {
	return Instr{Op: OpIf, Block: bt, Body: then, Else: els}
}

// U32Const pushes an address or length.
func U32Const(v uint32) Instr {
	return Instr{Op: OpI32Const, Imm: int64(int32(v))} // #nosec G115 -- i32 constants are bit patterns
}

// Load reads a value of the given slot type from base+offset.
func Load(vt api.ValueType, offset uint32) Instr {
	if vt == api.ValueTypeI64 {
		return Instr{Op: OpI64Load, Offset: offset}
	}
	return Instr{Op: OpI32Load, Offset: offset}
}

// Store writes a value of the given slot type to base+offset.
func Store(vt api.ValueType, offset uint32) Instr {
	if vt == api.ValueTypeI64 {
		return Instr{Op: OpI64Store, Offset: offset}
	}
	return Instr{Op: OpI32Store, Offset: offset}
}

// Zero pushes the zero value of a slot type.
func Zero(vt api.ValueType) Instr {
	if vt == api.ValueTypeI64 {
		return I64Const(0)
	}
	return I32Const(0)
}

func (op Opcode) naturalAlign() uint32 {
	switch op {
	case OpI64Load, OpI64Store:
		return 3
	case OpI32Load, OpI32Store:
		return 2
	}
	return 0
}

func (op Opcode) isMemAccess() bool {
	switch op {
	case OpI32Load, OpI64Load, OpI32Load8U, OpI32Store, OpI64Store, OpI32Store8:
		return true
	}
	return false
}
