package codegen

import (
	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/memory"
	"clarwasm/internal/wasm"
)

// LocKind says where a lowered value currently lives.
type LocKind uint8

const (
	// LocStack values are on the operand stack, slot 0 deepest.
	LocStack LocKind = iota
	// LocStored values are a stored representation at Addr.
	LocStored
	// LocRef values are memory-backed with compile-time pointer and length.
	LocRef
)

// addr is the address base+off. base is a local holding an address, or
// absolute when negative.
type addr struct {
	base int64
	off  uint32
}

func absolute(off uint32) addr { return addr{base: -1, off: off} }

func (a addr) plus(n uint32) addr { return addr{base: a.base, off: a.off + n} }

// Location is the result of lowering one expression.
type Location struct {
	Kind  LocKind
	Shape *abi.Shape
	Addr  addr
	// Ptr and Len of LocRef. Len is unused for principals.
	Ptr, Len uint32
}

func onStack(s *abi.Shape) Location { return Location{Kind: LocStack, Shape: s} }

func stored(s *abi.Shape, a addr) Location { return Location{Kind: LocStored, Shape: s, Addr: a} }

// pushAddr leaves the address a on the stack.
func pushAddr(a addr) []wasm.Instr {
	if a.base < 0 {
		return []wasm.Instr{wasm.U32Const(a.off)}
	}
	out := []wasm.Instr{wasm.LocalGet(safecast.MustConv[uint32](a.base))}
	if a.off != 0 {
		out = append(out, wasm.U32Const(a.off), wasm.Op(wasm.OpI32Add))
	}
	return out
}

// pushBase leaves the base of a on the stack; a.off goes into the memarg.
func pushBase(a addr) wasm.Instr {
	if a.base < 0 {
		return wasm.I32Const(0)
	}
	return wasm.LocalGet(safecast.MustConv[uint32](a.base))
}

// loadSlots pushes every slot of the stored representation at a.
func loadSlots(s *abi.Shape, a addr) []wasm.Instr {
	out := make([]wasm.Instr, 0, 2*len(s.Slots))
	for i, vt := range s.Slots {
		out = append(out, pushBase(a), wasm.Load(vt, a.off+s.SlotOffsets[i]))
	}
	return out
}

// storeLocals writes slots held in locals to the stored representation at a.
func storeLocals(s *abi.Shape, locals []uint32, a addr) []wasm.Instr {
	out := make([]wasm.Instr, 0, 3*len(s.Slots))
	for i, vt := range s.Slots {
		out = append(out, pushBase(a), wasm.LocalGet(locals[i]), wasm.Store(vt, a.off+s.SlotOffsets[i]))
	}
	return out
}

// materialize pushes the slots of loc.
func materialize(loc Location) []wasm.Instr {
	switch loc.Kind {
	case LocStored:
		return loadSlots(loc.Shape, loc.Addr)
	case LocRef:
		if loc.Shape.Form == abi.FormPointer {
			return []wasm.Instr{wasm.U32Const(loc.Ptr)}
		}
		return []wasm.Instr{wasm.U32Const(loc.Ptr), wasm.U32Const(loc.Len)}
	}
	return nil
}

func zeros(slots []api.ValueType) []wasm.Instr {
	out := make([]wasm.Instr, len(slots))
	for i, vt := range slots {
		out[i] = wasm.Zero(vt)
	}
	return out
}

func drops(n int) []wasm.Instr {
	out := make([]wasm.Instr, n)
	for i := range out {
		out[i] = wasm.Op(wasm.OpDrop)
	}
	return out
}

// regionAddr converts an allocator region into an address. Frame regions are
// relative to the activation's frame local.
func regionAddr(r memory.Region, frame uint32) addr {
	if r.Space == memory.Permanent {
		return absolute(r.Offset)
	}
	return addr{base: int64(frame), off: r.Offset}
}

// sameLayout reports whether values of shape a can be used as shape b
// without re-encoding, including the stored layout of list elements.
func sameLayout(a, b *abi.Shape) bool {
	if a == b {
		return true
	}
	if len(a.Slots) != len(b.Slots) {
		return false
	}
	for i := range a.Slots {
		if a.Slots[i] != b.Slots[i] {
			return false
		}
	}
	if a.Elem != nil && b.Elem != nil && a.Type.MaxLen > 0 && b.Type.MaxLen > 0 {
		return sameLayout(a.Elem, b.Elem)
	}
	for i := range a.Children {
		if i < len(b.Children) && !sameLayout(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
