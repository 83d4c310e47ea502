package abi

import (
	"strings"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/types"
)

// Version identifies the slot mapping below. Any change to how a type maps
// onto slots or memory must bump it.
const Version = 1

// Form is the coarse category of a shape.
type Form uint8

const (
	// FormScalar values live entirely in numeric slots (bool, int, uint).
	FormScalar Form = iota
	// FormPointer is a single i32 pointing at fixed-size data (principal).
	FormPointer
	// FormMemory is an (i32 ptr, i32 byte length) pair (buffers, strings, lists).
	FormMemory
	// FormComposite concatenates child shapes, optionally after a discriminant
	// (tuple, optional, response).
	FormComposite
	// FormPlaceholder is the single always-zero slot of NoType.
	FormPlaceholder
)

// Principal backing data: 20-byte account identifier (hash160), u32 little
// endian contract name length, name bytes. The address version is a property
// of the network the host runs on and is not stored.
const (
	PrincipalIDBytes      = 20
	PrincipalNameLenBytes = 4
	PrincipalMaxName      = 128
	PrincipalHeaderBytes  = PrincipalIDBytes + PrincipalNameLenBytes
	PrincipalMaxBytes     = PrincipalHeaderBytes + PrincipalMaxName
)

// Shape is the binary representation of a type: the ordered slots that carry
// it on the operand stack and, identically ordered, its stored
// representation in linear memory (slot after slot, little endian, no
// padding).
type Shape struct {
	Type  *types.Type
	Form  Form
	Slots []api.ValueType
	// SlotOffsets[i] is the byte offset of slot i in the stored representation.
	SlotOffsets []uint32
	// Size is the width of the stored representation.
	Size uint32
	// DataSize bounds the backing bytes reachable through pointers, recursively.
	DataSize uint32

	// Children are the nested shapes of composite forms: tuple fields in
	// declared order, the optional payload, the response ok and err arms.
	Children    []*Shape
	ChildSlot   []int
	ChildOffset []uint32

	// Elem is the element shape of lists.
	Elem *Shape
}

// HasDiscriminant reports whether slot 0 is an optional/response tag.
func (s *Shape) HasDiscriminant() bool {
	if s == nil || s.Type == nil {
		return false
	}
	return s.Type.Kind == types.KindOptional || s.Type.Kind == types.KindResponse
}

// Flat reports whether the stored representation contains no pointers, so a
// byte-wise comparison or copy is the same as a value-wise one.
func (s *Shape) Flat() bool {
	return s.DataSize == 0
}

// Footprint is the room a host needs to write the value and its backing data.
func (s *Shape) Footprint() uint32 {
	return s.Size + s.DataSize
}

func (s *Shape) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, vt := range s.Slots {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(api.ValueTypeName(vt))
	}
	sb.WriteByte(']')
	return sb.String()
}

// SlotWidth returns the stored width of one slot.
func SlotWidth(vt api.ValueType) uint32 {
	if vt == api.ValueTypeI64 || vt == api.ValueTypeF64 {
		return 8
	}
	return 4
}

// Flatten concatenates the slots of several shapes, e.g. a parameter list.
func Flatten(shapes ...*Shape) []api.ValueType {
	var out []api.ValueType
	for _, s := range shapes {
		out = append(out, s.Slots...)
	}
	return out
}
