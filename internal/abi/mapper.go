package abi

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/types"
)

// Mapper computes and caches shapes. It is owned by one compilation and is not
// safe for concurrent use.
type Mapper struct {
	cache map[string]*Shape
}

func NewMapper() *Mapper {
	return &Mapper{cache: make(map[string]*Shape, 64)}
}

// ShapeOf maps a type to its shape. Structurally equal types yield the same
// *Shape; shapes must be treated as read-only.
func (m *Mapper) ShapeOf(t *types.Type) (*Shape, error) {
	if t == nil {
		return nil, &ShapeError{Kind: ShapeErrNil}
	}
	if m.cache == nil {
		m.cache = make(map[string]*Shape, 64)
	}
	key := t.String()
	if s, ok := m.cache[key]; ok {
		return s, nil
	}
	s, err := m.compute(t)
	if err != nil {
		return nil, err
	}
	m.cache[key] = s
	return s, nil
}

func (m *Mapper) compute(t *types.Type) (*Shape, error) {
	switch t.Kind {
	case types.KindBool:
		return scalar(t, api.ValueTypeI32), nil
	case types.KindInt, types.KindUInt:
		return scalar(t, api.ValueTypeI64, api.ValueTypeI64), nil
	case types.KindNoType:
		s := scalar(t, api.ValueTypeI32)
		s.Form = FormPlaceholder
		return s, nil
	case types.KindPrincipal:
		s := scalar(t, api.ValueTypeI32)
		s.Form = FormPointer
		s.DataSize = PrincipalMaxBytes
		return s, nil
	case types.KindBuffer, types.KindStringASCII:
		return sequence(t, uint64(t.MaxLen))
	case types.KindStringUTF8:
		// length slot counts bytes; one character takes at most four
		return sequence(t, 4*uint64(t.MaxLen))
	case types.KindList:
		elem, err := m.ShapeOf(t.Elem)
		if err != nil {
			return nil, err
		}
		s, err := sequence(t, uint64(t.MaxLen)*uint64(elem.Footprint()))
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil
	case types.KindTuple:
		children := make([]*types.Type, len(t.Fields))
		for i, f := range t.Fields {
			children[i] = f.Type
		}
		return m.composite(t, false, children...)
	case types.KindOptional:
		return m.composite(t, true, t.Elem)
	case types.KindResponse:
		return m.composite(t, true, t.Ok, t.Err)
	default:
		return nil, &ShapeError{Kind: ShapeErrUnresolved, Type: t}
	}
}

func scalar(t *types.Type, slots ...api.ValueType) *Shape {
	s := &Shape{Type: t, Form: FormScalar, Slots: slots}
	s.SlotOffsets = make([]uint32, len(slots))
	for i, vt := range slots {
		s.SlotOffsets[i] = s.Size
		s.Size += SlotWidth(vt)
	}
	return s
}

func sequence(t *types.Type, data uint64) (*Shape, error) {
	if data > math.MaxUint32/2 {
		return nil, &ShapeError{Kind: ShapeErrTooLarge, Type: t}
	}
	s := scalar(t, api.ValueTypeI32, api.ValueTypeI32)
	s.Form = FormMemory
	s.DataSize = uint32(data)
	return s, nil
}

func (m *Mapper) composite(t *types.Type, tagged bool, children ...*types.Type) (*Shape, error) {
	s := &Shape{Type: t, Form: FormComposite}
	if tagged {
		s.Slots = append(s.Slots, api.ValueTypeI32)
		s.SlotOffsets = append(s.SlotOffsets, 0)
		s.Size = 4
	}
	var data uint64
	for _, ct := range children {
		c, err := m.ShapeOf(ct)
		if err != nil {
			return nil, err
		}
		s.Children = append(s.Children, c)
		s.ChildSlot = append(s.ChildSlot, len(s.Slots))
		s.ChildOffset = append(s.ChildOffset, s.Size)
		for i, vt := range c.Slots {
			s.Slots = append(s.Slots, vt)
			s.SlotOffsets = append(s.SlotOffsets, s.Size+c.SlotOffsets[i])
		}
		if uint64(s.Size)+uint64(c.Size) > math.MaxUint32/2 {
			return nil, &ShapeError{Kind: ShapeErrTooLarge, Type: t}
		}
		s.Size += c.Size
		data += uint64(c.DataSize)
	}
	if data > math.MaxUint32/2 {
		return nil, &ShapeError{Kind: ShapeErrTooLarge, Type: t}
	}
	s.DataSize = uint32(data)
	return s, nil
}

// FieldOffset returns the byte offset of a tuple field inside the tuple's
// stored representation: the sum of the sizes of the preceding fields.
func (m *Mapper) FieldOffset(tuple *types.Type, name string) (uint32, error) {
	s, err := m.ShapeOf(tuple)
	if err != nil {
		return 0, err
	}
	i := tuple.FieldIndex(name)
	if i < 0 {
		return 0, &ShapeError{Kind: ShapeErrBadField, Type: tuple, Field: name}
	}
	return s.ChildOffset[i], nil
}

// Signature flattens parameter and result types into slot lists.
func (m *Mapper) Signature(params []*types.Type, result *types.Type) (in, out []api.ValueType, err error) {
	for _, p := range params {
		s, err := m.ShapeOf(p)
		if err != nil {
			return nil, nil, err
		}
		in = append(in, s.Slots...)
	}
	if result != nil {
		s, err := m.ShapeOf(result)
		if err != nil {
			return nil, nil, err
		}
		out = s.Slots
	}
	return in, out, nil
}
