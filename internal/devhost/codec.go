package devhost

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// reader decodes values out of one module's linear memory.
type reader struct {
	mem     api.Memory
	version byte
}

func (r reader) bytes(ptr, n uint32) []byte {
	b, ok := r.mem.Read(ptr, n)
	if !ok {
		hostPanic("read of %d bytes at %d is out of bounds", n, ptr)
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// stored reads the slots of a stored representation at ptr.
func (r reader) stored(s *abi.Shape, ptr uint32) []uint64 {
	out := make([]uint64, len(s.Slots))
	for i, vt := range s.Slots {
		at := ptr + s.SlotOffsets[i]
		if abi.SlotWidth(vt) == 8 {
			v, ok := r.mem.ReadUint64Le(at)
			if !ok {
				hostPanic("read of slot at %d is out of bounds", at)
			}
			out[i] = v
			continue
		}
		v, ok := r.mem.ReadUint32Le(at)
		if !ok {
			hostPanic("read of slot at %d is out of bounds", at)
		}
		out[i] = uint64(v)
	}
	return out
}

func (r reader) load(s *abi.Shape, ptr uint32) value.Value {
	return r.value(s, r.stored(s, ptr))
}

// value rebuilds a value from its slots, following pointers into memory.
func (r reader) value(s *abi.Shape, slots []uint64) value.Value {
	t := s.Type
	switch t.Kind {
	case types.KindBool:
		return value.Bool(uint32(slots[0]) != 0)
	case types.KindInt:
		return value.Int(abi.JoinInt128(slots[0], slots[1], true))
	case types.KindUInt:
		return value.UInt(abi.JoinInt128(slots[0], slots[1], false))
	case types.KindPrincipal:
		return value.PrincipalValue(r.principal(uint32(slots[0])))
	case types.KindBuffer, types.KindStringASCII, types.KindStringUTF8:
		ptr, n := uint32(slots[0]), uint32(slots[1])
		if n > s.DataSize {
			hostPanic("%s holds %d bytes", t, n)
		}
		return value.Value{Kind: t.Kind, Bytes: r.bytes(ptr, n)}
	case types.KindList:
		ptr, n := uint32(slots[0]), uint32(slots[1])
		if n%s.Elem.Size != 0 || n/s.Elem.Size > t.MaxLen {
			hostPanic("%s holds %d bytes", t, n)
		}
		items := make([]value.Value, 0, n/s.Elem.Size)
		for off := uint32(0); off < n; off += s.Elem.Size {
			items = append(items, r.load(s.Elem, ptr+off))
		}
		return value.List(items...)
	case types.KindTuple:
		fields := make([]value.TupleField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = value.TupleField{Name: f.Name, Value: r.value(s.Children[i], childSlots(s, i, slots))}
		}
		return value.Tuple(fields...)
	case types.KindOptional:
		if uint32(slots[0]) == 0 {
			return value.None()
		}
		return value.Some(r.value(s.Children[0], childSlots(s, 0, slots)))
	case types.KindResponse:
		if uint32(slots[0]) == 1 {
			return value.Ok(r.value(s.Children[0], childSlots(s, 0, slots)))
		}
		return value.Err(r.value(s.Children[1], childSlots(s, 1, slots)))
	}
	hostPanic("cannot decode a value of type %s", t)
	return value.Value{}
}

func (r reader) principal(ptr uint32) value.Principal {
	head := r.bytes(ptr, abi.PrincipalHeaderBytes)
	n, ok := r.mem.ReadUint32Le(ptr + abi.PrincipalIDBytes)
	if !ok || n > abi.PrincipalMaxName {
		hostPanic("bad principal at %d", ptr)
	}
	data := append(head, r.bytes(ptr+abi.PrincipalHeaderBytes, n)...)
	p, err := value.PrincipalFromBytes(r.version, data)
	if err != nil {
		hostPanic("%v", err)
	}
	return p
}

func childSlots(s *abi.Shape, i int, slots []uint64) []uint64 {
	at := s.ChildSlot[i]
	return slots[at : at+len(s.Children[i].Slots)]
}

// writer encodes values into linear memory. Backing data is bump-allocated
// from next and must stay below end.
type writer struct {
	mem  api.Memory
	next uint32
	end  uint32
}

func (w *writer) alloc(n int) uint32 {
	size, err := safecast.Conv[uint32](n)
	if err != nil || w.next+size > w.end || w.next+size < w.next {
		hostPanic("no room for %d bytes at %d (limit %d)", n, w.next, w.end)
	}
	at := w.next
	w.next += size
	return at
}

func (w *writer) write(at uint32, b []byte) {
	if !w.mem.Write(at, b) {
		hostPanic("write of %d bytes at %d is out of bounds", len(b), at)
	}
}

// store writes the slots of a stored representation at ptr.
func (w *writer) store(s *abi.Shape, ptr uint32, slots []uint64) {
	for i, vt := range s.Slots {
		at := ptr + s.SlotOffsets[i]
		ok := false
		if abi.SlotWidth(vt) == 8 {
			ok = w.mem.WriteUint64Le(at, slots[i])
		} else {
			ok = w.mem.WriteUint32Le(at, uint32(slots[i]))
		}
		if !ok {
			hostPanic("write of slot at %d is out of bounds", at)
		}
	}
}

// put stores v at ptr, which must have room for the representation.
func (w *writer) put(s *abi.Shape, ptr uint32, v value.Value) {
	w.store(s, ptr, w.slots(s, v))
}

// slots flattens v, writing whatever it points to. v must conform to s.Type.
func (w *writer) slots(s *abi.Shape, v value.Value) []uint64 {
	out := make([]uint64, len(s.Slots))
	w.fill(s, v, out)
	return out
}

func (w *writer) fill(s *abi.Shape, v value.Value, out []uint64) {
	t := s.Type
	switch t.Kind {
	case types.KindNoType:
		out[0] = 0
	case types.KindBool:
		if v.Bool {
			out[0] = 1
		}
	case types.KindInt, types.KindUInt:
		out[0], out[1] = abi.SplitInt128(v.Int)
	case types.KindPrincipal:
		data := v.Principal.Bytes()
		at := w.alloc(len(data))
		w.write(at, data)
		out[0] = uint64(at)
	case types.KindBuffer, types.KindStringASCII, types.KindStringUTF8:
		at := w.alloc(len(v.Bytes))
		w.write(at, v.Bytes)
		out[0], out[1] = uint64(at), uint64(len(v.Bytes))
	case types.KindList:
		n := len(v.Items) * int(s.Elem.Size)
		at := w.alloc(n)
		for i, it := range v.Items {
			w.put(s.Elem, at+safecast.MustConv[uint32](i)*s.Elem.Size, it)
		}
		out[0], out[1] = uint64(at), uint64(n)
	case types.KindTuple:
		for i, f := range t.Fields {
			fv, _ := v.Field(f.Name)
			w.fill(s.Children[i], fv, out[s.ChildSlot[i]:s.ChildSlot[i]+len(s.Children[i].Slots)])
		}
	case types.KindOptional:
		if v.Inner != nil {
			out[0] = 1
			w.fill(s.Children[0], *v.Inner, out[s.ChildSlot[0]:])
		}
	case types.KindResponse:
		arm := 1
		if v.IsOk {
			out[0] = 1
			arm = 0
		}
		w.fill(s.Children[arm], *v.Inner, out[s.ChildSlot[arm]:s.ChildSlot[arm]+len(s.Children[arm].Slots)])
	default:
		hostPanic("cannot encode a value of type %s", t)
	}
}

// conforms reports why v cannot be passed as t, or "" when it can.
func conforms(t *types.Type, v value.Value) string {
	if t.Kind != v.Kind {
		return fmt.Sprintf("want %s, got %s", t, v)
	}
	switch t.Kind {
	case types.KindInt, types.KindUInt:
		if v.Int == nil || !abi.FitsInt128(v.Int, t.Kind == types.KindInt) {
			return fmt.Sprintf("%s is out of range for %s", v, t)
		}
	case types.KindBuffer, types.KindStringASCII:
		if uint64(len(v.Bytes)) > uint64(t.MaxLen) {
			return fmt.Sprintf("%s is longer than %s", v, t)
		}
	case types.KindStringUTF8:
		if uint64(len([]rune(string(v.Bytes)))) > uint64(t.MaxLen) {
			return fmt.Sprintf("%s is longer than %s", v, t)
		}
	case types.KindList:
		if uint64(len(v.Items)) > uint64(t.MaxLen) {
			return fmt.Sprintf("%d items exceed %s", len(v.Items), t)
		}
		for _, it := range v.Items {
			if why := conforms(t.Elem, it); why != "" {
				return why
			}
		}
	case types.KindTuple:
		for _, f := range t.Fields {
			fv, ok := v.Field(f.Name)
			if !ok {
				return fmt.Sprintf("missing tuple field %s", f.Name)
			}
			if why := conforms(f.Type, fv); why != "" {
				return why
			}
		}
	case types.KindOptional:
		if v.Inner != nil {
			return conforms(t.Elem, *v.Inner)
		}
	case types.KindResponse:
		if v.Inner == nil {
			return "response without a payload"
		}
		if v.IsOk {
			return conforms(t.Ok, *v.Inner)
		}
		return conforms(t.Err, *v.Inner)
	}
	return ""
}
