package types

// Merge returns the least upper bound of a and b: NoType gives way to the
// other side and maximum lengths take the larger bound. It reports false when
// the two types are incompatible.
func Merge(a, b *Type) (*Type, bool) {
	switch {
	case a == nil || b == nil:
		return nil, false
	case a.Kind == KindNoType:
		return b, true
	case b.Kind == KindNoType:
		return a, true
	case a.Kind != b.Kind:
		return nil, false
	}
	switch a.Kind {
	case KindBuffer, KindStringASCII, KindStringUTF8:
		if a.MaxLen >= b.MaxLen {
			return a, true
		}
		return b, true
	case KindList:
		elem, ok := mergeElem(a, b)
		if !ok {
			return nil, false
		}
		return List(elem, max(a.MaxLen, b.MaxLen)), true
	case KindOptional:
		elem, ok := Merge(a.Elem, b.Elem)
		if !ok {
			return nil, false
		}
		return Optional(elem), true
	case KindResponse:
		okT, ok1 := Merge(a.Ok, b.Ok)
		errT, ok2 := Merge(a.Err, b.Err)
		if !ok1 || !ok2 {
			return nil, false
		}
		return Response(okT, errT), true
	case KindTuple:
		if len(a.Fields) != len(b.Fields) {
			return nil, false
		}
		fields := make([]Field, len(a.Fields))
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name {
				return nil, false
			}
			ft, ok := Merge(a.Fields[i].Type, b.Fields[i].Type)
			if !ok {
				return nil, false
			}
			fields[i] = Field{Name: a.Fields[i].Name, Type: ft}
		}
		return Tuple(fields...), true
	}
	return a, true
}

// an empty list carries a NoType element and merges with anything
func mergeElem(a, b *Type) (*Type, bool) {
	if a.MaxLen == 0 {
		return b.Elem, true
	}
	if b.MaxLen == 0 {
		return a.Elem, true
	}
	return Merge(a.Elem, b.Elem)
}

// Admits reports whether a value of type actual may flow where expected is
// declared: same structure, lengths within bounds, NoType anywhere.
func Admits(expected, actual *Type) bool {
	if expected == nil || actual == nil {
		return false
	}
	if actual.Kind == KindNoType {
		return true
	}
	if expected.Kind != actual.Kind {
		return false
	}
	switch expected.Kind {
	case KindBuffer, KindStringASCII, KindStringUTF8:
		return actual.MaxLen <= expected.MaxLen
	case KindList:
		return actual.MaxLen <= expected.MaxLen && (actual.MaxLen == 0 || Admits(expected.Elem, actual.Elem))
	case KindOptional:
		return Admits(expected.Elem, actual.Elem)
	case KindResponse:
		return Admits(expected.Ok, actual.Ok) && Admits(expected.Err, actual.Err)
	case KindTuple:
		if len(expected.Fields) != len(actual.Fields) {
			return false
		}
		for i := range expected.Fields {
			if expected.Fields[i].Name != actual.Fields[i].Name || !Admits(expected.Fields[i].Type, actual.Fields[i].Type) {
				return false
			}
		}
	}
	return true
}
