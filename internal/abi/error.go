package abi

import (
	"fmt"

	"clarwasm/internal/types"
)

// ShapeErrorKind enumerates the reasons a type has no shape.
type ShapeErrorKind uint8

const (
	// ShapeErrNil is a missing type annotation.
	ShapeErrNil ShapeErrorKind = iota + 1
	// ShapeErrUnresolved is a type the checker left unresolved.
	ShapeErrUnresolved
	// ShapeErrTooLarge is a type whose maximum size does not fit 32 bits.
	ShapeErrTooLarge
	// ShapeErrBadField is a tuple field lookup that does not exist.
	ShapeErrBadField
)

// ShapeError reports a type that reached the mapper without a finite, known
// size. It signals a defect in the upstream checker, not a user error.
type ShapeError struct {
	Kind  ShapeErrorKind
	Type  *types.Type
	Field string
}

func (e *ShapeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ShapeErrNil:
		return "internal error: expression has no type annotation"
	case ShapeErrUnresolved:
		return fmt.Sprintf("internal error: unresolved type %s has no ABI shape", e.Type)
	case ShapeErrTooLarge:
		return fmt.Sprintf("internal error: type %s exceeds the addressable size", e.Type)
	case ShapeErrBadField:
		return fmt.Sprintf("internal error: tuple %s has no field %q", e.Type, e.Field)
	default:
		return fmt.Sprintf("internal error: shape error kind=%d for %s", e.Kind, e.Type)
	}
}
