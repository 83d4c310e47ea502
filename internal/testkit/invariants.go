// Package testkit holds structural checks shared by tests and fuzz
// harnesses.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"clarwasm/internal/ast"
	"clarwasm/internal/source"
)

// CheckSpanInvariants runs a minimal set of span invariants on read forms:
// every span points at sf and lies within its content, every child lies
// within its parent, and top-level forms appear in source order without
// overlapping.
func CheckSpanInvariants(exprs []*ast.Expr, sf *source.File) error {
	if sf == nil {
		return fmt.Errorf("nil file")
	}
	size, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	var prevEnd uint32
	for i, e := range exprs {
		if e == nil {
			return fmt.Errorf("form %d is nil", i)
		}
		if e.Span.Start < prevEnd {
			return fmt.Errorf("form %d at %v overlaps the previous form ending at %d", i, e.Span, prevEnd)
		}
		prevEnd = e.Span.End
		if err := checkNode(e, source.Span{File: sf.ID, Start: 0, End: size}); err != nil {
			return err
		}
	}
	return nil
}

func checkNode(e *ast.Expr, outer source.Span) error {
	sp := e.Span
	if sp.File != outer.File {
		return fmt.Errorf("span %v points to file %d, want %d", sp, sp.File, outer.File)
	}
	if sp.Start > sp.End {
		return fmt.Errorf("span %v is inverted", sp)
	}
	if sp.Start < outer.Start || sp.End > outer.End {
		return fmt.Errorf("span %v escapes its parent %v", sp, outer)
	}
	for _, a := range e.Args {
		if err := checkNode(a, sp); err != nil {
			return err
		}
	}
	return nil
}
