package ast

import (
	"testing"

	"clarwasm/internal/source"
	"clarwasm/internal/value"
)

func TestWalkOrder(t *testing.T) {
	sp := source.Span{}
	e := List(sp, Atom("+", sp), Literal(value.IntOf(1), sp), List(sp, Atom("f", sp), Atom("x", sp)))
	var names []string
	Walk(e, func(n *Expr) bool {
		if n.Kind == KindAtom {
			names = append(names, n.Name)
		}
		return !n.IsCall("f")
	})
	if len(names) != 1 || names[0] != "+" {
		t.Fatalf("unexpected visit order %v", names)
	}
	if e.Head() != "+" || len(e.Operands()) != 2 {
		t.Fatalf("head/operands broken")
	}
}
