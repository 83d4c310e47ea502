package diag

import (
	"testing"

	"clarwasm/internal/source"
)

func TestBagLimitAndSort(t *testing.T) {
	b := NewBag(2)
	r := BagReporter{Bag: b}
	ReportWarning(r, ReadStringNotNFC, source.Span{Start: 9, End: 10}, "w").Emit()
	ReportError(r, CheckTypeMismatch, source.Span{Start: 1, End: 2}, "e").WithNote(source.Span{}, "here").Emit()
	ReportError(r, CheckArity, source.Span{Start: 3, End: 4}, "dropped").Emit()

	if b.Len() != 2 || b.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", b.Len(), b.Dropped())
	}
	b.Sort()
	if b.Items()[0].Code != CheckTypeMismatch || len(b.Items()[0].Notes) != 1 {
		t.Fatalf("unexpected order: %+v", b.Items())
	}
	if d, ok := b.FirstError(); !ok || d.Message != "e" {
		t.Fatalf("first error = %+v, %v", d, ok)
	}
}

func TestCodeID(t *testing.T) {
	cases := map[Code]string{
		ReadBadNumber:     "RD1003",
		CheckTypeMismatch: "CHK3002",
		GenUnsupported:    "GEN6001",
		ProjManifest:      "PRJ7002",
		Code(42):          "E0000",
	}
	for c, want := range cases {
		if got := c.ID(); got != want {
			t.Fatalf("%d: got %s want %s", c, got, want)
		}
	}
}
