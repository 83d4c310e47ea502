package source

import "testing"

func TestResolveLineCol(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("c.clar", []byte("(define-constant a 1)\n(define-public (f)\n  (ok a))\n"))
	tests := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{21, LineCol{1, 22}},
		{22, LineCol{2, 1}},
		{43, LineCol{3, 3}},
	}
	for _, tt := range tests {
		got, _ := fs.Resolve(At(id, tt.off))
		if got != tt.want {
			t.Fatalf("offset %d: got %+v, want %+v", tt.off, got, tt.want)
		}
	}
}

func TestFileLine(t *testing.T) {
	fs := NewFileSet()
	f := fs.Get(fs.AddVirtual("x", []byte("one\ntwo\nthree")))
	for n, want := range map[uint32]string{1: "one", 2: "two", 3: "three", 4: "", 0: ""} {
		if got := f.Line(n); got != want {
			t.Fatalf("line %d: got %q, want %q", n, got, want)
		}
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 1, Start: 5, End: 12}
	if got := a.Cover(b); got != (Span{File: 1, Start: 5, End: 20}) {
		t.Fatalf("unexpected cover %v", got)
	}
	if got := a.Cover(Span{File: 2, Start: 0, End: 100}); got != a {
		t.Fatalf("cover across files must be a no-op, got %v", got)
	}
}

func TestFoldCRLF(t *testing.T) {
	out, changed := foldCRLF([]byte("a\r\nb\rc"))
	if !changed || string(out) != "a\nb\rc" {
		t.Fatalf("got %q changed=%v", out, changed)
	}
	fs := NewFileSet()
	id := fs.AddVirtual("p/../q.clar", nil)
	if f, ok := fs.Lookup("q.clar"); !ok || f.ID != id {
		t.Fatalf("lookup by cleaned path failed")
	}
}
