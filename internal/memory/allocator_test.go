package memory

import (
	"bytes"
	"errors"
	"testing"
)

func TestLiteralPoolDedup(t *testing.T) {
	a := NewAllocator(1024)
	r1, err := a.InternLiteral([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := a.InternLiteral([]byte("world"))
	r3, _ := a.InternLiteral([]byte("hello"))
	if r1 != r3 {
		t.Fatalf("equal literals must share a region: %v %v", r1, r3)
	}
	if r1.Offset != DefaultBase || r2.Offset != r1.End() {
		t.Fatalf("unexpected placement %v %v", r1, r2)
	}
	img := a.Image()
	if !bytes.Equal(img[r2.Offset-a.Base():r2.End()-a.Base()], []byte("world")) {
		t.Fatalf("image does not hold the literal bytes: %q", img)
	}
	a.Seal()
	if _, err := a.InternLiteral([]byte("late")); !errors.Is(err, ErrPoolSealed) {
		t.Fatalf("expected sealed pool error, got %v", err)
	}
	if r, err := a.Literal([]byte("world")); err != nil || r != r2 {
		t.Fatalf("lookup after seal: %v %v", r, err)
	}
}

func TestScopeWatermark(t *testing.T) {
	a := NewAllocator(64)
	if err := a.EnterScope("f"); err != nil {
		t.Fatal(err)
	}
	r1, _ := a.Allocate(3, 1)
	r2, _ := a.Allocate(16, 8)
	if r1.Space != Frame || r1.Offset != 0 || r2.Offset != 8 {
		t.Fatalf("bad bump placement: %v %v", r1, r2)
	}
	if err := a.EnterScope("g"); err == nil {
		t.Fatalf("nested function scopes must be rejected")
	}
	if size := a.ExitScope(); size != 24 {
		t.Fatalf("frame size = %d, want 24", size)
	}
	_ = a.EnterScope("g")
	r3, _ := a.Allocate(4, 4)
	if r3.Offset != 0 {
		t.Fatalf("watermark must reset between activations, got %v", r3)
	}
	a.ExitScope()
}

func TestFrameExhausted(t *testing.T) {
	a := NewAllocator(32)
	_ = a.EnterScope("big")
	if _, err := a.Allocate(20, 4); err != nil {
		t.Fatal(err)
	}
	_, err := a.Allocate(16, 4)
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Limit != 32 || ex.Used != 20 {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestPermanentScope(t *testing.T) {
	a := NewAllocator(1024)
	_, _ = a.InternLiteral([]byte("abc"))
	c, err := a.AllocatePermanent(16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if c.Offset%8 != 0 || c.Space != Permanent {
		t.Fatalf("constant slot misaligned: %v", c)
	}
	_ = a.EnterPermanentScope(".init")
	r, err := a.Allocate(10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if r.Space != Permanent || r.Offset < c.End() {
		t.Fatalf("initializer frame overlaps constants: %v %v", r, c)
	}
	a.ExitScope()
	if a.PermanentEnd() < r.End() {
		t.Fatalf("permanent image must cover the initializer frame")
	}
}

func TestPermanentOverflow(t *testing.T) {
	for _, end := range []uint32{1<<32 - 8, 1<<32 - 3} {
		a := NewAllocator(1024)
		a.end = end
		if _, err := a.AllocatePermanent(16, 8); err == nil {
			t.Fatalf("end %d: expected an overflow past the 32-bit address space", end)
		}
		if a.PermanentEnd() != end || len(a.image) != 0 {
			t.Fatalf("end %d: failed allocation moved the end to %d", end, a.PermanentEnd())
		}
	}
}
