package memory

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// ErrPoolSealed is returned when a literal is requested after the pool closed.
var ErrPoolSealed = errors.New("memory: literal pool is sealed")

// ExhaustedError reports an activation whose static frame exceeds the budget.
type ExhaustedError struct {
	Scope     string
	Requested uint32
	Used      uint32
	Limit     uint32
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("memory: %s needs %d more bytes with %d in use, frame limit is %d",
		e.Scope, e.Requested, e.Used, e.Limit)
}

type scope struct {
	name  string
	space Space
	base  uint32
	mark  uint32
}

// Allocator hands out regions for one compilation. Permanent data grows from
// address Base; frames are bump allocated per activation and reset on exit.
type Allocator struct {
	base     uint32
	end      uint32
	image    []byte
	literals map[string]Region
	sealed   bool
	maxFrame uint32
	cur      *scope
}

// DefaultBase keeps address 0 unused so a zero pointer is never valid data.
const DefaultBase = 8

// NewAllocator creates an allocator whose frames may not exceed maxFrame bytes.
func NewAllocator(maxFrame uint32) *Allocator {
	return &Allocator{
		base:     DefaultBase,
		end:      DefaultBase,
		literals: make(map[string]Region),
		maxFrame: maxFrame,
	}
}

// InternLiteral places b in the permanent region once; equal byte strings
// share one region. Interning is only possible until Seal.
func (a *Allocator) InternLiteral(b []byte) (Region, error) {
	key := string(b)
	if r, ok := a.literals[key]; ok {
		return r, nil
	}
	if a.sealed {
		return Region{}, fmt.Errorf("%w: %q", ErrPoolSealed, truncate(key))
	}
	n, err := safecast.Conv[uint32](len(b))
	if err != nil {
		return Region{}, fmt.Errorf("memory: literal %q: %w", truncate(key), err)
	}
	r, err := a.reservePermanent(n, 1)
	if err != nil {
		return Region{}, err
	}
	copy(a.image[r.Offset-a.base:], b)
	a.literals[key] = r
	return r, nil
}

// Literal returns the region of an interned byte string.
func (a *Allocator) Literal(b []byte) (Region, error) {
	if r, ok := a.literals[string(b)]; ok {
		return r, nil
	}
	if !a.sealed {
		return a.InternLiteral(b)
	}
	return Region{}, fmt.Errorf("%w: %q was not interned", ErrPoolSealed, truncate(string(b)))
}

// Seal closes the literal pool.
func (a *Allocator) Seal() {
	a.sealed = true
}

// AllocatePermanent reserves zeroed module-lifetime storage.
func (a *Allocator) AllocatePermanent(size, align uint32) (Region, error) {
	if a.cur != nil && a.cur.space == Permanent {
		panic("memory: permanent allocation inside a permanent scope")
	}
	return a.reservePermanent(size, align)
}

func (a *Allocator) reservePermanent(size, align uint32) (Region, error) {
	off := alignUp(a.end, align)
	if off < a.end {
		return Region{}, errPermanentOverflow(uint64(a.end) + uint64(align))
	}
	if err := a.grow(uint64(off) + uint64(size)); err != nil {
		return Region{}, err
	}
	return Region{Space: Permanent, Offset: off, Len: size}, nil
}

// grow extends the permanent image with zeroes up to address end.
func (a *Allocator) grow(end uint64) error {
	next, err := safecast.Conv[uint32](end)
	if err != nil {
		return errPermanentOverflow(end)
	}
	if next > a.end {
		a.image = append(a.image, make([]byte, next-a.end)...)
		a.end = next
	}
	return nil
}

func errPermanentOverflow(end uint64) error {
	return fmt.Errorf("memory: permanent data would end at %d, past the 32-bit address space", end)
}

// PermanentEnd is the first address after all permanent data.
func (a *Allocator) PermanentEnd() uint32 {
	return a.end
}

// Image returns the initial contents of permanent memory starting at Base.
func (a *Allocator) Image() []byte {
	return a.image
}

// Base is the address of the first permanent byte.
func (a *Allocator) Base() uint32 {
	return a.base
}

// EnterScope opens the activation scope of one function body.
func (a *Allocator) EnterScope(name string) error {
	if a.cur != nil {
		return fmt.Errorf("memory: scope %q entered while %q is open", name, a.cur.name)
	}
	a.cur = &scope{name: name, space: Frame}
	return nil
}

// EnterPermanentScope opens a scope whose allocations are carved out of
// permanent memory, used by code that runs once per deployment.
func (a *Allocator) EnterPermanentScope(name string) error {
	if a.cur != nil {
		return fmt.Errorf("memory: scope %q entered while %q is open", name, a.cur.name)
	}
	a.cur = &scope{name: name, space: Permanent, base: alignUp(a.PermanentEnd(), 8)}
	return nil
}

// ExitScope closes the current scope and returns its frame size.
func (a *Allocator) ExitScope() uint32 {
	if a.cur == nil {
		return 0
	}
	size := a.cur.mark
	a.cur = nil
	return size
}

// Mark returns the watermark of the current scope.
func (a *Allocator) Mark() uint32 {
	if a.cur == nil {
		return 0
	}
	return a.cur.mark
}

// Allocate bump allocates size bytes in the current scope.
func (a *Allocator) Allocate(size, align uint32) (Region, error) {
	if a.cur == nil {
		return Region{}, errors.New("memory: allocation outside of a scope")
	}
	off := alignUp(a.cur.mark, align)
	if uint64(off)+uint64(size) > uint64(a.maxFrame) {
		return Region{}, &ExhaustedError{Scope: a.cur.name, Requested: size, Used: a.cur.mark, Limit: a.maxFrame}
	}
	a.cur.mark = off + size
	if a.cur.space == Permanent {
		// grow the image so later permanent data lands after this frame
		abs := a.cur.base + off
		if err := a.grow(uint64(abs) + uint64(size)); err != nil {
			return Region{}, err
		}
		return Region{Space: Permanent, Offset: abs, Len: size}, nil
	}
	return Region{Space: Frame, Offset: off, Len: size}, nil
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// AlignUp rounds v up to a multiple of align.
func AlignUp(v, align uint32) uint32 {
	return alignUp(v, align)
}

func truncate(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}
