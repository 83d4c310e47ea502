package memory

import "fmt"

// Space tells which base a region offset is relative to.
type Space uint8

const (
	// Permanent regions live at absolute addresses for the module lifetime:
	// literals, constants and the initializer frame.
	Permanent Space = iota
	// Frame regions are relative to the base of the current activation.
	Frame
)

func (s Space) String() string {
	if s == Permanent {
		return "perm"
	}
	return "frame"
}

// Region is a byte range owned by the scope that allocated it.
type Region struct {
	Space  Space
	Offset uint32
	Len    uint32
}

func (r Region) String() string {
	return fmt.Sprintf("%s[%d:+%d]", r.Space, r.Offset, r.Len)
}

// End returns the first offset past the region.
func (r Region) End() uint32 {
	return r.Offset + r.Len
}

// Slice returns a read-only view of part of r.
func (r Region) Slice(off, n uint32) Region {
	if off+n > r.Len {
		panic(fmt.Sprintf("memory: slice [%d:+%d] outside %s", off, n, r))
	}
	return Region{Space: r.Space, Offset: r.Offset + off, Len: n}
}

// Ref is a pointer+length pair: the used prefix of a region. Both halves move
// together.
type Ref struct {
	Region Region
	Len    uint32
}

// RefTo returns a ref covering all of r.
func RefTo(r Region) Ref {
	return Ref{Region: r, Len: r.Len}
}

// Ptr is the address of the ref when its region is permanent.
func (r Ref) Ptr() uint32 {
	return r.Region.Offset
}
