package check

import (
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/types"
)

// MaxValueSize bounds the declared size of a single value in bytes.
const MaxValueSize = 1 << 20

// parseType reads a type signature such as (list 4 (buff 8)).
func (c *checker) parseType(e *ast.Expr) *types.Type {
	switch e.Kind {
	case ast.KindAtom:
		switch e.Name {
		case "int":
			return types.Int()
		case "uint":
			return types.UInt()
		case "bool":
			return types.Bool()
		case "principal":
			return types.Principal()
		case "notype":
			if c.placeholders {
				return types.NoType()
			}
		}
		return c.errorf(diag.CheckBadTypeSyntax, e.Span, "unknown type %q", e.Name)
	case ast.KindLiteral:
		return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected a type, found %s", e.Value)
	}

	ops := e.Operands()
	switch e.Head() {
	case "buff", "string-ascii", "string-utf8":
		if len(ops) != 1 {
			return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected (%s N)", e.Head())
		}
		n, ok := c.typeLength(ops[0])
		if !ok {
			return types.Invalid()
		}
		switch e.Head() {
		case "buff":
			return types.Buffer(n)
		case "string-ascii":
			return types.StringASCII(n)
		}
		if n > MaxValueSize/4 {
			return c.errorf(diag.CheckValueTooLarge, e.Span, "(string-utf8 %d) exceeds the value size limit", n)
		}
		return types.StringUTF8(n)
	case "list":
		if len(ops) != 2 {
			return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected (list N type)")
		}
		n, ok := c.typeLength(ops[0])
		elem := c.parseType(ops[1])
		if !ok || elem.Kind == types.KindInvalid {
			return types.Invalid()
		}
		return types.List(elem, n)
	case "optional":
		if len(ops) != 1 {
			return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected (optional type)")
		}
		inner := c.parseType(ops[0])
		if inner.Kind == types.KindInvalid {
			return inner
		}
		return types.Optional(inner)
	case "response":
		if len(ops) != 2 {
			return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected (response ok-type err-type)")
		}
		okT, errT := c.parseType(ops[0]), c.parseType(ops[1])
		if okT.Kind == types.KindInvalid || errT.Kind == types.KindInvalid {
			return types.Invalid()
		}
		return types.Response(okT, errT)
	case "tuple":
		if len(ops) == 0 {
			return c.errorf(diag.CheckBadTypeSyntax, e.Span, "a tuple needs at least one field")
		}
		fields := make([]types.Field, 0, len(ops))
		for _, f := range ops {
			if f.Kind != ast.KindList || len(f.Args) != 2 || f.Args[0].Kind != ast.KindAtom {
				return c.errorf(diag.CheckBadTypeSyntax, f.Span, "expected (name type) tuple field")
			}
			ft := c.parseType(f.Args[1])
			if ft.Kind == types.KindInvalid {
				return ft
			}
			fields = append(fields, types.Field{Name: f.Args[0].Name, Type: ft})
		}
		return c.tupleType(e, fields)
	}
	return c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected a type")
}

func (c *checker) typeLength(e *ast.Expr) (uint32, bool) {
	if e.Kind != ast.KindLiteral || e.Value.Kind != types.KindInt || e.Value.Int.Sign() < 0 {
		c.errorf(diag.CheckBadTypeSyntax, e.Span, "expected a non-negative integer length")
		return 0, false
	}
	n, err := safecast.Conv[uint32](e.Value.Int.Uint64())
	if !e.Value.Int.IsUint64() || err != nil || n > MaxValueSize {
		c.errorf(diag.CheckValueTooLarge, e.Span, "length %s exceeds the value size limit", e.Value.Int)
		return 0, false
	}
	return n, true
}

// tupleType sorts fields by name so that field order never depends on how
// a tuple was written.
func (c *checker) tupleType(e *ast.Expr, fields []types.Field) *types.Type {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	for i := 1; i < len(fields); i++ {
		if fields[i].Name == fields[i-1].Name {
			return c.errorf(diag.CheckDuplicateDef, e.Span, "duplicate tuple field %q", fields[i].Name)
		}
	}
	return types.Tuple(fields...)
}

// ParseType reads a signature in the form printed by types.Type.String.
// Unlike contract source it accepts notype, which appears in the types
// of empty lists and one-armed responses.
func ParseType(src string) (*types.Type, error) {
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual("type", []byte(src)))
	bag := diag.NewBag(8)
	r := diag.BagReporter{Bag: bag}
	exprs := syntax.Read(f, r)
	if bag.HasErrors() || len(exprs) != 1 {
		return nil, fmt.Errorf("check: malformed type %q", src)
	}
	c := &checker{reporter: r, placeholders: true}
	t := c.parseType(exprs[0])
	if first, ok := bag.FirstError(); ok {
		return nil, fmt.Errorf("check: type %q: %w", src, first)
	}
	if t.Kind == types.KindInvalid {
		return nil, errors.New("check: invalid type " + src)
	}
	return t, nil
}
