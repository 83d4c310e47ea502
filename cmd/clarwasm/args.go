package main

import (
	"fmt"
	"math/big"
	"sort"

	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// parseArg reads one command-line argument written in contract literal
// syntax and shapes it to t. Bare integers are accepted for uint
// parameters; tuple members may be given in any order.
func parseArg(src string, t *types.Type) (value.Value, error) {
	fs := source.NewFileSet()
	f := fs.Get(fs.AddVirtual("arg", []byte(src)))
	bag := diag.NewBag(8)
	exprs := syntax.Read(f, diag.BagReporter{Bag: bag})
	if first, ok := bag.FirstError(); ok {
		return value.Value{}, fmt.Errorf("%q: %s", src, first.Message)
	}
	if len(exprs) != 1 {
		return value.Value{}, fmt.Errorf("%q: expected exactly one value", src)
	}
	return argValue(exprs[0], t)
}

func argValue(e *ast.Expr, t *types.Type) (value.Value, error) {
	switch e.Kind {
	case ast.KindLiteral:
		v := e.Value
		// 5 для uint-параметра
		if t.Kind == types.KindUInt && v.Kind == types.KindInt && v.Int.Sign() >= 0 {
			return value.UInt(v.Int), nil
		}
		if t.Kind == types.KindStringUTF8 && v.Kind == types.KindStringASCII {
			return value.UTF8(string(v.Bytes)), nil
		}
		return v, nil
	case ast.KindAtom:
		if e.Name == "none" && t.Kind == types.KindOptional {
			return value.None(), nil
		}
		return value.Value{}, fmt.Errorf("%s is not a value of type %s", e.Name, t)
	}

	head := e.Head()
	ops := e.Operands()
	switch {
	case head == "list" && t.Kind == types.KindList:
		items := make([]value.Value, len(ops))
		for i, op := range ops {
			v, err := argValue(op, t.Elem)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items...), nil
	case head == "some" && t.Kind == types.KindOptional && len(ops) == 1:
		v, err := argValue(ops[0], t.Elem)
		if err != nil {
			return value.Value{}, err
		}
		return value.Some(v), nil
	case (head == "ok" || head == "err") && t.Kind == types.KindResponse && len(ops) == 1:
		arm := t.Ok
		if head == "err" {
			arm = t.Err
		}
		v, err := argValue(ops[0], arm)
		if err != nil {
			return value.Value{}, err
		}
		if head == "ok" {
			return value.Ok(v), nil
		}
		return value.Err(v), nil
	case head == "tuple" && t.Kind == types.KindTuple:
		return tupleArg(ops, t)
	}
	return value.Value{}, fmt.Errorf("(%s ...) is not a value of type %s", head, t)
}

func tupleArg(ops []*ast.Expr, t *types.Type) (value.Value, error) {
	given := make(map[string]*ast.Expr, len(ops))
	for _, op := range ops {
		pair := op.Args
		if op.Kind != ast.KindList || len(pair) != 2 || pair[0].Kind != ast.KindAtom {
			return value.Value{}, fmt.Errorf("malformed tuple member")
		}
		if _, dup := given[pair[0].Name]; dup {
			return value.Value{}, fmt.Errorf("tuple member %s given twice", pair[0].Name)
		}
		given[pair[0].Name] = pair[1]
	}
	fields := make([]value.TupleField, 0, len(t.Fields))
	for _, f := range t.Fields {
		e, ok := given[f.Name]
		if !ok {
			return value.Value{}, fmt.Errorf("missing tuple member %s", f.Name)
		}
		delete(given, f.Name)
		v, err := argValue(e, f.Type)
		if err != nil {
			return value.Value{}, fmt.Errorf("%s: %w", f.Name, err)
		}
		fields = append(fields, value.TupleField{Name: f.Name, Value: v})
	}
	if len(given) > 0 {
		extra := make([]string, 0, len(given))
		for name := range given {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return value.Value{}, fmt.Errorf("unknown tuple member %s", extra[0])
	}
	return value.Tuple(fields...), nil
}

// parseBalance reads a --balance entry of the form PRINCIPAL=AMOUNT.
func parseBalance(s string) (string, *big.Int, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '=' {
			continue
		}
		p, err := value.ParsePrincipal(trimQuote(s[:i]))
		if err != nil {
			return "", nil, fmt.Errorf("--balance %q: %w", s, err)
		}
		n, ok := new(big.Int).SetString(s[i+1:], 10)
		if !ok || n.Sign() < 0 {
			return "", nil, fmt.Errorf("--balance %q: malformed amount", s)
		}
		return p.String(), n, nil
	}
	return "", nil, fmt.Errorf("--balance %q: expected PRINCIPAL=AMOUNT", s)
}

func trimQuote(s string) string {
	if len(s) > 0 && s[0] == '\'' {
		return s[1:]
	}
	return s
}
