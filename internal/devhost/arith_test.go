package devhost

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"clarwasm/internal/abi"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/value"
)

var arithForms = []struct {
	op, name string
	unary    bool
}{
	{"+", "add", false}, {"-", "sub", false}, {"*", "mul", false},
	{"/", "div", false}, {"mod", "mod", false}, {"pow", "pow", false},
	{"log2", "log2", true}, {"sqrti", "sqrti", true},
	{"<", "lt", false}, {"<=", "le", false}, {">", "gt", false}, {">=", "ge", false},
}

func arithSource() string {
	var b strings.Builder
	for _, f := range arithForms {
		for _, t := range []string{"int", "uint"} {
			if f.unary {
				fmt.Fprintf(&b, "(define-read-only (%s-%s (a %s)) (%s a))\n", f.name, t, t, f.op)
			} else {
				fmt.Fprintf(&b, "(define-read-only (%s-%s (a %s) (b %s)) (%s a b))\n", f.name, t, t, t, f.op)
			}
		}
	}
	return b.String()
}

// outcome is either a value or the runtime error a call must trap with.
type outcome struct {
	val  value.Value
	trap hostcall.ErrorCode
	fail bool
}

func trapped(code hostcall.ErrorCode) outcome { return outcome{trap: code, fail: true} }

var maxExponent = big.NewInt(1<<32 - 1)

// reference computes op with math/big and the 128-bit range rules.
func reference(op string, signed bool, a, b *big.Int) outcome {
	num := func(v *big.Int) outcome {
		switch {
		case abi.FitsInt128(v, signed) && signed:
			return outcome{val: value.Int(v)}
		case abi.FitsInt128(v, signed):
			return outcome{val: value.UInt(v)}
		case !signed && v.Sign() < 0:
			return trapped(hostcall.ErrArithmeticUnderflow)
		}
		return trapped(hostcall.ErrArithmeticOverflow)
	}
	switch op {
	case "+":
		return num(new(big.Int).Add(a, b))
	case "-":
		return num(new(big.Int).Sub(a, b))
	case "*":
		return num(new(big.Int).Mul(a, b))
	case "/", "mod":
		if b.Sign() == 0 {
			return trapped(hostcall.ErrDivisionByZero)
		}
		q, r := new(big.Int).QuoRem(a, b, new(big.Int))
		if !abi.FitsInt128(q, signed) {
			return trapped(hostcall.ErrArithmeticOverflow)
		}
		if op == "/" {
			return num(q)
		}
		return num(r)
	case "pow":
		if b.Sign() < 0 || b.Cmp(maxExponent) > 0 {
			return trapped(hostcall.ErrPow)
		}
		if new(big.Int).Abs(a).Cmp(big.NewInt(1)) > 0 && b.Cmp(big.NewInt(256)) > 0 {
			return trapped(hostcall.ErrArithmeticOverflow)
		}
		return num(new(big.Int).Exp(a, b, nil))
	case "log2":
		if a.Sign() <= 0 {
			return trapped(hostcall.ErrLog2)
		}
		return num(big.NewInt(int64(a.BitLen() - 1)))
	case "sqrti":
		if a.Sign() < 0 {
			return trapped(hostcall.ErrSqrti)
		}
		return num(new(big.Int).Sqrt(a))
	case "<":
		return outcome{val: value.Bool(a.Cmp(b) < 0)}
	case "<=":
		return outcome{val: value.Bool(a.Cmp(b) <= 0)}
	case ">":
		return outcome{val: value.Bool(a.Cmp(b) > 0)}
	case ">=":
		return outcome{val: value.Bool(a.Cmp(b) >= 0)}
	}
	panic("unknown operator " + op)
}

// randomInt draws a value of up to maxBits bits, negated half the time
// when signed.
func randomInt(r *rand.Rand, signed bool, maxBits int) *big.Int {
	bits := r.Intn(maxBits + 1)
	v := new(big.Int).Rand(r, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
	if signed && r.Intn(2) == 0 {
		v.Neg(v)
	}
	return v
}

func bigOf(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return v
}

type arithCase struct {
	op     string
	signed bool
	a, b   *big.Int
}

func boundaryCases() []arithCase {
	minInt, maxInt, maxUInt := abi.MinInt128, abi.MaxInt128, abi.MaxUInt128
	one, zero, neg1 := big.NewInt(1), big.NewInt(0), big.NewInt(-1)
	two64 := new(big.Int).Lsh(one, 64)
	return []arithCase{
		{"*", true, minInt, neg1},
		{"*", true, neg1, minInt},
		{"*", true, minInt, one},
		{"*", true, two64, new(big.Int).Lsh(one, 62)},
		{"*", true, new(big.Int).Neg(two64), new(big.Int).Lsh(one, 63)},
		{"*", false, two64, two64},
		{"*", false, maxUInt, one},
		{"*", false, new(big.Int).Sub(two64, one), new(big.Int).Add(two64, one)},
		{"/", true, minInt, neg1},
		{"/", true, minInt, one},
		{"/", true, big.NewInt(-7), big.NewInt(2)},
		{"/", true, maxInt, zero},
		{"/", false, maxUInt, two64},
		{"/", false, one, zero},
		{"mod", true, big.NewInt(-7), big.NewInt(2)},
		{"mod", true, big.NewInt(7), big.NewInt(-2)},
		{"mod", true, minInt, maxInt},
		{"mod", false, maxUInt, new(big.Int).Add(two64, one)},
		{"mod", false, one, zero},
		{"-", true, minInt, one},
		{"-", true, maxInt, neg1},
		{"-", false, zero, one},
		{"-", false, two64, new(big.Int).Add(two64, one)},
		{"+", true, maxInt, one},
		{"+", true, minInt, neg1},
		{"+", false, maxUInt, one},
		{"+", false, new(big.Int).Sub(two64, one), one},
		{"pow", true, big.NewInt(-2), big.NewInt(127)},
		{"pow", true, big.NewInt(2), big.NewInt(127)},
		{"pow", true, big.NewInt(2), big.NewInt(126)},
		{"pow", true, big.NewInt(3), neg1},
		{"pow", true, neg1, bigOf("4294967295")},
		{"pow", true, big.NewInt(5), bigOf("4294967296")},
		{"pow", true, zero, zero},
		{"pow", false, big.NewInt(2), big.NewInt(128)},
		{"pow", false, big.NewInt(2), big.NewInt(127)},
		{"pow", false, bigOf("18446744073709551615"), big.NewInt(2)},
		{"log2", true, zero, nil},
		{"log2", true, neg1, nil},
		{"log2", true, maxInt, nil},
		{"log2", false, maxUInt, nil},
		{"log2", false, one, nil},
		{"sqrti", true, neg1, nil},
		{"sqrti", true, maxInt, nil},
		{"sqrti", false, maxUInt, nil},
		{"sqrti", false, two64, nil},
		{"sqrti", false, bigOf("99999999999999999999999999999999999999"), nil},
		{"<", true, minInt, maxInt},
		{"<", true, neg1, zero},
		{">=", true, minInt, minInt},
		{"<=", true, new(big.Int).Neg(two64), new(big.Int).Sub(new(big.Int).Neg(two64), one)},
		{">", false, two64, new(big.Int).Sub(two64, one)},
		{"<", false, maxUInt, two64},
	}
}

func randomCases(r *rand.Rand) []arithCase {
	var out []arithCase
	for _, f := range arithForms {
		for _, signed := range []bool{true, false} {
			width := 128
			if signed {
				width = 127
			}
			for range 40 {
				c := arithCase{op: f.op, signed: signed, a: randomInt(r, signed, width)}
				switch f.op {
				case "*":
					// keep about half of the products in range
					c.b = randomInt(r, signed, width-c.a.BitLen()+2)
				case "pow":
					c.a = randomInt(r, signed, 16)
					c.b = big.NewInt(int64(r.Intn(130)))
				default:
					if !f.unary {
						c.b = randomInt(r, signed, width)
					}
				}
				out = append(out, c)
			}
		}
	}
	return out
}

func TestArithmeticMatchesBigInt(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "arith", arithSource())
	names := make(map[string]string, len(arithForms))
	for _, f := range arithForms {
		names[f.op] = f.name
	}

	cases := append(boundaryCases(), randomCases(rand.New(rand.NewSource(7)))...)
	for _, tc := range cases {
		fn, mk := names[tc.op]+"-uint", value.UInt
		if tc.signed {
			fn, mk = names[tc.op]+"-int", value.Int
		}
		args := []value.Value{mk(tc.a)}
		if tc.b != nil {
			args = append(args, mk(tc.b))
		}
		want := reference(tc.op, tc.signed, tc.a, tc.b)
		got, err := h.Call(context.Background(), p, fn, args...)
		if want.fail {
			var re *RuntimeError
			if !errors.As(err, &re) || re.Code != want.trap {
				t.Fatalf("%s %s %v: got %s, %v; want trap %q", fn, tc.a, tc.b, got, err, want.trap)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s %s %v: %v", fn, tc.a, tc.b, err)
		}
		if !value.Equal(got, want.val) {
			t.Fatalf("%s %s %v: got %s, want %s", fn, tc.a, tc.b, got, want.val)
		}
	}
}
