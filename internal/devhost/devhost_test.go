package devhost

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"clarwasm/internal/assemble"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/diag"
	"clarwasm/internal/hostcall"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/value"
)

type externals = map[string]map[string]check.ExternalFunc

type compiled struct {
	contract *ast.Contract
	bin      []byte
	abi      assemble.ABI
}

func compile(t *testing.T, name, src string, ext externals) compiled {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddVirtual(name+".clar", []byte(src))
	bag := diag.NewBag(50)
	r := diag.BagReporter{Bag: bag}
	c := &ast.Contract{Name: name, File: id, Exprs: syntax.Read(fs.Get(id), r)}
	if !check.Check(c, check.Config{Deployer: DefaultSender, Externals: ext}, r) {
		t.Fatalf("check failed: %+v", bag.Items())
	}
	m, err := assemble.Assemble(context.Background(), c, assemble.Options{Externals: ext})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	bin, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return compiled{contract: c, bin: bin, abi: m.ABI}
}

func newHost(t *testing.T, opts Options) *Host {
	t.Helper()
	ctx := context.Background()
	h, err := New(ctx, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(ctx) })
	return h
}

func deploy(t *testing.T, h *Host, name, src string) value.Principal {
	t.Helper()
	c := compile(t, name, src, nil)
	p, err := h.Deploy(context.Background(), name, c.bin, c.abi)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	return p
}

func call(t *testing.T, h *Host, p value.Principal, fn string, args ...value.Value) value.Value {
	t.Helper()
	v, err := h.Call(context.Background(), p, fn, args...)
	if err != nil {
		t.Fatalf("%s: %v", fn, err)
	}
	return v
}

func expect(t *testing.T, got, want value.Value) {
	t.Helper()
	if !value.Equal(got, want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLiteralResult(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "answer", `(define-read-only (answer) 42)`)
	expect(t, call(t, h, p, "answer"), value.IntOf(42))
}

func TestConstantFromInitializer(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "consts", `
(define-constant three (+ 1 2))
(define-read-only (get-three) three)`)
	expect(t, call(t, h, p, "get-three"), value.IntOf(3))
}

func TestAdditionCarriesIntoHighWord(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "carry", `(define-read-only (add (a uint) (b uint)) (+ a b))`)
	max64 := new(big.Int).SetUint64(^uint64(0))
	want := new(big.Int).Lsh(big.NewInt(1), 64)
	expect(t, call(t, h, p, "add", value.UInt(max64), value.UIntOf(1)), value.UInt(want))

	neg := deploy(t, h, "signed", `(define-read-only (sub (a int) (b int)) (- a b))`)
	expect(t, call(t, h, neg, "sub", value.IntOf(3), value.IntOf(10)), value.IntOf(-7))
}

func TestOptionalResult(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "pick", `(define-read-only (pick (flag bool)) (if flag (some u7) none))`)
	expect(t, call(t, h, p, "pick", value.Bool(true)), value.Some(value.UIntOf(7)))
	expect(t, call(t, h, p, "pick", value.Bool(false)), value.None())
}

func TestDataVar(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "counter", `
(define-data-var counter uint u5)
(define-public (bump)
  (begin
    (var-set counter (+ (var-get counter) u1))
    (ok (var-get counter))))`)
	if v, ok := h.Var(p, "counter"); !ok || !value.Equal(v, value.UIntOf(5)) {
		t.Fatalf("initial counter = %s, %v", v, ok)
	}
	call(t, h, p, "bump")
	expect(t, call(t, h, p, "bump"), value.Ok(value.UIntOf(7)))
	if v, _ := h.Var(p, "counter"); !value.Equal(v, value.UIntOf(7)) {
		t.Fatalf("counter = %s", v)
	}
}

func TestMapWithMemoryValues(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "names", `
(define-map names principal (string-ascii 10))
(define-public (register (n (string-ascii 10)))
  (ok (map-set names tx-sender n)))
(define-read-only (lookup (who principal))
  (map-get? names who))`)
	who := value.PrincipalValue(DefaultSender)
	expect(t, call(t, h, p, "lookup", who), value.None())
	expect(t, call(t, h, p, "register", value.ASCII("alice")), value.Ok(value.Bool(true)))
	expect(t, call(t, h, p, "lookup", who), value.Some(value.ASCII("alice")))
	if v, ok := h.MapEntry(p, "names", who); !ok || !value.Equal(v, value.ASCII("alice")) {
		t.Fatalf("entry = %s, %v", v, ok)
	}
}

func TestListArgumentAndFold(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "sum", `
(define-private (add (x uint) (acc uint)) (+ x acc))
(define-read-only (sum (xs (list 5 uint))) (fold add xs u0))
(define-read-only (evens (xs (list 5 uint)))
  (filter is-even xs))
(define-private (is-even (x uint)) (is-eq (mod x u2) u0))`)
	xs := value.List(value.UIntOf(1), value.UIntOf(2), value.UIntOf(3), value.UIntOf(4))
	expect(t, call(t, h, p, "sum", xs), value.UIntOf(10))
	expect(t, call(t, h, p, "evens", xs), value.List(value.UIntOf(2), value.UIntOf(4)))
}

func TestHashes(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "hash", `(define-read-only (digest (b (buff 4))) (sha256 b))`)
	in := []byte{1, 2, 3, 4}
	sum := sha256.Sum256(in)
	expect(t, call(t, h, p, "digest", value.Buffer(in)), value.Buffer(sum[:]))
}

func TestSender(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "who", `
(define-read-only (me) tx-sender)
(define-read-only (is-me (p principal)) (is-eq p tx-sender))`)
	expect(t, call(t, h, p, "me"), value.PrincipalValue(DefaultSender))
	expect(t, call(t, h, p, "is-me", value.PrincipalValue(DefaultSender)), value.Bool(true))
	expect(t, call(t, h, p, "is-me", value.PrincipalValue(p)), value.Bool(false))
}

func TestTransfer(t *testing.T) {
	to := value.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.vault")
	h := newHost(t, Options{Balances: map[string]*big.Int{DefaultSender.String(): big.NewInt(100)}})
	p := deploy(t, h, "pay", `
(define-public (pay (amount uint) (to principal))
  (stx-transfer? amount tx-sender to))`)
	expect(t, call(t, h, p, "pay", value.UIntOf(30), value.PrincipalValue(to)), value.Ok(value.Bool(true)))
	expect(t, call(t, h, p, "pay", value.UIntOf(300), value.PrincipalValue(to)),
		value.Err(value.UIntOf(hostcall.TransferNotEnoughBalance)))
	expect(t, call(t, h, p, "pay", value.UIntOf(0), value.PrincipalValue(to)),
		value.Err(value.UIntOf(hostcall.TransferNonPositive)))
	if h.Balance(to).Int64() != 30 || h.Balance(DefaultSender).Int64() != 70 {
		t.Fatalf("balances %s / %s", h.Balance(DefaultSender), h.Balance(to))
	}
}

func TestPrint(t *testing.T) {
	var seen []string
	h := newHost(t, Options{Print: func(_ value.Principal, v value.Value) { seen = append(seen, v.String()) }})
	p := deploy(t, h, "hello", `
(print u1)
(define-public (hello) (begin (print "hi") (ok true)))`)
	call(t, h, p, "hello")
	got := h.Printed()
	if len(got) != 2 || !value.Equal(got[0].Value, value.UIntOf(1)) || !value.Equal(got[1].Value, value.ASCII("hi")) {
		t.Fatalf("printed %+v", got)
	}
	if len(seen) != 2 || seen[1] != `"hi"` {
		t.Fatalf("callback saw %v", seen)
	}
}

func TestRuntimeError(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "boom", `(define-read-only (add (a uint) (b uint)) (+ a b))`)
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	_, err := h.Call(context.Background(), p, "add", value.UInt(max), value.UIntOf(1))
	var re *RuntimeError
	if !errors.As(err, &re) || re.Code != hostcall.ErrArithmeticOverflow {
		t.Fatalf("expected overflow, got %v", err)
	}
	// the host stays usable after a trap
	expect(t, call(t, h, p, "add", value.UIntOf(1), value.UIntOf(1)), value.UIntOf(2))
}

func TestArgumentChecks(t *testing.T) {
	h := newHost(t, Options{})
	p := deploy(t, h, "args", `(define-read-only (f (s (string-ascii 3))) (len s))`)
	var ae *ArgumentError
	if _, err := h.Call(context.Background(), p, "f"); !errors.As(err, &ae) {
		t.Fatalf("expected an arity error, got %v", err)
	}
	if _, err := h.Call(context.Background(), p, "f", value.ASCII("long")); !errors.As(err, &ae) || ae.Index != 0 {
		t.Fatalf("expected a length error, got %v", err)
	}
	if _, err := h.Call(context.Background(), p, "g"); !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected unknown function, got %v", err)
	}
	expect(t, call(t, h, p, "f", value.ASCII("abc")), value.UIntOf(3))
}

func TestContractCall(t *testing.T) {
	h := newHost(t, Options{})
	callee := compile(t, "callee", `
(define-public (double (x uint)) (ok (* x u2)))
(define-read-only (caller) contract-caller)`, nil)
	cp, err := h.Deploy(context.Background(), "callee", callee.bin, callee.abi)
	if err != nil {
		t.Fatalf("Deploy callee: %v", err)
	}
	ext := externals{cp.String(): check.Exports(callee.contract)}
	caller := compile(t, "caller", `
(define-public (quad (x uint))
  (let ((once (unwrap-panic (contract-call? 'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.callee double x))))
    (contract-call? 'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.callee double once)))
(define-read-only (via) (contract-call? 'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.callee caller))`, ext)
	p, err := h.Deploy(context.Background(), "caller", caller.bin, caller.abi)
	if err != nil {
		t.Fatalf("Deploy caller: %v", err)
	}
	expect(t, call(t, h, p, "quad", value.UIntOf(5)), value.Ok(value.UIntOf(20)))
	expect(t, call(t, h, p, "via"), value.PrincipalValue(p))
	expect(t, call(t, h, cp, "caller"), value.PrincipalValue(DefaultSender))
}

func TestDeployErrors(t *testing.T) {
	h := newHost(t, Options{})
	deploy(t, h, "once", `(define-read-only (f) 1)`)
	c := compile(t, "once", `(define-read-only (f) 1)`, nil)
	if _, err := h.Deploy(context.Background(), "once", c.bin, c.abi); err == nil {
		t.Fatalf("expected a duplicate deployment error")
	}
	if _, err := h.Call(context.Background(), DefaultSender.Contract("missing"), "f"); !errors.Is(err, ErrUnknownContract) {
		t.Fatalf("expected unknown contract, got %v", err)
	}

	// A bool parameter takes one i32 slot while the uint ABI asks for two i64.
	wasmBool := compile(t, "mismatch", `(define-read-only (f (x bool)) x)`, nil)
	abiUint := compile(t, "mismatch", `(define-read-only (f (x uint)) x)`, nil)
	if _, err := h.Deploy(context.Background(), "mismatch", wasmBool.bin, abiUint.abi); !errors.Is(err, ErrNonConforming) {
		t.Fatalf("expected a non-conforming module error, got %v", err)
	}
	// The failed deployment must not leave the name taken.
	if _, err := h.Deploy(context.Background(), "mismatch", abiUint.bin, abiUint.abi); err != nil {
		t.Fatalf("Deploy after rejection: %v", err)
	}
}
