package check

import (
	"strings"
	"testing"

	"clarwasm/internal/ast"
	"clarwasm/internal/diag"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

const deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

func checkSource(t *testing.T, src string, cfg Config) (*ast.Contract, *diag.Bag, bool) {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddVirtual("test.clar", []byte(src))
	bag := diag.NewBag(50)
	r := diag.BagReporter{Bag: bag}
	exprs := syntax.Read(fs.Get(id), r)
	if bag.HasErrors() {
		t.Fatalf("read errors: %+v", bag.Items())
	}
	if cfg.Deployer.Version == 0 {
		cfg.Deployer = value.MustPrincipal(deployer)
	}
	c := &ast.Contract{Name: "test", File: id, Exprs: exprs}
	ok := Check(c, cfg, r)
	return c, bag, ok
}

func decl(t *testing.T, c *ast.Contract, name string) *ast.Decl {
	t.Helper()
	for _, e := range c.Exprs {
		if e.Decl != nil && e.Decl.Name == name {
			return e.Decl
		}
	}
	t.Fatalf("no definition %q", name)
	return nil
}

func TestCheckResultTypes(t *testing.T) {
	c, bag, ok := checkSource(t, `
(define-constant owner tx-sender)
(define-data-var counter uint u0)
(define-map balances principal {amount: uint, frozen: bool})
(define-read-only (get-counter) (var-get counter))
(define-public (withdraw (amount uint))
  (let ((entry (unwrap! (map-get? balances tx-sender) (err u404))))
    (asserts! (not (get frozen entry)) (err u403))
    (asserts! (<= amount (get amount entry)) (err u1))
    (ok (- (get amount entry) amount))))
(define-private (pick (flag bool)) (if flag (some 1) none))
(define-read-only (both) {b: (pick true), a: owner})
`, Config{})
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	cases := map[string]string{
		"get-counter": "uint",
		"withdraw":    "(response uint uint)",
		"pick":        "(optional int)",
		"both":        "(tuple (a principal) (b (optional int)))",
	}
	for name, want := range cases {
		if got := decl(t, c, name).Result.String(); got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}
	if got := decl(t, c, "balances").Key; got.Kind != types.KindPrincipal {
		t.Fatalf("map key %s", got)
	}
}

func TestCheckAnnotatesEveryNode(t *testing.T) {
	c, bag, ok := checkSource(t, `(define-public (f (x int)) (ok (+ x (* 2 x))))`, Config{})
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	body := decl(t, c, "f").Body[0]
	ast.Walk(body, func(e *ast.Expr) bool {
		if e.Kind == ast.KindAtom && e.Name != "x" {
			return true
		}
		if e.Type == nil {
			t.Fatalf("node %+v has no type", e)
		}
		return true
	})
	if got := body.Type.String(); got != "(response int notype)" {
		t.Fatalf("body type %s", got)
	}
}

func TestCheckPublicWithoutResponseWarns(t *testing.T) {
	_, bag, ok := checkSource(t, `(define-public (answer) 42)`, Config{})
	if !ok {
		t.Fatalf("expected success, got %+v", bag.Items())
	}
	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.CheckBadReturn || items[0].Severity != diag.SevWarning {
		t.Fatalf("expected one CheckBadReturn warning, got %+v", items)
	}
}

func TestCheckContractShorthand(t *testing.T) {
	c, bag, ok := checkSource(t, `(define-constant me .token)`, Config{})
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	lit := decl(t, c, "me").Body[0]
	if lit.Kind != ast.KindLiteral || lit.Value.Principal.String() != deployer+".token" {
		t.Fatalf("shorthand not resolved: %+v", lit)
	}
}

func TestCheckContractCall(t *testing.T) {
	target := deployer + ".token"
	cfg := Config{Externals: map[string]map[string]ExternalFunc{
		target: {"transfer": {Kind: ast.DeclPublic, Params: []*types.Type{types.UInt()}, Result: types.Response(types.Bool(), types.UInt())}},
	}}
	c, bag, ok := checkSource(t, `(define-public (pay) (contract-call? .token transfer u5))`, cfg)
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	if got := decl(t, c, "pay").Result.String(); got != "(response bool uint)" {
		t.Fatalf("result %s", got)
	}

	_, bag, ok = checkSource(t, `(define-public (pay) (contract-call? .token burn u5))`, cfg)
	if ok || bag.Items()[0].Code != diag.CheckUnknownFunction {
		t.Fatalf("expected CheckUnknownFunction, got %+v", bag.Items())
	}
}

func TestCheckSequenceTypes(t *testing.T) {
	c, bag, ok := checkSource(t, `
(define-private (double (x int)) (* x 2))
(define-private (positive (x int)) (> x 0))
(define-private (sum (x int) (acc int)) (+ x acc))
(define-read-only (a) (map double (list 1 2 3)))
(define-read-only (b) (filter positive (list 1 -2)))
(define-read-only (c) (fold sum (list 1 2) 0))
(define-read-only (d) (concat 0x0102 0x03))
(define-read-only (e) (append (list) u1))
(define-read-only (f) (as-max-len? (list 1 2) u5))
(define-read-only (g) (element-at? "abc" u1))
`, Config{})
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	cases := map[string]string{
		"a": "(list 3 int)",
		"b": "(list 2 int)",
		"c": "int",
		"d": "(buff 3)",
		"e": "(list 1 uint)",
		"f": "(optional (list 5 int))",
		"g": "(optional (string-ascii 1))",
	}
	for name, want := range cases {
		if got := decl(t, c, name).Result.String(); got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}
}

func TestCheckErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		code diag.Code
	}{
		{"unknown name", `(define-read-only (f) y)`, diag.CheckUnknownName},
		{"mixed integers", `(define-read-only (f) (+ 1 u1))`, diag.CheckTypeMismatch},
		{"arity", `(define-read-only (f) (not true false))`, diag.CheckArity},
		{"branches", `(define-read-only (f) (if true 1 u1))`, diag.CheckTypeMismatch},
		{"recursion", `(define-private (f) (f))`, diag.CheckBadForm},
		{"duplicate", "(define-constant a 1)\n(define-constant a 2)", diag.CheckDuplicateDef},
		{"builtin shadow", `(define-read-only (f) (let ((len 1)) len))`, diag.CheckDuplicateDef},
		{"bad type", `(define-data-var v (buff x) 0x)`, diag.CheckBadTypeSyntax},
		{"too large", `(define-data-var v (buff 100000000) 0x)`, diag.CheckValueTooLarge},
		{"var type", `(define-data-var v uint 1)`, diag.CheckTypeMismatch},
		{"unknown function", `(define-read-only (f) (g 1))`, diag.CheckUnknownFunction},
		{"top-level exit", `(asserts! true (err u1))`, diag.CheckBadForm},
		{"early exit clash", `(define-public (f) (begin (asserts! true (err u1)) (ok 1) (err 2)))`, diag.CheckTypeMismatch},
		{"nested define", `(define-read-only (f) (define-constant x 1))`, diag.CheckBadForm},
		{"unknown token", `(define-public (f) (ft-mint? gold u1 tx-sender))`, diag.CheckUnknownName},
		{"token kinds", "(define-fungible-token gold)\n(define-public (f) (nft-burn? gold u1 tx-sender))", diag.CheckUnknownName},
		{"token arity", "(define-fungible-token gold)\n(define-public (f) (ft-mint? gold u1))", diag.CheckArity},
		{"token supply", `(define-fungible-token gold 5)`, diag.CheckTypeMismatch},
		{"asset type", "(define-non-fungible-token b uint)\n(define-public (f) (nft-mint? b 1 tx-sender))", diag.CheckTypeMismatch},
		{"nested token", `(define-read-only (f) (define-fungible-token gold))`, diag.CheckBadForm},
		{"memo size", `(define-public (f) (stx-transfer-memo? u1 tx-sender tx-sender 0x` + strings.Repeat("00", 35) + `))`, diag.CheckTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, bag, ok := checkSource(t, tc.src, Config{})
			if ok {
				t.Fatalf("expected failure")
			}
			d, found := bag.FirstError()
			if !found || d.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code.ID(), bag.Items())
			}
		})
	}
}

func TestCheckTokens(t *testing.T) {
	c, bag, ok := checkSource(t, `
(define-fungible-token gold u100)
(define-non-fungible-token badge {id: uint, tier: (string-ascii 8)})
(define-public (mint) (ft-mint? gold u10 tx-sender))
(define-read-only (supply) (ft-get-supply gold))
(define-read-only (owner) (nft-get-owner? badge {id: u1, tier: "gold"}))
(define-public (burn) (stx-burn? u1 tx-sender))
(define-read-only (account) (stx-account tx-sender))
`, Config{})
	if !ok {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	cases := map[string]string{
		"gold":    "uint",
		"mint":    "(response bool uint)",
		"supply":  "uint",
		"owner":   "(optional principal)",
		"burn":    "(response bool uint)",
		"account": "(tuple (locked uint) (unlock-height uint) (unlocked uint))",
	}
	for name, want := range cases {
		if got := decl(t, c, name).Result.String(); got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}
	if d := decl(t, c, "badge"); d.Kind != ast.DeclNonFungibleToken || d.Key.Kind != types.KindTuple {
		t.Fatalf("badge: %+v", d)
	}
}

func TestParseTypeRoundTrip(t *testing.T) {
	for _, src := range []string{
		"int",
		"(buff 20)",
		"(list 0 notype)",
		"(response bool notype)",
		"(optional (string-ascii 5))",
		"(tuple (a int) (b (list 3 (string-utf8 2))))",
	} {
		ty, err := ParseType(src)
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		if got := ty.String(); got != src {
			t.Fatalf("got %s, want %s", got, src)
		}
	}
}

func TestParseTypeRejects(t *testing.T) {
	for _, src := range []string{"", "int uint", "(buff)", "(list 2 widget)", "(tuple (a int) (a int))"} {
		if _, err := ParseType(src); err == nil {
			t.Fatalf("%q: expected an error", src)
		}
	}
}
