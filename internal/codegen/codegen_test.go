package codegen

import (
	"errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"clarwasm/internal/abi"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/diag"
	"clarwasm/internal/memory"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/value"
	"clarwasm/internal/wasm"
)

func prepare(t *testing.T, src string) (*Generator, *ast.Contract) {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddVirtual("test.clar", []byte(src))
	bag := diag.NewBag(50)
	r := diag.BagReporter{Bag: bag}
	exprs := syntax.Read(fs.Get(id), r)
	c := &ast.Contract{Name: "test", File: id, Exprs: exprs}
	cfg := check.Config{Deployer: value.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")}
	if !check.Check(c, cfg, r) {
		t.Fatalf("check failed: %+v", bag.Items())
	}
	alloc := memory.NewAllocator(64 << 10)
	g := New(abi.NewMapper(), alloc)
	if err := g.InternLiterals(c); err != nil {
		t.Fatalf("InternLiterals: %v", err)
	}
	alloc.Seal()
	if err := g.Declare(c); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	return g, c
}

func lowerNamed(t *testing.T, g *Generator, c *ast.Contract, name string) (*wasm.Function, error) {
	t.Helper()
	for _, e := range c.Exprs {
		if e.Decl != nil && e.Decl.Name == name {
			return g.LowerFunction(e.Decl)
		}
	}
	t.Fatalf("no function %q", name)
	return nil, nil
}

func mustLower(t *testing.T, g *Generator, c *ast.Contract, name string) *wasm.Function {
	t.Helper()
	fn, err := lowerNamed(t, g, c, name)
	if err != nil {
		t.Fatalf("lower %s: %v", name, err)
	}
	return fn
}

func sameInstrs(t *testing.T, what string, got, want []wasm.Instr) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d instructions, want %d: %+v", what, len(got), len(want), got)
	}
	for i := range got {
		if got[i].Op != want[i].Op || got[i].Imm != want[i].Imm {
			t.Fatalf("%s[%d] = %v %d, want %v %d", what, i, got[i].Op, got[i].Imm, want[i].Op, want[i].Imm)
		}
	}
}

func TestLowerLiteralResultHasNoFrame(t *testing.T) {
	g, c := prepare(t, `(define-read-only (answer) 42)`)
	fn := mustLower(t, g, c, "answer")
	sameInstrs(t, "body", fn.Body, []wasm.Instr{wasm.I64Const(42), wasm.I64Const(0)})
	if len(fn.Type.Params) != 0 || len(fn.Type.Results) != 2 {
		t.Fatalf("signature = %+v", fn.Type)
	}
	if len(g.Imports()) != 0 {
		t.Fatalf("imports = %+v, want none", g.Imports())
	}
}

func TestLowerIfSomeNone(t *testing.T) {
	g, c := prepare(t, `(define-private (pick (flag bool)) (if flag (some 1) none))`)
	fn := mustLower(t, g, c, "pick")
	if len(fn.Body) != 2 || fn.Body[0].Op != wasm.OpLocalGet || fn.Body[1].Op != wasm.OpIf {
		t.Fatalf("body = %+v", fn.Body)
	}
	br := fn.Body[1]
	want := []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI64}
	if len(br.Block) != len(want) {
		t.Fatalf("block type = %v", br.Block)
	}
	for i := range want {
		if br.Block[i] != want[i] {
			t.Fatalf("block type = %v, want %v", br.Block, want)
		}
	}
	sameInstrs(t, "then", br.Body, []wasm.Instr{wasm.I32Const(1), wasm.I64Const(1), wasm.I64Const(0)})
	sameInstrs(t, "else", br.Else, []wasm.Instr{wasm.I32Const(0), wasm.I64Const(0), wasm.I64Const(0)})
}

func TestLowerGetReadsStoredField(t *testing.T) {
	g, c := prepare(t, `
(define-constant cfg (tuple (a true) (b u2) (c (+ 2 3))))
(define-read-only (third) (get c cfg))`)
	k := g.consts["cfg"]
	if k == nil || k.literal != nil {
		t.Fatalf("cfg should be a computed constant: %+v", k)
	}
	fn := mustLower(t, g, c, "third")
	var offs []uint32
	for _, in := range fn.Body {
		if in.Op == wasm.OpI64Load {
			offs = append(offs, in.Offset)
		}
	}
	// a is a 4-byte bool and b a 16-byte uint
	want := []uint32{k.slot.Offset + 20, k.slot.Offset + 28}
	if len(offs) != 2 || offs[0] != want[0] || offs[1] != want[1] {
		t.Fatalf("load offsets = %v, want %v", offs, want)
	}
}

func TestLowerUnsupportedConstruct(t *testing.T) {
	g, c := prepare(t, `(define-read-only (root) (sqrti u16))`)
	_, err := lowerNamed(t, g, c, "root")
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnsupportedError", err)
	}
	if ue.Construct != "sqrti" {
		t.Fatalf("construct = %q", ue.Construct)
	}
}

func TestHelpersAreShared(t *testing.T) {
	g, c := prepare(t, `
(define-read-only (f (x uint)) (+ x u1))
(define-read-only (h (x uint)) (+ x x u2))`)
	mustLower(t, g, c, "f")
	mustLower(t, g, c, "h")
	hs := g.Helpers()
	if len(hs) != 1 || hs[0].Name != helperAddUInt {
		names := make([]string, len(hs))
		for i, h := range hs {
			names[i] = h.Name
		}
		t.Fatalf("helpers = %v, want [%s]", names, helperAddUInt)
	}
	imps := g.Imports()
	if len(imps) != 1 || imps[0].Name != "runtime_error" {
		t.Fatalf("imports = %+v, want runtime_error only", imps)
	}
}

func TestMemoryResultKeepsFrame(t *testing.T) {
	g, c := prepare(t, `(define-read-only (nums) (list 1 2 3))`)
	fn := mustLower(t, g, c, "nums")
	if fn.Body[0].Op != wasm.OpGlobalGet || fn.Body[0].Sym != StackPointer {
		t.Fatalf("body should open with the prologue: %+v", fn.Body[0])
	}
	last := fn.Body[len(fn.Body)-1]
	if last.Op == wasm.OpGlobalSet {
		t.Fatalf("frame of a memory-backed result must not be released")
	}
}

func TestFlatResultReleasesFrame(t *testing.T) {
	g, c := prepare(t, `(define-read-only (n) (len (concat (list 1 2) (list 3))))`)
	fn := mustLower(t, g, c, "n")
	last := fn.Body[len(fn.Body)-1]
	if last.Op != wasm.OpGlobalSet || last.Sym != StackPointer {
		t.Fatalf("last = %+v, want global.set %s", last, StackPointer)
	}
}

func TestHostImportsFollowUse(t *testing.T) {
	g, c := prepare(t, `
(define-data-var hits uint u0)
(define-public (bump) (ok (var-set hits (+ (var-get hits) block-height))))`)
	mustLower(t, g, c, "bump")
	var names []string
	for _, imp := range g.Imports() {
		names = append(names, imp.Name)
	}
	want := []string{"get_variable", "set_variable", "block_height", "runtime_error"}
	if len(names) != len(want) {
		t.Fatalf("imports = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("imports = %v, want %v", names, want)
		}
	}
}

func TestReservedNames(t *testing.T) {
	for _, name := range []string{"map_get", "print", TopLevel} {
		if !IsReserved(name) {
			t.Fatalf("%q should be reserved", name)
		}
	}
	if IsReserved("transfer") {
		t.Fatalf("transfer should not be reserved")
	}
}
