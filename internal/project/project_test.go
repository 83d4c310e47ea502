package project

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/value"
)

const testDeployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsValidContractName(t *testing.T) {
	for name, want := range map[string]bool{
		"counter":                 true,
		"nft-trait_v2":            true,
		"A":                       true,
		"":                        false,
		"2fast":                   false,
		"-lead":                   false,
		"has space":               false,
		"dot.ted":                 false,
		strings.Repeat("a", 40):   true,
		strings.Repeat("a", 41):   false,
	} {
		if got := IsValidContractName(name); got != want {
			t.Fatalf("IsValidContractName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScanCalls(t *testing.T) {
	src := `
(define-public (a) (contract-call? .token transfer u1))
(define-public (b)
  (begin
    (contract-call? 'ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.vault deposit)
    (contract-call? .token transfer u2)))
(define-public (c) (contract-call? tx-sender nope))
`
	fs := source.NewFileSet()
	id := fs.AddVirtual("calls.clar", []byte(src))
	exprs := syntax.Read(fs.Get(id), nil)
	calls := ScanCalls(exprs, value.MustPrincipal(testDeployer))
	want := []string{testDeployer + ".token", testDeployer + ".vault"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %v", calls, want)
	}
	for i, w := range want {
		if calls[i].Target != w {
			t.Fatalf("calls[%d] = %q, want %q", i, calls[i].Target, w)
		}
		if calls[i].Span.Empty() {
			t.Fatalf("calls[%d] has no span", i)
		}
	}
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, `
[project]
name = "bank"
deployer = "`+testDeployer+`"

[[contract]]
name = "vault"
path = "contracts/vault.clar"

[[contract]]
name = "teller"
path = "contracts/teller.clar"

[[requires]]
principal = "`+testDeployer+`.token"
abi = "deps/token.abi.mp"

[codegen]
stack-budget = 65536
max-frame = 4096

[output]
dir = "out"
`)
	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Root != dir || m.Config.Project.Name != "bank" || len(m.Config.Contracts) != 2 {
		t.Fatalf("manifest %+v", m)
	}
	if m.Deployer().String() != testDeployer {
		t.Fatalf("deployer %s", m.Deployer())
	}
	if m.Config.Codegen.StackBudget != 65536 || m.Config.Codegen.MaxFrame != 4096 {
		t.Fatalf("codegen %+v", m.Config.Codegen)
	}
	if got := m.OutputDir(); got != filepath.Join(dir, "out") {
		t.Fatalf("OutputDir = %s", got)
	}
	if got := m.ContractPath(m.Config.Contracts[1]); got != filepath.Join(dir, "contracts", "teller.clar") {
		t.Fatalf("ContractPath = %s", got)
	}
	if got := m.RequirePath(m.Config.Requires[0]); got != filepath.Join(dir, "deps", "token.abi.mp") {
		t.Fatalf("RequirePath = %s", got)
	}
}

func TestReadManifestRejects(t *testing.T) {
	head := "[project]\nname = \"p\"\ndeployer = \"" + testDeployer + "\"\n"
	tests := []struct {
		name, body, want string
	}{
		{"no name", "[project]\ndeployer = \"" + testDeployer + "\"\n[[contract]]\nname = \"a\"\npath = \"a.clar\"\n", "[project].name"},
		{"bad deployer", "[project]\nname = \"p\"\ndeployer = \"nope\"\n[[contract]]\nname = \"a\"\npath = \"a.clar\"\n", "[project].deployer"},
		{"contract deployer", "[project]\nname = \"p\"\ndeployer = \"" + testDeployer + ".x\"\n[[contract]]\nname = \"a\"\npath = \"a.clar\"\n", "standard principal"},
		{"no contracts", head, "no [[contract]]"},
		{"bad contract name", head + "[[contract]]\nname = \"1a\"\npath = \"a.clar\"\n", "invalid name"},
		{"wrong extension", head + "[[contract]]\nname = \"a\"\npath = \"a.txt\"\n", ".clar"},
		{"escapes root", head + "[[contract]]\nname = \"a\"\npath = \"../a.clar\"\n", "escapes"},
		{"duplicate", head + "[[contract]]\nname = \"a\"\npath = \"a.clar\"\n[[contract]]\nname = \"a\"\npath = \"b.clar\"\n", "declared twice"},
		{"unknown key", head + "colour = \"red\"\n[[contract]]\nname = \"a\"\npath = \"a.clar\"\n", "unknown key"},
		{"requires standard", head + "[[contract]]\nname = \"a\"\npath = \"a.clar\"\n[[requires]]\nprincipal = \"" + testDeployer + "\"\nabi = \"x.abi.mp\"\n", "not a contract principal"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		path := filepath.Join(dir, ManifestName)
		writeFile(t, path, tt.body)
		_, err := ReadManifest(path)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	data, err := Template("counter", testDeployer)
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	writeFile(t, path, string(data))
	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest(template): %v\n%s", err, data)
	}
	c := m.Config.Contracts[0]
	if c.Name != "counter" || c.Path != "contracts/counter.clar" {
		t.Fatalf("contract %+v", c)
	}
}

func TestFindProjectRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), "")
	nested := filepath.Join(dir, "contracts", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	root, ok, err := FindProjectRoot(nested)
	if err != nil || !ok {
		t.Fatalf("FindProjectRoot: %v %v", ok, err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(root)
	if got != want {
		t.Fatalf("root = %s, want %s", got, want)
	}
}

func TestCombineDependsOnOrder(t *testing.T) {
	a, b, c := Digest{1}, Digest{2}, Digest{3}
	if Combine(a, b, c) == Combine(a, c, b) {
		t.Fatalf("callee order must change the hash")
	}
	if Combine(a, b) != Combine(a, b) {
		t.Fatalf("Combine is not deterministic")
	}
	if Combine(a) == a {
		t.Fatalf("Combine must rehash the content")
	}
}
