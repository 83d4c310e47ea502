package buildpipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"clarwasm/internal/artifact"
	"clarwasm/internal/devhost"
	"clarwasm/internal/diag"
	"clarwasm/internal/observ"
	"clarwasm/internal/project"
	"clarwasm/internal/source"
	"clarwasm/internal/value"
)

const deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

const vaultSrc = `
(define-data-var total uint u0)
(define-public (double (x uint)) (ok (* x u2)))
`

const tellerSrc = `
(define-public (quad (x uint))
  (let ((once (unwrap-panic (contract-call? .vault double x))))
    (contract-call? .vault double once)))
`

type contractFile struct {
	name, src string
}

func writeProject(t *testing.T, extra string, contracts ...contractFile) *project.Manifest {
	t.Helper()
	dir := t.TempDir()
	manifest := "[project]\nname = \"bank\"\ndeployer = \"" + deployer + "\"\n" + extra
	for _, c := range contracts {
		manifest += "\n[[contract]]\nname = \"" + c.name + "\"\npath = \"contracts/" + c.name + ".clar\"\n"
		writeFile(t, filepath.Join(dir, "contracts", c.name+".clar"), c.src)
	}
	path := filepath.Join(dir, project.ManifestName)
	writeFile(t, path, manifest)
	m, err := project.ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	return m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func codes(bag *diag.Bag) []diag.Code {
	var out []diag.Code
	for _, d := range bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestCompileSingleContract(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("contracts/counter.clar", []byte(vaultSrc))
	sink := &RecordingSink{}
	timer := observ.NewTimer()
	res, err := Compile(context.Background(), &CompileRequest{
		Files:    fs,
		File:     id,
		Deployer: value.MustPrincipal(deployer),
		Progress: sink,
		Timer:    timer,
	})
	if err != nil {
		t.Fatalf("Compile: %v (%v)", err, res.Bag.Items())
	}
	if res.Contract.Name != "counter" {
		t.Fatalf("name = %q", res.Contract.Name)
	}
	if len(res.Wasm) < 8 || string(res.Wasm[:4]) != "\x00asm" {
		t.Fatalf("not a wasm module")
	}
	for _, stage := range []Stage{StageRead, StageCheck, StageAssemble, StageEncode} {
		if !res.Timings.Has(stage) {
			t.Fatalf("no timing for %s", stage)
		}
	}
	if got := len(timer.Report().Phases); got != 4 {
		t.Fatalf("timer phases = %d, want 4", got)
	}
	for _, ev := range sink.Events() {
		if ev.Contract != "counter" || ev.Status != StatusWorking {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestCompileReportsCheckErrors(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("bad.clar", []byte(`(define-read-only (f) (+ 1 u1))`))
	sink := &RecordingSink{}
	res, err := Compile(context.Background(), &CompileRequest{Files: fs, File: id, Progress: sink})
	if !errors.Is(err, ErrDiagnostics) {
		t.Fatalf("err = %v, want ErrDiagnostics", err)
	}
	if !hasCode(res.Bag, diag.CheckTypeMismatch) {
		t.Fatalf("diagnostics = %v", codes(res.Bag))
	}
	events := sink.Events()
	last := events[len(events)-1]
	if last.Stage != StageCheck || last.Status != StatusError {
		t.Fatalf("last event %+v", last)
	}
	if res.Module != nil || res.Wasm != nil {
		t.Fatalf("no module expected after check errors")
	}
}

func TestBuildProjectCalleesFirst(t *testing.T) {
	m := writeProject(t, "", contractFile{"teller", tellerSrc}, contractFile{"vault", vaultSrc})
	ctx := context.Background()
	res, err := Build(ctx, &BuildRequest{Manifest: m, Compiler: "test"})
	if err != nil {
		t.Fatalf("Build: %v (%v)", err, codes(res.Bag))
	}
	if len(res.Contracts) != 2 || res.Contracts[0].Meta.Name != "vault" || res.Contracts[1].Meta.Name != "teller" {
		t.Fatalf("contracts = %+v", res.Contracts)
	}
	for _, c := range res.Contracts {
		if c.Cached {
			t.Fatalf("%s: first build cannot be cached", c.Meta.Name)
		}
		s, err := artifact.Read(c.SidecarPath)
		if err != nil {
			t.Fatalf("sidecar %s: %v", c.Meta.Name, err)
		}
		if s.Principal != deployer+"."+c.Meta.Name || s.Hash != c.Meta.Hash {
			t.Fatalf("sidecar %+v", s)
		}
	}
	if !res.Timings.Has(StageWrite) {
		t.Fatalf("write stage not timed")
	}

	h, err := devhost.New(ctx, devhost.Options{})
	if err != nil {
		t.Fatalf("devhost: %v", err)
	}
	defer h.Close(ctx)
	var teller value.Principal
	for _, c := range res.Contracts {
		p, err := h.Deploy(ctx, c.Meta.Name, c.Wasm, c.ABI)
		if err != nil {
			t.Fatalf("Deploy %s: %v", c.Meta.Name, err)
		}
		teller = p
	}
	got, err := h.Call(ctx, teller, "quad", value.UIntOf(3))
	if err != nil {
		t.Fatalf("quad: %v", err)
	}
	if !value.Equal(got, value.Ok(value.UIntOf(12))) {
		t.Fatalf("quad = %s", got)
	}
}

func TestBuildReusesFreshArtifacts(t *testing.T) {
	m := writeProject(t, "", contractFile{"teller", tellerSrc}, contractFile{"vault", vaultSrc})
	ctx := context.Background()
	if _, err := Build(ctx, &BuildRequest{Manifest: m}); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	sink := &RecordingSink{}
	res, err := Build(ctx, &BuildRequest{Manifest: m, Progress: sink})
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	for _, c := range res.Contracts {
		if !c.Cached || len(c.Wasm) == 0 {
			t.Fatalf("%s was rebuilt", c.Meta.Name)
		}
	}
	cached := 0
	for _, ev := range sink.Events() {
		if ev.Status == StatusCached {
			cached++
		}
	}
	if cached != 2 {
		t.Fatalf("cached events = %d", cached)
	}

	// a callee change invalidates its callers
	writeFile(t, filepath.Join(m.Root, "contracts", "vault.clar"), vaultSrc+"\n(define-read-only (one) u1)\n")
	res, err = Build(ctx, &BuildRequest{Manifest: m})
	if err != nil {
		t.Fatalf("third Build: %v", err)
	}
	for _, c := range res.Contracts {
		if c.Cached {
			t.Fatalf("%s reused after its callee changed", c.Meta.Name)
		}
	}

	res, err = Build(ctx, &BuildRequest{Manifest: m, Force: true})
	if err != nil || res.Contracts[0].Cached {
		t.Fatalf("forced build reused artifacts: %v", err)
	}
}

func TestBuildSkipsCallersOfBrokenContracts(t *testing.T) {
	m := writeProject(t, "",
		contractFile{"teller", tellerSrc},
		contractFile{"vault", `(define-public (double (x uint)) (ok (* x 2)))`},
		contractFile{"clock", `(define-read-only (now) block-height)`},
	)
	res, err := Build(context.Background(), &BuildRequest{Manifest: m, DryRun: true})
	if !errors.Is(err, ErrDiagnostics) {
		t.Fatalf("err = %v", err)
	}
	if !hasCode(res.Bag, diag.CheckTypeMismatch) || !hasCode(res.Bag, diag.ProjDependencyError) {
		t.Fatalf("diagnostics = %v", codes(res.Bag))
	}
	if len(res.Contracts) != 1 || res.Contracts[0].Meta.Name != "clock" {
		t.Fatalf("contracts = %+v", res.Contracts)
	}
	if _, err := os.Stat(m.OutputDir()); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote to %s", m.OutputDir())
	}
}

func TestBuildReportsCycles(t *testing.T) {
	m := writeProject(t, "",
		contractFile{"ping", `(define-public (ping) (contract-call? .pong pong))`},
		contractFile{"pong", `(define-public (pong) (contract-call? .ping ping))`},
	)
	res, err := Build(context.Background(), &BuildRequest{Manifest: m, DryRun: true})
	if !errors.Is(err, ErrDiagnostics) {
		t.Fatalf("err = %v", err)
	}
	n := 0
	for _, d := range res.Bag.Items() {
		if d.Code == diag.ProjCallCycle {
			n++
		}
	}
	if n != 2 || len(res.Contracts) != 0 {
		t.Fatalf("cycle diagnostics = %d, contracts = %d", n, len(res.Contracts))
	}
}

func TestBuildAgainstRequiredSidecar(t *testing.T) {
	ctx := context.Background()
	lib := writeProject(t, "", contractFile{"vault", vaultSrc})
	libRes, err := Build(ctx, &BuildRequest{Manifest: lib})
	if err != nil {
		t.Fatalf("library Build: %v", err)
	}
	sidecar := libRes.Contracts[0].SidecarPath

	extra := "\n[[requires]]\nprincipal = \"" + deployer + ".vault\"\nabi = \"" + filepath.ToSlash(sidecar) + "\"\n"
	app := writeProject(t, extra, contractFile{"teller", tellerSrc})
	res, err := Build(ctx, &BuildRequest{Manifest: app})
	if err != nil {
		t.Fatalf("app Build: %v (%v)", err, codes(res.Bag))
	}
	if len(res.Contracts) != 1 || res.Contracts[0].Meta.Name != "teller" {
		t.Fatalf("contracts = %+v", res.Contracts)
	}

	missing := writeProject(t, "", contractFile{"teller", tellerSrc})
	res, err = Build(ctx, &BuildRequest{Manifest: missing, DryRun: true})
	if !errors.Is(err, ErrDiagnostics) || !hasCode(res.Bag, diag.ProjMissingContract) {
		t.Fatalf("err = %v, diagnostics = %v", err, codes(res.Bag))
	}
}

func TestBuildMissingSourceFile(t *testing.T) {
	m := writeProject(t, "", contractFile{"vault", vaultSrc})
	m.Config.Contracts = append(m.Config.Contracts, project.ContractConfig{Name: "ghost", Path: "contracts/ghost.clar"})
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m}); err == nil || errors.Is(err, ErrDiagnostics) {
		t.Fatalf("err = %v, want a load error", err)
	}
}
