package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clarwasm/internal/project"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return -1
}

func TestProgressView(t *testing.T) {
	cases := []struct {
		flag      string
		quiet     bool
		contracts int
		tty       bool
		want      bool
	}{
		{"", false, 2, true, true},
		{"AUTO", false, 2, false, false},
		{"on", false, 1, false, true},
		{" off ", false, 3, true, false},
		{"on", true, 3, true, false},
		{"on", false, 0, true, false},
	}
	for _, tc := range cases {
		got, err := progressView(tc.flag, tc.quiet, tc.contracts, tc.tty)
		if err != nil || got != tc.want {
			t.Fatalf("progressView(%q, quiet=%v, %d, tty=%v) = %v, %v", tc.flag, tc.quiet, tc.contracts, tc.tty, got, err)
		}
	}
	if _, err := progressView("sometimes", false, 1, true); err == nil {
		t.Fatalf("invalid --ui value accepted")
	}
}

func TestFormatPathForOutput(t *testing.T) {
	root := filepath.FromSlash("/work/bank")
	if got := formatPathForOutput(root, filepath.Join(root, "build", "vault.wasm")); got != "build/vault.wasm" {
		t.Fatalf("inside root: %q", got)
	}
	outside := filepath.FromSlash("/tmp/vault.wasm")
	if got := formatPathForOutput(root, outside); got != outside {
		t.Fatalf("outside root: %q", got)
	}
}

func TestInitProjectWritesLoadableManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tally")
	created, err := initProject(dir, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	if err != nil {
		t.Fatalf("initProject: %v", err)
	}
	if len(created) != 2 || created[1] != "contracts/tally.clar" {
		t.Fatalf("created %v", created)
	}
	m, err := project.ReadManifest(filepath.Join(dir, project.ManifestName))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Config.Project.Name != "tally" || len(m.Config.Contracts) != 1 || m.Config.Contracts[0].Name != "tally" {
		t.Fatalf("manifest %+v", m.Config)
	}
	if _, err := initProject(dir, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"); err == nil {
		t.Fatalf("second init succeeded")
	}
}

func TestInitFallsBackToDefaultName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Project")
	created, err := initProject(dir, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	if err != nil {
		t.Fatalf("initProject: %v", err)
	}
	if created[1] != "contracts/"+defaultContractName+".clar" {
		t.Fatalf("created %v", created)
	}
}

func TestBuildRunAndABI(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tally")
	if _, err := initProject(dir, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"); err != nil {
		t.Fatalf("initProject: %v", err)
	}
	t.Chdir(dir)

	out, _, err := execute(t, "build", "--ui", "off", "--color", "off")
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "built ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.tally -> build/tally.wasm") {
		t.Fatalf("build output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", "tally.abi.mp")); err != nil {
		t.Fatalf("sidecar: %v", err)
	}

	out, _, err = execute(t, "build", "--ui", "off", "--color", "off")
	if err != nil || !strings.Contains(out, "fresh ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.tally") {
		t.Fatalf("rebuild: %v\n%s", err, out)
	}

	out, errOut, err := execute(t, "run", "tally", "increment", "u5")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, errOut)
	}
	if strings.TrimSpace(out) != "(ok u5)" {
		t.Fatalf("run output %q", out)
	}

	out, _, err = execute(t, "run", "tally", "increment", "0")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "(err u1)" {
		t.Fatalf("run output %q", out)
	}

	if _, _, err = execute(t, "run", "tally", "decrement"); err == nil || !strings.Contains(err.Error(), "exports: get-counter, increment") {
		t.Fatalf("unknown function error: %v", err)
	}

	out, _, err = execute(t, "abi", "tally", "--format", "json")
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	for _, want := range []string{`"principal": "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.tally"`, `"name": "increment"`, `"result": "(response uint uint)"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("abi output missing %s:\n%s", want, out)
		}
	}
}

func TestCheckReportsErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.clar")
	if err := os.WriteFile(path, []byte("(define-read-only (f) (+ 1 u1))\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, _, err := execute(t, "check", path, "--color", "off", "--format", "pretty")
	if exitCode(err) != 1 {
		t.Fatalf("check exit %v\n%s", err, out)
	}
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken.clar:1:") {
		t.Fatalf("check output:\n%s", out)
	}
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.clar")
	src := "(define-read-only (pick (p {a: uint, b: bool})) (if (get b p) (get a p) u0))\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, errOut, err := execute(t, "run", path, "pick", "{b: true, a: u7}")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, errOut)
	}
	if strings.TrimSpace(out) != "u7" {
		t.Fatalf("run output %q", out)
	}
}

func TestVersionJSON(t *testing.T) {
	out, _, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, `"abi_version"`) || strings.Contains(out, "git_commit") {
		t.Fatalf("version output:\n%s", out)
	}
}
