package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"clarwasm/internal/assemble"
	"clarwasm/internal/project"
)

func sample() (project.ContractMeta, *assemble.Module, []byte) {
	meta := project.ContractMeta{
		Name:      "vault",
		Principal: "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.vault",
		Path:      "contracts/vault.clar",
		Hash:      project.Digest{7},
	}
	m := &assemble.Module{
		Name:          "vault",
		Exports:       []string{"deposit", ".top-level", "memory", "stack-pointer"},
		PermanentSize: 64,
		StackBase:     72,
		StackLimit:    72 + 1<<20,
		MemoryPages:   17,
		ABI: assemble.ABI{
			Version:  1,
			Contract: "vault",
			Functions: []assemble.FunctionABI{{
				Name:   "deposit",
				Kind:   "public",
				Params: []assemble.ParamABI{{Name: "amount", Type: "uint"}},
				Result: "(response bool uint)",
			}},
		},
	}
	return meta, m, []byte("\x00asm\x01\x00\x00\x00")
}

func TestWriteRead(t *testing.T) {
	meta, m, bin := sample()
	dir := t.TempDir()
	wasmPath, sidecarPath := Paths(dir, meta.Name)
	if filepath.Base(sidecarPath) != "vault.abi.mp" || filepath.Base(wasmPath) != "vault.wasm" {
		t.Fatalf("paths %s %s", wasmPath, sidecarPath)
	}
	if err := Write(sidecarPath, New("test", meta, m, bin)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s, err := Read(sidecarPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Principal != meta.Principal || s.Hash != meta.Hash || s.StackLimit != m.StackLimit || s.MemoryPages != 17 {
		t.Fatalf("sidecar %+v", s)
	}
	if len(s.ABI.Functions) != 1 || s.ABI.Functions[0].Params[0].Type != "uint" {
		t.Fatalf("abi %+v", s.ABI)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestReadRejectsOtherSchema(t *testing.T) {
	meta, m, bin := sample()
	s := New("test", meta, m, bin)
	s.Schema = SchemaVersion + 1
	data, err := msgpack.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "old"+Ext)
	if err := WriteFile(path, data); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Read(path); !errors.Is(err, ErrSchema) {
		t.Fatalf("Read = %v, want ErrSchema", err)
	}
}

func TestFresh(t *testing.T) {
	meta, m, bin := sample()
	dir := t.TempDir()
	wasmPath, sidecarPath := Paths(dir, meta.Name)
	if err := WriteFile(wasmPath, bin); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Write(sidecarPath, New("test", meta, m, bin)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := Fresh(wasmPath, sidecarPath, meta.Hash); !ok {
		t.Fatalf("fresh build not recognized")
	}
	if _, ok := Fresh(wasmPath, sidecarPath, project.Digest{8}); ok {
		t.Fatalf("changed sources reported fresh")
	}
	if err := WriteFile(wasmPath, append(bin, 0)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, ok := Fresh(wasmPath, sidecarPath, meta.Hash); ok {
		t.Fatalf("modified wasm reported fresh")
	}
	if _, ok := Fresh(wasmPath, filepath.Join(dir, "missing"+Ext), meta.Hash); ok {
		t.Fatalf("missing sidecar reported fresh")
	}
}
