// Package artifact reads and writes the sidecar stored next to every
// compiled contract. The sidecar carries the ABI a host or another
// contract's build needs, plus the hashes that let a build reuse it.
package artifact

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"clarwasm/internal/assemble"
	"clarwasm/internal/project"
)

// SchemaVersion changes whenever Sidecar changes shape.
const SchemaVersion uint16 = 1

// Ext is appended to the contract name to form the sidecar file name.
const Ext = ".abi.mp"

// ErrSchema is returned for sidecars written by an incompatible compiler.
var ErrSchema = errors.New("artifact: unsupported sidecar schema")

// Sidecar describes one compiled contract.
type Sidecar struct {
	Schema   uint16 `msgpack:"schema"`
	Compiler string `msgpack:"compiler"`

	Principal string `msgpack:"principal"`
	Source    string `msgpack:"source,omitempty"`

	ContentHash project.Digest `msgpack:"content_hash"`
	Hash        project.Digest `msgpack:"hash"`
	WasmHash    project.Digest `msgpack:"wasm_hash"`

	PermanentSize uint32 `msgpack:"permanent_size"`
	StackBase     uint32 `msgpack:"stack_base"`
	StackLimit    uint32 `msgpack:"stack_limit"`
	MemoryPages   uint32 `msgpack:"memory_pages"`

	Exports []string     `msgpack:"exports"`
	ABI     assemble.ABI `msgpack:"abi"`
}

// New describes m, encoded as bin, for the contract meta.
func New(compiler string, meta project.ContractMeta, m *assemble.Module, bin []byte) *Sidecar {
	return &Sidecar{
		Schema:        SchemaVersion,
		Compiler:      compiler,
		Principal:     meta.Principal,
		Source:        meta.Path,
		ContentHash:   meta.ContentHash,
		Hash:          meta.Hash,
		WasmHash:      sha256.Sum256(bin),
		PermanentSize: m.PermanentSize,
		StackBase:     m.StackBase,
		StackLimit:    m.StackLimit,
		MemoryPages:   m.MemoryPages,
		Exports:       m.Exports,
		ABI:           m.ABI,
	}
}

// Paths returns the wasm and sidecar paths of contract name under dir.
func Paths(dir, name string) (wasmPath, sidecarPath string) {
	return filepath.Join(dir, name+".wasm"), filepath.Join(dir, name+Ext)
}

// Write stores s at path, replacing any previous file atomically.
func Write(path string, s *Sidecar) error {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", path, err)
	}
	return WriteFile(path, data)
}

// WriteFile writes data to path through a temporary file and a rename.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// после успешного Rename файла уже нет
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads the sidecar at path.
func Read(path string) (*Sidecar, error) {
	// #nosec G304 -- path is provided by the caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Sidecar
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	if s.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema %d, want %d", ErrSchema, path, s.Schema, SchemaVersion)
	}
	return &s, nil
}

// Fresh reports whether the sidecar at sidecarPath was produced from
// sources hashing to hash and its wasm file is still intact.
func Fresh(wasmPath, sidecarPath string, hash project.Digest) (*Sidecar, bool) {
	s, err := Read(sidecarPath)
	if err != nil || s.Hash != hash {
		return nil, false
	}
	// #nosec G304 -- path is derived from the project output dir
	bin, err := os.ReadFile(wasmPath)
	if err != nil || sha256.Sum256(bin) != s.WasmHash {
		return nil, false
	}
	return s, true
}
