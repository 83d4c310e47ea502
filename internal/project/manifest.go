package project

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"clarwasm/internal/value"
)

// Manifest is a loaded clarwasm.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the manifest file.
type Config struct {
	Project   ProjectConfig    `toml:"project"`
	Contracts []ContractConfig `toml:"contract"`
	Requires  []RequireConfig  `toml:"requires,omitempty"`
	Codegen   CodegenConfig    `toml:"codegen,omitempty"`
	Output    OutputConfig     `toml:"output"`
}

type ProjectConfig struct {
	Name string `toml:"name"`
	// Deployer is the standard principal that deploys every contract of the
	// project; it resolves .name shorthands.
	Deployer string `toml:"deployer"`
}

type ContractConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// RequireConfig names an already compiled contract reached through
// contract-call?, described by its ABI sidecar.
type RequireConfig struct {
	Principal string `toml:"principal"`
	ABI       string `toml:"abi"`
}

type CodegenConfig struct {
	StackBudget uint32 `toml:"stack-budget,omitempty"`
	MaxFrame    uint32 `toml:"max-frame,omitempty"`
	MemoryPages uint32 `toml:"memory-pages,omitempty"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
}

// DefaultOutputDir holds build products when [output].dir is not set.
const DefaultOutputDir = "build"

// ErrNoManifest is returned by LoadManifest when no clarwasm.toml exists up
// the tree.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

// LoadManifest locates and parses the manifest governing startDir.
func LoadManifest(startDir string) (*Manifest, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoManifest
	}
	return ReadManifest(path)
}

// ReadManifest parses and validates the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if !meta.IsDefined("project", "name") || strings.TrimSpace(cfg.Project.Name) == "" {
		return nil, fmt.Errorf("%s: missing [project].name", path)
	}
	if !meta.IsDefined("project", "deployer") {
		return nil, fmt.Errorf("%s: missing [project].deployer", path)
	}
	p, err := value.ParsePrincipal(cfg.Project.Deployer)
	if err != nil {
		return nil, fmt.Errorf("%s: [project].deployer: %w", path, err)
	}
	if p.Name != "" {
		return nil, fmt.Errorf("%s: [project].deployer must be a standard principal", path)
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("%s: no [[contract]] entries", path)
	}

	root := filepath.Dir(path)
	seen := make(map[string]int, len(cfg.Contracts))
	for i, c := range cfg.Contracts {
		switch {
		case !IsValidContractName(c.Name):
			return nil, fmt.Errorf("%s: contract #%d: invalid name %q", path, i+1, c.Name)
		case strings.TrimSpace(c.Path) == "":
			return nil, fmt.Errorf("%s: contract %q: missing path", path, c.Name)
		case filepath.Ext(c.Path) != ".clar":
			return nil, fmt.Errorf("%s: contract %q: path must name a .clar file", path, c.Name)
		case !pathWithin(root, filepath.Join(root, filepath.FromSlash(c.Path))):
			return nil, fmt.Errorf("%s: contract %q: path escapes the project root", path, c.Name)
		}
		if prev, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%s: contract %q declared twice (#%d and #%d)", path, c.Name, prev+1, i+1)
		}
		seen[c.Name] = i
	}
	for i, r := range cfg.Requires {
		rp, err := value.ParsePrincipal(r.Principal)
		if err != nil || rp.Name == "" {
			return nil, fmt.Errorf("%s: requires #%d: %q is not a contract principal", path, i+1, r.Principal)
		}
		if strings.TrimSpace(r.ABI) == "" {
			return nil, fmt.Errorf("%s: requires %s: missing abi", path, r.Principal)
		}
	}
	return &Manifest{Path: path, Root: root, Config: cfg}, nil
}

// Deployer returns the parsed [project].deployer.
func (m *Manifest) Deployer() value.Principal {
	return value.MustPrincipal(m.Config.Project.Deployer)
}

// OutputDir is the absolute directory for build products.
func (m *Manifest) OutputDir() string {
	dir := m.Config.Output.Dir
	if dir == "" {
		dir = DefaultOutputDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(m.Root, filepath.FromSlash(dir))
}

// ContractPath resolves a [[contract]] path against the project root.
func (m *Manifest) ContractPath(c ContractConfig) string {
	return filepath.Join(m.Root, filepath.FromSlash(c.Path))
}

// RequirePath resolves a [[requires]] abi path against the project root.
func (m *Manifest) RequirePath(r RequireConfig) string {
	if filepath.IsAbs(r.ABI) {
		return r.ABI
	}
	return filepath.Join(m.Root, filepath.FromSlash(r.ABI))
}

// Template renders the manifest written by `clarwasm init`.
func Template(name, deployer string) ([]byte, error) {
	cfg := Config{
		Project:   ProjectConfig{Name: name, Deployer: deployer},
		Contracts: []ContractConfig{{Name: name, Path: "contracts/" + name + ".clar"}},
		Output:    OutputConfig{Dir: DefaultOutputDir},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
