package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"clarwasm/internal/artifact"
	"clarwasm/internal/assemble"
)

var abiCmd = &cobra.Command{
	Use:   "abi [flags] <contract|file.abi.mp>",
	Short: "Print the interface recorded in a build sidecar",
	Long: `Print the exported functions, storage and memory layout of a built
contract. The argument is a sidecar path or the name of a contract in the
current project's output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runABI,
}

func init() {
	abiCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type sidecarPayload struct {
	Principal     string       `json:"principal"`
	Compiler      string       `json:"compiler"`
	Source        string       `json:"source,omitempty"`
	Hash          string       `json:"hash"`
	WasmHash      string       `json:"wasm_hash"`
	PermanentSize uint32       `json:"permanent_size"`
	StackBase     uint32       `json:"stack_base"`
	StackLimit    uint32       `json:"stack_limit"`
	MemoryPages   uint32       `json:"memory_pages"`
	Exports       []string     `json:"exports"`
	ABI           assemble.ABI `json:"abi"`
}

func runABI(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	path, err := resolveSidecar(args[0])
	if err != nil {
		return err
	}
	s, err := artifact.Read(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "json":
		return renderSidecarJSON(cmd.OutOrStdout(), s)
	case "pretty":
		colored, err := useColor(cmd, os.Stdout)
		if err != nil {
			return err
		}
		renderSidecarPretty(cmd.OutOrStdout(), s, colored)
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

// resolveSidecar accepts a sidecar path as is and maps a bare contract
// name to <output>/<name>.abi.mp of the governing project.
func resolveSidecar(arg string) (string, error) {
	if strings.HasSuffix(arg, artifact.Ext) {
		return arg, nil
	}
	m, err := loadManifest(".")
	if err != nil {
		return "", err
	}
	for _, c := range m.Config.Contracts {
		if c.Name == arg {
			_, sidecar := artifact.Paths(m.OutputDir(), c.Name)
			return sidecar, nil
		}
	}
	return "", fmt.Errorf("project %s has no contract %s", m.Config.Project.Name, arg)
}

func renderSidecarJSON(out io.Writer, s *artifact.Sidecar) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sidecarPayload{
		Principal:     s.Principal,
		Compiler:      s.Compiler,
		Source:        s.Source,
		Hash:          s.Hash.String(),
		WasmHash:      s.WasmHash.String(),
		PermanentSize: s.PermanentSize,
		StackBase:     s.StackBase,
		StackLimit:    s.StackLimit,
		MemoryPages:   s.MemoryPages,
		Exports:       s.Exports,
		ABI:           s.ABI,
	})
}

func renderSidecarPretty(out io.Writer, s *artifact.Sidecar, colored bool) {
	head := color.New(color.Bold)
	kind := color.New(color.FgCyan)
	if colored {
		head.EnableColor()
		kind.EnableColor()
	} else {
		head.DisableColor()
		kind.DisableColor()
	}
	fmt.Fprintf(out, "%s (abi v%d, %s)\n", head.Sprint(s.Principal), s.ABI.Version, s.Compiler)
	fmt.Fprintf(out, "  memory: %d page(s), permanent %d B, stack %d..%d\n", s.MemoryPages, s.PermanentSize, s.StackBase, s.StackLimit)
	fmt.Fprintf(out, "  wasm:   %s\n", s.WasmHash)
	if len(s.ABI.Functions) > 0 {
		fmt.Fprintln(out, head.Sprint("functions:"))
	}
	for _, f := range s.ABI.Functions {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = "(" + p.Name + " " + p.Type + ")"
		}
		fmt.Fprintf(out, "  %s %s %s -> %s\n", kind.Sprintf("%-9s", f.Kind), f.Name, strings.Join(params, " "), f.Result)
		fmt.Fprintf(out, "    slots [%s] -> [%s]\n", strings.Join(f.Slots, " "), strings.Join(f.Returns, " "))
	}
	if len(s.ABI.Vars) > 0 {
		fmt.Fprintln(out, head.Sprint("vars:"))
	}
	for _, v := range s.ABI.Vars {
		fmt.Fprintf(out, "  %s: %s\n", v.Name, v.Value)
	}
	if len(s.ABI.Maps) > 0 {
		fmt.Fprintln(out, head.Sprint("maps:"))
	}
	for _, m := range s.ABI.Maps {
		fmt.Fprintf(out, "  %s: %s -> %s\n", m.Name, m.Key, m.Value)
	}
	if len(s.ABI.FungibleTokens)+len(s.ABI.NonFungibleTokens) > 0 {
		fmt.Fprintln(out, head.Sprint("tokens:"))
	}
	for _, ft := range s.ABI.FungibleTokens {
		fmt.Fprintf(out, "  %s: fungible\n", ft.Name)
	}
	for _, nft := range s.ABI.NonFungibleTokens {
		fmt.Fprintf(out, "  %s: non-fungible %s\n", nft.Name, nft.Key)
	}
}
