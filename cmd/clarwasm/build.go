package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clarwasm/internal/buildpipeline"
	"clarwasm/internal/project"
	"clarwasm/internal/version"
)

const noManifestMessage = "no " + project.ManifestName + " found; run `clarwasm init` or pass a .clar file"

var buildCmd = &cobra.Command{
	Use:   "build [flags] [path]",
	Short: "Build a clarwasm project",
	Long: `Build every contract listed in clarwasm.toml into <output>/<name>.wasm
with a <name>.abi.mp sidecar. Contracts are compiled callees first; contracts
that do not call each other are compiled in parallel.`,
	Args: cobra.MaximumNArgs(1),
	RunE: buildExecution,
}

func init() {
	buildCmd.Flags().String("ui", "auto", "contract progress view (auto|on|off)")
	buildCmd.Flags().Bool("force", false, "rebuild contracts whose outputs are up to date")
	buildCmd.Flags().Int("jobs", 0, "max parallel compilations (0=auto)")
	addReportFlags(buildCmd)
}

func buildExecution(cmd *cobra.Command, args []string) error {
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	start := "."
	if len(args) == 1 {
		start = args[0]
	}
	manifest, err := loadManifest(start)
	if err != nil {
		return err
	}
	report, err := readReportOptions(cmd, manifest.Root, os.Args[1:])
	if err != nil {
		return err
	}

	req := buildpipeline.BuildRequest{
		Manifest:       manifest,
		MaxDiagnostics: report.max,
		Force:          force,
		Jobs:           jobs,
		Compiler:       compilerStamp(),
	}
	withUI, err := progressView(uiValue, quiet, len(manifest.Config.Contracts), isTerminal(os.Stdout))
	if err != nil {
		return err
	}
	res, buildErr := buildProject(cmd.Context(), &req, withUI)
	if res.Bag == nil {
		return buildErr
	}
	out := cmd.OutOrStdout()
	if err := writeDiagnostics(out, res.Bag, res.Files, report); err != nil {
		return err
	}
	if showTimings {
		if err := printStageTimings(out, res.Timings, false); err != nil {
			return err
		}
		if res.Timer != nil {
			fmt.Fprint(out, res.Timer.Summary())
		}
	}
	if !quiet && report.format == "pretty" {
		printBuilt(out, manifest.Root, res.Contracts)
	}
	if errors.Is(buildErr, buildpipeline.ErrDiagnostics) {
		return exitError{code: 1}
	}
	return buildErr
}

// progressView decides whether build shows the per-contract progress view.
// "auto" shows it on a terminal; --quiet always hides it, and there is
// nothing to track without contracts.
func progressView(flag string, quiet bool, contracts int, tty bool) (bool, error) {
	var want bool
	switch strings.TrimSpace(strings.ToLower(flag)) {
	case "", "auto":
		want = tty
	case "on":
		want = true
	case "off":
		want = false
	default:
		return false, fmt.Errorf("invalid --ui value %q for build (expected auto|on|off)", flag)
	}
	return want && !quiet && contracts > 0, nil
}

// buildProject runs Build, behind the progress UI when withUI is set.
func buildProject(ctx context.Context, req *buildpipeline.BuildRequest, withUI bool) (buildpipeline.BuildResult, error) {
	if !withUI {
		return buildpipeline.Build(ctx, req)
	}
	names := make([]string, len(req.Manifest.Config.Contracts))
	for i, c := range req.Manifest.Config.Contracts {
		names[i] = c.Name
	}
	return runBuildWithUI(ctx, "clarwasm build "+req.Manifest.Config.Project.Name, names, req)
}

func printBuilt(out io.Writer, root string, contracts []buildpipeline.ContractOutput) {
	for _, c := range contracts {
		verb := "built"
		if c.Cached {
			verb = "fresh"
		}
		fmt.Fprintf(out, "%s %s -> %s\n", verb, c.Meta.Principal, formatPathForOutput(root, c.WasmPath))
	}
}

// loadManifest finds clarwasm.toml at or above start.
func loadManifest(start string) (*project.Manifest, error) {
	m, err := project.LoadManifest(start)
	if errors.Is(err, project.ErrNoManifest) {
		return nil, errors.New(noManifestMessage)
	}
	return m, err
}

func compilerStamp() string {
	return "clarwasm " + version.Current().Version
}

func formatPathForOutput(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
