package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clarwasm/internal/buildpipeline"
	"clarwasm/internal/devhost"
	"clarwasm/internal/diag"
	"clarwasm/internal/observ"
	"clarwasm/internal/source"
	"clarwasm/internal/value"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [file.clar|path]",
	Short: "Type-check and lower contracts without writing outputs",
	Long: `Run every compile stage on a single contract file, or on the project
governing path, and report diagnostics. Nothing is written to disk.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("deployer", "", "deployer principal for a single file (default: the development sender)")
	addReportFlags(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	var (
		bag     *diag.Bag
		fs      *source.FileSet
		baseDir string
		timer   *observ.Timer
		checked int
		runErr  error
	)
	if isContractFile(target) {
		deployer, err := deployerFlag(cmd)
		if err != nil {
			return err
		}
		baseDir, _ = os.Getwd()
		maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
		if err != nil {
			return err
		}
		timer = observ.NewTimer()
		var res buildpipeline.CompileResult
		res, fs, runErr = compileFile(cmd.Context(), target, deployer, maxDiags, timer)
		bag = res.Bag
		checked = 1
	} else {
		manifest, err := loadManifest(target)
		if err != nil {
			return err
		}
		baseDir = manifest.Root
		maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
		if err != nil {
			return err
		}
		res, err := buildpipeline.Build(cmd.Context(), &buildpipeline.BuildRequest{
			Manifest:       manifest,
			MaxDiagnostics: maxDiags,
			DryRun:         true,
			Compiler:       compilerStamp(),
		})
		bag, fs, timer, runErr = res.Bag, res.Files, res.Timer, err
		checked = len(manifest.Config.Contracts)
	}
	if bag == nil {
		return runErr
	}

	report, err := readReportOptions(cmd, baseDir, os.Args[1:])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := writeDiagnostics(out, bag, fs, report); err != nil {
		return err
	}
	if showTimings && timer != nil && report.format == "pretty" {
		fmt.Fprint(out, timer.Summary())
	}
	if errors.Is(runErr, buildpipeline.ErrDiagnostics) {
		return exitError{code: 1}
	}
	if runErr != nil {
		return runErr
	}
	if !quiet && report.format == "pretty" {
		fmt.Fprintf(out, "ok: %d contract(s) checked\n", checked)
	}
	return nil
}

// compileFile loads path into a fresh file set and compiles it as a
// standalone contract named after the file.
func compileFile(ctx context.Context, path string, deployer value.Principal, maxDiagnostics int, timer *observ.Timer) (buildpipeline.CompileResult, *source.FileSet, error) {
	fs := source.NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		return buildpipeline.CompileResult{}, fs, fmt.Errorf("load %s: %w", path, err)
	}
	res, err := buildpipeline.Compile(ctx, &buildpipeline.CompileRequest{
		Files:          fs,
		File:           id,
		Name:           buildpipeline.ContractNameFromPath(path),
		Deployer:       deployer,
		MaxDiagnostics: maxDiagnostics,
		Timer:          timer,
	})
	return res, fs, err
}

func isContractFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".clar")
}

func deployerFlag(cmd *cobra.Command) (value.Principal, error) {
	s, err := cmd.Flags().GetString("deployer")
	if err != nil {
		return value.Principal{}, err
	}
	if s == "" {
		return devhost.DefaultSender, nil
	}
	p, err := value.ParsePrincipal(strings.TrimPrefix(s, "'"))
	if err != nil {
		return value.Principal{}, fmt.Errorf("--deployer: %w", err)
	}
	if p.Name != "" {
		return value.Principal{}, fmt.Errorf("--deployer: %s is not a standard principal", s)
	}
	return p, nil
}
