package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clarwasm/internal/artifact"
	"clarwasm/internal/assemble"
	"clarwasm/internal/buildpipeline"
	"clarwasm/internal/check"
	"clarwasm/internal/devhost"
	"clarwasm/internal/project"
	"clarwasm/internal/value"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <contract|file.clar> <function> [args...]",
	Short: "Compile contracts and call a function on the development host",
	Long: `Compile a single contract file, or build the current project, deploy the
result on an in-memory development host and call one public or read-only
function. Arguments use contract literal syntax: u10, -3, true, 0xbeef,
"text", 'ST1...SENDER, (list u1 u2), (some u1), none, {a: u1, b: true}.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExecution,
}

func init() {
	runCmd.Flags().String("deployer", "", "deployer principal for a single file (default: the development sender)")
	runCmd.Flags().String("sender", "", "tx-sender of the call (default: the deployer)")
	runCmd.Flags().Uint64("block-height", 1, "block-height seen by contracts")
	runCmd.Flags().StringArray("balance", nil, "initial STX balance, PRINCIPAL=AMOUNT (repeatable)")
	addReportFlags(runCmd)
}

// deployment is the contract a run calls into.
type deployment struct {
	principal value.Principal
	abi       assemble.ABI
}

func runExecution(cmd *cobra.Command, args []string) error {
	target, fnName, rawArgs := args[0], args[1], args[2:]
	ctx := cmd.Context()

	blockHeight, err := cmd.Flags().GetUint64("block-height")
	if err != nil {
		return err
	}
	balanceFlags, err := cmd.Flags().GetStringArray("balance")
	if err != nil {
		return err
	}
	balances := make(map[string]*big.Int, len(balanceFlags))
	for _, b := range balanceFlags {
		p, n, err := parseBalance(b)
		if err != nil {
			return err
		}
		balances[p] = n
	}
	senderFlag, err := cmd.Flags().GetString("sender")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	host, err := devhost.New(ctx, devhost.Options{
		BlockHeight: blockHeight,
		Balances:    balances,
		Print: func(c value.Principal, v value.Value) {
			fmt.Fprintf(errOut, "print %s: %s\n", c, v)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = host.Close(ctx) }()

	var (
		dep      deployment
		deployer value.Principal
		timings  buildpipeline.Timings
	)
	if isContractFile(target) {
		deployer, err = deployerFlag(cmd)
		if err != nil {
			return err
		}
		dep, err = deployFile(cmd, host, target, deployer, &timings)
	} else {
		var m *project.Manifest
		m, err = loadManifest(".")
		if err != nil {
			return err
		}
		deployer = m.Deployer()
		dep, err = deployProject(cmd, host, m, target, &timings)
	}
	if err != nil {
		return err
	}

	fn, ok := findFunction(dep.abi, fnName)
	if !ok {
		return fmt.Errorf("%s has no public or read-only function %s (exports: %s)", dep.principal, fnName, strings.Join(functionNames(dep.abi), ", "))
	}
	if len(rawArgs) != len(fn.Params) {
		return fmt.Errorf("%s takes %d argument(s), got %d", fnName, len(fn.Params), len(rawArgs))
	}
	vals := make([]value.Value, len(rawArgs))
	for i, raw := range rawArgs {
		t, err := check.ParseType(fn.Params[i].Type)
		if err != nil {
			return err
		}
		if vals[i], err = parseArg(raw, t); err != nil {
			return fmt.Errorf("argument %s: %w", fn.Params[i].Name, err)
		}
	}

	sender := deployer
	if senderFlag != "" {
		if sender, err = value.ParsePrincipal(trimQuote(senderFlag)); err != nil {
			return fmt.Errorf("--sender: %w", err)
		}
	}
	host.SetSender(sender)

	start := time.Now()
	out, callErr := host.Call(ctx, dep.principal, fnName, vals...)
	timings.Add(buildpipeline.StageRun, time.Since(start))
	if callErr != nil {
		return fmt.Errorf("%s.%s: %w", dep.principal, fnName, callErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	if showTimings {
		return printStageTimings(errOut, timings, true)
	}
	return nil
}

// deployFile compiles one contract file and deploys it as deployer.
func deployFile(cmd *cobra.Command, host *devhost.Host, path string, deployer value.Principal, timings *buildpipeline.Timings) (deployment, error) {
	maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return deployment{}, err
	}
	res, fs, compileErr := compileFile(cmd.Context(), path, deployer, maxDiags, nil)
	timings.Merge(res.Timings)
	if res.Bag != nil {
		baseDir, _ := os.Getwd()
		if err := reportFailures(cmd, res.Bag.HasErrors(), func(w io.Writer, opts reportOptions) error {
			return writeDiagnostics(w, res.Bag, fs, opts)
		}, baseDir); err != nil {
			return deployment{}, err
		}
	}
	if compileErr != nil {
		return deployment{}, compileErr
	}
	host.SetSender(deployer)
	p, err := host.Deploy(cmd.Context(), res.Module.Name, res.Wasm, res.Module.ABI)
	if err != nil {
		return deployment{}, err
	}
	return deployment{principal: p, abi: res.Module.ABI}, nil
}

// deployProject builds the project, deploys its required contracts and
// then every contract callees first, and returns the one named target.
func deployProject(cmd *cobra.Command, host *devhost.Host, m *project.Manifest, target string, timings *buildpipeline.Timings) (deployment, error) {
	ctx := cmd.Context()
	maxDiags, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return deployment{}, err
	}
	res, buildErr := buildpipeline.Build(ctx, &buildpipeline.BuildRequest{
		Manifest:       m,
		MaxDiagnostics: maxDiags,
		Compiler:       compilerStamp(),
	})
	timings.Merge(res.Timings)
	if res.Bag != nil {
		if err := reportFailures(cmd, res.Bag.HasErrors(), func(w io.Writer, opts reportOptions) error {
			return writeDiagnostics(w, res.Bag, res.Files, opts)
		}, m.Root); err != nil {
			return deployment{}, err
		}
	}
	if buildErr != nil {
		return deployment{}, buildErr
	}

	for _, r := range m.Config.Requires {
		if err := deployRequired(ctx, host, m.RequirePath(r)); err != nil {
			return deployment{}, fmt.Errorf("requires %s: %w", r.Principal, err)
		}
	}

	var found *deployment
	host.SetSender(m.Deployer())
	for _, c := range res.Contracts {
		p, err := host.Deploy(ctx, c.Meta.Name, c.Wasm, c.ABI)
		if err != nil {
			return deployment{}, err
		}
		if c.Meta.Name == target || c.Meta.Principal == target {
			found = &deployment{principal: p, abi: c.ABI}
		}
	}
	if found == nil {
		return deployment{}, fmt.Errorf("project %s has no contract %s", m.Config.Project.Name, target)
	}
	return *found, nil
}

// deployRequired deploys a prebuilt contract from its sidecar and the
// module stored next to it, under the principal the sidecar records.
func deployRequired(ctx context.Context, host *devhost.Host, sidecarPath string) error {
	s, err := artifact.Read(sidecarPath)
	if err != nil {
		return err
	}
	p, err := value.ParsePrincipal(s.Principal)
	if err != nil {
		return err
	}
	wasmPath := strings.TrimSuffix(sidecarPath, artifact.Ext) + ".wasm"
	// #nosec G304 -- path comes from the project manifest
	bin, err := os.ReadFile(wasmPath)
	if err != nil {
		return err
	}
	host.SetSender(p.Standard())
	_, err = host.Deploy(ctx, p.Name, bin, s.ABI)
	return err
}

// reportFailures prints diagnostics when a compile failed, or when
// warnings were produced and --quiet is not set.
func reportFailures(cmd *cobra.Command, failed bool, write func(io.Writer, reportOptions) error, baseDir string) error {
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	if quiet && !failed {
		return nil
	}
	opts, err := readReportOptions(cmd, baseDir, os.Args[1:])
	if err != nil {
		return err
	}
	if err := write(cmd.ErrOrStderr(), opts); err != nil {
		return err
	}
	if failed {
		return exitError{code: 1}
	}
	return nil
}

func findFunction(desc assemble.ABI, name string) (assemble.FunctionABI, bool) {
	for _, f := range desc.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return assemble.FunctionABI{}, false
}

func functionNames(desc assemble.ABI) []string {
	names := make([]string, len(desc.Functions))
	for i, f := range desc.Functions {
		names[i] = f.Name
	}
	return names
}
