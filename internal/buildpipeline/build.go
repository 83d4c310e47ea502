// Package buildpipeline orchestrates the compilation of contracts: a single
// file through Compile, or a whole clarwasm.toml project through Build.
package buildpipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"runtime"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"clarwasm/internal/artifact"
	"clarwasm/internal/assemble"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/diag"
	"clarwasm/internal/observ"
	"clarwasm/internal/project"
	"clarwasm/internal/project/dag"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/trace"
)

// BuildRequest configures a project build.
type BuildRequest struct {
	Manifest       *project.Manifest
	MaxDiagnostics int
	// Force recompiles contracts whose build products are up to date.
	Force bool
	// DryRun stops after encoding; nothing is read from or written to the
	// output directory.
	DryRun bool
	// Jobs bounds concurrent compilations; 0 means GOMAXPROCS.
	Jobs int
	// Compiler stamps sidecars and takes part in build hashes.
	Compiler string
	Progress ProgressSink
}

// ContractOutput is one successfully built contract.
type ContractOutput struct {
	Meta        project.ContractMeta
	WasmPath    string
	SidecarPath string
	// Cached is set when the previous build products were reused.
	Cached bool
	Wasm   []byte
	ABI    assemble.ABI
}

// BuildResult captures build artefacts and timings.
type BuildResult struct {
	Files *source.FileSet
	Bag   *diag.Bag
	// Contracts in build order: every callee precedes its callers.
	Contracts []ContractOutput
	Timings   Timings
	Timer     *observ.Timer
}

type unit struct {
	meta    project.ContractMeta
	file    source.FileID
	exprs   []*ast.Expr
	bag     *diag.Bag
	timings Timings

	ok   bool
	out  ContractOutput
	sigs map[string]check.ExternalFunc
}

type builder struct {
	req      *BuildRequest
	files    *source.FileSet
	timer    *observ.Timer
	opts     assemble.Options
	outDir   string
	compiler string
}

// Build compiles every contract of the manifest, callees first, and writes
// <name>.wasm and <name>.abi.mp into the output directory. Contracts that
// do not call each other compile concurrently. It returns ErrDiagnostics
// when any contract has errors; the other contracts are still built.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || req.Manifest == nil {
		return result, fmt.Errorf("missing build request")
	}
	m := req.Manifest
	b := &builder{
		req:   req,
		files: source.NewFileSet(),
		timer: observ.NewTimer(),
		opts: assemble.Options{
			StackBudget: m.Config.Codegen.StackBudget,
			MaxFrame:    m.Config.Codegen.MaxFrame,
			MinPages:    m.Config.Codegen.MemoryPages,
		},
		outDir:   m.OutputDir(),
		compiler: req.Compiler,
	}
	result.Files = b.files
	result.Timer = b.timer
	result.Bag = diag.NewBag(bagLimit(req.MaxDiagnostics))

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, "build:"+m.Config.Project.Name, trace.CurrentSpan(ctx).SpanID)
	defer span.End("")
	ctx = trace.WithSpan(ctx, span)

	names := make([]string, len(m.Config.Contracts))
	for i, c := range m.Config.Contracts {
		names[i] = c.Name
	}
	emitQueued(req.Progress, names)

	units := make([]*unit, len(m.Config.Contracts))
	for i, c := range m.Config.Contracts {
		u, err := b.read(ctx, m, c)
		if err != nil {
			emitStage(req.Progress, StageRead, StatusError, err)
			return result, err
		}
		units[i] = u
	}

	externals := make(map[string]map[string]check.ExternalFunc)
	provided := make(map[string]struct{}, len(m.Config.Requires))
	providedHash := make(map[string]project.Digest, len(m.Config.Requires))
	for _, r := range m.Config.Requires {
		s, err := artifact.Read(m.RequirePath(r))
		if err != nil {
			return result, fmt.Errorf("requires %s: %w", r.Principal, err)
		}
		if s.Principal != r.Principal {
			return result, fmt.Errorf("requires %s: %s describes %s", r.Principal, r.ABI, s.Principal)
		}
		sigs, err := s.ABI.Signatures()
		if err != nil {
			return result, fmt.Errorf("requires %s: %w", r.Principal, err)
		}
		externals[r.Principal] = sigs
		provided[r.Principal] = struct{}{}
		providedHash[r.Principal] = s.WasmHash
	}

	metas := make([]project.ContractMeta, len(units))
	nodes := make([]dag.ContractNode, len(units))
	for i, u := range units {
		metas[i] = u.meta
		nodes[i] = dag.ContractNode{Meta: u.meta, Reporter: diag.BagReporter{Bag: u.bag}}
		if first, ok := u.bag.FirstError(); ok {
			nodes[i].Broken = true
			nodes[i].FirstErr = &first
		}
	}
	idx := dag.BuildIndex(metas)
	graph, slots := dag.BuildGraph(idx, nodes, provided)
	topo := dag.ToposortKahn(graph)
	dag.ReportCycles(idx, slots, *topo)

	byID := make(map[dag.ContractID]*unit, len(units))
	for _, u := range units {
		byID[idx.NameToID[u.meta.Principal]] = u
	}
	for _, id := range topo.Cycles {
		if u := byID[id]; u != nil {
			emit(req.Progress, Event{Contract: u.meta.Name, Stage: StageCheck, Status: StatusError, Err: ErrDiagnostics})
		}
	}

	base := optionsDigest(req.Compiler, b.opts)
	for _, id := range topo.Order {
		u := byID[id]
		deps := []project.Digest{base}
		for _, call := range u.meta.Calls {
			if callee := byID[idx.NameToID[call.Target]]; callee != nil {
				deps = append(deps, callee.meta.Hash)
			} else if h, ok := providedHash[call.Target]; ok {
				deps = append(deps, h)
			}
		}
		u.meta.Hash = project.Combine(u.meta.ContentHash, deps...)
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	for _, batch := range topo.Batches {
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(jobs)
		for _, id := range batch {
			u := byID[id]
			if slots[id].Broken {
				emit(req.Progress, Event{Contract: u.meta.Name, Stage: StageRead, Status: StatusError, Err: ErrDiagnostics})
				continue
			}
			if dag.ReportBrokenCallees(idx, slots, id) {
				slots[id].Broken = true
				emit(req.Progress, Event{Contract: u.meta.Name, Stage: StageCheck, Status: StatusError, Err: ErrDiagnostics})
				continue
			}
			// externals is only written between batches
			eg.Go(func() error { return b.compile(egctx, u, externals) })
		}
		if err := eg.Wait(); err != nil {
			result.Timings = collect(result.Bag, units)
			emitStage(req.Progress, StageWrite, StatusError, err)
			return result, err
		}
		for _, id := range batch {
			u := byID[id]
			if u.ok {
				externals[u.meta.Principal] = u.sigs
				result.Contracts = append(result.Contracts, u.out)
				continue
			}
			slots[id].Broken = true
			if first, ok := u.bag.FirstError(); ok && slots[id].FirstErr == nil {
				slots[id].FirstErr = &first
			}
		}
	}

	result.Timings = collect(result.Bag, units)
	if result.Bag.HasErrors() {
		emitStage(req.Progress, StageWrite, StatusError, ErrDiagnostics)
		return result, ErrDiagnostics
	}
	emitStage(req.Progress, StageWrite, StatusDone, nil)
	return result, nil
}

func (b *builder) read(ctx context.Context, m *project.Manifest, c project.ContractConfig) (*unit, error) {
	u := &unit{
		meta: project.ContractMeta{
			Name:      c.Name,
			Principal: m.Deployer().Contract(c.Name).String(),
			Path:      c.Path,
		},
		bag: diag.NewBag(bagLimit(b.req.MaxDiagnostics)),
	}
	st := stager{ctx: ctx, sink: b.req.Progress, contract: c.Name, timer: b.timer, timings: &u.timings}
	err := st.run(StageRead, func() error {
		id, err := b.files.Load(m.ContractPath(c))
		if err != nil {
			return fmt.Errorf("contract %s: %w", c.Name, err)
		}
		f := b.files.Get(id)
		end, err := safecast.Conv[uint32](len(f.Content))
		if err != nil {
			return fmt.Errorf("contract %s is too large: %w", c.Name, err)
		}
		u.file = id
		u.meta.Span = source.Span{File: id, Start: 0, End: end}
		u.meta.ContentHash = f.Hash
		u.exprs = syntax.Read(f, diag.BagReporter{Bag: u.bag})
		if u.exprs == nil {
			u.exprs = []*ast.Expr{}
		}
		u.meta.Calls = project.ScanCalls(u.exprs, m.Deployer())
		return nil
	})
	return u, err
}

func (b *builder) compile(ctx context.Context, u *unit, externals map[string]map[string]check.ExternalFunc) error {
	name := u.meta.Name
	wasmPath, sidecarPath := artifact.Paths(b.outDir, name)
	if !b.req.Force && !b.req.DryRun {
		if out, sigs, ok := reuse(u.meta, wasmPath, sidecarPath); ok {
			u.out, u.sigs, u.ok = out, sigs, true
			emit(b.req.Progress, Event{Contract: name, Stage: StageWrite, Status: StatusCached})
			return nil
		}
	}

	opts := b.opts
	opts.Externals = externals
	res, err := Compile(ctx, &CompileRequest{
		Files:          b.files,
		File:           u.file,
		Name:           name,
		Deployer:       b.req.Manifest.Deployer(),
		Exprs:          u.exprs,
		Options:        opts,
		MaxDiagnostics: b.req.MaxDiagnostics,
		Progress:       b.req.Progress,
		Timer:          b.timer,
	})
	u.timings.Merge(res.Timings)
	if res.Bag != nil {
		u.bag.Merge(res.Bag)
	}
	if errors.Is(err, ErrDiagnostics) {
		return nil
	}
	if err != nil {
		return err
	}

	u.sigs = check.Exports(res.Contract)
	u.out = ContractOutput{
		Meta:        u.meta,
		WasmPath:    wasmPath,
		SidecarPath: sidecarPath,
		Wasm:        res.Wasm,
		ABI:         res.Module.ABI,
	}
	if !b.req.DryRun {
		st := stager{ctx: ctx, sink: b.req.Progress, contract: name, timer: b.timer, timings: &u.timings}
		err := st.run(StageWrite, func() error {
			if err := artifact.WriteFile(wasmPath, res.Wasm); err != nil {
				return err
			}
			return artifact.Write(sidecarPath, artifact.New(b.compiler, u.meta, res.Module, res.Wasm))
		})
		if err != nil {
			return st.fail(StageWrite, fmt.Errorf("write %s: %w", name, err))
		}
	}
	u.ok = true
	emit(b.req.Progress, Event{Contract: name, Stage: StageWrite, Status: StatusDone, Elapsed: u.timings.Sum(Stages...)})
	return nil
}

// reuse loads the previous build products of a contract whose sources and
// callees are unchanged.
func reuse(meta project.ContractMeta, wasmPath, sidecarPath string) (ContractOutput, map[string]check.ExternalFunc, bool) {
	s, ok := artifact.Fresh(wasmPath, sidecarPath, meta.Hash)
	if !ok {
		return ContractOutput{}, nil, false
	}
	sigs, err := s.ABI.Signatures()
	if err != nil {
		return ContractOutput{}, nil, false
	}
	// #nosec G304 -- path is derived from the project output dir
	bin, err := os.ReadFile(wasmPath)
	if err != nil {
		return ContractOutput{}, nil, false
	}
	return ContractOutput{
		Meta:        meta,
		WasmPath:    wasmPath,
		SidecarPath: sidecarPath,
		Cached:      true,
		Wasm:        bin,
		ABI:         s.ABI,
	}, sigs, true
}

func collect(bag *diag.Bag, units []*unit) Timings {
	var t Timings
	for _, u := range units {
		bag.Merge(u.bag)
		t.Merge(u.timings)
	}
	bag.Sort()
	return t
}

// optionsDigest folds everything besides sources that changes the output.
func optionsDigest(compiler string, opts assemble.Options) project.Digest {
	return sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d|%d", compiler, opts.StackBudget, opts.MaxFrame, opts.MinPages))
}
