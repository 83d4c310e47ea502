package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clarwasm/internal/assemble"
	"clarwasm/internal/ast"
	"clarwasm/internal/check"
	"clarwasm/internal/diag"
	"clarwasm/internal/observ"
	"clarwasm/internal/source"
	"clarwasm/internal/syntax"
	"clarwasm/internal/trace"
	"clarwasm/internal/value"
)

// CompileRequest configures the compilation of one contract.
type CompileRequest struct {
	Files *source.FileSet
	File  source.FileID
	// Name is the contract name; it defaults to the file's base name.
	Name     string
	Deployer value.Principal
	// Exprs are the already parsed top-level forms; when nil the file is
	// parsed as part of the request.
	Exprs   []*ast.Expr
	Options assemble.Options
	// MaxDiagnostics bounds the result bag; 0 means unlimited.
	MaxDiagnostics int
	Progress       ProgressSink
	// Timer, when set, receives one phase per stage.
	Timer *observ.Timer
}

// CompileResult captures compilation artefacts and stage timings.
type CompileResult struct {
	Contract *ast.Contract
	Module   *assemble.Module
	Wasm     []byte
	Bag      *diag.Bag
	Timings  Timings
}

// Compile runs read, check, assemble and encode for one contract. It
// returns ErrDiagnostics when the contract has errors; other errors mean
// the build itself could not proceed.
func Compile(ctx context.Context, req *CompileRequest) (CompileResult, error) {
	var result CompileResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil || req.Files == nil {
		return result, fmt.Errorf("missing compile request")
	}
	if int(req.File) >= req.Files.Len() {
		return result, fmt.Errorf("unknown file id %d", req.File)
	}
	f := req.Files.Get(req.File)
	name := req.Name
	if name == "" {
		name = contractNameFromPath(f.Path)
	}
	result.Bag = diag.NewBag(bagLimit(req.MaxDiagnostics))
	reporter := diag.BagReporter{Bag: result.Bag}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopeContract, "compile:"+name, trace.CurrentSpan(ctx).SpanID)
	defer span.End("")
	ctx = trace.WithSpan(ctx, span)

	st := stager{ctx: ctx, sink: req.Progress, contract: name, timer: req.Timer, timings: &result.Timings}

	exprs := req.Exprs
	if exprs == nil {
		_ = st.run(StageRead, func() error {
			exprs = syntax.Read(f, reporter)
			return nil
		})
	}
	contract := &ast.Contract{Name: name, File: req.File, Exprs: exprs}
	result.Contract = contract
	if result.Bag.HasErrors() {
		return result, st.fail(StageRead, ErrDiagnostics)
	}

	var ok bool
	_ = st.run(StageCheck, func() error {
		ok = check.Check(contract, check.Config{Deployer: req.Deployer, Externals: req.Options.Externals}, reporter)
		return nil
	})
	if !ok {
		return result, st.fail(StageCheck, ErrDiagnostics)
	}
	if err := ctx.Err(); err != nil {
		return result, st.fail(StageCheck, err)
	}

	err := st.run(StageAssemble, func() error {
		m, err := assemble.Assemble(ctx, contract, req.Options)
		result.Module = m
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, st.fail(StageAssemble, err)
		}
		result.Bag.Add(assemble.ToDiagnostic(err))
		return result, st.fail(StageAssemble, ErrDiagnostics)
	}

	err = st.run(StageEncode, func() error {
		bin, err := result.Module.Encode()
		result.Wasm = bin
		return err
	})
	if err != nil {
		return result, st.fail(StageEncode, fmt.Errorf("encode %s: %w", name, err))
	}
	return result, nil
}

// stager runs one contract's stages, reporting progress, timer phases and
// trace spans for each.
type stager struct {
	ctx      context.Context
	sink     ProgressSink
	contract string
	timer    *observ.Timer
	timings  *Timings
}

func (s stager) run(stage Stage, fn func() error) error {
	emit(s.sink, Event{Contract: s.contract, Stage: stage, Status: StatusWorking})
	span := trace.Begin(trace.FromContext(s.ctx), trace.ScopePass, string(stage), trace.CurrentSpan(s.ctx).SpanID)
	phase := -1
	if s.timer != nil {
		phase = s.timer.Begin(string(stage) + " " + s.contract)
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	note := ""
	if err != nil {
		note = "failed"
	}
	if s.timer != nil {
		s.timer.End(phase, note)
	}
	span.End(note)
	s.timings.Add(stage, elapsed)
	return err
}

func (s stager) fail(stage Stage, err error) error {
	emit(s.sink, Event{Contract: s.contract, Stage: stage, Status: StatusError, Err: err})
	return err
}

func bagLimit(max int) int {
	if max <= 0 {
		return 1 << 16
	}
	return max
}

func emit(sink ProgressSink, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
}
