package buildpipeline

import (
	"errors"
	"time"
)

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageRead loads and parses a contract file.
	StageRead Stage = "read"
	// StageCheck resolves names and types.
	StageCheck Stage = "check"
	// StageAssemble lowers the contract into a wasm module.
	StageAssemble Stage = "assemble"
	// StageEncode produces the binary module.
	StageEncode Stage = "encode"
	// StageWrite stores the module and its sidecar.
	StageWrite Stage = "write"
	// StageRun executes a compiled contract.
	StageRun Stage = "run"
)

// Stages lists the compile stages in pipeline order.
var Stages = []Stage{StageRead, StageCheck, StageAssemble, StageEncode, StageWrite}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the contract is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the contract is currently in the stage.
	StatusWorking Status = "working"
	// StatusDone indicates the contract is done.
	StatusDone Status = "done"
	// StatusCached indicates an up to date build product was reused.
	StatusCached Status = "cached"
	// StatusError indicates the contract failed.
	StatusError Status = "error"
)

// Event reports progress for a contract, or for the whole build when
// Contract is empty.
type Event struct {
	Contract string
	Stage    Stage
	Status   Status
	Err      error
	Elapsed  time.Duration
}

// ProgressSink consumes progress events. Build calls it from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ErrDiagnostics is returned when compilation reported errors; the
// diagnostics themselves are in the result's Bag.
var ErrDiagnostics = errors.New("diagnostics reported errors")

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Add accumulates dur into the given stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] += dur
}

// Merge adds every stage of other.
func (t *Timings) Merge(other Timings) {
	for stage, dur := range other.stages {
		t.Add(stage, dur)
	}
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
