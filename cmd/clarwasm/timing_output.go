package main

import (
	"fmt"
	"io"
	"time"

	"clarwasm/internal/buildpipeline"
)

// printStageTimings prints the aggregated stage timings of a build: front
// end (read and check), code generation (assemble and encode), output and,
// when includeRun is set, execution.
func printStageTimings(out io.Writer, timings buildpipeline.Timings, includeRun bool) error {
	if out == nil {
		return nil
	}
	lines := []timingLine{
		{"checked", []buildpipeline.Stage{buildpipeline.StageRead, buildpipeline.StageCheck}},
		{"generated", []buildpipeline.Stage{buildpipeline.StageAssemble, buildpipeline.StageEncode}},
		{"written", []buildpipeline.Stage{buildpipeline.StageWrite}},
	}
	if includeRun {
		lines = append(lines, timingLine{"ran", []buildpipeline.Stage{buildpipeline.StageRun}})
	}
	for _, l := range lines {
		if !anyStage(timings, l.stages) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %.1f ms\n", l.label, toMillis(timings.Sum(l.stages...))); err != nil {
			return err
		}
	}
	return nil
}

type timingLine struct {
	label  string
	stages []buildpipeline.Stage
}

func anyStage(timings buildpipeline.Timings, stages []buildpipeline.Stage) bool {
	for _, s := range stages {
		if timings.Has(s) {
			return true
		}
	}
	return false
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
