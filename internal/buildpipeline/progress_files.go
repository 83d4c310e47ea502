package buildpipeline

import (
	"path/filepath"
	"strings"
)

// contractNameFromPath derives a contract name from its source file name.
func contractNameFromPath(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ContractNameFromPath is the name a stand-alone source file compiles to.
func ContractNameFromPath(path string) string {
	return contractNameFromPath(path)
}

func emitQueued(sink ProgressSink, contracts []string) {
	if sink == nil {
		return
	}
	for _, name := range contracts {
		sink.OnEvent(Event{Contract: name, Stage: StageRead, Status: StatusQueued})
	}
}

func emitStage(sink ProgressSink, stage Stage, status Status, err error) {
	emit(sink, Event{Stage: stage, Status: status, Err: err})
}

// displayPath makes path relative to root when it lies inside it.
func displayPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
