package observ

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"clarwasm/internal/diag"
	"clarwasm/internal/source"
)

func TestTimerPhases(t *testing.T) {
	tm := NewTimer()
	read := tm.Begin("read")
	tm.End(read, "2 files")
	if err := tm.Track("check", func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("Track swallowed the error")
	}
	tm.End(99, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 || r.Phases[0].Name != "read" || r.Phases[0].Note != "2 files" || r.Phases[1].Note != "failed" {
		t.Fatalf("report %+v", r)
	}
	if s := tm.Summary(); !strings.Contains(s, "read") || !strings.Contains(s, "total") {
		t.Fatalf("summary:\n%s", s)
	}
}

func TestTimerConcurrent(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tm.Track("assemble", func() error { return nil })
		}()
	}
	wg.Wait()
	if n := len(tm.Report().Phases); n != 8 {
		t.Fatalf("phases = %d", n)
	}
}

func TestTimerDiagnostic(t *testing.T) {
	tm := NewTimer()
	tm.End(tm.Begin("encode"), "")
	d := tm.Diagnostic(source.Span{})
	if d.Code != diag.ObsTimings || d.Severity != diag.SevInfo || len(d.Notes) != 1 {
		t.Fatalf("diagnostic %+v", d)
	}
	if (&Timer{}).Report().Phases != nil {
		t.Fatalf("empty timer should report no phases")
	}
}
