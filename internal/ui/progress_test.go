package ui

import (
	"math"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"clarwasm/internal/buildpipeline"
)

func TestProgressTracksContracts(t *testing.T) {
	events := make(chan buildpipeline.Event)
	m := NewProgressModel("clarwasm build", []string{"vault", "teller"}, events).(*progressModel)

	m.applyEvent(buildpipeline.Event{Contract: "vault", Stage: buildpipeline.StageAssemble, Status: buildpipeline.StatusWorking})
	m.applyEvent(buildpipeline.Event{Contract: "teller", Stage: buildpipeline.StageWrite, Status: buildpipeline.StatusCached})
	m.applyEvent(buildpipeline.Event{Contract: "ghost", Stage: buildpipeline.StageRead, Status: buildpipeline.StatusError})

	if m.items[0].status != "assembling" || m.items[1].status != "cached" {
		t.Fatalf("items = %+v", m.items)
	}
	if got := m.percent(); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("percent = %v", got)
	}
	view := m.View()
	for _, want := range []string{"clarwasm build", "vault", "teller", "assembling", "cached"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestProgressStageLabel(t *testing.T) {
	m := NewProgressModel("build", []string{"a"}, nil).(*progressModel)
	m.applyEvent(buildpipeline.Event{Stage: buildpipeline.StageWrite, Status: buildpipeline.StatusDone})
	if m.stageLabel != "done" {
		t.Fatalf("stageLabel = %q", m.stageLabel)
	}
	if _, cmd := m.Update(doneMsg{}); cmd == nil || !m.done {
		t.Fatalf("done message must quit")
	}
}

func TestTruncate(t *testing.T) {
	got := truncate("contracts/very-long-name", 10)
	if !strings.HasPrefix(got, "cont") || !strings.HasSuffix(got, "...") || runewidth.StringWidth(got) > 10 {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
