package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelFiltersScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeContract, false},
		{LevelDetail, ScopeContract, true},
		{LevelDetail, ScopeFunction, false},
		{LevelDebug, ScopeFunction, true},
	}
	for _, c := range cases {
		if got := c.level.ShouldEmit(c.scope); got != c.want {
			t.Fatalf("%s.ShouldEmit(%s) = %v, want %v", c.level, c.scope, got, c.want)
		}
	}
}

func TestStreamWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	root := Begin(tr, ScopePass, "assemble", 0)
	Begin(tr, ScopeContract, "counter", root.ID()).WithExtra("pages", "17").End("")
	Begin(tr, ScopeFunction, "increment", root.ID()).End("")
	root.End("ok")

	out := buf.String()
	for _, want := range []string{"→ assemble", "← counter {pages=17}", "← assemble (ok)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "increment") {
		t.Fatalf("function scope leaked at detail level:\n%s", out)
	}
}

func TestRingKeepsNewest(t *testing.T) {
	r := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(r, ScopePass, name, "", 0)
	}
	evs := r.Snapshot()
	if len(evs) != 2 || evs[0].Name != "b" || evs[1].Name != "c" {
		t.Fatalf("snapshot = %+v", evs)
	}
}

func TestNDJSON(t *testing.T) {
	line := string(FormatEvent(&Event{Kind: KindPoint, Scope: ScopePass, Name: "encode", Seq: 3}, FormatNDJSON))
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}\n") || !strings.Contains(line, `"name":"encode"`) {
		t.Fatalf("line = %q", line)
	}
}

func TestContextDefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatalf("empty context should carry Nop")
	}
	r := NewRingTracer(4, LevelPhase)
	ctx := WithTracer(context.Background(), r)
	if FromContext(ctx) != Tracer(r) {
		t.Fatalf("tracer not propagated")
	}
}
