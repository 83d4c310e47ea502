package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"clarwasm/internal/diag"
	"clarwasm/internal/source"
)

func sample(t *testing.T) (*diag.Bag, *source.FileSet) {
	t.Helper()
	fs := source.NewFileSet()
	content := []byte("(define-read-only (f)\n  (sqrti u16))\n")
	id := fs.AddVirtual("/home/user/project/contracts/math.clar", content)
	bag := diag.NewBag(10)
	start := uint32(strings.Index(string(content), "(sqrti"))
	d := diag.NewError(diag.GenUnsupported, source.Span{File: id, Start: start, End: start + 11}, "sqrti has no lowering rule").
		WithNote(source.Span{File: id, Start: 0, End: 17}, "in this function")
	bag.Add(d)
	bag.Add(diag.New(diag.SevWarning, diag.CheckBadReturn, source.Span{File: id, Start: 1, End: 17}, "result is not a response"))
	return bag, fs
}

func TestPrettyPathModes(t *testing.T) {
	bag, fs := sample(t)
	tests := []struct {
		mode PathMode
		want string
	}{
		{PathModeAbsolute, "/home/user/project/contracts/math.clar:2:3"},
		{PathModeRelative, "contracts/math.clar:2:3"},
		{PathModeBasename, "math.clar:2:3"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode, BaseDir: "/home/user/project"})
		out := buf.String()
		if !strings.Contains(out, tt.want+": ERROR GEN6001: sqrti has no lowering rule") {
			t.Fatalf("mode %d: missing header %q in\n%s", tt.mode, tt.want, out)
		}
	}
}

func TestPrettySnippetAndNotes(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Context: 1, ShowNotes: true, PathMode: PathModeBasename})
	out := buf.String()
	for _, want := range []string{
		"1 | (define-read-only (f)",
		"2 |   (sqrti u16))",
		" |   ^~~~~~~~~~~\n",
		"note: math.clar:1:1: in this function",
		"WARNING CHK3010",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colour codes with Color disabled:\n%s", out)
	}
}

func TestPrettyColor(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI sequences:\n%s", buf.String())
	}
}

func TestJSON(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, PathMode: PathModeBasename, Max: 1}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || out.Dropped != 1 {
		t.Fatalf("count %d dropped %d", out.Count, out.Dropped)
	}
	d := out.Diagnostics[0]
	if d.Code != "GEN6001" || d.Severity != "ERROR" || d.Location.File != "math.clar" || d.Location.StartLine != 2 || d.Location.StartCol != 3 {
		t.Fatalf("diagnostic %+v", d)
	}
	if len(d.Notes) != 0 {
		t.Fatalf("notes included without IncludeNotes")
	}
}

func TestSarif(t *testing.T) {
	bag, fs := sample(t)
	var buf bytes.Buffer
	if err := Sarif(&buf, bag, fs, SarifRunMeta{ToolName: "clarwasm", BaseDir: "/home/user/project", InvocationArgs: []string{"check"}}); err != nil {
		t.Fatalf("Sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("decode: %v", err)
	}
	run := log.Runs[0]
	if len(run.Results) != 2 || len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("run %+v", run)
	}
	if run.Results[0].Level != "error" || run.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI != "contracts/math.clar" {
		t.Fatalf("result %+v", run.Results[0])
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Fatalf("a bag with errors is not a successful run")
	}
}

func TestParsePathMode(t *testing.T) {
	if m, ok := ParsePathMode("rel"); !ok || m != PathModeRelative {
		t.Fatalf("rel = %d, %v", m, ok)
	}
	if _, ok := ParsePathMode("sideways"); ok {
		t.Fatalf("unknown mode accepted")
	}
}
