package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"fortio.org/safecast"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"clarwasm/internal/diag"
	"clarwasm/internal/source"
)

type palette struct {
	err, warn, info, code, path, gutter, caret, note *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan, color.Bold),
		code:   mk(color.Bold),
		path:   mk(color.FgBlue),
		gutter: mk(color.FgHiBlack),
		caret:  mk(color.FgRed, color.Bold),
		note:   mk(color.FgGreen),
	}
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Для каждого diag печатает:
//
//	<path>:<line>:<col>: <SEV> <CODE>: <Message>
//
// затем строки контекста с подчёркиванием ^~~~ по Span, затем Notes.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	if bag == nil {
		return
	}
	pal := newPalette(opts.Color)
	for _, d := range bag.Items() {
		sev := pal.severity(d.Severity)
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			pal.path.Sprint(location(fs, d.Primary, opts.PathMode, opts.BaseDir)),
			sev.Sprint(d.Severity.String()),
			pal.code.Sprint(d.Code.ID()),
			d.Message)
		snippet(w, fs, d.Primary, int(opts.Context), pal)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "  %s %s: %s\n", pal.note.Sprint("note:"),
				pal.path.Sprint(location(fs, n.Span, opts.PathMode, opts.BaseDir)), n.Msg)
			snippet(w, fs, n.Span, 0, pal)
		}
	}
	if n := bag.Dropped(); n > 0 {
		fmt.Fprintf(w, "... %d more diagnostics not shown\n", n)
	}
}

func location(fs *source.FileSet, sp source.Span, mode PathMode, base string) string {
	if fs == nil || int(sp.File) >= fs.Len() {
		return "<unknown>"
	}
	start, _ := fs.Resolve(sp)
	return fmt.Sprintf("%s:%d:%d", displayPath(fs.Get(sp.File).Path, mode, base), start.Line, start.Col)
}

// snippet prints the primary line of sp with context lines and a caret
// underline. Multi-line spans are underlined to the end of the first line.
func snippet(w io.Writer, fs *source.FileSet, sp source.Span, context int, pal palette) {
	if fs == nil || int(sp.File) >= fs.Len() {
		return
	}
	f := fs.Get(sp.File)
	start, end := fs.Resolve(sp)
	first := int(start.Line) - context
	if first < 1 {
		first = 1
	}
	last := min(int(start.Line)+context, len(f.LineIdx)+1)
	width := len(fmt.Sprint(last))
	for ln := first; ln <= last; ln++ {
		text := f.Line(safecast.MustConv[uint32](ln))
		fmt.Fprintf(w, "%s %s\n", pal.gutter.Sprintf("%*d |", width, ln), text)
		if ln != int(start.Line) {
			continue
		}
		prefix := text
		if int(start.Col)-1 <= len(prefix) {
			prefix = prefix[:start.Col-1]
		}
		n := 1
		switch {
		case end.Line == start.Line && end.Col > start.Col:
			seg := text[min(int(start.Col)-1, len(text)):min(int(end.Col)-1, len(text))]
			n = max(runewidth.StringWidth(seg), 1)
		case end.Line > start.Line:
			n = max(runewidth.StringWidth(text)-runewidth.StringWidth(prefix), 1)
		}
		pad := strings.Repeat(" ", runewidth.StringWidth(prefix))
		fmt.Fprintf(w, "%s %s%s\n", pal.gutter.Sprintf("%*s |", width, ""), pad,
			pal.caret.Sprint("^"+strings.Repeat("~", n-1)))
	}
}
