package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clarwasm/internal/diag"
	"clarwasm/internal/diagfmt"
	"clarwasm/internal/source"
	"clarwasm/internal/version"
)

// reportOptions collects the flags that shape diagnostic output.
type reportOptions struct {
	format    string
	pathMode  diagfmt.PathMode
	withNotes bool
	color     bool
	baseDir   string
	max       int
	args      []string
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "pretty", "diagnostic output format (pretty|json|sarif)")
	cmd.Flags().String("path-mode", "auto", "how file paths are printed (auto|absolute|relative|basename)")
	cmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
}

func readReportOptions(cmd *cobra.Command, baseDir string, args []string) (reportOptions, error) {
	opts := reportOptions{baseDir: baseDir, args: args}
	var err error
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return opts, err
	}
	opts.format = strings.ToLower(strings.TrimSpace(opts.format))
	switch opts.format {
	case "pretty", "json", "sarif":
	default:
		return opts, fmt.Errorf("unknown format: %s (expected pretty|json|sarif)", opts.format)
	}
	pathMode, err := cmd.Flags().GetString("path-mode")
	if err != nil {
		return opts, err
	}
	mode, ok := diagfmt.ParsePathMode(pathMode)
	if !ok {
		return opts, fmt.Errorf("unknown path mode: %s", pathMode)
	}
	opts.pathMode = mode
	if opts.withNotes, err = cmd.Flags().GetBool("with-notes"); err != nil {
		return opts, err
	}
	if opts.max, err = cmd.Root().PersistentFlags().GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if opts.color, err = useColor(cmd, os.Stdout); err != nil {
		return opts, err
	}
	return opts, nil
}

// useColor resolves the --color flag against out.
func useColor(cmd *cobra.Command, out *os.File) (bool, error) {
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, err
	}
	switch colorFlag {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return isTerminal(out), nil
	}
	return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", colorFlag)
}

// writeDiagnostics renders bag in the requested format. Pretty output of
// an empty bag prints nothing; json and sarif always produce a document.
func writeDiagnostics(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts reportOptions) error {
	switch opts.format {
	case "json":
		return diagfmt.JSON(w, bag, fs, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         opts.pathMode,
			BaseDir:          opts.baseDir,
			Max:              opts.max,
			IncludeNotes:     opts.withNotes,
		})
	case "sarif":
		return diagfmt.Sarif(w, bag, fs, diagfmt.SarifRunMeta{
			ToolName:       "clarwasm",
			ToolVersion:    version.Current().Version,
			InvocationArgs: opts.args,
			BaseDir:        opts.baseDir,
		})
	default:
		if bag == nil || bag.Len() == 0 {
			return nil
		}
		diagfmt.Pretty(w, bag, fs, diagfmt.PrettyOpts{
			Color:     opts.color,
			Context:   1,
			PathMode:  opts.pathMode,
			BaseDir:   opts.baseDir,
			ShowNotes: opts.withNotes,
		})
		return nil
	}
}
