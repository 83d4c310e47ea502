package version

import (
	"testing"

	"github.com/fatih/color"

	"clarwasm/internal/abi"
)

func TestCurrent(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version, GitCommit = "  ", " abc123 "
	info := Current()
	if info.Version != "dev" || info.GitCommit != "abc123" || info.ABIVersion != abi.Version {
		t.Fatalf("info = %+v", info)
	}
}

func TestStyled(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	tests := map[string]string{
		"1.2.3":         "1.2.3",
		"0.1.0-dev":     "0.1.0-dev",
		"nightly":       "nightly",
		"1.2-rc.1":      "1.2-rc.1",
		"2.0.0-alpha.1": "2.0.0-alpha.1",
	}
	for in, want := range tests {
		if got := Styled(in); got != want {
			t.Fatalf("Styled(%q) = %q, want %q", in, got, want)
		}
	}
}
