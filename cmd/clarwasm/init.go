package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clarwasm/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [path|name]",
	Short: "Initialize a new clarwasm project",
	Long: `Initialize a new clarwasm project by creating a project manifest
(clarwasm.toml) and a counter contract. If [path|name] is omitted, initializes
the current directory. If a non-existing name is provided, a directory will be
created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("deployer", "", "deployer principal recorded in the manifest (default: the development sender)")
}

const defaultContractName = "counter"

func runInit(cmd *cobra.Command, args []string) error {
	target, err := initTarget(args)
	if err != nil {
		return err
	}
	deployer, err := deployerFlag(cmd)
	if err != nil {
		return err
	}
	created, err := initProject(target, deployer.String())
	if err != nil {
		return err
	}

	rel := target
	if wd, err := os.Getwd(); err == nil {
		if r, err2 := filepath.Rel(wd, target); err2 == nil {
			rel = r
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized clarwasm project in %s\n", rel)
	for _, f := range created {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	return nil
}

func initTarget(args []string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if len(args) == 0 || args[0] == "." {
		return wd, nil
	}
	if filepath.IsAbs(args[0]) {
		return args[0], nil
	}
	return filepath.Join(wd, args[0]), nil
}

// initProject writes clarwasm.toml and a sample contract into target and
// returns the created files relative to it. An existing contract file is
// kept as is.
func initProject(target, deployer string) ([]string, error) {
	if st, err := os.Stat(target); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err = os.MkdirAll(target, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %q: %w", target, err)
		}
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", target)
	}

	manifestPath := filepath.Join(target, project.ManifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return nil, fmt.Errorf("project already initialized: %s exists", manifestPath)
	}

	// имя проекта = имя контракта, если оно допустимо
	name := strings.ToLower(strings.TrimSpace(filepath.Base(target)))
	if !project.IsValidContractName(name) {
		name = defaultContractName
	}
	manifest, err := project.Template(name, deployer)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(manifestPath, manifest, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	created := []string{project.ManifestName}

	rel := filepath.Join("contracts", name+".clar")
	contractPath := filepath.Join(target, rel)
	if _, err := os.Stat(contractPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(contractPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(contractPath, []byte(sampleContract), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		created = append(created, filepath.ToSlash(rel))
	} else {
		created = append(created, filepath.ToSlash(rel)+" (existing)")
	}
	return created, nil
}

const sampleContract = `;; A counter anyone can bump.
(define-data-var counter uint u0)

(define-read-only (get-counter)
  (var-get counter))

(define-public (increment (by uint))
  (begin
    (asserts! (> by u0) (err u1))
    (var-set counter (+ (var-get counter) by))
    (ok (var-get counter))))
`
