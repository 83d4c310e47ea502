package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	maxSeedBytes = 64 << 10 // 64 KiB: ограничение для тестового корпуса
	maxFuzzInput = 1 << 16
)

func addCorpusSeeds(f *testing.F) {
	addTestdataSeeds(f)
	addFormSeeds(f)
}

func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	// проходим по дереву testdata, добавляем все *.clar файлы
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".clar" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
}

// addFormSeeds covers reader edge cases and every family of forms with
// small programs.
func addFormSeeds(f *testing.F) {
	for _, src := range []string{
		"",
		"(",
		")",
		"{a: 1,",
		"(define-constant big 170141183460469231731687303715884105727)",
		"(define-read-only (f) (- 0 170141183460469231731687303715884105728))",
		"(define-read-only (f) u\"\\u{1F600}\")",
		"(define-read-only (f (x int)) (if (> x 0) (ok x) (err u1)))",
		"(define-read-only (f (l (list 4 int))) (map + l l))",
		"(define-read-only (f (s (string-utf8 8))) (concat s u\"!\"))",
		"(define-read-only (f (o (optional uint))) (unwrap! o (err u0)))",
		"(define-public (f (p principal)) (stx-transfer? u1 tx-sender p))",
		"(define-read-only (f) (contract-call? .other g))",
		"(define-read-only (f) (f))",
		"(define-data-var v (list 2 (buff 2)) (list 0x01 0x0203))",
	} {
		f.Add([]byte(src))
	}
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		return append([]byte(nil), input[:maxFuzzInput]...)
	}
	return append([]byte(nil), input...)
}
