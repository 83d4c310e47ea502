// Package diag defines the diagnostic model shared by the reader, the type
// checker, code generation and the project driver.
//
// Diagnostic is the central record: a Severity, a numeric Code with a stable
// string form, a short message, the primary source.Span and optional notes.
// Phases emit through a Reporter (usually a BagReporter) so they never depend
// on formatting; rendering lives in internal/diagfmt.
//
// Code ranges:
//
//   - 1000 reader (RD)
//   - 3000 type checker (CHK)
//   - 6000 code generation, ABI and memory limits (GEN)
//   - 7000 I/O and project manifest (PRJ)
//   - 9000 observability (OBS)
package diag
