package codegen

import (
	"fmt"

	"clarwasm/internal/source"
)

// UnsupportedError reports a well-typed construct the lowering engine has no
// translation for. It is a user-facing error carrying the construct's span.
type UnsupportedError struct {
	Construct string
	Reason    string
	Span      source.Span
}

func (e *UnsupportedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("codegen: %s is not supported", e.Construct)
	}
	return fmt.Sprintf("codegen: %s is not supported: %s", e.Construct, e.Reason)
}

func unsupported(construct string, sp source.Span, reason string) error {
	return &UnsupportedError{Construct: construct, Reason: reason, Span: sp}
}

// InternalError is a lowering defect: a tree the checker should have
// rejected or state the generator should never reach.
type InternalError struct {
	Span source.Span
	Msg  string
}

func (e *InternalError) Error() string {
	return "codegen: internal error: " + e.Msg
}

func internalf(sp source.Span, format string, args ...any) error {
	return &InternalError{Span: sp, Msg: fmt.Sprintf(format, args...)}
}
