package assemble

import (
	"errors"

	"clarwasm/internal/abi"
	"clarwasm/internal/codegen"
	"clarwasm/internal/diag"
	"clarwasm/internal/memory"
	"clarwasm/internal/source"
)

// ToDiagnostic maps an Assemble error onto a diagnostic. The span is the
// offending construct when known, otherwise the enclosing function.
func ToDiagnostic(err error) diag.Diagnostic {
	var sp source.Span
	var fe *FunctionError
	if errors.As(err, &fe) {
		sp = fe.Span
	}
	var (
		ue *codegen.UnsupportedError
		ie *codegen.InternalError
		re *ReservedNameError
		me *memory.ExhaustedError
		se *abi.ShapeError
	)
	switch {
	case errors.As(err, &ue):
		return diag.NewError(diag.GenUnsupported, ue.Span, err.Error())
	case errors.As(err, &re):
		return diag.NewError(diag.GenNameReserved, re.Span, err.Error())
	case errors.As(err, &me):
		return diag.NewError(diag.GenFrameLimit, sp, err.Error())
	case errors.As(err, &se):
		return diag.NewError(diag.GenShapeInternal, sp, err.Error())
	case errors.As(err, &ie):
		if !ie.Span.Empty() {
			sp = ie.Span
		}
	}
	return diag.NewError(diag.GenInternal, sp, err.Error())
}
