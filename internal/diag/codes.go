package diag

import (
	"fmt"
)

// Code identifies a diagnostic kind. Ranges are allocated per phase.
type Code uint16

const (
	UnknownCode Code = 0

	// Reader (1000)
	ReadInfo            Code = 1000
	ReadUnexpectedChar  Code = 1001
	ReadUnterminatedStr Code = 1002
	ReadBadNumber       Code = 1003
	ReadUnclosedParen   Code = 1004
	ReadUnexpectedClose Code = 1005
	ReadBadEscape       Code = 1006
	ReadBadPrincipal    Code = 1007
	ReadBadBuffer       Code = 1008
	ReadBadTuple        Code = 1009
	ReadNonASCII        Code = 1010
	ReadStringNotNFC    Code = 1011

	// Type checker (3000)
	CheckInfo             Code = 3000
	CheckUnknownName      Code = 3001
	CheckTypeMismatch     Code = 3002
	CheckArity            Code = 3003
	CheckBadForm          Code = 3004
	CheckBadTypeSyntax    Code = 3005
	CheckDuplicateDef     Code = 3006
	CheckUnknownFunction  Code = 3007
	CheckUnknownContract  Code = 3008
	CheckUndeterminedType Code = 3009
	CheckBadReturn        Code = 3010
	CheckValueTooLarge    Code = 3011

	// Code generation (6000)
	GenInfo          Code = 6000
	GenUnsupported   Code = 6001
	GenShapeInternal Code = 6002
	GenFrameLimit    Code = 6003
	GenInternal      Code = 6004
	GenNameReserved  Code = 6005

	// I/O and project (7000)
	IOLoadFileError     Code = 7001
	ProjManifest        Code = 7002
	ProjDuplicateName   Code = 7003
	ProjMissingContract Code = 7004
	ProjCallCycle       Code = 7005
	ProjDependencyError Code = 7006

	// Observability (9000)
	ObsTimings Code = 9001
)

var codeDescription = map[Code]string{
	UnknownCode:           "Unknown error",
	ReadInfo:              "Reader information",
	ReadUnexpectedChar:    "Unexpected character",
	ReadUnterminatedStr:   "Unterminated string literal",
	ReadBadNumber:         "Malformed integer literal",
	ReadUnclosedParen:     "Unclosed parenthesis",
	ReadUnexpectedClose:   "Unexpected closing delimiter",
	ReadBadEscape:         "Invalid escape sequence",
	ReadBadPrincipal:      "Malformed principal literal",
	ReadBadBuffer:         "Malformed buffer literal",
	ReadBadTuple:          "Malformed tuple literal",
	ReadNonASCII:          "Non-ASCII character in ASCII string",
	ReadStringNotNFC:      "UTF-8 string literal is not NFC normalized",
	CheckInfo:             "Checker information",
	CheckUnknownName:      "Unresolved name",
	CheckTypeMismatch:     "Type mismatch",
	CheckArity:            "Wrong number of arguments",
	CheckBadForm:          "Malformed special form",
	CheckBadTypeSyntax:    "Malformed type signature",
	CheckDuplicateDef:     "Name defined twice",
	CheckUnknownFunction:  "Unknown function",
	CheckUnknownContract:  "Unknown contract or contract function",
	CheckUndeterminedType: "Type cannot be determined",
	CheckBadReturn:        "Public function must return a response",
	CheckValueTooLarge:    "Value exceeds the declared maximum length",
	GenInfo:               "Code generation information",
	GenUnsupported:        "Construct has no lowering rule",
	GenShapeInternal:      "Internal error: type has no ABI shape",
	GenFrameLimit:         "Activation frame exceeds the memory budget",
	GenInternal:           "Internal code generation error",
	GenNameReserved:       "Name collides with a reserved export",
	IOLoadFileError:       "I/O load file error",
	ProjManifest:          "Invalid project manifest",
	ProjDuplicateName:     "Duplicate contract name",
	ProjMissingContract:   "Missing contract",
	ProjCallCycle:         "Contracts call each other in a cycle",
	ProjDependencyError:   "Called contract failed to compile",
	ObsTimings:            "Pipeline timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("RD%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("CHK%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("GEN%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("PRJ%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
