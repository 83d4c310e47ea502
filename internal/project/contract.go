package project

import (
	"slices"

	"clarwasm/internal/ast"
	"clarwasm/internal/source"
	"clarwasm/internal/types"
	"clarwasm/internal/value"
)

// MaxContractName bounds contract names.
const MaxContractName = 40

// CallMeta is one contract-call? target found in a contract.
type CallMeta struct {
	// Target is the callee principal, ADDR.name.
	Target string
	Span   source.Span
}

// ContractMeta describes one contract of a project before it is checked.
type ContractMeta struct {
	Name      string
	Principal string
	Path      string
	// Span covers the whole file.
	Span  source.Span
	Calls []CallMeta
	// ContentHash is the digest of the source alone; Hash also folds in
	// the hashes of every callee.
	ContentHash Digest
	Hash        Digest
}

// IsValidContractName reports whether name is a letter followed by letters,
// digits, '-' or '_', at most MaxContractName bytes long.
func IsValidContractName(name string) bool {
	if name == "" || len(name) > MaxContractName {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		case i > 0 && (b >= '0' && b <= '9' || b == '-' || b == '_'):
		default:
			return false
		}
	}
	return true
}

// ScanCalls collects the distinct contract-call? targets of a parsed
// contract in source order. Targets are a principal literal or a .name
// shorthand resolved against deployer; anything else is left for the
// checker to reject.
func ScanCalls(exprs []*ast.Expr, deployer value.Principal) []CallMeta {
	var out []CallMeta
	for _, top := range exprs {
		ast.Walk(top, func(e *ast.Expr) bool {
			if !e.IsCall("contract-call?") {
				return true
			}
			ops := e.Operands()
			if len(ops) == 0 {
				return true
			}
			target, ok := callTarget(ops[0], deployer)
			if !ok {
				return true
			}
			if !slices.ContainsFunc(out, func(c CallMeta) bool { return c.Target == target }) {
				out = append(out, CallMeta{Target: target, Span: ops[0].Span})
			}
			return true
		})
	}
	return out
}

func callTarget(e *ast.Expr, deployer value.Principal) (string, bool) {
	switch e.Kind {
	case ast.KindAtom:
		if len(e.Name) > 1 && e.Name[0] == '.' {
			return deployer.Contract(e.Name[1:]).String(), true
		}
	case ast.KindLiteral:
		if e.Value.Kind == types.KindPrincipal && e.Value.Principal.Name != "" {
			return e.Value.Principal.String(), true
		}
	}
	return "", false
}
