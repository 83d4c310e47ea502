package dag

import (
	"fmt"
	"slices"
	"strings"

	"clarwasm/internal/diag"
	"clarwasm/internal/project"
	"clarwasm/internal/source"
)

// Graph links callees to their callers.
type Graph struct {
	Edges   [][]ContractID // Edges[callee] = callers
	Indeg   []int          // число вызываемых контрактов проекта для Kahn
	Present []bool         // контракт описан в проекте, а не только вызывается
}

type ContractNode struct {
	Meta     project.ContractMeta
	Reporter diag.Reporter
	Broken   bool
	FirstErr *diag.Diagnostic
}

type ContractSlot struct {
	Meta     project.ContractMeta
	Reporter diag.Reporter
	Present  bool
	Broken   bool
	FirstErr *diag.Diagnostic
}

// BuildGraph places nodes into the index and links every call. Targets that
// are neither project contracts nor in provided are reported as missing.
func BuildGraph(idx ContractIndex, nodes []ContractNode, provided map[string]struct{}) (Graph, []ContractSlot) {
	nodeCount := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]ContractID, nodeCount),
		Indeg:   make([]int, nodeCount),
		Present: make([]bool, nodeCount),
	}
	slots := make([]ContractSlot, nodeCount)
	for i, name := range idx.IDToName {
		slots[i].Meta.Principal = name
	}

	for _, node := range nodes {
		meta := node.Meta
		id, ok := idx.NameToID[meta.Principal]
		if !ok {
			// индекс строится на тех же метаданных
			continue
		}
		slot := &slots[int(id)]
		if slot.Present {
			report(node.Reporter, diag.ProjDuplicateName, meta.Span,
				fmt.Sprintf("duplicate contract %q", meta.Name),
				noteAt(slot.Meta.Span, fmt.Sprintf("previous declaration of %q", slot.Meta.Name)))
			continue
		}
		*slot = ContractSlot{
			Meta:     meta,
			Reporter: node.Reporter,
			Present:  true,
			Broken:   node.Broken,
			FirstErr: node.FirstErr,
		}
		g.Present[int(id)] = true
	}

	for from := range slots {
		slot := &slots[from]
		if !slot.Present {
			continue
		}
		for _, call := range slot.Meta.Calls {
			calleeID := idx.NameToID[call.Target]
			switch {
			case int(calleeID) == from:
				report(slot.Reporter, diag.ProjCallCycle, call.Span,
					fmt.Sprintf("contract %q calls itself", slot.Meta.Name), nil)
			case g.Present[int(calleeID)]:
				if slices.Contains(g.Edges[int(calleeID)], toID(from)) {
					continue
				}
				g.Edges[int(calleeID)] = append(g.Edges[int(calleeID)], toID(from))
				g.Indeg[from]++
			default:
				if _, ok := provided[call.Target]; ok {
					continue
				}
				report(slot.Reporter, diag.ProjMissingContract, call.Span,
					fmt.Sprintf("contract %q calls unknown contract %s", slot.Meta.Name, call.Target), nil)
			}
		}
	}
	for i := range g.Edges {
		slices.Sort(g.Edges[i])
	}
	return g, slots
}

// ReportCycles reports every contract left in a call cycle.
func ReportCycles(idx ContractIndex, slots []ContractSlot, topo Topo) {
	if !topo.Cyclic || len(topo.Cycles) == 0 {
		return
	}
	names := make([]string, 0, len(topo.Cycles))
	for _, id := range topo.Cycles {
		names = append(names, slots[int(id)].Meta.Name)
	}
	summary := strings.Join(names, " -> ")
	for _, id := range topo.Cycles {
		slot := &slots[int(id)]
		if !slot.Present {
			continue
		}
		slot.Broken = true
		report(slot.Reporter, diag.ProjCallCycle, slot.Meta.Span,
			fmt.Sprintf("contract %q participates in a call cycle: %s", slot.Meta.Name, summary), nil)
	}
}

// ReportBrokenCallees reports the calls of contract id into contracts that
// failed to compile and reports whether there were any. Callees must have
// been processed before id.
func ReportBrokenCallees(idx ContractIndex, slots []ContractSlot, id ContractID) bool {
	slot := &slots[int(id)]
	broken := false
	for _, call := range slot.Meta.Calls {
		calleeID, ok := idx.NameToID[call.Target]
		if !ok || calleeID == id {
			continue
		}
		callee := slots[int(calleeID)]
		if !callee.Present || !callee.Broken {
			continue
		}
		broken = true
		var notes []diag.Note
		if callee.FirstErr != nil {
			notes = noteAt(callee.FirstErr.Primary, "first error in called contract: "+callee.FirstErr.Message)
		}
		report(slot.Reporter, diag.ProjDependencyError, call.Span,
			fmt.Sprintf("called contract %q has errors", callee.Meta.Name), notes)
	}
	return broken
}

func report(r diag.Reporter, code diag.Code, sp source.Span, msg string, notes []diag.Note) {
	if r == nil {
		return
	}
	r.Report(code, diag.SevError, sp, msg, notes)
}

func noteAt(sp source.Span, msg string) []diag.Note {
	if sp == (source.Span{}) {
		return nil
	}
	return []diag.Note{{Span: sp, Msg: msg}}
}
