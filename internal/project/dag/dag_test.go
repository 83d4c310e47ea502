package dag

import (
	"testing"

	"clarwasm/internal/diag"
	"clarwasm/internal/project"
	"clarwasm/internal/source"
)

const addr = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM."

func meta(name string, file source.FileID, callees ...string) project.ContractMeta {
	m := project.ContractMeta{Name: name, Principal: addr + name, Span: source.Span{File: file, Start: 0, End: 10}}
	var off uint32
	for _, c := range callees {
		off++
		m.Calls = append(m.Calls, project.CallMeta{Target: addr + c, Span: source.Span{File: file, Start: off, End: off + 1}})
	}
	return m
}

func names(idx ContractIndex, ids []ContractID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToName[int(id)][len(addr):]
	}
	return out
}

func sameNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func build(metas []project.ContractMeta, provided map[string]struct{}) (ContractIndex, Graph, []ContractSlot, []*diag.Bag) {
	bags := make([]*diag.Bag, len(metas))
	nodes := make([]ContractNode, len(metas))
	for i, m := range metas {
		bags[i] = diag.NewBag(10)
		nodes[i] = ContractNode{Meta: m, Reporter: diag.BagReporter{Bag: bags[i]}}
	}
	idx := BuildIndex(metas)
	g, slots := BuildGraph(idx, nodes, provided)
	return idx, g, slots, bags
}

func TestBuildIndexIncludesTargets(t *testing.T) {
	idx := BuildIndex([]project.ContractMeta{meta("teller", 1, "vault", "token"), meta("vault", 2)})
	if got := names(idx, []ContractID{0, 1, 2}); !sameNames(got, []string{"teller", "token", "vault"}) {
		t.Fatalf("IDToName = %v", got)
	}
	for i, n := range idx.IDToName {
		if id := idx.NameToID[n]; int(id) != i {
			t.Fatalf("NameToID[%q] = %d, want %d", n, id, i)
		}
	}
}

func TestToposortCalleesFirst(t *testing.T) {
	metas := []project.ContractMeta{
		meta("app", 1, "vault", "token"),
		meta("vault", 2, "token"),
		meta("token", 3),
		meta("oracle", 4),
	}
	idx, g, _, bags := build(metas, nil)
	for i, b := range bags {
		if b.Len() != 0 {
			t.Fatalf("contract %d: unexpected diagnostics %v", i, b.Items())
		}
	}
	topo := ToposortKahn(g)
	if topo.Cyclic {
		t.Fatalf("unexpected cycle %v", names(idx, topo.Cycles))
	}
	want := [][]string{{"oracle", "token"}, {"vault"}, {"app"}}
	if len(topo.Batches) != len(want) {
		t.Fatalf("batches = %d, want %d", len(topo.Batches), len(want))
	}
	for i := range want {
		if got := names(idx, topo.Batches[i]); !sameNames(got, want[i]) {
			t.Fatalf("batch %d = %v, want %v", i, got, want[i])
		}
	}
	if got := names(idx, topo.Order); !sameNames(got, []string{"oracle", "token", "vault", "app"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestBuildGraphMissingAndProvided(t *testing.T) {
	metas := []project.ContractMeta{meta("app", 1, "token", "ghost")}
	provided := map[string]struct{}{addr + "token": {}}
	idx, g, _, bags := build(metas, provided)
	if bags[0].Len() != 1 || bags[0].Items()[0].Code != diag.ProjMissingContract {
		t.Fatalf("diagnostics = %v", bags[0].Items())
	}
	if bags[0].Items()[0].Primary.Start != 2 {
		t.Fatalf("missing call reported at %v", bags[0].Items()[0].Primary)
	}
	if g.Present[int(idx.NameToID[addr+"token"])] {
		t.Fatalf("provided contracts are not project contracts")
	}
	topo := ToposortKahn(g)
	if len(topo.Order) != 1 {
		t.Fatalf("order = %v", names(idx, topo.Order))
	}
}

func TestBuildGraphDuplicate(t *testing.T) {
	first, second := meta("vault", 1), meta("vault", 2)
	_, _, slots, bags := build([]project.ContractMeta{first, second}, nil)
	if bags[0].Len() != 0 {
		t.Fatalf("first declaration reported: %v", bags[0].Items())
	}
	if bags[1].Len() != 1 || bags[1].Items()[0].Code != diag.ProjDuplicateName {
		t.Fatalf("duplicate diagnostics = %v", bags[1].Items())
	}
	if len(bags[1].Items()[0].Notes) != 1 {
		t.Fatalf("expected a note pointing at the first declaration")
	}
	if slots[0].Meta.Span.File != 1 {
		t.Fatalf("slot keeps the first declaration")
	}
}

func TestCyclesAndSelfCalls(t *testing.T) {
	metas := []project.ContractMeta{
		meta("a", 1, "b"),
		meta("b", 2, "a"),
		meta("c", 3, "c"),
	}
	idx, g, slots, bags := build(metas, nil)
	if bags[2].Len() != 1 || bags[2].Items()[0].Code != diag.ProjCallCycle {
		t.Fatalf("self call diagnostics = %v", bags[2].Items())
	}
	topo := ToposortKahn(g)
	if !topo.Cyclic {
		t.Fatalf("expected a cycle")
	}
	if got := names(idx, topo.Cycles); !sameNames(got, []string{"a", "b"}) {
		t.Fatalf("cycles = %v", got)
	}
	if got := names(idx, topo.Order); !sameNames(got, []string{"c"}) {
		t.Fatalf("order = %v", got)
	}
	ReportCycles(idx, slots, *topo)
	for i := range 2 {
		if bags[i].Len() != 1 || bags[i].Items()[0].Code != diag.ProjCallCycle {
			t.Fatalf("contract %d diagnostics = %v", i, bags[i].Items())
		}
	}
	if !slots[idx.NameToID[addr+"a"]].Broken {
		t.Fatalf("cyclic contracts are marked broken")
	}
}

func TestReportBrokenCallees(t *testing.T) {
	metas := []project.ContractMeta{meta("app", 1, "vault"), meta("vault", 2)}
	idx, _, slots, bags := build(metas, nil)
	vault := idx.NameToID[addr+"vault"]
	first := diag.NewError(diag.CheckTypeMismatch, source.Span{File: 2, Start: 3, End: 4}, "boom")
	slots[vault].Broken = true
	slots[vault].FirstErr = &first

	if ReportBrokenCallees(idx, slots, vault) {
		t.Fatalf("vault calls nothing")
	}
	if !ReportBrokenCallees(idx, slots, idx.NameToID[addr+"app"]) {
		t.Fatalf("app calls a broken contract")
	}
	items := bags[0].Items()
	if len(items) != 1 || items[0].Code != diag.ProjDependencyError || len(items[0].Notes) != 1 {
		t.Fatalf("diagnostics = %v", items)
	}
}
