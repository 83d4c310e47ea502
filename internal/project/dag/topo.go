package dag

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

type Topo struct {
	Order   []ContractID   // callees before callers (только реальные контракты)
	Batches [][]ContractID // волны контрактов, которые можно собирать параллельно
	Cyclic  bool
	Cycles  []ContractID // узлы, оставшиеся в цикле
}

func toID(i int) ContractID {
	id, err := safecast.Conv[ContractID](i)
	if err != nil {
		panic(fmt.Errorf("contract id overflow: %w", err))
	}
	return id
}

// ToposortKahn orders present contracts so that every callee precedes its
// callers. Contracts in one batch do not call each other.
func ToposortKahn(g Graph) *Topo {
	nodeCount := len(g.Edges)
	indeg := make([]int, len(g.Indeg))
	copy(indeg, g.Indeg)

	topo := &Topo{
		Order:   make([]ContractID, 0, nodeCount),
		Batches: make([][]ContractID, 0),
	}

	active := 0
	current := make([]ContractID, 0, nodeCount)
	for i := range nodeCount {
		if !g.Present[i] {
			continue
		}
		active++
		if indeg[i] == 0 {
			current = append(current, toID(i))
		}
	}

	for len(current) > 0 {
		batch := slices.Clone(current)
		topo.Batches = append(topo.Batches, batch)

		next := make([]ContractID, 0)
		for _, id := range batch {
			topo.Order = append(topo.Order, id)
			for _, to := range g.Edges[int(id)] {
				if !g.Present[int(to)] {
					continue
				}
				indeg[int(to)]--
				if indeg[int(to)] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if len(topo.Order) != active {
		topo.Cyclic = true
		for i := range nodeCount {
			if g.Present[i] && indeg[i] > 0 {
				topo.Cycles = append(topo.Cycles, toID(i))
			}
		}
	}
	return topo
}
