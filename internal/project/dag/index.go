package dag

import (
	"sort"

	"clarwasm/internal/project"
)

type ContractID uint32

// ContractIndex numbers every contract principal seen in a project: the
// contracts themselves and the targets they call.
type ContractIndex struct {
	NameToID map[string]ContractID
	IDToName []string
}

// собрать уникальные principal, sort.Strings, раздать ID по порядку
func BuildIndex(metas []project.ContractMeta) ContractIndex {
	uniq := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		if meta.Principal != "" {
			uniq[meta.Principal] = struct{}{}
		}
		for _, call := range meta.Calls {
			if call.Target != "" {
				uniq[call.Target] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]ContractID, len(names))
	for i, name := range names {
		nameToID[name] = toID(i)
	}
	return ContractIndex{NameToID: nameToID, IDToName: names}
}
