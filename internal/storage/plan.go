package storage

import (
	"fmt"
	"sort"
)

// OrderTables returns tables with every referenced (parent) table before the
// tables that reference it, using Kahn's algorithm. Ties are broken by the
// input order so the result is stable.
//
// References to tables outside the input set are ignored.
//
// Errors:
//   - Returns an error naming the tables involved if the references form a cycle.
func OrderTables(tables []TableSpec) ([]TableSpec, error) {
	pos := make(map[string]int, len(tables))
	for i, t := range tables {
		pos[t.Name] = i
	}

	inDegree := make([]int, len(tables))
	children := make([][]int, len(tables))
	for i, t := range tables {
		seen := map[string]bool{}
		for _, fk := range t.ForeignKeys() {
			p, ok := pos[fk.References.Table]
			if !ok || p == i || seen[fk.References.Table] {
				continue
			}
			seen[fk.References.Table] = true
			children[p] = append(children[p], i)
			inDegree[i]++
		}
	}

	var queue []int
	for i := range tables {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	out := make([]TableSpec, 0, len(tables))
	for len(queue) > 0 {
		sort.Ints(queue)
		n := queue[0]
		queue = queue[1:]
		out = append(out, tables[n])

		for _, c := range children[n] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(out) < len(tables) {
		var cyclic []string
		for i, t := range tables {
			if inDegree[i] > 0 {
				cyclic = append(cyclic, t.Name)
			}
		}
		return nil, fmt.Errorf("storage: circular foreign key references among tables: %v", cyclic)
	}
	return out, nil
}
