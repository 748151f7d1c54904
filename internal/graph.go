package internal

import "slices"

// pathTo returns the chain of subscriber edges leading from `from` to `to`,
// or nil if `to` does not (transitively) depend on `from`.
func (t Topology) pathTo(from, to ID) []ID {
	if from == to {
		return []ID{from}
	}

	parent := map[ID]ID{from: 0}
	queue := []ID{from}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, sub := range t.SubsOf(n) {
			if _, seen := parent[sub]; seen {
				continue
			}
			parent[sub] = n

			if sub == to {
				path := []ID{to}
				for p := n; p != 0; p = parent[p] {
					path = append(path, p)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, sub)
		}
	}

	return nil
}

// cycleFor builds the error for adding the edge dep -> sub when sub already
// reaches dep.
func (t Topology) cycleFor(dep, sub ID) *CycleError {
	path := t.pathTo(sub, dep)
	if path == nil {
		return nil
	}

	labels := make([]string, 0, len(path)+1)
	for _, id := range path {
		labels = append(labels, t.label(id))
	}
	labels = append(labels, t.label(sub))

	return &CycleError{Node: t.label(sub), Path: labels}
}

func (t Topology) label(id ID) string {
	if def, ok := t.Defs.Get(id); ok {
		return def.Label()
	}
	return "?"
}

// affected collects every node reachable from sources through subscriber
// edges, sources excluded.
func (t Topology) affected(sources []ID) map[ID]struct{} {
	out := make(map[ID]struct{})
	queue := slices.Clone(sources)

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, sub := range t.SubsOf(n) {
			if _, seen := out[sub]; seen {
				continue
			}
			out[sub] = struct{}{}
			queue = append(queue, sub)
		}
	}

	for _, src := range sources {
		delete(out, src)
	}
	return out
}
