package history

import (
	"slices"

	"github.com/AnatoleLucet/rewind/value"
)

type Change struct {
	Name string      `json:"name"`
	Old  value.Value `json:"old"`
	New  value.Value `json:"new"`
}

// Diff lists the named values that differ between two versions.
type Diff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []Change `json:"modified"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

func Compare(from, to map[string]value.Value) Diff {
	var d Diff

	for name, nv := range to {
		ov, ok := from[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case !value.Equal(ov, nv):
			d.Modified = append(d.Modified, Change{Name: name, Old: ov, New: nv})
		}
	}
	for name := range from {
		if _, ok := to[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}

	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.SortFunc(d.Modified, func(a, b Change) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return d
}

func DiffVersions(from, to *Version) Diff {
	return Compare(from.Values(), to.Values())
}
