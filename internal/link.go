package internal

import (
	"slices"

	"github.com/AnatoleLucet/rewind/internal/pmap"
)

// Topology is the persistent dependency graph. Edges are kept in both
// directions: Deps maps a subscriber to the sources it read (in read order),
// Subs maps a source to its subscribers (in id order).
//
// Slices stored in the maps are never modified in place.
type Topology struct {
	Defs  pmap.Map[ID, *Def]
	Names pmap.Map[string, ID]
	Deps  pmap.Map[ID, []ID]
	Subs  pmap.Map[ID, []ID]

	// reads of names that were not declared yet
	Forward pmap.Map[string, []ID]
	Waiting pmap.Map[ID, []string]
}

func NewTopology() Topology {
	return Topology{
		Defs:    pmap.New[ID, *Def](),
		Names:   pmap.New[string, ID](),
		Deps:    pmap.New[ID, []ID](),
		Subs:    pmap.New[ID, []ID](),
		Forward: pmap.New[string, []ID](),
		Waiting: pmap.New[ID, []string](),
	}
}

func (t Topology) Def(id ID) (*Def, bool) {
	return t.Defs.Get(id)
}

func (t Topology) Lookup(name string) (ID, bool) {
	return t.Names.Get(name)
}

func (t Topology) DepsOf(id ID) []ID {
	deps, _ := t.Deps.Get(id)
	return deps
}

func (t Topology) SubsOf(id ID) []ID {
	subs, _ := t.Subs.Get(id)
	return subs
}

func (t Topology) define(def *Def) Topology {
	t.Defs = t.Defs.Set(def.ID, def)
	if def.Name != "" {
		t.Names = t.Names.Set(def.Name, def.ID)
	}
	return t
}

// link adds a single dep -> sub edge.
func (t Topology) link(dep, sub ID) Topology {
	deps := t.DepsOf(sub)
	if slices.Contains(deps, dep) {
		return t
	}
	t.Deps = t.Deps.Set(sub, append(slices.Clone(deps), dep))
	t.Subs = t.Subs.Set(dep, insertSorted(t.SubsOf(dep), sub))
	return t
}

// relink replaces every dependency of sub with deps.
func (t Topology) relink(sub ID, deps []ID) Topology {
	old := t.DepsOf(sub)

	for _, dep := range old {
		if !slices.Contains(deps, dep) {
			t.Subs = setOrDelete(t.Subs, dep, removeID(t.SubsOf(dep), sub))
		}
	}
	for _, dep := range deps {
		if !slices.Contains(old, dep) {
			t.Subs = t.Subs.Set(dep, insertSorted(t.SubsOf(dep), sub))
		}
	}

	t.Deps = setOrDelete(t.Deps, sub, slices.Clone(deps))
	return t
}

// wait replaces the unresolved names sub is waiting for.
func (t Topology) wait(sub ID, names []string) Topology {
	old, _ := t.Waiting.Get(sub)

	for _, name := range old {
		if !slices.Contains(names, name) {
			subs, _ := t.Forward.Get(name)
			t.Forward = setOrDelete(t.Forward, name, removeID(subs, sub))
		}
	}
	for _, name := range names {
		if !slices.Contains(old, name) {
			subs, _ := t.Forward.Get(name)
			t.Forward = t.Forward.Set(name, insertSorted(subs, sub))
		}
	}

	if len(names) == 0 {
		t.Waiting = t.Waiting.Delete(sub)
	} else {
		t.Waiting = t.Waiting.Set(sub, slices.Clone(names))
	}
	return t
}

// resolve turns the forward reads of name into real edges from id.
// It returns the subscribers that were waiting.
func (t Topology) resolve(name string, id ID) (Topology, []ID) {
	waiting, ok := t.Forward.Get(name)
	if !ok {
		return t, nil
	}

	for _, sub := range waiting {
		names, _ := t.Waiting.Get(sub)
		rest := slices.DeleteFunc(slices.Clone(names), func(n string) bool { return n == name })
		if len(rest) == 0 {
			t.Waiting = t.Waiting.Delete(sub)
		} else {
			t.Waiting = t.Waiting.Set(sub, rest)
		}
		t = t.link(id, sub)
	}
	t.Forward = t.Forward.Delete(name)

	return t, waiting
}

// remove drops a node together with its outgoing dependency edges.
// Callers make sure nothing subscribes to it anymore.
func (t Topology) remove(id ID) Topology {
	t = t.relink(id, nil)
	t = t.wait(id, nil)

	if def, ok := t.Defs.Get(id); ok && def.Name != "" {
		if owner, _ := t.Names.Get(def.Name); owner == id {
			t.Names = t.Names.Delete(def.Name)
		}
	}
	t.Defs = t.Defs.Delete(id)
	t.Subs = t.Subs.Delete(id)
	return t
}

// EdgeCount is the number of dep -> sub edges.
func (t Topology) EdgeCount() int {
	n := 0
	t.Deps.Range(func(_ ID, deps []ID) bool {
		n += len(deps)
		return true
	})
	return n
}

func insertSorted(ids []ID, id ID) []ID {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(slices.Clone(ids), i, id)
}

func removeID(ids []ID, id ID) []ID {
	i := slices.Index(ids, id)
	if i < 0 {
		return ids
	}
	return slices.Delete(slices.Clone(ids), i, i+1)
}

func setOrDelete[K pmap.Key, V any](m pmap.Map[K, []V], k K, v []V) pmap.Map[K, []V] {
	if len(v) == 0 {
		return m.Delete(k)
	}
	return m.Set(k, v)
}
