package internal

import (
	"errors"
	"fmt"
	"time"
)

// propagation is one batch being pushed through the graph.
type propagation struct {
	r *Runtime

	// the graph as it was when the batch started; ordering uses it even if
	// recomputes change edges
	topo Topology

	affected map[ID]struct{}
	done     map[ID]bool
	changed  map[ID]struct{}

	effects *EffectQueue
	stats   FlushStats
	errs    []error
}

// Flush propagates every pending write. Effects that write cells start
// another round, up to the flush limit.
func (r *Runtime) Flush() error {
	if r.flushing || len(r.dirty) == 0 {
		return nil
	}

	r.flushing = true
	defer func() { r.flushing = false }()

	var errs []error
	for round := 0; len(r.dirty) > 0; round++ {
		if round >= r.maxFlush {
			r.dirty = nil
			errs = append(errs, fmt.Errorf("%w (%d rounds)", ErrFlushLimit, r.maxFlush))
			break
		}

		sources := r.dirty
		r.dirty = nil

		errs = append(errs, r.propagate(sources)...)
		r.clock++
	}

	return errors.Join(errs...)
}

func (r *Runtime) propagate(sources []ID) []error {
	start := time.Now()

	p := &propagation{
		r:        r,
		topo:     r.state.Topo,
		affected: r.state.Topo.affected(sources),
		done:     make(map[ID]bool),
		changed:  make(map[ID]struct{}, len(sources)),
		effects:  NewEffectQueue(),
	}
	for _, id := range sources {
		p.changed[id] = struct{}{}
	}
	p.stats.Sources = len(sources)
	p.stats.Affected = len(p.affected)

	r.run = p
	defer func() { r.run = nil }()

	// Kahn's algorithm over the affected subgraph. A node enters the queue
	// once all of its affected dependencies were processed, one rank above
	// the last of them.
	indegree := make(map[ID]int, len(p.affected))
	for id := range p.affected {
		for _, dep := range p.topo.DepsOf(id) {
			if _, ok := p.affected[dep]; ok {
				indegree[id]++
			}
		}
	}

	queue := NewRankQueue()
	for id := range p.affected {
		if indegree[id] == 0 {
			queue.Insert(id, 0)
		}
	}

	queue.Drain(func(id ID, rank int) {
		p.settle(id)

		for _, sub := range p.topo.SubsOf(id) {
			if _, ok := p.affected[sub]; !ok {
				continue
			}
			indegree[sub]--
			if indegree[sub] == 0 {
				queue.Insert(sub, rank+1)
			}
		}
	})

	for _, id := range p.effects.Drain() {
		def, ok := r.state.Topo.Def(id)
		if !ok {
			continue
		}

		ran, err := r.runEffect(def)
		if ran {
			p.stats.EffectsRun++
		}
		if err != nil {
			p.stats.Failed++
			p.errs = append(p.errs, err)
		}
	}

	p.stats.Duration = time.Since(start)
	r.observer.Flushed(p.stats)

	return p.errs
}

// settle brings an affected node up to date. It is called in rank order,
// and also out of order when a body reads a computed that has not been
// reached yet.
func (p *propagation) settle(id ID) {
	if _, ok := p.affected[id]; !ok || p.done[id] {
		return
	}
	p.done[id] = true

	def, ok := p.r.state.Topo.Def(id)
	if !ok {
		return
	}

	for _, dep := range p.r.state.Topo.DepsOf(id) {
		p.settle(dep)
	}
	if !p.anyChanged(id) {
		if s := p.r.slot(id); s.State == StateDirty {
			s.State = StateClean
			p.r.setSlot(id, s)
		}
		return
	}

	switch def.Kind {
	case KindComputed:
		p.stats.Recomputed++

		slot, changed := p.r.recompute(def)
		if changed {
			p.changed[id] = struct{}{}
		}
		if slot.State == StateError {
			p.fail(def, slot.Err)
		}

	case KindEffect:
		if p.r.EffectEnabled(id) {
			p.effects.Enqueue(id)
		}
	}
}

func (p *propagation) anyChanged(id ID) bool {
	for _, dep := range p.r.state.Topo.DepsOf(id) {
		if _, ok := p.changed[dep]; ok {
			return true
		}
	}
	return false
}

// fail records the error of a node that failed on its own. Nodes that only
// inherited a failure are left out of the returned errors.
func (p *propagation) fail(def *Def, err error) {
	var te *ThunkError
	if errors.As(err, &te) && te.Node == def.ID && te.Upstream != "" {
		return
	}

	p.stats.Failed++
	p.errs = append(p.errs, err)
	p.r.observer.ThunkFailed(def, err)
}
