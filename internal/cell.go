package internal

import (
	"fmt"
	"slices"

	"github.com/AnatoleLucet/rewind/value"
)

func (r *Runtime) NewCell(name string, initial value.Value) (ID, error) {
	if err := r.checkDeclare(name); err != nil {
		return 0, err
	}
	r.observer.Mutating()

	def := &Def{ID: r.alloc(), Kind: KindCell, Name: name}
	r.state.Topo = r.state.Topo.define(def)
	r.setSlot(def.ID, Slot{Value: initial, State: StateClean, Tag: r.clock})

	var waiting []ID
	if name != "" {
		r.state.Topo, waiting = r.state.Topo.resolve(name, def.ID)
	}
	r.observer.Declared(def)

	return def.ID, r.wake(def.ID, waiting)
}

// Read returns the current value of a cell or computed, recording the
// dependency when a reactive body is being evaluated.
func (r *Runtime) Read(id ID) (value.Value, error) {
	def, ok := r.state.Topo.Def(id)
	if !ok {
		return value.Nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if def.Kind == KindEffect {
		return value.Nil, fmt.Errorf("%w: %q", ErrNotReadable, def.Label())
	}

	f := r.tracker.Active()
	if f != nil {
		if err := r.track(f, id); err != nil {
			return value.Nil, err
		}
	}

	if def.Kind == KindComputed && r.run != nil {
		r.run.settle(id)

		// settling may have given id new dependencies
		if f != nil {
			if err := r.track(f, id); err != nil {
				return value.Nil, err
			}
		}
	}

	s := r.slot(id)
	if s.State == StateDirty && r.run == nil {
		return r.peek(def)
	}
	if s.State == StateError {
		return s.Value, s.Err
	}
	return s.Value, nil
}

// track records the edge id -> f.sub, refusing edges that close a cycle.
func (r *Runtime) track(f *frame, id ID) error {
	if f.sub == 0 {
		f.addDep(id)
		return nil
	}
	if f.err != nil {
		return f.err
	}

	topo := r.state.Topo
	if !slices.Contains(topo.DepsOf(f.sub), id) {
		if cycle := topo.cycleFor(id, f.sub); cycle != nil {
			f.err = cycle
			return cycle
		}
	}

	f.addDep(id)
	return nil
}

// ReadName reads the node declared under name. Reading an undeclared name
// from a reactive body remembers the read so the body re-runs once the name
// is declared.
func (r *Runtime) ReadName(name string) (value.Value, error) {
	id, ok := r.state.Topo.Lookup(name)
	if !ok {
		if f := r.tracker.Active(); f != nil && f.sub != 0 {
			f.addForward(name)
		}
		return value.Nil, &UnboundError{Name: name}
	}
	return r.Read(id)
}

func (r *Runtime) Write(id ID, v value.Value) error {
	if f := r.tracker.Current(); f != nil && f.kind == KindComputed {
		return ErrWriteInComputed
	}

	def, ok := r.state.Topo.Def(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if def.Kind != KindCell {
		return fmt.Errorf("%w: %q is a %s", ErrNotWritable, def.Label(), def.Kind)
	}

	r.observer.Mutating()

	if value.Equal(r.slot(id).Value, v) {
		return nil
	}
	r.setSlot(id, Slot{Value: v, State: StateClean, Tag: r.clock})
	r.markDirty(id)
	if r.batcher.IsBatching() && !r.flushing {
		r.markStale(id)
	}

	return r.maybeFlush()
}

func (r *Runtime) WriteName(name string, v value.Value) error {
	id, ok := r.state.Topo.Lookup(name)
	if !ok {
		return &UnboundError{Name: name}
	}
	return r.Write(id, v)
}

// Track runs fn recording every reactive read, without subscribing anything.
func (r *Runtime) Track(fn func() (value.Value, error)) (value.Value, []ID, error) {
	f := &frame{}

	var (
		v   value.Value
		err error
	)
	r.tracker.RunWithFrame(f, func() { v, err = fn() })

	return v, f.deps, err
}

func (r *Runtime) Untrack(fn func()) {
	r.tracker.RunUntracked(fn)
}

func (r *Runtime) markDirty(id ID) {
	if !slices.Contains(r.dirty, id) {
		r.dirty = append(r.dirty, id)
	}
}

// markStale flags the clean computeds downstream of id as Dirty until the
// batch flushes.
func (r *Runtime) markStale(id ID) {
	slots := r.state.Slots.Builder()
	for sub := range r.state.Topo.affected([]ID{id}) {
		def, ok := r.state.Topo.Def(sub)
		if !ok || def.Kind != KindComputed {
			continue
		}
		if s, ok := slots.Get(sub); ok && s.State == StateClean {
			s.State = StateDirty
			slots.Set(sub, s)
		}
	}
	r.state.Slots = slots.Map()
}

// peek evaluates a Dirty computed against the values written so far in the
// open batch. The cache and edges are left for the flush to update.
func (r *Runtime) peek(def *Def) (value.Value, error) {
	v, _, err := r.evaluate(def)
	return v, err
}

func (r *Runtime) maybeFlush() error {
	if r.batcher.IsBatching() || r.flushing {
		return nil
	}
	return r.Flush()
}

// wake re-runs the subscribers that were waiting for a freshly declared name.
func (r *Runtime) wake(id ID, waiting []ID) error {
	if len(waiting) == 0 {
		return nil
	}
	r.markDirty(id)
	return r.maybeFlush()
}
