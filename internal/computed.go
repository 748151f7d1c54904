package internal

import (
	"errors"
	"fmt"

	"github.com/AnatoleLucet/rewind/value"
)

// NewComputed declares a computed and evaluates it once to seed its cache
// and dependencies. If that evaluation would close a cycle the declaration
// is undone entirely. A failing body still declares the node, in the error
// state; the error is returned next to the id.
func (r *Runtime) NewComputed(name string, fn Thunk) (ID, error) {
	if err := r.checkDeclare(name); err != nil {
		return 0, err
	}

	saved := r.state

	def := &Def{ID: r.alloc(), Kind: KindComputed, Name: name, compute: fn}
	r.state.Topo = r.state.Topo.define(def)
	r.setSlot(def.ID, Slot{State: StateUninitialized})

	// readers waiting for this name become subscribers before the first
	// evaluation, so a read back into one of them is seen as a cycle
	var waiting []ID
	if name != "" {
		r.state.Topo, waiting = r.state.Topo.resolve(name, def.ID)
	}

	v, f, err := r.evaluate(def)
	if f.err != nil {
		r.state = saved
		return 0, f.err
	}
	// history is only cut once the declaration is accepted
	r.observer.Mutating()
	r.commitDeps(def.ID, f)

	if err != nil {
		r.setSlot(def.ID, Slot{State: StateError, Err: err, Tag: r.clock})
		r.observer.ThunkFailed(def, err)
	} else {
		r.setSlot(def.ID, Slot{Value: v, State: StateClean, Tag: r.clock})
	}
	r.observer.Declared(def)

	return def.ID, errors.Join(err, r.wake(def.ID, waiting))
}

// evaluate runs the body of def in a fresh tracking frame. Panics are turned
// into errors.
func (r *Runtime) evaluate(def *Def) (v value.Value, f *frame, err error) {
	f = &frame{sub: def.ID, kind: def.Kind}

	r.tracker.RunWithFrame(f, func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()

		switch def.Kind {
		case KindComputed:
			v, err = def.compute()
		case KindEffect:
			err = def.run()
		}
	})

	if f.err != nil {
		return value.Nil, f, f.err
	}
	if err != nil {
		return value.Nil, f, r.thunkError(def, err)
	}
	return v, f, nil
}

func (r *Runtime) thunkError(def *Def, err error) error {
	var up *ThunkError
	if errors.As(err, &up) && up.Node != def.ID {
		return &ThunkError{Node: def.ID, Name: def.Label(), Upstream: up.Name, Cause: up}
	}
	return &ThunkError{Node: def.ID, Name: def.Label(), Cause: err}
}

func (r *Runtime) commitDeps(id ID, f *frame) {
	r.state.Topo = r.state.Topo.relink(id, f.deps).wait(id, f.forward)
}

// failedDep returns the error a node inherits from a dependency in the error
// state, if any.
func (r *Runtime) failedDep(def *Def) error {
	for _, dep := range r.state.Topo.DepsOf(def.ID) {
		s := r.slot(dep)
		if s.State != StateError {
			continue
		}
		return &ThunkError{
			Node:     def.ID,
			Name:     def.Label(),
			Upstream: r.state.Topo.label(dep),
			Cause:    s.Err,
		}
	}
	return nil
}

// recompute re-evaluates a computed and reports whether its slot changed in
// a way dependents must see.
func (r *Runtime) recompute(def *Def) (Slot, bool) {
	old := r.slot(def.ID)

	next := Slot{Value: old.Value, State: StateClean}
	if err := r.failedDep(def); err != nil {
		next.State, next.Err = StateError, err
	} else {
		r.setSlot(def.ID, Slot{Value: old.Value, State: StateRecomputing, Tag: old.Tag})

		v, f, err := r.evaluate(def)
		if f.err == nil {
			// a cycle keeps the edges of the last good evaluation
			r.commitDeps(def.ID, f)
		}
		if err != nil {
			next.State, next.Err = StateError, err
		} else {
			next.Value = v
		}
	}

	changed := slotChanged(old, next)
	if changed {
		next.Tag = r.clock
	} else {
		next.Tag = old.Tag
	}
	r.setSlot(def.ID, next)

	return next, changed
}

func slotChanged(old, next Slot) bool {
	if next.State == StateError || old.State == StateError {
		return true
	}
	if old.State == StateUninitialized {
		return true
	}
	return !value.Equal(old.Value, next.Value)
}
