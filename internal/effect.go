package internal

import (
	"errors"
	"fmt"
)

type effectRecord struct {
	// registered by the last run, called before the next one
	cleanups []func()

	disabled bool
}

func (e *effectRecord) cleanup() {
	cleanups := e.cleanups
	e.cleanups = nil

	for _, fn := range cleanups {
		fn()
	}
}

// NewEffect declares an effect and runs it once. The returned id is valid
// even when err reports a failure of that first run.
func (r *Runtime) NewEffect(name string, fn EffectFunc) (ID, error) {
	if err := r.checkDeclare(name); err != nil {
		return 0, err
	}
	r.observer.Mutating()

	def := &Def{ID: r.alloc(), Kind: KindEffect, Name: name, run: fn}
	r.state.Topo = r.state.Topo.define(def)
	r.setSlot(def.ID, Slot{State: StateReady, Tag: r.clock})
	r.effects[def.ID] = &effectRecord{}
	r.observer.Declared(def)

	// writes made by the first run are flushed once it is done
	r.batcher.Begin()
	_, err := r.runEffect(def)
	r.batcher.End()

	return def.ID, errors.Join(err, r.maybeFlush())
}

// runEffect runs cleanups and then the body of an effect. It reports
// whether the body actually ran.
func (r *Runtime) runEffect(def *Def) (bool, error) {
	rec, ok := r.effects[def.ID]
	if !ok {
		rec = &effectRecord{}
		r.effects[def.ID] = rec
	}
	if rec.disabled {
		return false, nil
	}

	if err := r.failedDep(def); err != nil {
		rec.cleanup()
		r.setSlot(def.ID, Slot{State: StateError, Err: err, Tag: r.clock})
		return false, nil
	}

	r.setSlot(def.ID, Slot{State: StatePending, Tag: r.slot(def.ID).Tag})
	rec.cleanup()

	_, f, err := r.evaluate(def)
	if f.err == nil {
		r.commitDeps(def.ID, f)
	}

	if err != nil {
		r.setSlot(def.ID, Slot{State: StateError, Err: err, Tag: r.clock})
		r.observer.ThunkFailed(def, err)
		return true, err
	}

	r.setSlot(def.ID, Slot{State: StateRan, Tag: r.clock})
	return true, nil
}

func (r *Runtime) dropEffect(id ID) {
	if rec, ok := r.effects[id]; ok {
		rec.cleanup()
		delete(r.effects, id)
	}
}

// OnCleanup registers fn to run before the running effect runs again or
// when it is disposed.
func (r *Runtime) OnCleanup(fn func()) error {
	f := r.tracker.Current()
	if f == nil || f.kind != KindEffect {
		return ErrCleanupOutsideEffect
	}

	rec := r.effects[f.sub]
	rec.cleanups = append(rec.cleanups, fn)
	return nil
}

// SetEffectEnabled pauses or resumes an effect. A resumed effect runs once
// right away so its side effects catch up with the current state.
func (r *Runtime) SetEffectEnabled(id ID, enabled bool) error {
	if r.tracker.Running() {
		return ErrDeclareInThunk
	}

	def, ok := r.state.Topo.Def(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if def.Kind != KindEffect {
		return fmt.Errorf("%w: %q is a %s", ErrNotEffect, def.Label(), def.Kind)
	}

	rec := r.effects[id]
	if rec.disabled == !enabled {
		return nil
	}
	rec.disabled = !enabled

	if !enabled {
		rec.cleanup()
		return nil
	}

	r.batcher.Begin()
	_, err := r.runEffect(def)
	r.batcher.End()
	return errors.Join(err, r.maybeFlush())
}

func (r *Runtime) EffectEnabled(id ID) bool {
	rec, ok := r.effects[id]
	return ok && !rec.disabled
}
