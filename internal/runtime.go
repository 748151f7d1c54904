package internal

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AnatoleLucet/rewind/internal/pmap"
	"github.com/AnatoleLucet/rewind/value"
)

// State is everything a version captures: node values and the graph.
// Copying a State is O(1) and the copy never changes afterwards.
type State struct {
	Slots pmap.Map[ID, Slot]
	Topo  Topology
}

func NewState() State {
	return State{
		Slots: pmap.New[ID, Slot](),
		Topo:  NewTopology(),
	}
}

// Observer is told about what the runtime does. Calls happen inline.
type Observer interface {
	// Mutating runs before any write, declaration or disposal takes effect.
	// A computed rejected for a cycle never reports it.
	Mutating()
	Declared(def *Def)
	ThunkFailed(def *Def, err error)
	Flushed(stats FlushStats)
}

type FlushStats struct {
	Sources    int
	Affected   int
	Recomputed int
	EffectsRun int
	Failed     int
	Duration   time.Duration
}

type NopObserver struct{}

func (NopObserver) Mutating() {}
func (NopObserver) Declared(*Def) {}
func (NopObserver) ThunkFailed(*Def, error) {}
func (NopObserver) Flushed(FlushStats) {}

const DefaultMaxFlushIterations = 100

type Options struct {
	// MaxFlushIterations bounds how many follow-up batches effects can
	// trigger by writing cells.
	MaxFlushIterations int

	Observer Observer
}

type Runtime struct {
	state  State
	nextID ID

	// incremented after every propagated batch
	clock uint64

	tracker *Tracker
	batcher *Batcher
	effects map[ID]*effectRecord

	// cells written since the last flush
	dirty    []ID
	flushing bool

	// the propagation currently draining, used to settle pulled reads
	run *propagation

	observer Observer
	maxFlush int
}

func NewRuntime(opts Options) *Runtime {
	if opts.MaxFlushIterations <= 0 {
		opts.MaxFlushIterations = DefaultMaxFlushIterations
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	return &Runtime{
		state:    NewState(),
		tracker:  NewTracker(),
		batcher:  NewBatcher(),
		effects:  make(map[ID]*effectRecord),
		observer: opts.Observer,
		maxFlush: opts.MaxFlushIterations,
	}
}

func (r *Runtime) State() State {
	return r.state
}

func (r *Runtime) Clock() uint64 {
	return r.clock
}

func (r *Runtime) Topology() Topology {
	return r.state.Topo
}

func (r *Runtime) IsBatching() bool {
	return r.batcher.IsBatching()
}

// InBody reports whether a computed or effect body is running.
func (r *Runtime) InBody() bool {
	return r.tracker.Running()
}

func (r *Runtime) alloc() ID {
	r.nextID++
	return r.nextID
}

func (r *Runtime) slot(id ID) Slot {
	s, _ := r.state.Slots.Get(id)
	return s
}

func (r *Runtime) setSlot(id ID, s Slot) {
	r.state.Slots = r.state.Slots.Set(id, s)
}

// Slot returns the stored slot of a node without tracking or settling it.
func (r *Runtime) Slot(id ID) (Slot, bool) {
	return r.state.Slots.Get(id)
}

func (r *Runtime) Lookup(name string) (ID, bool) {
	return r.state.Topo.Lookup(name)
}

func (r *Runtime) Def(id ID) (*Def, bool) {
	return r.state.Topo.Def(id)
}

func (r *Runtime) checkDeclare(name string) error {
	if r.tracker.Running() {
		return ErrDeclareInThunk
	}
	if name != "" && r.state.Topo.Names.Has(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// Dispose removes a node. Cells and computeds that still have subscribers
// cannot be disposed.
func (r *Runtime) Dispose(id ID) error {
	if r.tracker.Running() {
		return ErrDeclareInThunk
	}

	def, ok := r.state.Topo.Def(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if subs := r.state.Topo.SubsOf(id); len(subs) > 0 {
		return fmt.Errorf("%w: %q has %d", ErrHasSubscribers, def.Label(), len(subs))
	}

	r.observer.Mutating()

	if def.Kind == KindEffect {
		r.dropEffect(id)
	}
	r.state.Topo = r.state.Topo.remove(id)
	r.state.Slots = r.state.Slots.Delete(id)
	r.dirty = slices.DeleteFunc(r.dirty, func(d ID) bool { return d == id })

	return nil
}

// Validate checks that a captured state is internally consistent.
func Validate(s State) error {
	topo := s.Topo

	var err error
	fail := func(format string, args ...any) bool {
		err = &CorruptStateError{Reason: fmt.Sprintf(format, args...)}
		return false
	}

	s.Slots.Range(func(id ID, _ Slot) bool {
		if !topo.Defs.Has(id) {
			return fail("value for node %d has no definition", id)
		}
		return true
	})
	if err != nil {
		return err
	}

	topo.Defs.Range(func(id ID, def *Def) bool {
		if def == nil || def.ID != id {
			return fail("definition stored under %d does not match", id)
		}
		if !s.Slots.Has(id) {
			return fail("node %q has no value slot", def.Label())
		}
		return true
	})
	if err != nil {
		return err
	}

	topo.Deps.Range(func(sub ID, deps []ID) bool {
		if !topo.Defs.Has(sub) {
			return fail("edges recorded for unknown subscriber %d", sub)
		}
		for _, dep := range deps {
			if !topo.Defs.Has(dep) {
				return fail("%q depends on unknown node %d", topo.label(sub), dep)
			}
			if !slices.Contains(topo.SubsOf(dep), sub) {
				return fail("edge %q -> %q is missing its reverse", topo.label(dep), topo.label(sub))
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	topo.Names.Range(func(name string, id ID) bool {
		def, ok := topo.Defs.Get(id)
		if !ok || def.Name != name {
			return fail("name %q points at unknown node %d", name, id)
		}
		return true
	})
	return err
}

// Restore replaces the live state with s and re-runs every effect in it
// exactly once. Effects that do not exist in s are cleaned up. applied, if
// set, runs after the swap and before the effects.
func (r *Runtime) Restore(s State, applied func() error) error {
	if r.tracker.Running() {
		return ErrDeclareInThunk
	}
	if err := Validate(s); err != nil {
		return err
	}

	for id := range r.effects {
		if def, ok := s.Topo.Def(id); !ok || def.Kind != KindEffect {
			r.dropEffect(id)
		}
	}

	r.state = s
	r.dirty = nil

	var errs []error
	if applied != nil {
		errs = append(errs, applied())
	}

	// writes made by the effects are flushed after all of them ran
	r.batcher.Begin()
	r.state.Topo.Defs.Range(func(_ ID, def *Def) bool {
		if def.Kind != KindEffect {
			return true
		}
		if _, err := r.runEffect(def); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	r.batcher.End()

	errs = append(errs, r.maybeFlush())
	return errors.Join(errs...)
}

type Stats struct {
	Cells     int
	Computeds int
	Effects   int
	Edges     int
	Errored   int
	Waiting   int
}

func (r *Runtime) Stats() Stats {
	var st Stats
	r.state.Topo.Defs.Range(func(id ID, def *Def) bool {
		switch def.Kind {
		case KindCell:
			st.Cells++
		case KindComputed:
			st.Computeds++
		case KindEffect:
			st.Effects++
		}
		if r.slot(id).State == StateError {
			st.Errored++
		}
		return true
	})
	st.Edges = r.state.Topo.EdgeCount()
	st.Waiting = r.state.Topo.Forward.Len()
	return st
}

// DOT renders the live graph in Graphviz format.
func (r *Runtime) DOT() string {
	var sb strings.Builder
	sb.WriteString("digraph reactive {\n")

	topo := r.state.Topo
	topo.Defs.Range(func(id ID, def *Def) bool {
		shape := "box"
		switch def.Kind {
		case KindComputed:
			shape = "ellipse"
		case KindEffect:
			shape = "diamond"
		}
		fmt.Fprintf(&sb, "  %d [label=%q, shape=%s];\n", id, def.Label(), shape)
		return true
	})
	topo.Deps.Range(func(sub ID, deps []ID) bool {
		for _, dep := range deps {
			fmt.Fprintf(&sb, "  %d -> %d;\n", dep, sub)
		}
		return true
	})

	sb.WriteString("}\n")
	return sb.String()
}

// Peek returns the current value of a node without recording a dependency.
func (r *Runtime) Peek(id ID) (value.Value, error) {
	var (
		v   value.Value
		err error
	)
	r.tracker.RunUntracked(func() { v, err = r.Read(id) })
	return v, err
}
