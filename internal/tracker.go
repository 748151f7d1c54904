package internal

import "slices"

// frame records what one evaluation reads.
type frame struct {
	// the node being evaluated, zero when the evaluator only observes reads
	sub  ID
	kind Kind

	deps    []ID
	forward []string

	// first cycle hit while recording; it invalidates the whole evaluation
	err *CycleError
}

func (f *frame) addDep(id ID) {
	if !slices.Contains(f.deps, id) {
		f.deps = append(f.deps, id)
	}
}

func (f *frame) addForward(name string) {
	if !slices.Contains(f.forward, name) {
		f.forward = append(f.forward, name)
	}
}

type Tracker struct {
	frames []*frame

	// >0 while running untracked code
	untracked int
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Active returns the frame reads should be recorded into, if any.
func (t *Tracker) Active() *frame {
	if t.untracked > 0 || len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// Running reports whether any reactive body is on the stack, tracked or not.
func (t *Tracker) Running() bool {
	return len(t.frames) > 0
}

// Current returns the innermost frame regardless of untracking.
func (t *Tracker) Current() *frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Tracker) RunWithFrame(f *frame, fn func()) {
	// a body evaluated inside untracked code still tracks its own reads
	prevUntracked := t.untracked
	t.untracked = 0
	t.frames = append(t.frames, f)

	defer func() {
		t.frames = t.frames[:len(t.frames)-1]
		t.untracked = prevUntracked
	}()

	fn()
}

func (t *Tracker) RunUntracked(fn func()) {
	t.untracked++
	defer func() { t.untracked-- }()

	fn()
}
