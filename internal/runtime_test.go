package internal

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatoleLucet/rewind/value"
)

func cell(t *testing.T, r *Runtime, name string, v int64) ID {
	t.Helper()
	id, err := r.NewCell(name, value.Int(v))
	require.NoError(t, err)
	return id
}

func computed(t *testing.T, r *Runtime, name string, fn Thunk) ID {
	t.Helper()
	id, err := r.NewComputed(name, fn)
	require.NoError(t, err)
	return id
}

func readInt(t *testing.T, r *Runtime, id ID) int64 {
	t.Helper()
	v, err := r.Read(id)
	require.NoError(t, err)
	return v.Int()
}

func TestComputed(t *testing.T) {
	t.Run("derives value from cell", func(t *testing.T) {
		r := NewRuntime(Options{})
		log := []string{}

		x := cell(t, r, "x", 0)
		d := computed(t, r, "d", func() (value.Value, error) {
			log = append(log, "doubling")
			v, err := r.Read(x)
			return value.Int(v.Int() * 2), err
		})
		assert.Equal(t, int64(0), readInt(t, r, d))

		require.NoError(t, r.Write(x, value.Int(5)))
		assert.Equal(t, int64(10), readInt(t, r, d))

		assert.Equal(t, []string{"doubling", "doubling"}, log)
	})

	t.Run("recomputes a diamond once with consistent inputs", func(t *testing.T) {
		r := NewRuntime(Options{})
		seen := []string{}

		x := cell(t, r, "x", 1)
		a := computed(t, r, "a", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() + 1), err
		})
		b := computed(t, r, "b", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() * 2), err
		})
		c := computed(t, r, "c", func() (value.Value, error) {
			av, _ := r.Read(a)
			bv, _ := r.Read(b)
			seen = append(seen, fmt.Sprintf("%d+%d", av.Int(), bv.Int()))
			return value.Int(av.Int() + bv.Int()), nil
		})

		require.NoError(t, r.Write(x, value.Int(2)))

		assert.Equal(t, int64(7), readInt(t, r, c))
		assert.Equal(t, []string{"2+2", "3+4"}, seen)
	})

	t.Run("does not propagate when value unchanged", func(t *testing.T) {
		r := NewRuntime(Options{})
		log := []string{}

		x := cell(t, r, "x", 1)
		a := computed(t, r, "a", func() (value.Value, error) {
			log = append(log, "running a")
			v, err := r.Read(x)
			return value.Int(v.Int() * 0), err
		})
		computed(t, r, "b", func() (value.Value, error) {
			log = append(log, "running b")
			v, err := r.Read(a)
			return value.Int(v.Int() + 1), err
		})

		require.NoError(t, r.Write(x, value.Int(10)))

		assert.Equal(t, []string{"running a", "running b", "running a"}, log)
	})

	t.Run("ignores writes of an equal value", func(t *testing.T) {
		r := NewRuntime(Options{})
		runs := 0

		x, err := r.NewCell("x", value.Array(value.Int(1), value.String("a")))
		require.NoError(t, err)
		computed(t, r, "len", func() (value.Value, error) {
			runs++
			v, err := r.Read(x)
			return value.Int(int64(v.Len())), err
		})
		clock := r.Clock()

		require.NoError(t, r.Write(x, value.Array(value.Int(1), value.String("a"))))

		assert.Equal(t, 1, runs)
		assert.Equal(t, clock, r.Clock())
	})

	t.Run("ignores nan written over nan", func(t *testing.T) {
		r := NewRuntime(Options{})
		runs := 0

		x, err := r.NewCell("x", value.Float(math.NaN()))
		require.NoError(t, err)
		_, err = r.NewEffect("", func() error {
			runs++
			_, err := r.Read(x)
			return err
		})
		require.NoError(t, err)

		require.NoError(t, r.Write(x, value.Float(math.NaN())))
		assert.Equal(t, 1, runs)
	})

	t.Run("pulls a dependency that was not settled yet", func(t *testing.T) {
		r := NewRuntime(Options{})

		flag, err := r.NewCell("flag", value.Bool(false))
		require.NoError(t, err)
		x := cell(t, r, "x", 1)

		// declared before "a", so it comes first in its rank
		c := computed(t, r, "c", func() (value.Value, error) {
			f, _ := r.Read(flag)
			if f.Bool() {
				return r.ReadName("a")
			}
			return r.Read(x)
		})
		computed(t, r, "a", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() * 10), err
		})

		seen := []int64{}
		_, err = r.NewEffect("", func() error {
			v, err := r.Read(c)
			seen = append(seen, v.Int())
			return err
		})
		require.NoError(t, err)

		require.NoError(t, r.Batch(func() error {
			if err := r.Write(flag, value.Bool(true)); err != nil {
				return err
			}
			return r.Write(x, value.Int(2))
		}))

		assert.Equal(t, int64(20), readInt(t, r, c))
		assert.Equal(t, []int64{1, 20}, seen)
	})

	t.Run("isolates a failing body and its dependents", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 2)
		a := computed(t, r, "a", func() (value.Value, error) {
			v, _ := r.Read(x)
			if v.Int() == 0 {
				return value.Nil, errors.New("division by zero")
			}
			return value.Int(10 / v.Int()), nil
		})
		b := computed(t, r, "b", func() (value.Value, error) {
			v, err := r.Read(a)
			return value.Int(v.Int() + 1), err
		})
		other := computed(t, r, "other", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() + 100), err
		})

		err := r.Write(x, value.Int(0))
		require.Error(t, err)
		assert.ErrorContains(t, err, "division by zero")

		var te *ThunkError
		_, err = r.Read(b)
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "b", te.Name)
		assert.Equal(t, "a", te.Upstream)

		assert.Equal(t, int64(100), readInt(t, r, other))

		require.NoError(t, r.Write(x, value.Int(5)))
		assert.Equal(t, int64(2), readInt(t, r, a))
		assert.Equal(t, int64(3), readInt(t, r, b))
	})

	t.Run("turns a panic into an error", func(t *testing.T) {
		r := NewRuntime(Options{})

		id, err := r.NewComputed("boom", func() (value.Value, error) {
			panic("kaboom")
		})

		var te *ThunkError
		require.ErrorAs(t, err, &te)
		assert.ErrorContains(t, err, "kaboom")

		slot, ok := r.Slot(id)
		require.True(t, ok)
		assert.Equal(t, StateError, slot.State)
	})

	t.Run("rejects writes from its body", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 0)
		_, err := r.NewComputed("bad", func() (value.Value, error) {
			return value.Nil, r.Write(x, value.Int(1))
		})

		assert.ErrorIs(t, err, ErrWriteInComputed)
		assert.Equal(t, int64(0), readInt(t, r, x))
	})

	t.Run("rejects declarations from its body", func(t *testing.T) {
		r := NewRuntime(Options{})

		_, err := r.NewComputed("bad", func() (value.Value, error) {
			_, err := r.NewCell("inner", value.Nil)
			return value.Nil, err
		})

		assert.ErrorIs(t, err, ErrDeclareInThunk)
		_, ok := r.Lookup("inner")
		assert.False(t, ok)
	})
}

func TestCycles(t *testing.T) {
	t.Run("rejects a mutual dependency atomically", func(t *testing.T) {
		r := NewRuntime(Options{})

		a, err := r.NewComputed("a", func() (value.Value, error) {
			return r.ReadName("b")
		})
		var unbound *UnboundError
		require.ErrorAs(t, err, &unbound)
		assert.Equal(t, "b", unbound.Name)

		before := r.State()

		_, err = r.NewComputed("b", func() (value.Value, error) {
			return r.ReadName("a")
		})
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []string{"b", "a", "b"}, cycle.Path)

		_, ok := r.Lookup("b")
		assert.False(t, ok)
		assert.Equal(t, 0, r.Topology().EdgeCount())
		assert.True(t, r.State().Slots.Same(before.Slots))

		// "a" still waits for "b" and picks it up once it exists
		assert.Equal(t, 1, r.Stats().Waiting)
		b := cell(t, r, "b", 7)
		assert.Equal(t, int64(7), readInt(t, r, a))
		assert.Equal(t, []ID{a}, r.Topology().SubsOf(b))
	})

	t.Run("keeps old edges when a recompute would close a cycle", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 0)
		a := computed(t, r, "a", func() (value.Value, error) {
			v, _ := r.Read(x)
			if v.Int() > 0 {
				return r.ReadName("b")
			}
			return value.Int(1), nil
		})
		computed(t, r, "b", func() (value.Value, error) {
			v, err := r.Read(a)
			return value.Int(v.Int() + 1), err
		})

		err := r.Write(x, value.Int(1))

		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []ID{x}, r.Topology().DepsOf(a))

		slot, _ := r.Slot(a)
		assert.Equal(t, StateError, slot.State)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		r := NewRuntime(Options{})
		cell(t, r, "x", 0)

		_, err := r.NewCell("x", value.Int(1))
		assert.ErrorIs(t, err, ErrDuplicateName)
	})
}

func TestEffects(t *testing.T) {
	t.Run("runs on change with cleanup", func(t *testing.T) {
		r := NewRuntime(Options{})
		log := []string{}

		x := cell(t, r, "x", 0)
		e, err := r.NewEffect("show", func() error {
			v, err := r.Read(x)
			log = append(log, fmt.Sprintf("changed %d", v.Int()))
			return errors.Join(err, r.OnCleanup(func() {
				log = append(log, "cleanup")
			}))
		})
		require.NoError(t, err)

		require.NoError(t, r.Write(x, value.Int(10)))
		require.NoError(t, r.Dispose(e))
		require.NoError(t, r.Write(x, value.Int(20)))

		assert.Equal(t, []string{
			"changed 0",
			"cleanup",
			"changed 10",
			"cleanup",
		}, log)
	})

	t.Run("runs once per batch", func(t *testing.T) {
		r := NewRuntime(Options{})
		runs := 0

		x := cell(t, r, "x", 0)
		y := cell(t, r, "y", 0)
		sum := computed(t, r, "sum", func() (value.Value, error) {
			xv, _ := r.Read(x)
			yv, _ := r.Read(y)
			return value.Int(xv.Int() + yv.Int()), nil
		})
		_, err := r.NewEffect("", func() error {
			runs++
			_, err := r.Read(x)
			_, err2 := r.Read(sum)
			return errors.Join(err, err2)
		})
		require.NoError(t, err)

		require.NoError(t, r.Batch(func() error {
			return errors.Join(
				r.Write(x, value.Int(1)),
				r.Write(y, value.Int(2)),
				r.Write(x, value.Int(3)),
			)
		}))

		assert.Equal(t, 2, runs)
		assert.Equal(t, int64(5), readInt(t, r, sum))
	})

	t.Run("flushes writes at the outermost batch end", func(t *testing.T) {
		r := NewRuntime(Options{})
		seen := []int64{}

		x := cell(t, r, "x", 0)
		_, err := r.NewEffect("", func() error {
			v, err := r.Read(x)
			seen = append(seen, v.Int())
			return err
		})
		require.NoError(t, err)

		r.BeginBatch()
		r.BeginBatch()
		require.NoError(t, r.Write(x, value.Int(1)))
		require.NoError(t, r.EndBatch())
		assert.Equal(t, []int64{0}, seen)
		require.NoError(t, r.EndBatch())

		assert.Equal(t, []int64{0, 1}, seen)
	})

	t.Run("reads inside a batch see pending writes", func(t *testing.T) {
		r := NewRuntime(Options{})
		runs := 0

		x := cell(t, r, "x", 0)
		d := computed(t, r, "d", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() * 2), err
		})
		_, err := r.NewEffect("", func() error {
			runs++
			_, err := r.Read(d)
			return err
		})
		require.NoError(t, err)

		r.BeginBatch()
		require.NoError(t, r.Write(x, value.Int(5)))

		slot, _ := r.Slot(d)
		assert.Equal(t, StateDirty, slot.State)
		assert.Equal(t, int64(10), readInt(t, r, d))
		assert.Equal(t, 1, runs)

		require.NoError(t, r.EndBatch())

		assert.Equal(t, 2, runs)
		slot, _ = r.Slot(d)
		assert.Equal(t, StateClean, slot.State)
		assert.Equal(t, int64(10), slot.Value.Int())
	})

	t.Run("clears stale marks that settle unchanged", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 0)
		parity := computed(t, r, "parity", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() % 2), err
		})
		next := computed(t, r, "next", func() (value.Value, error) {
			v, err := r.Read(parity)
			return value.Int(v.Int() + 1), err
		})

		require.NoError(t, r.Batch(func() error {
			return r.Write(x, value.Int(2))
		}))

		slot, _ := r.Slot(next)
		assert.Equal(t, StateClean, slot.State)
		assert.Equal(t, int64(1), readInt(t, r, next))
	})

	t.Run("follows writes made by effects", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 0)
		y := cell(t, r, "y", 0)
		_, err := r.NewEffect("mirror", func() error {
			v, err := r.Read(x)
			if err != nil {
				return err
			}
			return r.Write(y, value.Int(v.Int()*3))
		})
		require.NoError(t, err)

		require.NoError(t, r.Write(x, value.Int(4)))
		assert.Equal(t, int64(12), readInt(t, r, y))
	})

	t.Run("stops runaway effects at the flush limit", func(t *testing.T) {
		r := NewRuntime(Options{MaxFlushIterations: 5})

		x := cell(t, r, "x", 0)
		_, err := r.NewEffect("", func() error {
			v, _ := r.Read(x)
			return r.Write(x, value.Int(v.Int()+1))
		})

		assert.ErrorIs(t, err, ErrFlushLimit)
	})

	t.Run("can be disabled and enabled", func(t *testing.T) {
		r := NewRuntime(Options{})
		seen := []int64{}

		x := cell(t, r, "x", 0)
		e, err := r.NewEffect("", func() error {
			v, err := r.Read(x)
			seen = append(seen, v.Int())
			return err
		})
		require.NoError(t, err)

		require.NoError(t, r.SetEffectEnabled(e, false))
		require.NoError(t, r.Write(x, value.Int(1)))
		require.NoError(t, r.Write(x, value.Int(2)))
		require.NoError(t, r.SetEffectEnabled(e, true))
		require.NoError(t, r.Write(x, value.Int(3)))

		assert.Equal(t, []int64{0, 2, 3}, seen)
		assert.ErrorIs(t, r.SetEffectEnabled(x, true), ErrNotEffect)
	})

	t.Run("rejects cleanups outside effects", func(t *testing.T) {
		r := NewRuntime(Options{})
		assert.ErrorIs(t, r.OnCleanup(func() {}), ErrCleanupOutsideEffect)
	})

	t.Run("has no readable value", func(t *testing.T) {
		r := NewRuntime(Options{})
		e, err := r.NewEffect("", func() error { return nil })
		require.NoError(t, err)

		_, err = r.Read(e)
		assert.ErrorIs(t, err, ErrNotReadable)
		assert.ErrorIs(t, r.Write(e, value.Int(1)), ErrNotWritable)
	})
}

func TestTracking(t *testing.T) {
	t.Run("reports reads without subscribing", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 2)
		y := cell(t, r, "y", 3)

		v, deps, err := r.Track(func() (value.Value, error) {
			xv, _ := r.Read(x)
			yv, _ := r.Read(y)
			return value.Int(xv.Int() * yv.Int()), nil
		})
		require.NoError(t, err)

		assert.Equal(t, int64(6), v.Int())
		assert.Equal(t, []ID{x, y}, deps)
		assert.Equal(t, 0, r.Topology().EdgeCount())
	})

	t.Run("untracked reads add no edge", func(t *testing.T) {
		r := NewRuntime(Options{})

		x := cell(t, r, "x", 1)
		y := cell(t, r, "y", 1)
		c := computed(t, r, "c", func() (value.Value, error) {
			xv, _ := r.Read(x)
			var yv value.Value
			r.Untrack(func() { yv, _ = r.Read(y) })
			return value.Int(xv.Int() + yv.Int()), nil
		})

		assert.Equal(t, []ID{x}, r.Topology().DepsOf(c))

		require.NoError(t, r.Write(y, value.Int(10)))
		assert.Equal(t, int64(2), readInt(t, r, c))
	})
}

func TestRestore(t *testing.T) {
	t.Run("brings back values, nodes and effects", func(t *testing.T) {
		r := NewRuntime(Options{})
		log := []string{}

		x := cell(t, r, "x", 1)
		d := computed(t, r, "d", func() (value.Value, error) {
			v, err := r.Read(x)
			return value.Int(v.Int() * 2), err
		})
		_, err := r.NewEffect("show", func() error {
			v, err := r.Read(d)
			log = append(log, fmt.Sprintf("d=%d", v.Int()))
			return err
		})
		require.NoError(t, err)

		saved := r.State()

		require.NoError(t, r.Write(x, value.Int(5)))
		late := cell(t, r, "late", 0)
		_, err = r.NewEffect("late-show", func() error {
			_, err := r.Read(late)
			log = append(log, "late")
			return errors.Join(err, r.OnCleanup(func() { log = append(log, "late gone") }))
		})
		require.NoError(t, err)

		require.NoError(t, r.Restore(saved, nil))

		assert.Equal(t, int64(1), readInt(t, r, x))
		assert.Equal(t, int64(2), readInt(t, r, d))
		_, ok := r.Lookup("late")
		assert.False(t, ok)

		assert.Equal(t, []string{"d=2", "d=10", "late", "late gone", "d=2"}, log)

		// the restored graph still propagates
		require.NoError(t, r.Write(x, value.Int(3)))
		assert.Equal(t, "d=6", log[len(log)-1])
	})

	t.Run("refuses a corrupt state", func(t *testing.T) {
		r := NewRuntime(Options{})
		x := cell(t, r, "x", 1)

		bad := r.State()
		bad.Slots = bad.Slots.Set(99, Slot{Value: value.Int(1)})

		var corrupt *CorruptStateError
		require.ErrorAs(t, r.Restore(bad, nil), &corrupt)
		assert.Equal(t, "CorruptVersionError", corrupt.Kind())

		_, ok := r.Slot(99)
		assert.False(t, ok)
		assert.Equal(t, int64(1), readInt(t, r, x))
	})
}

func TestDispose(t *testing.T) {
	r := NewRuntime(Options{})

	x := cell(t, r, "x", 1)
	c := computed(t, r, "c", func() (value.Value, error) { return r.Read(x) })

	assert.ErrorIs(t, r.Dispose(x), ErrHasSubscribers)
	require.NoError(t, r.Dispose(c))
	require.NoError(t, r.Dispose(x))

	assert.ErrorIs(t, r.Dispose(x), ErrUnknownNode)
	assert.Equal(t, Stats{}, r.Stats())
}

type recorder struct {
	NopObserver
	mutations int
	declared  []string
	flushes   []FlushStats
}

func (o *recorder) Mutating()            { o.mutations++ }
func (o *recorder) Declared(def *Def)    { o.declared = append(o.declared, def.Label()) }
func (o *recorder) Flushed(s FlushStats) { o.flushes = append(o.flushes, s) }

func TestObserver(t *testing.T) {
	obs := &recorder{}
	r := NewRuntime(Options{Observer: obs})

	x := cell(t, r, "x", 1)
	computed(t, r, "", func() (value.Value, error) { return r.Read(x) })
	require.NoError(t, r.Write(x, value.Int(2)))

	assert.Equal(t, 3, obs.mutations)
	assert.Equal(t, []string{"x", "computed#2"}, obs.declared)
	require.Len(t, obs.flushes, 1)
	assert.Equal(t, 1, obs.flushes[0].Sources)
	assert.Equal(t, 1, obs.flushes[0].Recomputed)

	_, err := r.NewComputed("self", func() (value.Value, error) {
		return r.ReadName("self")
	})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, 3, obs.mutations)
}

func TestStatsAndDOT(t *testing.T) {
	r := NewRuntime(Options{})

	x := cell(t, r, "x", 1)
	c := computed(t, r, "c", func() (value.Value, error) { return r.Read(x) })
	_, err := r.NewEffect("", func() error {
		_, err := r.Read(c)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Cells: 1, Computeds: 1, Effects: 1, Edges: 2}, r.Stats())

	dot := r.DOT()
	assert.Contains(t, dot, "digraph reactive {")
	assert.Contains(t, dot, `1 [label="x", shape=box];`)
	assert.Contains(t, dot, "1 -> 2;")
	assert.Contains(t, dot, "2 -> 3;")
}
