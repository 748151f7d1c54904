package pmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type id uint64

func TestMap(t *testing.T) {
	t.Run("updates leave older versions intact", func(t *testing.T) {
		v0 := New[id, string]()
		v1 := v0.Set(1, "one")
		v2 := v1.Set(2, "two").Set(1, "uno")
		v3 := v2.Delete(2)

		_, ok := v0.Get(1)
		assert.False(t, ok)

		got, _ := v1.Get(1)
		assert.Equal(t, "one", got)

		got, _ = v2.Get(1)
		assert.Equal(t, "uno", got)
		assert.Equal(t, 2, v2.Len())

		assert.False(t, v3.Has(2))
		assert.True(t, v2.Has(2))
	})

	t.Run("iterates integer keys numerically", func(t *testing.T) {
		m := New[id, int]()
		for _, k := range []id{300, 2, 70000, 1} {
			m = m.Set(k, int(k))
		}

		assert.Equal(t, []id{1, 2, 300, 70000}, m.Keys())
	})

	t.Run("iterates string keys lexically", func(t *testing.T) {
		m := New[string, int]().Set("b", 2).Set("a", 1).Set("ab", 3)

		var seen []string
		m.Range(func(k string, _ int) bool {
			seen = append(seen, k)
			return true
		})
		assert.Equal(t, []string{"a", "ab", "b"}, seen)
	})

	t.Run("range stops early", func(t *testing.T) {
		m := New[id, int]().Set(1, 1).Set(2, 2).Set(3, 3)

		count := 0
		m.Range(func(id, int) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("zero map is usable", func(t *testing.T) {
		var m Map[string, int]
		assert.Equal(t, 0, m.Len())
		assert.Equal(t, 1, m.Set("x", 1).Len())
		assert.True(t, m.Same(New[string, int]()))
	})
}

func TestBuilder(t *testing.T) {
	base := New[id, string]().Set(1, "a")

	b := base.Builder()
	b.Set(2, "b")
	b.Set(1, "c")
	got, ok := b.Get(2)
	assert.True(t, ok)
	assert.Equal(t, "b", got)
	_, ok = b.Get(3)
	assert.False(t, ok)

	next := b.Map()
	assert.Equal(t, []id{1, 2}, next.Keys())
	v, _ := next.Get(1)
	assert.Equal(t, "c", v)
	v, _ = base.Get(1)
	assert.Equal(t, "a", v)
	assert.Equal(t, []id{1}, base.Keys())
	assert.False(t, next.Same(base))
}
