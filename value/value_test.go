package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	t.Run("compares scalars by kind and payload", func(t *testing.T) {
		assert.True(t, Equal(Int(1), Int(1)))
		assert.False(t, Equal(Int(1), Int(2)))
		assert.False(t, Equal(Int(1), Float(1)))
		assert.True(t, Equal(String("a"), String("a")))
		assert.True(t, Equal(Nil, Value{}))
		assert.False(t, Equal(Bool(false), Nil))
	})

	t.Run("compares containers structurally", func(t *testing.T) {
		a := Array(Int(1), Object(map[string]Value{"x": String("y")}))
		b := Array(Int(1), Object(map[string]Value{"x": String("y")}))
		c := Array(Int(1), Object(map[string]Value{"x": String("z")}))

		assert.True(t, Equal(a, b))
		assert.False(t, Equal(a, c))
		assert.False(t, Equal(Array(Int(1)), Array(Int(1), Int(2))))
	})

	t.Run("compares funcs by identity", func(t *testing.T) {
		f := &Func{Name: "f"}
		g := &Func{Name: "f"}

		assert.True(t, Equal(FuncOf(f), FuncOf(f)))
		assert.False(t, Equal(FuncOf(f), FuncOf(g)))
	})

	t.Run("treats nan as equal to nan", func(t *testing.T) {
		assert.True(t, Equal(Float(math.NaN()), Float(math.NaN())))
		assert.False(t, Equal(Float(math.NaN()), Float(0)))
		assert.True(t, Equal(Array(Float(math.NaN())), Array(Float(math.NaN()))))
	})
}

func TestImmutability(t *testing.T) {
	elems := []Value{Int(1), Int(2)}
	arr := Array(elems...)
	elems[0] = Int(100)
	assert.Equal(t, int64(1), arr.Index(0).Int())

	fields := map[string]Value{"a": Int(1)}
	obj := Object(fields)
	fields["a"] = Int(2)
	got, ok := obj.Field("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Int())
}

func TestString(t *testing.T) {
	v := Object(map[string]Value{
		"b": Array(Int(1), Float(2.5), Bool(true)),
		"a": String("hi"),
		"c": Nil,
	})

	assert.Equal(t, `{a: "hi", b: [1, 2.5, true], c: nil}`, v.String())
	assert.Equal(t, "func show", FuncOf(&Func{Name: "show"}).String())
}

func TestEncode(t *testing.T) {
	t.Run("keeps kinds apart", func(t *testing.T) {
		in := Array(Int(2), Float(2), String("2"), Nil, Bool(false))

		data, err := Encode(in)
		require.NoError(t, err)

		out, err := Decode(data)
		require.NoError(t, err)
		assert.True(t, Equal(in, out), "got %s", out)
		assert.Equal(t, KindFloat, out.Index(1).Kind())
	})

	t.Run("works through encoding/json", func(t *testing.T) {
		in := map[string]Value{"x": Object(map[string]Value{"n": Int(7)})}

		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out map[string]Value
		require.NoError(t, json.Unmarshal(data, &out))
		assert.True(t, Equal(in["x"], out["x"]))
	})

	t.Run("rejects funcs", func(t *testing.T) {
		_, err := Encode(Array(FuncOf(&Func{Name: "f"})))
		assert.ErrorIs(t, err, ErrNotSerializable)
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := Decode([]byte(`{"t":"blob"}`))
		assert.Error(t, err)
	})
}
