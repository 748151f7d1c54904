// Package value holds the runtime values that flow through reactive cells.
package value

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindFunc
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Func is an opaque callable owned by the evaluator.
// Two funcs are equal only if they are the same *Func.
type Func struct {
	Name string
	Impl any
}

// Value is an immutable tagged union of the runtime's value kinds.
// The zero Value is nil.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	arr []Value
	obj map[string]Value
	fn  *Func
}

var Nil = Value{}

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func FuncOf(fn *Func) Value { return Value{kind: KindFunc, fn: fn} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: slices.Clone(vs)} }

// Object copies fields so later mutation of the map is not observable.
func Object(fields map[string]Value) Value {
	return Value{kind: KindObject, obj: maps.Clone(fields)}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string { return v.s }
func (v Value) Func() *Func { return v.fn }

// Len is the number of elements of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	case KindString:
		return len(v.s)
	}
	return 0
}

// Index returns the i-th element of an array, or nil when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Nil
	}
	return v.arr[i]
}

// Field returns an object field.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Nil, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Elems returns a copy of the array elements.
func (v Value) Elems() []Value {
	return slices.Clone(v.arr)
}

// Keys returns the object field names in sorted order.
func (v Value) Keys() []string {
	return slices.Sorted(maps.Keys(v.obj))
}

// Numeric reports the value as a float64 for int and float kinds.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.kind {
	case KindNil:
		sb.WriteString("nil")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			v.obj[k].write(sb)
		}
		sb.WriteByte('}')
	case KindFunc:
		name := "<anonymous>"
		if v.fn != nil && v.fn.Name != "" {
			name = v.fn.Name
		}
		sb.WriteString("func ")
		sb.WriteString(name)
	}
}
