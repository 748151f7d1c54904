package value

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrNotSerializable is returned when encoding a func value.
var ErrNotSerializable = errors.New("value is not serializable")

// wire is the tagged JSON form of a Value. The tag keeps ints and floats
// apart across a round trip.
type wire struct {
	T string          `json:"t"`
	B bool            `json:"b,omitempty"`
	I int64           `json:"i,omitempty"`
	F float64         `json:"f,omitempty"`
	S string          `json:"s,omitempty"`
	A []wire          `json:"a,omitempty"`
	O map[string]wire `json:"o,omitempty"`
}

func toWire(v Value) (wire, error) {
	w := wire{T: v.kind.String()}

	switch v.kind {
	case KindNil:
	case KindBool:
		w.B = v.b
	case KindInt:
		w.I = v.i
	case KindFloat:
		w.F = v.f
	case KindString:
		w.S = v.s
	case KindArray:
		w.A = make([]wire, len(v.arr))
		for i, e := range v.arr {
			ew, err := toWire(e)
			if err != nil {
				return wire{}, err
			}
			w.A[i] = ew
		}
	case KindObject:
		w.O = make(map[string]wire, len(v.obj))
		for k, e := range v.obj {
			ew, err := toWire(e)
			if err != nil {
				return wire{}, err
			}
			w.O[k] = ew
		}
	case KindFunc:
		name := ""
		if v.fn != nil {
			name = v.fn.Name
		}
		return wire{}, fmt.Errorf("%w: func %q", ErrNotSerializable, name)
	}

	return w, nil
}

func fromWire(w wire) (Value, error) {
	switch w.T {
	case "nil", "":
		return Nil, nil
	case "bool":
		return Bool(w.B), nil
	case "int":
		return Int(w.I), nil
	case "float":
		return Float(w.F), nil
	case "string":
		return String(w.S), nil
	case "array":
		elems := make([]Value, len(w.A))
		for i, ew := range w.A {
			e, err := fromWire(ew)
			if err != nil {
				return Nil, err
			}
			elems[i] = e
		}
		return Value{kind: KindArray, arr: elems}, nil
	case "object":
		fields := make(map[string]Value, len(w.O))
		for k, ew := range w.O {
			e, err := fromWire(ew)
			if err != nil {
				return Nil, err
			}
			fields[k] = e
		}
		return Value{kind: KindObject, obj: fields}, nil
	}

	return Nil, fmt.Errorf("decode value: unknown kind %q", w.T)
}

// Encode serializes v into its tagged JSON form.
func Encode(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(w)
}

// Decode parses the output of Encode.
func Decode(data []byte) (Value, error) {
	var w wire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return Nil, fmt.Errorf("decode value: %w", err)
	}
	return fromWire(w)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return Encode(v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}
