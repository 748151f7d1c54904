package internal

import (
	"strconv"

	"github.com/AnatoleLucet/rewind/value"
)

// ID identifies a cell, computed or effect. IDs are allocated in
// declaration order and never reused.
type ID uint64

type Kind uint8

const (
	KindCell Kind = iota + 1
	KindComputed
	KindEffect
)

func (k Kind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindComputed:
		return "computed"
	case KindEffect:
		return "effect"
	}
	return "unknown"
}

type NodeState uint8

const (
	StateUninitialized NodeState = iota
	StateClean
	StateDirty
	StateRecomputing
	StateError

	// effect states
	StateReady
	StatePending
	StateRan
)

func (s NodeState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateRecomputing:
		return "recomputing"
	case StateError:
		return "error"
	case StateReady:
		return "ready"
	case StatePending:
		return "pending"
	case StateRan:
		return "ran"
	}
	return "unknown"
}

// Thunk is the body of a computed node.
type Thunk func() (value.Value, error)

// EffectFunc is the body of an effect node.
type EffectFunc func() error

// Def is the immutable definition of a node. Definitions are shared between
// the live state and every version that captured them.
type Def struct {
	ID   ID
	Kind Kind
	Name string

	compute Thunk
	run     EffectFunc
}

func (d *Def) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Kind.String() + "#" + strconv.FormatUint(uint64(d.ID), 10)
}

// Slot is the value side of a node: the cell value or the computed cache,
// plus the node state. Slots are replaced, never mutated.
type Slot struct {
	Value value.Value
	State NodeState
	Err   error

	// clock tick of the last change
	Tag uint64
}
