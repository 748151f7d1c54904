package history

import (
	"time"

	"github.com/AnatoleLucet/rewind/internal"
	"github.com/AnatoleLucet/rewind/value"
)

// Version is an immutable capture of the reactive state.
type Version struct {
	seq        uint64
	name       string
	checkpoint bool
	createdAt  time.Time
	clock      uint64
	state      internal.State
}

func (v *Version) Seq() uint64 { return v.seq }

// Name is the checkpoint name or snapshot label, empty for plain snapshots.
func (v *Version) Name() string { return v.name }

// IsCheckpoint reports whether the version was created by a checkpoint
// rather than a snapshot.
func (v *Version) IsCheckpoint() bool { return v.checkpoint }
func (v *Version) CreatedAt() time.Time { return v.createdAt }
func (v *Version) Clock() uint64 { return v.clock }
func (v *Version) State() internal.State { return v.state }

// Values returns the value of every named cell and computed in the version.
func (v *Version) Values() map[string]value.Value {
	out := make(map[string]value.Value)

	topo := v.state.Topo
	topo.Names.Range(func(name string, id internal.ID) bool {
		def, ok := topo.Def(id)
		if !ok || def.Kind == internal.KindEffect {
			return true
		}
		if slot, ok := v.state.Slots.Get(id); ok {
			out[name] = slot.Value
		}
		return true
	})

	return out
}

func (v *Version) Value(name string) (value.Value, bool) {
	id, ok := v.state.Topo.Lookup(name)
	if !ok {
		return value.Nil, false
	}
	if def, _ := v.state.Topo.Def(id); def.Kind == internal.KindEffect {
		return value.Nil, false
	}
	slot, ok := v.state.Slots.Get(id)
	return slot.Value, ok
}
