package internal

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Lock is a mutex the holding goroutine can take again. Bodies of computeds
// and effects run inline and call back into the runtime while it is locked.
type Lock struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (l *Lock) Lock() {
	gid := goid.Get()
	if l.owner.Load() == gid {
		l.depth++
		return
	}

	l.mu.Lock()
	l.owner.Store(gid)
	l.depth = 1
}

func (l *Lock) Unlock() {
	l.depth--
	if l.depth > 0 {
		return
	}

	l.owner.Store(0)
	l.mu.Unlock()
}

// Owner pins reactive writes to the goroutine that created the runtime.
// Other goroutines may still read.
type Owner struct {
	gid    int64
	strict bool
}

func NewOwner(strict bool) Owner {
	return Owner{gid: goid.Get(), strict: strict}
}

func (o Owner) Check() error {
	if o.strict && goid.Get() != o.gid {
		return ErrForeignGoroutine
	}
	return nil
}
