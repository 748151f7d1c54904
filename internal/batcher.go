package internal

import "errors"

type Batcher struct {
	// each nested batch increases the depth by 1
	// if depth > 0, propagation waits until the outermost batch is complete
	depth int
}

func NewBatcher() *Batcher {
	return &Batcher{
		depth: 0,
	}
}

func (b *Batcher) IsBatching() bool {
	return b.depth > 0
}

func (b *Batcher) Begin() {
	b.depth++
}

// End closes one level and reports whether it was the outermost one.
func (b *Batcher) End() bool {
	if b.depth == 0 {
		return false
	}
	b.depth--
	return b.depth == 0
}

// Batch runs fn as one batch and calls onComplete when the outermost batch
// ends, even if fn panics.
func (b *Batcher) Batch(fn func() error, onComplete func() error) (err error) {
	b.Begin()
	defer func() {
		if b.End() && onComplete != nil {
			if flushErr := onComplete(); flushErr != nil {
				err = errors.Join(err, flushErr)
			}
		}
	}()

	return fn()
}

func (r *Runtime) Batch(fn func() error) error {
	return r.batcher.Batch(fn, r.Flush)
}

func (r *Runtime) BeginBatch() {
	r.batcher.Begin()
}

func (r *Runtime) EndBatch() error {
	if r.batcher.End() {
		return r.Flush()
	}
	return nil
}
