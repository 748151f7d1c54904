package internal

import "slices"

// EffectQueue collects the effects a propagation has to run. Each effect is
// queued at most once, and Drain hands them back in id order.
type EffectQueue struct {
	pending map[ID]struct{}
}

func NewEffectQueue() *EffectQueue {
	return &EffectQueue{
		pending: make(map[ID]struct{}),
	}
}

func (q *EffectQueue) Enqueue(id ID) {
	q.pending[id] = struct{}{}
}

func (q *EffectQueue) Len() int {
	return len(q.pending)
}

func (q *EffectQueue) Drain() []ID {
	ids := make([]ID, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	clear(q.pending)

	slices.Sort(ids)
	return ids
}
