package internal

// RankQueue orders the nodes of one propagation. Each rank is a bucket kept
// in id (declaration) order, and Drain walks the ranks from lowest to highest,
// so nodes inserted at a higher rank while draining are still visited.
type RankQueue struct {
	min int
	max int

	buckets []*rankEntry // [rank]head

	lookup map[ID]*rankEntry // for O(1) membership
}

type rankEntry struct {
	id   ID
	rank int

	next *rankEntry
}

func NewRankQueue() *RankQueue {
	return &RankQueue{
		buckets: make([]*rankEntry, 0, 16),
		lookup:  make(map[ID]*rankEntry),
	}
}

func (q *RankQueue) Len() int {
	return len(q.lookup)
}

func (q *RankQueue) Has(id ID) bool {
	_, ok := q.lookup[id]
	return ok
}

func (q *RankQueue) Insert(id ID, rank int) {
	if q.Has(id) {
		return
	}

	for len(q.buckets) <= rank {
		q.buckets = append(q.buckets, nil)
	}

	entry := &rankEntry{id: id, rank: rank}
	q.lookup[id] = entry

	// keep the bucket sorted by id
	head := q.buckets[rank]
	if head == nil || id < head.id {
		entry.next = head
		q.buckets[rank] = entry
	} else {
		prev := head
		for prev.next != nil && prev.next.id < id {
			prev = prev.next
		}
		entry.next = prev.next
		prev.next = entry
	}

	if rank > q.max {
		q.max = rank
	}
}

// Drain pops every entry in rank order with the `process` function, leaving
// the queue empty.
func (q *RankQueue) Drain(process func(id ID, rank int)) {
	for q.min = 0; q.min <= q.max && q.min < len(q.buckets); q.min++ {
		for q.buckets[q.min] != nil {
			entry := q.buckets[q.min]
			q.buckets[q.min] = entry.next
			delete(q.lookup, entry.id)

			process(entry.id, entry.rank)
		}
	}

	q.min = 0
	q.max = 0
	q.buckets = q.buckets[:0]
}
