package history

import (
	"fmt"
	"slices"
	"time"

	"github.com/AnatoleLucet/rewind/internal"
)

const DefaultMaxVersions = 1000

type Options struct {
	Enabled bool

	// unnamed versions beyond this many are evicted, oldest first
	MaxVersions int

	Now func() time.Time
}

// Store keeps the captured versions in seq order with a cursor over them.
//
// The cursor is the index of the version the live state was restored from,
// or len(versions) when the live state moved past every version. Capturing
// or mutating while the cursor sits on an older version drops the versions
// after it.
type Store struct {
	versions []*Version
	index    *Index
	cursor   int

	nextSeq uint64

	enabled     bool
	maxVersions int
	now         func() time.Time

	truncated int
	evicted   int
}

func New(opts Options) *Store {
	if opts.MaxVersions <= 0 {
		opts.MaxVersions = DefaultMaxVersions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		index:       NewIndex(),
		nextSeq:     1,
		enabled:     opts.Enabled,
		maxVersions: opts.MaxVersions,
		now:         opts.Now,
	}
}

func (s *Store) Enabled() bool {
	return s.enabled
}

func (s *Store) SetEnabled(enabled bool) {
	s.enabled = enabled
}

// Capture records state as a new version at the end of the history. A
// non-empty name makes the version addressable by name.
func (s *Store) Capture(state internal.State, clock uint64, name string, checkpoint bool) (*Version, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}
	if checkpoint && name == "" {
		return nil, ErrEmptyName
	}
	if name != "" {
		if seq, ok := s.index.Lookup(name); ok && !s.inFuture(seq) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCheckpoint, name)
		}
	}

	s.Truncate()

	v := &Version{
		seq:        s.nextSeq,
		name:       name,
		checkpoint: checkpoint,
		createdAt:  s.now(),
		clock:      clock,
		state:      state,
	}
	s.nextSeq++

	s.versions = append(s.versions, v)
	if name != "" {
		s.index.Register(name, v.seq)
	}
	s.evict()
	s.cursor = len(s.versions)

	return v, nil
}

func (s *Store) inFuture(seq uint64) bool {
	if s.cursor >= len(s.versions) {
		return false
	}
	return seq > s.versions[s.cursor].seq
}

// Truncate drops the versions after the cursor and moves the cursor past
// the end. It returns the number of dropped versions.
func (s *Store) Truncate() int {
	if s.cursor >= len(s.versions) {
		return 0
	}

	dropped := len(s.versions) - s.cursor - 1
	s.index.DropAfter(s.versions[s.cursor].seq)
	clear(s.versions[s.cursor+1:])
	s.versions = s.versions[:s.cursor+1]
	s.cursor = len(s.versions)

	s.truncated += dropped
	return dropped
}

func (s *Store) evict() {
	excess := len(s.versions) - s.maxVersions
	if excess <= 0 {
		return
	}

	// the newest version is never evicted
	kept := s.versions[:0]
	for i, v := range s.versions {
		if excess > 0 && v.name == "" && i < len(s.versions)-1 {
			excess--
			s.evicted++
			continue
		}
		kept = append(kept, v)
	}
	clear(s.versions[len(kept):])
	s.versions = kept
}

// Back resolves the version n steps before the cursor.
func (s *Store) Back(n int) (int, error) {
	if !s.enabled {
		return 0, ErrDisabled
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSteps, n)
	}
	if n > s.cursor {
		return 0, &ExhaustedError{Requested: n, Available: s.cursor}
	}
	return s.cursor - n, nil
}

// Ahead resolves the version n steps after the cursor.
func (s *Store) Ahead(n int) (int, error) {
	if !s.enabled {
		return 0, ErrDisabled
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSteps, n)
	}

	available := max(len(s.versions)-s.cursor-1, 0)
	if n > available {
		return 0, &ExhaustedError{Requested: n, Available: available, Forward: true}
	}
	return s.cursor + n, nil
}

// Named resolves a checkpoint name or snapshot label.
func (s *Store) Named(name string) (int, error) {
	if !s.enabled {
		return 0, ErrDisabled
	}

	seq, ok := s.index.Lookup(name)
	if !ok {
		return 0, &UnknownCheckpointError{Name: name}
	}
	i, ok := s.find(seq)
	if !ok {
		return 0, &UnknownCheckpointError{Name: name}
	}
	return i, nil
}

func (s *Store) find(seq uint64) (int, bool) {
	return slices.BinarySearchFunc(s.versions, seq, func(v *Version, seq uint64) int {
		switch {
		case v.seq < seq:
			return -1
		case v.seq > seq:
			return 1
		}
		return 0
	})
}

func (s *Store) At(i int) *Version {
	return s.versions[i]
}

// MoveTo points the cursor at the version at index i.
func (s *Store) MoveTo(i int) {
	s.cursor = i
}

// Detached reports whether the cursor sits on an older version, so that the
// next mutation truncates the history after it.
func (s *Store) Detached() bool {
	return s.cursor < len(s.versions)
}

// Current returns the version the live state was restored from, if the
// live state has not moved on since.
func (s *Store) Current() (*Version, bool) {
	if !s.Detached() {
		return nil, false
	}
	return s.versions[s.cursor], true
}

func (s *Store) Latest() (*Version, bool) {
	if len(s.versions) == 0 {
		return nil, false
	}
	return s.versions[len(s.versions)-1], true
}

func (s *Store) BySeq(seq uint64) (*Version, bool) {
	i, ok := s.find(seq)
	if !ok {
		return nil, false
	}
	return s.versions[i], true
}

func (s *Store) Lookup(name string) (*Version, bool) {
	seq, ok := s.index.Lookup(name)
	if !ok {
		return nil, false
	}
	return s.BySeq(seq)
}

func (s *Store) Versions() []*Version {
	return slices.Clone(s.versions)
}

func (s *Store) Names() []string {
	return s.index.Names()
}

func (s *Store) Len() int {
	return len(s.versions)
}

// Clear forgets every version. Seqs keep increasing afterwards.
func (s *Store) Clear() {
	clear(s.versions)
	s.versions = s.versions[:0]
	s.index.Clear()
	s.cursor = 0
}

type Stats struct {
	Versions    int
	Checkpoints int
	Position    int
	Detached    bool
	Truncated   int
	Evicted     int
}

func (s *Store) Stats() Stats {
	return Stats{
		Versions:    len(s.versions),
		Checkpoints: s.index.Len(),
		Position:    s.cursor,
		Detached:    s.Detached(),
		Truncated:   s.truncated,
		Evicted:     s.evicted,
	}
}
