package queue

import (
	"sync"
)

// SeenSet is the set of revision IDs the bot has already handled.
// IDs keep the order in which they were added so the record file stays
// append-only.
type SeenSet struct {
	ids  []int64
	seen map[int64]bool
	mu   sync.Mutex
}

// New creates a SeenSet holding ids, dropping repeats
func New(ids ...int64) *SeenSet {
	s := &SeenSet{
		ids:  make([]int64, 0, len(ids)),
		seen: make(map[int64]bool, len(ids)),
	}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

// Add records id. It returns false if id was already present.
func (s *SeenSet) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(id)
}

func (s *SeenSet) add(id int64) bool {
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.ids = append(s.ids, id)
	return true
}

// Has checks if id has been processed
func (s *SeenSet) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id]
}

// Len returns the number of recorded IDs
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns a copy of the recorded IDs in insertion order
func (s *SeenSet) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}
