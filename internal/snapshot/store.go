package snapshot

import (
	"sync"
	"time"

	"dispatch-watch/internal/models"
)

// Store holds the current dispatcher snapshot. Replace swaps the whole
// snapshot under one lock so readers never observe a partial update.
type Store struct {
	mu      sync.RWMutex
	tasks   []models.Task
	index   map[string]int
	updated time.Time
}

func New() *Store {
	return &Store{index: map[string]int{}}
}

// Replace installs tasks as the complete snapshot. Records keep arrival
// order; a repeated id overwrites the earlier record in place.
func (s *Store) Replace(tasks []models.Task, at time.Time) {
	next := make([]models.Task, 0, len(tasks))
	index := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if t.ID != "" {
			if i, ok := index[t.ID]; ok {
				next[i] = t
				continue
			}
			index[t.ID] = len(next)
		}
		next = append(next, t)
	}

	s.mu.Lock()
	s.tasks = next
	s.index = index
	s.updated = at
	s.mu.Unlock()
}

// Get returns a copy of the current snapshot.
func (s *Store) Get() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// FilterByIDs returns the current records whose id is in ids, in snapshot
// order. Unknown ids are omitted.
func (s *Store) FilterByIDs(ids []string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			seen[i] = true
		}
	}
	out := make([]models.Task, 0, len(seen))
	for i := range s.tasks {
		if seen[i] {
			out = append(out, s.tasks[i])
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Updated is the time of the last successful Replace; zero before the first.
func (s *Store) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
