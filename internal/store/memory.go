package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/citibike-forecast/internal/forecast"
)

var (
	// ErrNotFound is returned when no run matches the request.
	ErrNotFound = errors.New("forecast run not found")
)

// MemoryStore is a concurrency-safe in-memory store of completed forecast runs.
type MemoryStore struct {
	mu sync.RWMutex

	// insertion order, oldest first
	runs []*forecast.Run
	byID map[string]*forecast.Run

	// retention configuration
	maxRuns int           // max number of runs kept
	maxAge  time.Duration // optional max age for runs

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxRuns is <= 0, it is treated as unlimited.
func NewMemoryStore(maxRuns int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*forecast.Run),
		maxRuns: maxRuns,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Save appends a run and enforces retention.
func (s *MemoryStore) Save(run *forecast.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[run.ID]; ok {
		s.remove(run.ID)
	}
	s.runs = append(s.runs, run)
	s.byID[run.ID] = run

	// Enforce retention by count.
	if s.maxRuns > 0 && len(s.runs) > s.maxRuns {
		over := len(s.runs) - s.maxRuns
		for _, r := range s.runs[:over] {
			delete(s.byID, r.ID)
		}
		s.runs = s.runs[over:]
	}

	// Enforce retention by age. The newest run is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.runs)-1; i++ {
			if !s.runs[i].CreatedAt.Before(cutoff) {
				break
			}
			delete(s.byID, s.runs[i].ID)
		}
		s.runs = s.runs[i:]
	}
}

func (s *MemoryStore) remove(id string) {
	for i, r := range s.runs {
		if r.ID == id {
			s.runs = append(s.runs[:i], s.runs[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
}

// Get returns the run with the given id.
func (s *MemoryStore) Get(id string) (*forecast.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run, nil
}

// Latest returns the most recently saved run.
func (s *MemoryStore) Latest() (*forecast.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

// List returns all retained runs, newest first.
func (s *MemoryStore) List() []*forecast.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*forecast.Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
	}
	return out
}
