package runner

import (
	"sync"
	"time"
)

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	maxCount int
	runs     []RunStatus
	analyzed map[string]time.Time
	mu       sync.Mutex
}

// NewMemoryStore creates an in-memory store that keeps at most maxCount runs.
// A non-positive maxCount keeps every run.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{
		maxCount: maxCount,
		runs:     make([]RunStatus, 0),
		analyzed: make(map[string]time.Time),
	}
}

// Runs returns all runs, most recent first.
func (s *MemoryStore) Runs() []RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunStatus, len(s.runs))
	copy(result, s.runs)
	return result
}

// Save stores a run in memory.
func (s *MemoryStore) Save(run RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	// Prepend to keep most recent first
	s.runs = append([]RunStatus{run}, s.runs...)
	if s.maxCount > 0 && len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}

// MarkAnalyzed records a successful analysis of manifest.
func (s *MemoryStore) MarkAnalyzed(manifest string, modTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed[manifest] = modTime
	return nil
}

// AnalyzedAt returns the modification time manifest had when it was last analysed.
func (s *MemoryStore) AnalyzedAt(manifest string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.analyzed[manifest]
	return t, ok
}
