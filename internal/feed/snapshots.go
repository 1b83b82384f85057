package feed

import (
	"sync"
	"time"

	"github.com/posturepulse/dashboard/internal/posture"
)

// Snapshot is the most recent dashboard computed for a subject
type Snapshot struct {
	Generation uint64            `json:"generation"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Dashboard  posture.Dashboard `json:"dashboard"`
}

// Snapshots keeps one dashboard per subject. Each refresh takes a generation
// from Begin and only the newest generation may be stored; older in-flight
// results are dropped.
type Snapshots struct {
	mu      sync.Mutex
	issued  map[string]uint64
	current map[string]Snapshot
	now     func() time.Time
}

func NewSnapshots() *Snapshots {
	return &Snapshots{
		issued:  make(map[string]uint64),
		current: make(map[string]Snapshot),
		now:     time.Now,
	}
}

// Begin issues the next generation for subjectID
func (s *Snapshots) Begin(subjectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[subjectID]++
	return s.issued[subjectID]
}

// Offer stores dash if gen is still the newest generation issued for subjectID
func (s *Snapshots) Offer(subjectID string, gen uint64, dash posture.Dashboard) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.issued[subjectID] {
		return false
	}
	s.current[subjectID] = Snapshot{
		Generation: gen,
		UpdatedAt:  s.now(),
		Dashboard:  dash,
	}
	return true
}

// Latest returns the stored snapshot for subjectID
func (s *Snapshots) Latest(subjectID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.current[subjectID]
	return snap, ok
}
