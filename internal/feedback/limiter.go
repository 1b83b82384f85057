package feedback

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type subjectLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	subjects map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

// newSubjectLimiter returns nil when limiting is disabled
func newSubjectLimiter(requestsPerSec float64, burst int) *subjectLimiter {
	if requestsPerSec <= 0 || burst <= 0 {
		return nil
	}

	return &subjectLimiter{
		rps:      rate.Limit(requestsPerSec),
		burst:    burst,
		ttl:      30 * time.Minute,
		subjects: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (l *subjectLimiter) allow(subjectID string) bool {
	if l == nil {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.subjects[subjectID]
	if !exists {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.subjects[subjectID] = limiter
	}
	l.lastSeen[subjectID] = now

	for key, seenAt := range l.lastSeen {
		if now.Sub(seenAt) > l.ttl {
			delete(l.lastSeen, key)
			delete(l.subjects, key)
		}
	}

	return limiter.AllowN(now, 1)
}
