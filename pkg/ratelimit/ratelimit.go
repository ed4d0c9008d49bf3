package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.RWMutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// prune drops hits older than the window. Callers hold l.mu.
func (l *Limiter) prune(key string, now time.Time) {
	windowStart := now.Add(-l.window)
	hits, exists := l.limits[key]
	if !exists {
		return
	}
	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	if len(valid) == 0 {
		delete(l.limits, key)
		return
	}
	l.limits[key] = valid
}

func (l *Limiter) Allow(key string) bool {
	allowed, _ := l.Take(key)
	return allowed
}

// Take records a hit when allowed. Otherwise it reports how long until the oldest hit
// leaves the window.
func (l *Limiter) Take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(key, now)

	if hits := l.limits[key]; len(hits) >= l.maxHits {
		return false, hits[0].Add(l.window).Sub(now)
	}

	l.limits[key] = append(l.limits[key], now)
	return true, 0
}
