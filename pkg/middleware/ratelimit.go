package middleware

import (
	"sync"
	"time"
)

// RateLimiter caps how often a client may fail authentication inside a
// sliding window.
type RateLimiter struct {
	attempts     map[string][]time.Time
	limit        int
	window       time.Duration
	mu           sync.Mutex
	cleanupEvery time.Duration
	lastCleanup  time.Time
}

// NewRateLimiter creates a rate limiter allowing limit attempts per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:     make(map[string][]time.Time),
		limit:        limit,
		window:       window,
		cleanupEvery: 5 * time.Minute,
		lastCleanup:  time.Now(),
	}
}

// IsLimited reports whether a client has exhausted its attempts.
func (l *RateLimiter) IsLimited(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > l.cleanupEvery {
		l.cleanup()
		l.lastCleanup = time.Now()
	}

	cutoff := time.Now().Add(-l.window)
	count := 0
	for _, t := range l.attempts[clientID] {
		if t.After(cutoff) {
			count++
		}
	}

	return count >= l.limit
}

// Record notes a failed attempt for a client.
func (l *RateLimiter) Record(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts[clientID] = append(l.attempts[clientID], time.Now())
}

// cleanup drops attempts older than the window. Callers hold the lock.
func (l *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-l.window)
	for clientID, attempts := range l.attempts {
		var fresh []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) > 0 {
			l.attempts[clientID] = fresh
		} else {
			delete(l.attempts, clientID)
		}
	}
}
