package security

import (
	"sync"
	"time"
)

// RateLimitWindow is the span of the sliding window used by the rate
// limiter. Limits are expressed as requests per this window.
const RateLimitWindow = 60 * time.Second

// RateLimiter enforces a sliding-window request budget per client
// identifier. webget is a client-side tool, so the identifier is the
// target host: the limiter keeps one runaway crawl from hammering a
// single server past the configured budget.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window
// for each client identifier. A limit of zero or below disables
// limiting (Allow always returns true). A window of zero or below uses
// RateLimitWindow.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = RateLimitWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Allow reports whether the client may proceed, recording the request
// timestamp when it may. The window test and the increment happen under
// a single lock so concurrent callers cannot both squeeze through the
// last slot.
func (l *RateLimiter) Allow(clientID string) bool {
	if l.limit <= 0 {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.pruneLocked(clientID, now)
	if len(events) >= l.limit {
		l.events[clientID] = events
		return false
	}
	l.events[clientID] = append(events, now)
	return true
}

// Remaining returns how many requests the client has left in the
// current window. Returns the full limit for unknown clients and a
// large value when limiting is disabled.
func (l *RateLimiter) Remaining(clientID string) int {
	if l.limit <= 0 {
		return int(^uint(0) >> 1)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.pruneLocked(clientID, time.Now())
	l.events[clientID] = events
	if remaining := l.limit - len(events); remaining > 0 {
		return remaining
	}
	return 0
}

// pruneLocked drops events that fell out of the window. The caller must
// hold the lock.
func (l *RateLimiter) pruneLocked(clientID string, now time.Time) []time.Time {
	events := l.events[clientID]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	return events[i:]
}
