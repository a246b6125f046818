package transfer

import (
	"sort"
	"sync"
	"time"

	"github.com/nao1215/webget/internal/model"
)

const (
	// DefaultFailureThreshold is the number of failures within the
	// monitor window that opens a breaker.
	DefaultFailureThreshold = 5

	// DefaultMonitorWindow is how far back failures count toward the
	// threshold.
	DefaultMonitorWindow = 60 * time.Second

	// DefaultResetTimeout is how long an open breaker blocks requests
	// before allowing a half-open probe.
	DefaultResetTimeout = 30 * time.Second
)

// Breaker guards one host. All methods are safe for concurrent use by
// parallel downloads sharing the host.
type Breaker struct {
	mu           sync.Mutex
	state        model.CircuitState
	failures     []time.Time
	lastFailure  time.Time
	successCount int

	threshold    int
	window       time.Duration
	resetTimeout time.Duration
}

// Allow reports whether a request to the host may proceed. An open
// breaker whose reset timeout has elapsed since the last failure moves
// to half-open and lets the probe through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == model.CircuitOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = model.CircuitHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess counts a successful transfer. A half-open breaker
// closes and its failure window clears.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	if b.state == model.CircuitHalfOpen {
		b.state = model.CircuitClosed
		b.failures = nil
	}
}

// RecordFailure counts a failed transfer. A half-open breaker reopens
// immediately; a closed breaker opens once the failures within the
// monitor window reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastFailure = now
	b.pruneLocked(now)
	b.failures = append(b.failures, now)

	if b.state == model.CircuitHalfOpen || len(b.failures) >= b.threshold {
		b.state = model.CircuitOpen
	}
}

// State returns the current state, applying the open-to-half-open
// transition if the reset timeout has elapsed.
func (b *Breaker) State() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == model.CircuitOpen && time.Since(b.lastFailure) > b.resetTimeout {
		b.state = model.CircuitHalfOpen
	}
	return b.state
}

// pruneLocked drops failures older than the monitor window. Callers
// hold b.mu.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

// BreakerStatus is a point-in-time snapshot of one host's breaker.
type BreakerStatus struct {
	// Host is the breaker key.
	Host string `json:"host"`

	// State is the breaker state at snapshot time.
	State model.CircuitState `json:"-"`

	// StateName is State as text for serialization.
	StateName string `json:"state"`

	// FailureCount is the number of failures within the monitor window.
	FailureCount int `json:"failure_count"`

	// SuccessCount is the number of successes recorded since creation
	// or the last reset.
	SuccessCount int `json:"success_count"`

	// RecentFailures holds the timestamps inside the monitor window.
	RecentFailures []time.Time `json:"recent_failures,omitempty"`
}

// BreakerSet is the per-host breaker registry shared by all transfers
// in a session.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	threshold    int
	window       time.Duration
	resetTimeout time.Duration
}

// NewBreakerSet builds a registry with the given policy. Non-positive
// arguments fall back to the defaults.
func NewBreakerSet(threshold int, window, resetTimeout time.Duration) *BreakerSet {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if window <= 0 {
		window = DefaultMonitorWindow
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &BreakerSet{
		breakers:     make(map[string]*Breaker),
		threshold:    threshold,
		window:       window,
		resetTimeout: resetTimeout,
	}
}

// For returns the breaker for a host, creating it on first use.
func (s *BreakerSet) For(host string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[host]
	if !ok {
		b = &Breaker{
			threshold:    s.threshold,
			window:       s.window,
			resetTimeout: s.resetTimeout,
		}
		s.breakers[host] = b
	}
	return b
}

// Status returns the snapshot for one host. A host with no recorded
// traffic reports a closed breaker.
func (s *BreakerSet) Status(host string) BreakerStatus {
	s.mu.Lock()
	b, ok := s.breakers[host]
	s.mu.Unlock()

	if !ok {
		return BreakerStatus{Host: host, State: model.CircuitClosed, StateName: model.CircuitClosed.String()}
	}

	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(time.Now())

	recent := make([]time.Time, len(b.failures))
	copy(recent, b.failures)

	return BreakerStatus{
		Host:           host,
		State:          state,
		StateName:      state.String(),
		FailureCount:   len(recent),
		SuccessCount:   b.successCount,
		RecentFailures: recent,
	}
}

// All returns snapshots for every host seen so far, sorted by host.
func (s *BreakerSet) All() []BreakerStatus {
	s.mu.Lock()
	hosts := make([]string, 0, len(s.breakers))
	for h := range s.breakers {
		hosts = append(hosts, h)
	}
	s.mu.Unlock()
	sort.Strings(hosts)

	statuses := make([]BreakerStatus, 0, len(hosts))
	for _, h := range hosts {
		statuses = append(statuses, s.Status(h))
	}
	return statuses
}

// Reset drops the breaker for one host, returning it to closed state
// with empty counters.
func (s *BreakerSet) Reset(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, host)
}

// ResetAll drops every breaker.
func (s *BreakerSet) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers = make(map[string]*Breaker)
}
