// Package resilience implements per-provider failure isolation (circuit
// breaker) and throttling (token-bucket rate limiter). It generalizes the
// tool-level cooldown pattern in the agent package's tool health tracker to
// the provider level, adding the explicit half-open probe state the tool
// tracker never needed.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is one of the classic three circuit-breaker states.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes one provider's breaker.
type BreakerConfig struct {
	FailureThreshold   int           // consecutive failures to trip (default 5)
	RecoveryTimeout    time.Duration // open -> half_open delay (default 60s)
	HalfOpenMaxInflight int          // concurrent probes allowed in half_open (default 3)
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     60 * time.Second,
		HalfOpenMaxInflight: 3,
	}
}

// CircuitBreaker guards a single provider. Safe for concurrent use; all
// mutation goes through mu, matching the single-writer discipline the
// kernel requires for CircuitState (readers may observe stale state via
// Snapshot).
type CircuitBreaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	openedAt        time.Time
	halfOpenInflight int
}

// NewCircuitBreaker creates a closed breaker with cfg. A zero-value cfg
// field falls back to the corresponding DefaultBreakerConfig value.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = d.RecoveryTimeout
	}
	if cfg.HalfOpenMaxInflight <= 0 {
		cfg.HalfOpenMaxInflight = d.HalfOpenMaxInflight
	}
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// Snapshot is a point-in-time, lock-free-to-read view of breaker state.
type Snapshot struct {
	State            BreakerState
	FailureCount     int
	OpenedAt         time.Time
	HalfOpenInflight int
}

func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return Snapshot{
		State:            b.state,
		FailureCount:     b.failureCount,
		OpenedAt:         b.openedAt,
		HalfOpenInflight: b.halfOpenInflight,
	}
}

// maybeRecover transitions open -> half_open once RecoveryTimeout elapses.
// Caller must hold mu.
func (b *CircuitBreaker) maybeRecover() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = HalfOpen
		b.halfOpenInflight = 0
	}
}

// Allow reports whether a new call may proceed, and reserves a half-open
// probe slot if applicable. The caller must call Success or Failure exactly
// once for every call where Allow returned true.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenInflight >= b.cfg.HalfOpenMaxInflight {
			return false
		}
		b.halfOpenInflight++
		return true
	default: // Open
		return false
	}
}

// Success records a successful call. In half_open, any success closes the
// breaker and resets counters; in closed it resets the failure streak.
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failureCount = 0
		b.halfOpenInflight = 0
	case Closed:
		b.failureCount = 0
	}
}

// Failure records a failed call. badRequest failures are caller errors and
// must never reach here (see ShouldCountFailure). Any failure while
// half_open reopens the breaker and resets the recovery timer.
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.halfOpenInflight = 0
		b.failureCount = b.cfg.FailureThreshold
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
		}
	}
}

// ShouldCountFailure reports whether an error kind counts toward the
// breaker's failure streak. BadRequest errors are the caller's fault and
// must not trip the breaker (spec: "Any BadRequest is NOT counted as a
// breaker failure").
func ShouldCountFailure(errKind string) bool {
	return errKind != "bad_request"
}
