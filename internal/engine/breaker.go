package engine

// ============================================================================
// Responsibilities:
// 1. Isolate the unreliable remote backend behind a three-state controller
//    (closed -> open -> half_open)
// 2. While open, refuse attempts before nextAttemptAt without touching the
//    wire; the first attempt after the cooldown is the single half-open probe
// 3. A half-open failure reopens with a fresh cooldown; a half-open success
//    closes and resets the consecutive-failure counter
//
// The failure counter counts engine calls that exhausted their retries, not
// every intermediate retry inside one call.
// ============================================================================

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit states.
type BreakerState string

// Circuit states.
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards the remote HTTP backend.
type CircuitBreaker struct {
	mu sync.Mutex

	state         BreakerState
	failures      int
	openedAt      time.Time
	nextAttemptAt time.Time

	threshold int
	cooldown  time.Duration

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker that opens after threshold
// consecutive failures and cools down for cooldown before probing.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether an attempt may proceed right now. When the cooldown
// of an open circuit has elapsed, the breaker moves to half_open and allows
// exactly this one probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Before(b.nextAttemptAt) {
			return false
		}
		b.state = BreakerHalfOpen
		return true
	}
	return true
}

// OnSuccess closes the circuit and zeroes the failure counter.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// OnFailure records one exhausted call. Reaching the threshold, or failing
// the half-open probe, opens the circuit with a fresh cooldown.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.nextAttemptAt = b.openedAt.Add(b.cooldown)
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAt returns when the next attempt is allowed (zero when not open).
func (b *CircuitBreaker) RetryAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return time.Time{}
	}
	return b.nextAttemptAt
}
