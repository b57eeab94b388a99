package resilience

import (
	"sync"
	"time"

	"github.com/agentmesh/core/internal/meshtypes"
)

// BreakerConfig holds the breaker's three tunables.
type BreakerConfig struct {
	FailureThreshold int           // F
	ResetTimeout     time.Duration // R
	SuccessThreshold int           // S
}

// DefaultBreakerConfig returns the defaults used in production wiring.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a generic three-state circuit breaker (CLOSED/OPEN/HALF_OPEN).
// The OPEN to HALF_OPEN transition is evaluated lazily on read instead of
// via a background timer.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         meshtypes.BreakerState
	failureCount  int
	successCount  int
	lastFailureAt time.Time
}

// NewBreaker creates a Breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, state: meshtypes.StateClosed}
}

// State returns the current state, applying the time-based OPEN→HALF_OPEN
// transition lazily if the reset timeout has elapsed.
func (b *Breaker) State() meshtypes.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() meshtypes.BreakerState {
	if b.state == meshtypes.StateOpen && time.Since(b.lastFailureAt) >= b.cfg.ResetTimeout {
		b.state = meshtypes.StateHalfOpen
		b.successCount = 0
	}
	return b.state
}

// Allow reports whether a call may proceed right now, applying the lazy
// OPEN to HALF_OPEN transition first. CLOSED and HALF_OPEN both admit;
// HALF_OPEN admitting more than one concurrent probe is tolerated, and
// callers needing a hard cap serialize external to the breaker.
func (b *Breaker) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stateLocked() == meshtypes.StateOpen {
		remaining := b.cfg.ResetTimeout - time.Since(b.lastFailureAt)
		if remaining < 0 {
			remaining = 0
		}
		return false, remaining
	}
	return true, 0
}

// RecordSuccess drives the CLOSED/HALF_OPEN success transitions.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case meshtypes.StateClosed:
		b.failureCount = 0
	case meshtypes.StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = meshtypes.StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// RecordFailure drives the CLOSED/HALF_OPEN failure transitions.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case meshtypes.StateClosed:
		b.failureCount++
		b.lastFailureAt = time.Now()
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = meshtypes.StateOpen
		}
	case meshtypes.StateHalfOpen:
		b.successCount = 0
		b.lastFailureAt = time.Now()
		b.state = meshtypes.StateOpen
	}
}

// Reset returns the breaker to CLOSED and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = meshtypes.StateClosed
	b.failureCount = 0
	b.successCount = 0
}

// Counts returns the current failure/success counters, for metrics and
// tests.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.successCount
}
