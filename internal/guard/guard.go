// Package guard implements the messaging guard: one circuit breaker per
// target agent plus one sliding-window rate limiter per sender agent,
// composed behind a single admission check. The window is a literal FIFO
// of timestamps rather than a token bucket: the cap is on exact window
// membership, not amortized rate.
package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/resilience"
)

// Config holds the guard's tunables, matching the AGENT_CB_* /
// AGENT_RATE_LIMIT_PER_MIN env surface.
type Config struct {
	FailureThreshold   int
	ResetTimeout       time.Duration
	SuccessThreshold   int
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
}

// DefaultConfig returns the defaults used in production wiring.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		ResetTimeout:       30 * time.Second,
		SuccessThreshold:   2,
		RateLimitPerWindow: 10,
		RateLimitWindow:    60 * time.Second,
	}
}

// Reason is the machine-readable rejection reason for a Decision.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCircuitOpen Reason = "CIRCUIT_OPEN"
	ReasonRateLimited Reason = "RATE_LIMITED"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed      bool
	Reason       Reason
	RetryAfterMs int64
}

type senderWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Metrics is the narrow slice of metric instruments the guard drives.
// Satisfied by internal/metrics's GuardMetrics adapter over a registry;
// nil-safe so the guard can be
// used without metrics wired up (e.g. in unit tests).
type Metrics interface {
	IncRateLimitRejection(reason, subjectID string)
	IncBreakerTransition(fromState, toState, agentID string)
}

// Guard composes per-target breakers with per-sender sliding windows.
type Guard struct {
	cfg     Config
	logger  *slog.Logger
	metrics Metrics

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
	windows  map[string]*senderWindow
}

// New creates a Guard. logger and metrics may be nil.
func New(cfg Config, logger *slog.Logger, metrics Metrics) *Guard {
	return &Guard{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		breakers: make(map[string]*resilience.Breaker),
		windows:  make(map[string]*senderWindow),
	}
}

func (g *Guard) breakerFor(target string) *resilience.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[target]
	if !ok {
		b = resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: g.cfg.FailureThreshold,
			ResetTimeout:     g.cfg.ResetTimeout,
			SuccessThreshold: g.cfg.SuccessThreshold,
		})
		g.breakers[target] = b
	}
	return b
}

func (g *Guard) windowFor(sender string) *senderWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.windows[sender]
	if !ok {
		w = &senderWindow{}
		g.windows[sender] = w
	}
	return w
}

// Check performs the admission decision for one send from "from" to "to":
// breaker first, rate limit second, strictly in that order.
func (g *Guard) Check(ctx context.Context, from, to string) Decision {
	breaker := g.breakerFor(to)
	if allowed, retryAfter := breaker.Allow(); !allowed {
		g.logRejection(ReasonCircuitOpen, to)
		return Decision{Allowed: false, Reason: ReasonCircuitOpen, RetryAfterMs: retryAfter.Milliseconds()}
	}

	window := g.windowFor(from)
	window.mu.Lock()
	defer window.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-g.cfg.RateLimitWindow)
	window.timestamps = dropOlderThan(window.timestamps, cutoff)

	if len(window.timestamps) >= g.cfg.RateLimitPerWindow {
		retryAfter := window.timestamps[0].Add(g.cfg.RateLimitWindow).Sub(now)
		if retryAfter < time.Millisecond {
			retryAfter = time.Millisecond
		}
		g.logRejection(ReasonRateLimited, from)
		return Decision{Allowed: false, Reason: ReasonRateLimited, RetryAfterMs: retryAfter.Milliseconds()}
	}

	window.timestamps = append(window.timestamps, now)
	return Decision{Allowed: true}
}

func dropOlderThan(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

func (g *Guard) logRejection(reason Reason, subjectID string) {
	if g.metrics != nil {
		g.metrics.IncRateLimitRejection(string(reason), subjectID)
	}
	if g.logger != nil {
		g.logger.Warn("guard_rejected", slog.String("reason", string(reason)), slog.String("subject", subjectID))
	}
}

// RecordSuccess reports a successful call to target, closing or advancing
// its breaker.
func (g *Guard) RecordSuccess(to string) {
	b := g.breakerFor(to)
	before := b.State()
	b.RecordSuccess()
	g.logTransition(before, b.State(), to)
}

// RecordFailure reports a failed call to target, advancing its breaker
// toward OPEN.
func (g *Guard) RecordFailure(to string) {
	b := g.breakerFor(to)
	before := b.State()
	b.RecordFailure()
	g.logTransition(before, b.State(), to)
}

func (g *Guard) logTransition(before, after meshtypes.BreakerState, target string) {
	if before == after {
		return
	}
	if g.metrics != nil {
		g.metrics.IncBreakerTransition(string(before), string(after), target)
	}
	if g.logger != nil {
		g.logger.Info("breaker_transition",
			slog.String("from", string(before)), slog.String("to", string(after)), slog.String("target", target))
	}
}

// ResetCircuit returns target's breaker to CLOSED, as if the target were
// fresh.
func (g *Guard) ResetCircuit(target string) {
	g.breakerFor(target).Reset()
}

// Sweep removes sender windows whose newest timestamp is older than the
// configured window. Sweep frequency is an implementation detail; Check's
// observable behavior is unaffected by whether Sweep has run. Intended to
// be invoked periodically from a caller-owned timer (see
// internal/guard.(*Guard).StartSweeper).
func (g *Guard) Sweep() {
	cutoff := time.Now().Add(-g.cfg.RateLimitWindow)

	g.mu.Lock()
	senders := make([]string, 0, len(g.windows))
	for s := range g.windows {
		senders = append(senders, s)
	}
	g.mu.Unlock()

	for _, s := range senders {
		w := g.windowFor(s)
		w.mu.Lock()
		stale := len(w.timestamps) == 0 || w.timestamps[len(w.timestamps)-1].Before(cutoff)
		w.mu.Unlock()
		if stale {
			g.mu.Lock()
			delete(g.windows, s)
			g.mu.Unlock()
		}
	}
}

// StartSweeper runs Sweep on interval until ctx is canceled. The caller
// owns cancellation via ctx and observes completion via the returned stop
// function.
func (g *Guard) StartSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}()
	return func() { <-done }
}
