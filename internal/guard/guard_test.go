package guard

import (
	"context"
	"testing"
	"time"
)

func TestGuard_BreakerOpensThenRecovers(t *testing.T) {
	g := New(Config{
		FailureThreshold:   3,
		ResetTimeout:       50 * time.Millisecond,
		SuccessThreshold:   2,
		RateLimitPerWindow: 100,
		RateLimitWindow:    time.Minute,
	}, nil, nil)

	g.RecordFailure("X")
	g.RecordFailure("X")
	g.RecordFailure("X")

	d := g.Check(context.Background(), "s", "X")
	if d.Allowed || d.Reason != ReasonCircuitOpen {
		t.Fatalf("expected CIRCUIT_OPEN, got %+v", d)
	}

	time.Sleep(60 * time.Millisecond)

	d = g.Check(context.Background(), "s", "X")
	if !d.Allowed {
		t.Fatalf("expected admit after reset timeout, got %+v", d)
	}

	g.RecordSuccess("X")
	g.RecordSuccess("X")

	d = g.Check(context.Background(), "s", "X")
	if !d.Allowed {
		t.Fatalf("expected admit after closing, got %+v", d)
	}
}

func TestGuard_PerSenderFloodThenRecovers(t *testing.T) {
	g := New(Config{
		FailureThreshold:   5,
		ResetTimeout:       30 * time.Second,
		SuccessThreshold:   2,
		RateLimitPerWindow: 5,
		RateLimitWindow:    500 * time.Millisecond,
	}, nil, nil)

	for i := 0; i < 5; i++ {
		d := g.Check(context.Background(), "s", "t")
		if !d.Allowed {
			t.Fatalf("expected admission %d to succeed, got %+v", i, d)
		}
	}

	d := g.Check(context.Background(), "s", "t")
	if d.Allowed || d.Reason != ReasonRateLimited {
		t.Fatalf("expected RATE_LIMITED on 6th, got %+v", d)
	}
	if d.RetryAfterMs <= 0 || d.RetryAfterMs > 500 {
		t.Fatalf("expected retryAfterMs in (0, 500], got %d", d.RetryAfterMs)
	}

	time.Sleep(550 * time.Millisecond)
	d = g.Check(context.Background(), "s", "t")
	if !d.Allowed {
		t.Fatalf("expected admit after window elapses, got %+v", d)
	}
}

func TestGuard_NeverExceedsRateLimitInAnyInterval(t *testing.T) {
	g := New(Config{
		FailureThreshold:   100,
		ResetTimeout:       time.Second,
		SuccessThreshold:   1,
		RateLimitPerWindow: 3,
		RateLimitWindow:    100 * time.Millisecond,
	}, nil, nil)

	admitted := 0
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if g.Check(context.Background(), "flooder", "target").Allowed {
			admitted++
		}
	}
	if admitted > 3 {
		t.Fatalf("expected at most 3 admissions in one window, got %d", admitted)
	}
}

func TestGuard_DistinctTargetsAndSendersAreIndependent(t *testing.T) {
	g := New(DefaultConfig(), nil, nil)
	g.RecordFailure("A")
	g.RecordFailure("A")
	g.RecordFailure("A")
	g.RecordFailure("A")
	g.RecordFailure("A")

	dA := g.Check(context.Background(), "s", "A")
	dB := g.Check(context.Background(), "s", "B")
	if dA.Allowed {
		t.Fatal("expected A's breaker to be open")
	}
	if !dB.Allowed {
		t.Fatal("expected B to be unaffected by A's breaker")
	}
}

func TestGuard_ResetCircuitAllowsFreshCheck(t *testing.T) {
	g := New(Config{FailureThreshold: 1, ResetTimeout: time.Hour, SuccessThreshold: 1, RateLimitPerWindow: 10, RateLimitWindow: time.Minute}, nil, nil)
	g.RecordFailure("X")
	if g.Check(context.Background(), "s", "X").Allowed {
		t.Fatal("expected rejection before reset")
	}
	g.ResetCircuit("X")
	if !g.Check(context.Background(), "s", "X").Allowed {
		t.Fatal("expected admission after ResetCircuit")
	}
}

func TestGuard_SweepDoesNotChangeObservableBehavior(t *testing.T) {
	g := New(Config{FailureThreshold: 5, ResetTimeout: time.Second, SuccessThreshold: 2, RateLimitPerWindow: 2, RateLimitWindow: 20 * time.Millisecond}, nil, nil)
	g.Check(context.Background(), "s", "t")
	g.Check(context.Background(), "s", "t")

	time.Sleep(30 * time.Millisecond)
	g.Sweep()

	d := g.Check(context.Background(), "s", "t")
	if !d.Allowed {
		t.Fatalf("expected admit after sweep + window elapsed, got %+v", d)
	}
}
