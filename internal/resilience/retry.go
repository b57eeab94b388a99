package resilience

import (
	"math/rand"
	"time"
)

// Jitter selects how retry delays are perturbed.
type Jitter int

const (
	JitterOff Jitter = iota
	JitterUniform10Pct
)

// RetryOptions configures Retry. MaxAttempts must be >= 1.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      Jitter
	// ShouldRetry is consulted on every failure, including the last. A nil
	// value retries unconditionally.
	ShouldRetry func(err error) bool
}

func (o RetryOptions) shouldRetry(err error) bool {
	if o.ShouldRetry == nil {
		return true
	}
	return o.ShouldRetry(err)
}

// delay computes the sleep before attempt n (0-indexed):
// min(base * multiplier^n, maxDelay) + jitter.
func (o RetryOptions) delay(n int) time.Duration {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= o.Multiplier
	}
	d := time.Duration(float64(o.BaseDelay) * mult)
	if d > o.MaxDelay {
		d = o.MaxDelay
	}
	if o.Jitter == JitterUniform10Pct {
		spread := float64(d) * 0.10
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Retry calls fn up to opts.MaxAttempts times, sleeping between attempts
// with exponential backoff. It never sleeps after the final attempt and
// returns the first successful value, or the last error once exhausted or
// once ShouldRetry declines a retry.
func Retry[T any](fn func() (T, error), opts RetryOptions) (T, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !opts.shouldRetry(err) {
			return zero, lastErr
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		time.Sleep(opts.delay(attempt))
	}
	return zero, lastErr
}
