package resilience

import (
	"fmt"
	"time"
)

// CircuitOpenError is returned when a breaker (or the guard wrapping it)
// rejects a call because the target's circuit is open.
type CircuitOpenError struct {
	Target       string
	RetryAfterMs int64
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q, retry after %dms", e.Target, e.RetryAfterMs)
}

// RateLimitedError is returned by the guard's sender window, a peer
// channel's token bucket, or the webhook per-registration limiter.
type RateLimitedError struct {
	Subject      string
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited for %q, retry after %dms", e.Subject, e.RetryAfterMs)
}

// NotConnectedError is returned by a peer-channel operation invoked before
// connect() or after close().
type NotConnectedError struct {
	ChannelID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("channel %q not connected", e.ChannelID)
}

// InvalidSignatureError is returned when a webhook's HMAC check fails.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return "invalid webhook signature: " + e.Reason
}

// MalformedPayloadError is returned on JSON parse or schema mismatch.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return "malformed payload: " + e.Reason
}

// NotFoundError is returned when an agent, registration, or session is
// absent in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// TimeoutError is returned when an ack expires, a retry budget is
// exhausted, or a liveness probe misses its budget.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}

// TransportError wraps a bus, store, or process-manager failure so it
// surfaces to the caller unchanged in kind.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
