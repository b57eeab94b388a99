package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the core's OTel metric instruments, mirroring the series
// internal/metrics.Standard renders for Prometheus scraping so the same
// measurements are visible through either pipeline.
type Metrics struct {
	RequestDuration    metric.Float64Histogram
	SessionDuration    metric.Float64Histogram
	MessagesRouted     metric.Int64Counter
	BreakerTransitions metric.Int64Counter
	RateLimitRejects   metric.Int64Counter
	ActiveSessions     metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("agentmesh.request.duration",
		metric.WithDescription("Gateway request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("agentmesh.session.duration",
		metric.WithDescription("Agent session wall-clock duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.MessagesRouted, err = meter.Int64Counter("agentmesh.messages.routed",
		metric.WithDescription("Total inter-agent messages routed"),
	)
	if err != nil {
		return nil, err
	}

	m.BreakerTransitions, err = meter.Int64Counter("agentmesh.breaker.transitions",
		metric.WithDescription("Total messaging guard circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimitRejects, err = meter.Int64Counter("agentmesh.ratelimit.rejects",
		metric.WithDescription("Messages rejected by the messaging guard's rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter("agentmesh.sessions.active",
		metric.WithDescription("Number of currently running agent sessions"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
