package metrics

// SessionDurationBuckets is the bucket set for session_duration_seconds.
// Sessions run far longer than an HTTP request, so this histogram uses its
// own boundaries instead of DefaultLatencyBuckets.
var SessionDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}

// Standard returns a Registry pre-populated with the core's metric
// series: HTTP request counters/latency, session duration, store query
// latency, agent message counts, credits consumed, active sessions,
// breaker transitions, and rate-limit rejections.
func Standard() *Registry {
	r := New()
	r.Counter("http_requests_total", "Total HTTP requests handled.")
	r.Histogram("http_request_duration_seconds", "HTTP request latency in seconds.", DefaultLatencyBuckets)
	r.Histogram("session_duration_seconds", "Agent session wall-clock duration in seconds.", SessionDurationBuckets)
	r.Histogram("db_query_duration_seconds", "Store query latency in seconds.", DefaultLatencyBuckets)
	r.Counter("agent_messages_total", "Total inter-agent messages routed.")
	r.Counter("credits_consumed_total", "Total usage credits consumed by agent sessions.")
	r.Gauge("active_sessions", "Number of currently running agent sessions.")
	r.Counter("circuit_breaker_transitions", "Total messaging guard circuit breaker state transitions.")
	r.Counter("agent_rate_limit_rejections", "Total messages rejected by the messaging guard's rate limiter.")
	return r
}

// GuardMetrics adapts a Registry to the guard.Metrics interface.
type GuardMetrics struct {
	r *Registry
}

// NewGuardMetrics wraps r for consumption by internal/guard.
func NewGuardMetrics(r *Registry) *GuardMetrics { return &GuardMetrics{r: r} }

// IncRateLimitRejection implements guard.Metrics.
func (m *GuardMetrics) IncRateLimitRejection(reason, subjectID string) {
	m.r.Counter("agent_rate_limit_rejections", "Total messages rejected by the messaging guard's rate limiter.").
		Inc(map[string]string{"reason": reason, "agent_id": subjectID})
}

// IncBreakerTransition implements guard.Metrics.
func (m *GuardMetrics) IncBreakerTransition(fromState, toState, agentID string) {
	m.r.Counter("circuit_breaker_transitions", "Total messaging guard circuit breaker state transitions.").
		Inc(map[string]string{"from_state": fromState, "to_state": toState, "agent_id": agentID})
}

// MeshMetrics adapts a Registry to the mesh router's message counter.
type MeshMetrics struct {
	r *Registry
}

// NewMeshMetrics wraps r for consumption by internal/mesh.
func NewMeshMetrics(r *Registry) *MeshMetrics { return &MeshMetrics{r: r} }

// IncMessage implements mesh.MessageMetrics.
func (m *MeshMetrics) IncMessage(direction, status string) {
	m.r.Counter("agent_messages_total", "Total inter-agent messages routed.").
		Inc(map[string]string{"direction": direction, "status": status})
}

// StoreObserver returns a store.QueryObserver-shaped func feeding the
// db_query_duration_seconds histogram.
func StoreObserver(r *Registry) func(operation string, seconds float64) {
	h := r.Histogram("db_query_duration_seconds", "Store query latency in seconds.", DefaultLatencyBuckets)
	return func(operation string, seconds float64) {
		h.Observe(seconds, map[string]string{"operation": operation})
	}
}
