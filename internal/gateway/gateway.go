// Package gateway is the HTTP surface for the messaging and orchestration
// core: webhook ingestion, a Prometheus scrape endpoint, health, and the
// daemon-to-daemon bus relay, mounted on go-chi/chi/v5 behind a
// CORS/auth/rate-limit middleware stack.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/core/internal/config"
	"github.com/agentmesh/core/internal/corr"
	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/metrics"
	otelx "github.com/agentmesh/core/internal/otel"
	"github.com/agentmesh/core/internal/resilience"
	"github.com/agentmesh/core/internal/webhook"
)

// webhookPath is the GitHub webhook ingress route. It authenticates via
// HMAC signature, never via the API-key auth middleware, and is
// rate-limited through the mutation pool rather than skipped.
const webhookPath = "/webhooks/github"

// busRelayPath is the websocket endpoint peer meshd daemons dial to share
// one pub/sub substrate. Daemon-to-daemon, not a client API, so it skips
// the API-key middleware alongside the monitoring routes.
const busRelayPath = "/bus/ws"

// isMonitoringPath reports whether path is a scrape/health route that
// skips both rate limiting and API-key auth.
func isMonitoringPath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// Config wires the gateway's collaborators and middleware policy.
type Config struct {
	Dispatcher *webhook.Dispatcher
	Metrics    *metrics.Registry
	CORS       config.CORSConfig
	Auth       config.AuthConfig
	RateLimit  config.RateLimitConfig
	Logger     *slog.Logger

	// Tracer is optional; nil disables span creation on ingress.
	Tracer trace.Tracer

	// BusRelay, when non-nil, is mounted at busRelayPath so peer daemons
	// can attach to this process's bus over websocket.
	BusRelay http.Handler

	// MaxBodyBytes caps the webhook request body; zero uses the package
	// default of 25MB, GitHub's own payload cap.
	MaxBodyBytes int64
}

// Server is the gateway's HTTP handler set.
type Server struct {
	cfg Config
	rl  *RateLimitMiddleware
}

// New constructs a Server from cfg.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, rl: NewRateLimitMiddleware(cfg.RateLimit, cfg.Metrics)}
}

// Handler assembles the chi router: CORS, request-size limiting, rate
// limiting, then routes. Auth is applied selectively: the webhook route
// authenticates via HMAC signature, not the API-key middleware, so it is
// excluded from AuthMiddleware's wrap the same way /healthz and /metrics
// already are (see isMonitoringPath/webhookPath).
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(NewCORSMiddleware(s.cfg.CORS))
	r.Use(RequestSizeLimitMiddleware(s.cfg.MaxBodyBytes))
	r.Use(s.rl.Wrap)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Post(webhookPath, s.handleGitHubWebhook)
	if s.cfg.BusRelay != nil {
		r.Handle(busRelayPath, s.cfg.BusRelay)
	}

	auth := NewAuthMiddleware(s.cfg.Auth)
	return auth.Wrap(r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.WriteTo(w)
	}
}

// handleGitHubWebhook is the webhook ingress endpoint: verify the
// X-Hub-Signature-256 header, hand the raw body to the dispatcher, and
// report processed/skipped counts. The dispatcher itself
// returns a non-nil error for signature and schema failures and for a
// failed registration lookup; this handler maps signature failures to 401
// and every other error to 400. Downstream per-registration failures are
// captured on delivery records and still yield 200, matching the "don't
// make GitHub retry a webhook we already understood" rule.
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	statusCode := http.StatusOK
	defer func() {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Histogram("http_request_duration_seconds", "HTTP request latency in seconds.", metrics.DefaultLatencyBuckets).
				Observe(time.Since(start).Seconds(), map[string]string{"method": r.Method, "route": "webhooks_github", "status_code": statusLabel(statusCode)})
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		statusCode = http.StatusBadRequest
		http.Error(w, `{"error":"failed to read body"}`, statusCode)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	signature := r.Header.Get("X-Hub-Signature-256")
	repo := r.URL.Query().Get("repo")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	// Assign the correlation trace at the earliest entry point; the
	// dispatcher's own event context reuses this ambient id.
	ctx = corr.CreateEventContext(ctx, meshtypes.SourceWebhook, "")

	if s.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = otelx.StartServerSpan(ctx, s.cfg.Tracer, "webhook.ingest",
			attribute.String("github.event", eventName),
			otelx.AttrTraceID.String(corr.TraceID(ctx)),
		)
		defer span.End()
	}

	result, err := s.cfg.Dispatcher.Ingest(ctx, eventName, signature, repo, body)
	if err != nil {
		statusCode = http.StatusBadRequest
		if isSignatureError(err) {
			statusCode = http.StatusUnauthorized
		}
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Counter("http_requests_total", "Total HTTP requests handled.").
			Inc(map[string]string{"method": r.Method, "route": "webhooks_github", "status_code": statusLabel(statusCode)})
	}
	if err != nil {
		s.cfg.Logger.Warn("webhook_rejected", slog.String("event", eventName), slog.String("error", err.Error()))
		http.Error(w, `{"error":"`+err.Error()+`"}`, statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}

func isSignatureError(err error) bool {
	var sigErr *resilience.InvalidSignatureError
	return errors.As(err, &sigErr)
}
