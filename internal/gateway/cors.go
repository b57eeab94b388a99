package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentmesh/core/internal/config"
)

// corsPolicy is the precomputed answer to every preflight: origins are
// matched per request, everything else is fixed at construction. CORS on
// this gateway exists for browser dashboards hitting /metrics and
// /healthz; the webhook ingress and bus relay are server-to-server and
// never preflight.
type corsPolicy struct {
	allowAll bool
	origins  map[string]bool
	methods  string
	headers  string
	maxAge   string
}

func newCORSPolicy(cfg config.CORSConfig) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool)}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.allowAll = true
		}
		p.origins[o] = true
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		// Content-Type/Authorization/X-API-Key for the API-key-authenticated
		// routes; X-Hub-Signature-256/X-GitHub-Event for webhook ingress.
		headers = []string{"Content-Type", "Authorization", "X-API-Key", "X-Hub-Signature-256", "X-GitHub-Event"}
	}
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 3600
	}

	p.methods = strings.Join(methods, ", ")
	p.headers = strings.Join(headers, ", ")
	p.maxAge = strconv.Itoa(maxAge)
	return p
}

func (p corsPolicy) allows(origin string) bool {
	return origin != "" && (p.allowAll || p.origins[origin])
}

func (p corsPolicy) apply(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", p.methods)
	w.Header().Set("Access-Control-Allow-Headers", p.headers)
	w.Header().Set("Access-Control-Max-Age", p.maxAge)
}

// NewCORSMiddleware creates a CORS middleware from config.
// When disabled, it returns a pass-through wrapper.
func NewCORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); policy.allows(origin) {
				policy.apply(w, origin)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestSizeLimitMiddleware caps request body size. The default tracks
// GitHub's webhook payload cap of 25MB; anything larger than that is not
// a delivery this gateway could ever need to read.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 25 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
