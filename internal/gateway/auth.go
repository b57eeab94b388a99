package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/agentmesh/core/internal/config"
)

// authContextKey is the context key type for authenticated API key entries.
type authContextKey struct{}

// AuthMiddleware validates API keys on routes that have no protocol-level
// authentication of their own. The webhook route carries an HMAC
// signature and the bus relay is daemon-to-daemon, so both bypass this;
// in practice it gates whatever admin surface a deployment mounts on top.
type AuthMiddleware struct {
	entries []config.APIKeyEntry
	enabled bool
}

// NewAuthMiddleware creates an auth middleware from config. The key set is
// fixed at construction; a config reload builds a new middleware.
func NewAuthMiddleware(cfg config.AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{
		entries: append([]config.APIKeyEntry(nil), cfg.Keys...),
		enabled: cfg.Enabled,
	}
}

// authExempt reports whether path authenticates by other means (or not at
// all): health/metrics scrapes, the HMAC-signed webhook ingress, and the
// daemon-to-daemon bus relay.
func authExempt(path string) bool {
	return isMonitoringPath(path) || path == webhookPath || path == busRelayPath
}

// Wrap wraps an http.Handler with API key authentication checking.
func (am *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	if !am.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := ExtractAPIKey(r)
		if key == "" {
			http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
			return
		}

		entry, ok := am.lookup(key)
		if !ok {
			http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractAPIKey pulls an API key from Authorization: Bearer <key> or the
// X-API-Key header. There is deliberately no query-param fallback: every
// caller of this gateway is a machine that can set headers, and keys in
// URLs end up in access logs.
func ExtractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// lookup scans every configured entry with a constant-time comparison so
// the scan cost never depends on how close candidate is to a real key.
func (am *AuthMiddleware) lookup(candidate string) (*config.APIKeyEntry, bool) {
	for i := range am.entries {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(am.entries[i].Key)) == 1 {
			return &am.entries[i], true
		}
	}
	return nil, false
}

// KeyEntryFromContext retrieves the authenticated API key entry injected
// by Wrap, if any.
func KeyEntryFromContext(ctx context.Context) (*config.APIKeyEntry, bool) {
	entry, ok := ctx.Value(authContextKey{}).(*config.APIKeyEntry)
	return entry, ok
}
