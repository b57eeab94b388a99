package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentmesh/core/internal/shared"
)

// NewLogger builds the daemon's slog.Logger: JSON lines appended to
// <homeDir>/logs/system.jsonl (and mirrored to stdout unless quiet), every
// attr passed through redactAttr before it is written. The returned closer
// owns the log file.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(filepath.Join(logDir, "system.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = file
	if !quiet {
		w = io.MultiWriter(os.Stdout, file)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactAttr,
	})
	logger := slog.New(handler).With("component", "meshd", "trace_id", "-")
	return logger, file, nil
}

// redactAttr is the handler's ReplaceAttr hook: renames the time key and
// strips secret material (by key, then by value shape) from every record.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Key = "timestamp"
	}
	if shouldRedactKey(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		if redacted, ok := redactStringValue(a.Value.String()); ok {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// sensitiveKeyTokens flags attr keys whose whole value must never reach a
// log line: generic auth material plus this system's own secret-bearing
// keys (webhook HMAC secrets and signatures, bus relay credentials).
var sensitiveKeyTokens = []string{
	"token", "secret", "password", "authorization",
	"api_key", "apikey", "bearer",
	"signature", "hmac", "credential",
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func redactStringValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	// Full redaction for strings carrying whole auth or signature headers,
	// e.g. a dumped request header block.
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "x-hub-signature") {
		return "[REDACTED]", true
	}
	if strings.Contains(lower, "api_key") || strings.Contains(lower, "authorization:") {
		return "[REDACTED]", true
	}
	// Pattern-based partial redaction: webhook secrets, sha256= digests,
	// credentials embedded in bus URLs.
	redacted := shared.Redact(v)
	if redacted != v {
		return redacted, true
	}
	return v, false
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
