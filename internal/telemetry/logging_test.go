package telemetry

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestShouldRedactKey(t *testing.T) {
	cases := []struct {
		key    string
		expect bool
	}{
		{"webhook_secret", true},
		{"x_hub_signature_256", true},
		{"bus_credentials", true},
		{"hmac_digest", true},
		{"api_key", true},
		{"trace_id", false},
		{"agent_id", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := shouldRedactKey(tc.key); got != tc.expect {
			t.Errorf("shouldRedactKey(%q) = %v, want %v", tc.key, got, tc.expect)
		}
	}
}

func TestRedactStringValue_SignatureHeaderFullyRedacted(t *testing.T) {
	got, ok := redactStringValue("X-Hub-Signature-256: sha256=deadbeef")
	if !ok || got != "[REDACTED]" {
		t.Fatalf("expected full redaction of signature header, got %q (%v)", got, ok)
	}
}

func TestRedactStringValue_BusURLPartiallyRedacted(t *testing.T) {
	got, ok := redactStringValue("dial failed: ws://mesh:s3cret@peer:8780/bus/ws refused")
	if !ok {
		t.Fatal("expected redaction of bus URL credentials")
	}
	if strings.Contains(got, "s3cret") {
		t.Fatalf("credential survived redaction: %q", got)
	}
	if !strings.Contains(got, "peer:8780") {
		t.Fatalf("expected host preserved, got %q", got)
	}
}

func TestRedactStringValue_PlainValueUntouched(t *testing.T) {
	got, ok := redactStringValue("routed message to bob via direct")
	if ok || got != "routed message to bob via direct" {
		t.Fatalf("expected no redaction, got %q (%v)", got, ok)
	}
}

func TestRedactAttr(t *testing.T) {
	a := redactAttr(nil, slog.String("webhook_secret", "hunter2"))
	if a.Value.String() != "[REDACTED]" {
		t.Fatalf("expected secret attr value dropped, got %q", a.Value.String())
	}

	a = redactAttr(nil, slog.Time(slog.TimeKey, time.Now()))
	if a.Key != "timestamp" {
		t.Fatalf("expected time key renamed, got %q", a.Key)
	}

	a = redactAttr(nil, slog.String("peer", "bob"))
	if a.Key != "peer" || a.Value.String() != "bob" {
		t.Fatalf("expected benign attr untouched, got %+v", a)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
