package config

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides_PositiveValuesWin(t *testing.T) {
	t.Setenv("AGENT_CB_FAILURE_THRESHOLD", "7")
	t.Setenv("AGENT_RATE_LIMIT_PER_MIN", "42")
	t.Setenv("WEBHOOK_SECRET", "hunter2")

	cfg := defaultConfig()
	applyEnvOverrides(&cfg)

	if cfg.Guard.FailureThreshold != 7 {
		t.Fatalf("expected failure threshold 7, got %d", cfg.Guard.FailureThreshold)
	}
	if cfg.Guard.RateLimitPerWindow != 42 {
		t.Fatalf("expected rate limit 42, got %d", cfg.Guard.RateLimitPerWindow)
	}
	if cfg.Webhook.Secret != "hunter2" {
		t.Fatalf("expected secret from env, got %q", cfg.Webhook.Secret)
	}
}

func TestApplyEnvOverrides_BadValuesKeepDefaults(t *testing.T) {
	cases := map[string]string{
		"AGENT_CB_FAILURE_THRESHOLD": "-3",
		"AGENT_CB_RESET_TIMEOUT_MS":  "0",
		"AGENT_CB_SUCCESS_THRESHOLD": "not-a-number",
		"AGENT_RATE_LIMIT_PER_MIN":   "2.5",
	}
	for k, v := range cases {
		t.Setenv(k, v)
	}

	cfg := defaultConfig()
	applyEnvOverrides(&cfg)

	if cfg.Guard.FailureThreshold != 5 || cfg.Guard.ResetTimeoutMs != 30000 ||
		cfg.Guard.SuccessThreshold != 2 || cfg.Guard.RateLimitPerWindow != 10 {
		t.Fatalf("expected defaults kept on bad env values, got %+v", cfg.Guard)
	}
}

func TestNormalize_FillsZeroValues(t *testing.T) {
	cfg := Config{}
	normalize(&cfg)

	if cfg.BindAddr == "" || cfg.DBPath == "" {
		t.Fatalf("expected normalize to fill addr/db, got %+v", cfg)
	}
	if cfg.Guard.FailureThreshold != 5 || cfg.RateLimit.Get.RequestsPerMinute != 120 {
		t.Fatalf("expected guard/ratelimit defaults, got %+v", cfg)
	}
}

func TestGuardConfig_DurationHelpers(t *testing.T) {
	g := GuardConfig{ResetTimeoutMs: 1500, RateLimitWindowMs: 2500}
	if g.ResetTimeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected reset timeout %s", g.ResetTimeout())
	}
	if g.RateLimitWindow() != 2500*time.Millisecond {
		t.Fatalf("unexpected window %s", g.RateLimitWindow())
	}
}
