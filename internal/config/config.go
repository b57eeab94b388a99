// Package config loads and hot-reloads the messaging and orchestration
// core's configuration: an env-first surface (guard tunables, HTTP rate
// limits, the webhook secret, optional OTLP endpoint), plus a YAML
// overlay for settings that aren't one-off env knobs (breaker/guard
// defaults, bus peers, the demo daemon's webhook registrations).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEntry is one entry in the gateway's API-key table.
type APIKeyEntry struct {
	Key   string `yaml:"key"`
	Name  string `yaml:"name"`
	Scope string `yaml:"scope,omitempty"`
}

// AuthConfig controls the gateway's API-key middleware. Webhook ingress
// authenticates via HMAC signature instead and is never gated by this.
type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Keys    []APIKeyEntry `yaml:"keys"`
}

// CORSConfig controls the gateway's CORS middleware.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// BucketConfig is one token-bucket's rate and burst.
type BucketConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// RateLimitConfig controls the gateway's per-key/per-IP HTTP rate
// limiter. Distinct from the messaging guard's per-sender window; this
// caps the HTTP surface itself. Get covers any GET/HEAD route that isn't
// exempted as a monitoring endpoint, Mutation covers the webhook ingress
// POST.
type RateLimitConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Get      BucketConfig `yaml:"get"`
	Mutation BucketConfig `yaml:"mutation"`
}

// GuardConfig mirrors guard.Config's fields for YAML/env configuration;
// internal/guard.Config is constructed from this at wiring time so the
// guard package itself stays free of a config-package dependency.
type GuardConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	ResetTimeoutMs     int `yaml:"reset_timeout_ms"`
	SuccessThreshold   int `yaml:"success_threshold"`
	RateLimitPerWindow int `yaml:"rate_limit_per_window"`
	RateLimitWindowMs  int `yaml:"rate_limit_window_ms"`
}

// WebhookConfig holds the event dispatcher's ingress settings.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// OTelConfig controls optional OTLP tracing export.
type OTelConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// RegistrationSeed is a webhook registration loaded from config.yaml at
// startup, for the demo daemon (the store is the long-term source of
// truth; seeds let `meshd` boot with a usable registration without a
// separate admin API).
type RegistrationSeed struct {
	AgentID     string   `yaml:"agent_id"`
	Repo        string   `yaml:"repo"`
	Events      []string `yaml:"events"`
	MentionUser string   `yaml:"mention_user"`
	ProjectID   string   `yaml:"project_id"`
}

// Config is the core's full configuration surface.
type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`
	DBPath   string `yaml:"db_path"`

	Guard     GuardConfig     `yaml:"guard"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	OTel      OTelConfig      `yaml:"otel"`

	// Peers lists ws:// URLs of other meshd daemons' bus relay endpoints
	// to dial at startup, joining their pub/sub substrates into one mesh.
	Peers []string `yaml:"peers"`

	Registrations []RegistrationSeed `yaml:"registrations"`
}

// ConfigPath returns the path to config.yaml within homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		BindAddr: "127.0.0.1:8780",
		LogLevel: "info",
		DBPath:   "mesh.db",
		Guard: GuardConfig{
			FailureThreshold:   5,
			ResetTimeoutMs:     30000,
			SuccessThreshold:   2,
			RateLimitPerWindow: 10,
			RateLimitWindowMs:  60000,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Get:      BucketConfig{RequestsPerMinute: 120, BurstSize: 30},
			Mutation: BucketConfig{RequestsPerMinute: 30, BurstSize: 10},
		},
	}
}

// HomeDir returns the core's data directory, overridable via MESHD_HOME.
func HomeDir() string {
	if override := os.Getenv("MESHD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".meshd")
}

// Load reads config.yaml (if present) under HomeDir(), applies env
// overrides, and fills defaults for anything left unset.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create meshd home: %w", err)
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8780"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "mesh.db"
	}
	if cfg.Guard.FailureThreshold <= 0 {
		cfg.Guard.FailureThreshold = 5
	}
	if cfg.Guard.ResetTimeoutMs <= 0 {
		cfg.Guard.ResetTimeoutMs = 30000
	}
	if cfg.Guard.SuccessThreshold <= 0 {
		cfg.Guard.SuccessThreshold = 2
	}
	if cfg.Guard.RateLimitPerWindow <= 0 {
		cfg.Guard.RateLimitPerWindow = 10
	}
	if cfg.Guard.RateLimitWindowMs <= 0 {
		cfg.Guard.RateLimitWindowMs = 60000
	}
	if cfg.RateLimit.Get.RequestsPerMinute <= 0 {
		cfg.RateLimit.Get.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Get.BurstSize <= 0 {
		cfg.RateLimit.Get.BurstSize = 30
	}
	if cfg.RateLimit.Mutation.RequestsPerMinute <= 0 {
		cfg.RateLimit.Mutation.RequestsPerMinute = 30
	}
	if cfg.RateLimit.Mutation.BurstSize <= 0 {
		cfg.RateLimit.Mutation.BurstSize = 10
	}
}

// ResetTimeout returns the guard's OPEN->HALF_OPEN cooldown as a Duration.
func (g GuardConfig) ResetTimeout() time.Duration {
	return time.Duration(g.ResetTimeoutMs) * time.Millisecond
}

// RateLimitWindow returns the guard's sliding-window size as a Duration.
func (g GuardConfig) RateLimitWindow() time.Duration {
	return time.Duration(g.RateLimitWindowMs) * time.Millisecond
}

// applyEnvOverrides reads the environment surface. Non-numeric and
// non-positive values are ignored and the existing (YAML or default)
// value is kept.
func applyEnvOverrides(cfg *Config) {
	setPositiveInt(&cfg.Guard.FailureThreshold, "AGENT_CB_FAILURE_THRESHOLD")
	setPositiveInt(&cfg.Guard.ResetTimeoutMs, "AGENT_CB_RESET_TIMEOUT_MS")
	setPositiveInt(&cfg.Guard.SuccessThreshold, "AGENT_CB_SUCCESS_THRESHOLD")
	setPositiveInt(&cfg.Guard.RateLimitPerWindow, "AGENT_RATE_LIMIT_PER_MIN")

	setPositiveInt(&cfg.RateLimit.Get.RequestsPerMinute, "RATE_LIMIT_GET")
	setPositiveInt(&cfg.RateLimit.Mutation.RequestsPerMinute, "RATE_LIMIT_MUTATION")

	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Webhook.Secret = secret
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTel.Endpoint = endpoint
	}
	if addr := os.Getenv("MESHD_BIND_ADDR"); addr != "" {
		cfg.BindAddr = addr
	}
	if level := os.Getenv("MESHD_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// setPositiveInt parses env as a positive integer into *dst, leaving dst
// unchanged (and returning false) if env is unset, non-numeric, zero, or
// negative.
func setPositiveInt(dst *int, env string) bool {
	raw := os.Getenv(env)
	if raw == "" {
		return false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return false
	}
	*dst = v
	return true
}
