// Command meshd is the thin daemon that wires the agent messaging and
// orchestration core (internal/guard, internal/peerchannel, internal/peernode,
// internal/mesh, internal/webhook, internal/corr) against the concrete
// collaborator implementations shipped in this repository: a SQLite store,
// an in-process bus with an optional websocket bridge, an in-memory
// directory, and a cron scheduler. Agent execution itself (internal/collab.ProcessManager)
// is a collaborator, not part of this daemon; meshd wires a no-op stub so it
// runs standalone, and a real deployment supplies its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/internal/bus/wsbus"
	"github.com/agentmesh/core/internal/collab"
	"github.com/agentmesh/core/internal/config"
	"github.com/agentmesh/core/internal/cron"
	"github.com/agentmesh/core/internal/directory"
	"github.com/agentmesh/core/internal/gateway"
	"github.com/agentmesh/core/internal/guard"
	"github.com/agentmesh/core/internal/mesh"
	"github.com/agentmesh/core/internal/meshtypes"
	"github.com/agentmesh/core/internal/metrics"
	otelPkg "github.com/agentmesh/core/internal/otel"
	"github.com/agentmesh/core/internal/peerchannel"
	"github.com/agentmesh/core/internal/peernode"
	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/internal/telemetry"
	"github.com/agentmesh/core/internal/webhook"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                  Start the mesh daemon (HTTP gateway + webhook ingress + cron scheduler)
  %s -version         Print version and exit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  MESHD_HOME                      Data directory (default: ~/.meshd)
  MESHD_BIND_ADDR                 HTTP bind address (default: 127.0.0.1:8780)
  MESHD_LOG_LEVEL                 Log level (default: info)
  WEBHOOK_SECRET                  HMAC secret for webhook ingress; unset rejects all webhooks
  AGENT_CB_FAILURE_THRESHOLD      Guard breaker failure threshold (default: 5)
  AGENT_CB_RESET_TIMEOUT_MS       Guard breaker OPEN->HALF_OPEN cooldown (default: 30000)
  AGENT_CB_SUCCESS_THRESHOLD      Guard breaker HALF_OPEN success threshold (default: 2)
  AGENT_RATE_LIMIT_PER_MIN        Guard per-sender window cap (default: 10)
  RATE_LIMIT_GET / RATE_LIMIT_MUTATION  HTTP token-bucket rates in requests/min (default: 120 / 30), per API key or else per client IP; not a sliding window
  OTEL_EXPORTER_OTLP_ENDPOINT     Opt-in OTLP tracing endpoint; unset disables tracing
`)
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.OTel.Endpoint != "",
		Exporter:    "otlp-http",
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: "meshd",
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() { _ = otelProvider.Shutdown(context.Background()) }()

	dbPath := cfg.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.HomeDir, dbPath)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer st.Close()
	logger.Info("startup phase", "phase", "schema_bootstrapped", "db", dbPath)

	seedFromConfig(ctx, st, cfg, logger)

	metricsRegistry := metrics.Standard()
	st.SetQueryObserver(metrics.StoreObserver(metricsRegistry))

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", "error", err)
	}
	go func() {
		for ev := range watcher.Events() {
			reloaded, err := config.Load()
			if err != nil {
				logger.Error("config reload failed", "path", ev.Path, "error", err)
				continue
			}
			cfg = reloaded
			logger.Info("config reloaded", "path", ev.Path)
		}
	}()

	localBus := bus.New(logger)
	meshBus := wsbus.New(localBus, logger)
	for _, peer := range cfg.Peers {
		if err := meshBus.Dial(ctx, peer); err != nil {
			logger.Warn("bus peer dial failed", "peer", peer, "error", err)
		}
	}

	dir := directory.New("meshd-local")
	for _, seed := range cfg.Registrations {
		dir.Register(meshtypes.AgentInfo{ID: seed.AgentID, TrustScore: 0.9})
	}

	msgGuard := guard.New(guard.Config{
		FailureThreshold:   cfg.Guard.FailureThreshold,
		ResetTimeout:       cfg.Guard.ResetTimeout(),
		SuccessThreshold:   cfg.Guard.SuccessThreshold,
		RateLimitPerWindow: cfg.Guard.RateLimitPerWindow,
		RateLimitWindow:    cfg.Guard.RateLimitWindow(),
	}, logger, metrics.NewGuardMetrics(metricsRegistry))
	stopSweep := msgGuard.StartSweeper(ctx, cfg.Guard.RateLimitWindow())
	defer stopSweep()

	node := peernode.New("meshd-local", meshBus, dir, peerchannel.DefaultConfig(), peernode.Events{
		OnDisconnected: func(peerID string) {
			logger.Info("peer disconnected", "peer", peerID)
		},
	}, logger)
	stopHeartbeat := node.StartHeartbeat(ctx)
	defer stopHeartbeat()

	// router and msgGuard sit behind collab.ProcessManager: a real agent
	// executor calls router.Route for replies and msgGuard.Check before
	// each outbound send. The webhook ingress path below goes straight
	// through the store + process manager and never touches either
	// directly.
	router := mesh.New(node, nil, nil, dir, st)
	router.SetMetrics(metrics.NewMeshMetrics(metricsRegistry))

	processes := &noopProcessManager{logger: logger, router: router, guard: msgGuard}

	validator, err := webhook.NewSchemaValidator()
	if err != nil {
		fatalStartup(logger, "E_WEBHOOK_SCHEMA", err)
	}

	dispatcher := webhook.New(cfg.Webhook.Secret, st, processes, localBus, nil, validator, logger)

	cronSched := cron.NewScheduler(cron.Config{Store: st, Process: processes, Logger: logger})
	cronSched.Start(ctx)
	defer cronSched.Stop()

	gw := gateway.New(gateway.Config{
		Dispatcher: dispatcher,
		Metrics:    metricsRegistry,
		CORS:       cfg.CORS,
		Auth:       cfg.Auth,
		RateLimit:  cfg.RateLimit,
		Logger:     logger,
		Tracer:     otelProvider.Tracer,
		BusRelay:   meshBus,
	})

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: gw.Handler(),
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "listener_bound", "addr", cfg.BindAddr)
	go func() {
		logger.Info("gateway listening", "addr", cfg.BindAddr)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("gateway server error", "error", err)
	}
	stop() // cancel the root context so every deferred timer owner unblocks

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// seedFromConfig upserts the agents and webhook registrations listed in
// config.yaml so a fresh meshd instance has something to dispatch to
// without a separate admin API. The store remains the long-term source
// of truth.
func seedFromConfig(ctx context.Context, st *store.Store, cfg config.Config, logger *slog.Logger) {
	for _, seed := range cfg.Registrations {
		if err := st.UpsertAgent(ctx, meshtypes.AgentDescriptor{
			ID:         seed.AgentID,
			Name:       seed.AgentID,
			Address:    "local",
			Active:     true,
			TrustScore: 0.9,
			LastSeen:   time.Now(),
		}); err != nil {
			logger.Error("seed agent failed", "agent_id", seed.AgentID, "error", err)
			continue
		}

		events := make(map[meshtypes.EventKind]bool, len(seed.Events))
		for _, e := range seed.Events {
			events[meshtypes.EventKind(e)] = true
		}
		if _, err := st.UpsertRegistration(ctx, meshtypes.Registration{
			AgentID:     seed.AgentID,
			Repo:        seed.Repo,
			Events:      events,
			MentionUser: seed.MentionUser,
			ProjectID:   seed.ProjectID,
			Status:      meshtypes.RegistrationActive,
		}); err != nil {
			logger.Error("seed registration failed", "agent_id", seed.AgentID, "repo", seed.Repo, "error", err)
		}
	}
}

// noopProcessManager satisfies collab.ProcessManager when no real agent
// executor is wired in. It logs what it would have started so the gateway
// and dispatcher can still be exercised end-to-end in isolation. It holds
// the router and guard a real executor would use to send replies back
// through the mesh, so swapping this stub for a real process manager
// requires no change to how those two are wired.
type noopProcessManager struct {
	logger *slog.Logger
	router *mesh.Router
	guard  *guard.Guard
}

func (p *noopProcessManager) StartProcess(ctx context.Context, sessionID, agentID, prompt string, schedulerMode bool) error {
	p.logger.Info("process manager stub: would start process",
		"session_id", sessionID, "agent_id", agentID, "scheduler_mode", schedulerMode)
	return nil
}

func (p *noopProcessManager) Subscribe(sessionID string, cb func(collab.ProcessEvent)) func() {
	return func() {}
}

func (p *noopProcessManager) IsRunning(sessionID string) bool { return false }

func (p *noopProcessManager) GetActiveSessionIDs() []string { return nil }

func (p *noopProcessManager) StopProcess(sessionID string) error { return nil }

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), reasonCode, message)
	}
	os.Exit(1)
}
