// Package main is the entry point for the autoplane scheduler daemon.
// It owns the wake-loop, lease management, execution, and the control
// API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoplane/internal/config"
	"autoplane/internal/control"
	"autoplane/internal/executor"
	execruntime "autoplane/internal/executor/runtime"
	"autoplane/internal/logger"
	"autoplane/internal/notify"
	"autoplane/internal/observability"
	"autoplane/internal/runlog"
	"autoplane/internal/runner"
	"autoplane/internal/scheduler"
	"autoplane/internal/store/postgres"
	"autoplane/internal/workspace"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: autoplane.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	if *migrateFlag {
		slogger.Info("running database migrations")
		if err := postgres.Migrate(st.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		slogger.Info("migrations completed")
	}

	// Tracing
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "autoplane-scheduler", cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slogger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Execution strategies
	var primary executor.Strategy
	if cfg.PoolURL != "" {
		primary = executor.NewPoolStrategy(cfg.PoolURL, cfg.PoolSecret, slogger)
		slogger.Info("pool strategy enabled", "url", cfg.PoolURL)
	}

	var fallback executor.Strategy
	if cfg.ExecutionMode == config.ModeRetryThenFallback {
		var rt execruntime.Runtime
		switch cfg.IsolatedRuntime {
		case "docker":
			dockerRT, err := execruntime.NewDockerRuntime()
			if err != nil {
				log.Fatalf("Failed to create docker runtime: %v", err)
			}
			rt = dockerRT
			slogger.Info("isolated strategy using docker runtime", "image", cfg.AgentImage)
		default:
			rt = execruntime.NewExecRuntime(cfg.AgentBin)
			slogger.Info("isolated strategy using exec runtime", "bin", cfg.AgentBin)
		}
		fallback = executor.NewIsolatedStrategy(rt, cfg.AgentImage, slogger)
	} else if primary == nil {
		// Primary-only mode with no pool backend cannot execute
		// anything; refuse to start rather than silently degrade.
		log.Fatalf("execution_mode=primary-only requires pool_url to be set")
	}

	orch := executor.New(primary, fallback, cfg.RetryDelay, slogger)

	// Storage collaborators
	runLog, err := runlog.NewWriter(cfg.LogDir, cfg.RunLogMaxBytes, cfg.RunLogKeepLines)
	if err != nil {
		log.Fatalf("Failed to init run log: %v", err)
	}
	messages, err := runlog.NewMessageStore(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("Failed to init message store: %v", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyWebhookURL)
	}

	// Lifecycle engine
	resolver := workspace.NewResolver(cfg.WorkspaceRoot)
	leaseBuffer := time.Duration(cfg.LeaseBufferSeconds) * time.Second
	claims := runner.NewClaimManager(st, resolver, cfg.ServerID, leaseBuffer, slogger)
	finisher := runner.NewFinisher(st, st, runLog, messages, notifier, metrics,
		cfg.MaxRetries, cfg.RetryBaseDelay, slogger)

	sched := scheduler.New(scheduler.Config{
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		IdleInterval:      cfg.IdleInterval,
		ReapGrace:         cfg.ReapGrace,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, st, claims, orch, finisher, metrics, slogger)

	go func() {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			slogger.Error("scheduler stopped", "error", err)
		}
	}()

	// Control API
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	handlers := control.NewHandlers(sched, st, slogger)
	srv := control.New(addr, handlers, cfg.ControlSecret, metricsHandler)

	go func() {
		slogger.Info("control API listening", "addr", addr, "server_id", cfg.ServerID)
		if err := srv.Run(ctx); err != nil {
			slogger.Error("control server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down")
	cancel()
}
