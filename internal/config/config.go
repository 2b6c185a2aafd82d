// Package config handles configuration loading for the scheduler daemon.
// Values come from an optional YAML file plus AUTOPLANE_* environment
// variables; the environment wins.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Execution mode selects the orchestration policy.
const (
	ModeRetryThenFallback = "retry-then-fallback"
	ModePrimaryOnly       = "primary-only"
)

// Config holds all configuration values for the scheduler daemon.
type Config struct {
	// Database connection string. Required.
	DatabaseURL string

	// HTTP port for the control API.
	HTTPPort int

	// Identifier written into claimed_by; defaults to the hostname.
	ServerID string

	// Maximum number of jobs executing at once across the whole process.
	MaxConcurrentRuns int

	// Extra seconds added to a job's timeout when computing its lease.
	LeaseBufferSeconds int

	// Interval between lease extensions while a run is in flight.
	HeartbeatInterval time.Duration

	// Grace period past lease expiry before the reaper clears a lease.
	ReapGrace time.Duration

	// Re-check interval when no job is scheduled.
	IdleInterval time.Duration

	// Fixed delay before the single inline retry of a transient failure.
	RetryDelay time.Duration

	// Job-level retry policy.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Root directory containing one workspace per site.
	WorkspaceRoot string

	// Run log and message transcript storage.
	LogDir          string
	MessagesDir     string
	RunLogMaxBytes  int64
	RunLogKeepLines int

	// Pooled execution backend. Empty PoolURL disables the pool strategy.
	PoolURL    string
	PoolSecret string

	// Orchestration policy: retry-then-fallback or primary-only.
	ExecutionMode string

	// Isolated runtime backend: exec or docker.
	IsolatedRuntime string
	AgentBin        string
	AgentImage      string

	// Webhook invoked when a job is permanently disabled. Optional.
	NotifyWebhookURL string

	// Shared secret guarding the control API.
	ControlSecret string

	// OTLP collector address for traces. Empty disables tracing.
	OTELEndpoint string
}

// Load reads configuration from the given file (optional) and environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("autoplane")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUTOPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; a broken one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("database_url"),
		HTTPPort:           v.GetInt("http_port"),
		ServerID:           v.GetString("server_id"),
		MaxConcurrentRuns:  v.GetInt("max_concurrent_runs"),
		LeaseBufferSeconds: v.GetInt("lease_buffer_seconds"),
		HeartbeatInterval:  v.GetDuration("heartbeat_interval"),
		ReapGrace:          v.GetDuration("reap_grace"),
		IdleInterval:       v.GetDuration("idle_interval"),
		RetryDelay:         v.GetDuration("retry_delay"),
		MaxRetries:         v.GetInt("max_retries"),
		RetryBaseDelay:     v.GetDuration("retry_base_delay"),
		WorkspaceRoot:      v.GetString("workspace_root"),
		LogDir:             v.GetString("log_dir"),
		MessagesDir:        v.GetString("messages_dir"),
		RunLogMaxBytes:     v.GetInt64("runlog_max_bytes"),
		RunLogKeepLines:    v.GetInt("runlog_keep_lines"),
		PoolURL:            v.GetString("pool_url"),
		PoolSecret:         v.GetString("pool_secret"),
		ExecutionMode:      v.GetString("execution_mode"),
		IsolatedRuntime:    v.GetString("isolated_runtime"),
		AgentBin:           v.GetString("agent_bin"),
		AgentImage:         v.GetString("agent_image"),
		NotifyWebhookURL:   v.GetString("notify_webhook_url"),
		ControlSecret:      v.GetString("control_secret"),
		OTELEndpoint:       v.GetString("otel_endpoint"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (AUTOPLANE_DATABASE_URL)")
	}

	if cfg.ServerID == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("server_id not set and hostname unavailable: %w", err)
		}
		cfg.ServerID = host
	}

	switch cfg.ExecutionMode {
	case ModeRetryThenFallback, ModePrimaryOnly:
	default:
		return nil, fmt.Errorf("invalid execution_mode %q", cfg.ExecutionMode)
	}

	switch cfg.IsolatedRuntime {
	case "exec", "docker":
	default:
		return nil, fmt.Errorf("invalid isolated_runtime %q", cfg.IsolatedRuntime)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6170)
	v.SetDefault("max_concurrent_runs", 5)
	v.SetDefault("lease_buffer_seconds", 120)
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("reap_grace", time.Minute)
	v.SetDefault("idle_interval", 5*time.Minute)
	v.SetDefault("retry_delay", 2*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay", time.Minute)
	v.SetDefault("workspace_root", "/srv/workspaces")
	v.SetDefault("log_dir", "/var/log/autoplane/jobs")
	v.SetDefault("messages_dir", "/var/lib/autoplane/messages")
	v.SetDefault("runlog_max_bytes", int64(1<<20))
	v.SetDefault("runlog_keep_lines", 500)
	v.SetDefault("execution_mode", ModeRetryThenFallback)
	v.SetDefault("isolated_runtime", "exec")
	v.SetDefault("agent_bin", "autoplane-agent")
}
