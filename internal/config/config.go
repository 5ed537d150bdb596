// Package config loads the supervisor's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/logger"
)

// Config is the top-level TOML structure.
type Config struct {
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	UseOSEnv bool     `mapstructure:"use_os_env"`

	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Enforcer   EnforcerConfig   `mapstructure:"enforcer"`
	Log        LogConfig        `mapstructure:"log"`
	History    HistoryConfig    `mapstructure:"history"`
	Server     ServerConfig     `mapstructure:"server"`
}

// SupervisorConfig tunes admission and lifecycle timing.
type SupervisorConfig struct {
	MaxProcesses        int           `mapstructure:"max_processes"`
	MaxRestarts         int           `mapstructure:"max_restarts"`
	AutoRestart         bool          `mapstructure:"auto_restart"`
	GracefulStopTimeout time.Duration `mapstructure:"graceful_stop_timeout"`
	KillTimeout         time.Duration `mapstructure:"kill_timeout"`
	RestartDelay        time.Duration `mapstructure:"restart_delay"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	OrphanSweepInterval time.Duration `mapstructure:"orphan_sweep_interval"`
	StatsInterval       time.Duration `mapstructure:"stats_interval"`
}

// SandboxConfig restricts what the supervisor will spawn.
type SandboxConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	AllowedCommands []string `mapstructure:"allowed_commands"`
	AllowedWorkDirs []string `mapstructure:"allowed_work_dirs"`
}

// LimitsConfig is the global ceiling plus per-agent-type overrides.
type LimitsConfig struct {
	limits.Limits `mapstructure:",squash"`
	Overrides     map[string]limits.Limits `mapstructure:"overrides"`
}

// RegistryConfig tunes registry persistence and retention.
type RegistryConfig struct {
	SnapshotPath     string        `mapstructure:"snapshot_path"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	MaxRecords       int           `mapstructure:"max_records"`
}

// MonitorConfig tunes telemetry collection.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Window   int           `mapstructure:"window"`
}

// EnforcerConfig tunes the enforcement tick and alerting.
type EnforcerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
	AlertCap      int           `mapstructure:"alert_cap"`
	KillDelay     time.Duration `mapstructure:"kill_delay"`
}

// LogConfig covers the supervisor's own log plus worker output capture.
type LogConfig struct {
	Level  string                 `mapstructure:"level"`
	Format string                 `mapstructure:"format"`
	Worker logger.WorkerLogConfig `mapstructure:"worker"`
}

// HistoryConfig selects the lifecycle event sink.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig exposes the read-only observability endpoint.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Supervisor: SupervisorConfig{
			MaxProcesses:        10,
			MaxRestarts:         3,
			AutoRestart:         true,
			GracefulStopTimeout: 10 * time.Second,
			KillTimeout:         5 * time.Second,
			RestartDelay:        time.Second,
			HealthCheckInterval: 30 * time.Second,
			OrphanSweepInterval: 60 * time.Second,
			StatsInterval:       10 * time.Second,
		},
		Limits: LimitsConfig{Limits: limits.Default()},
		Registry: RegistryConfig{
			SnapshotInterval: 30 * time.Second,
			StaleAfter:       time.Hour,
			MaxRecords:       1000,
		},
		Monitor:  MonitorConfig{Interval: time.Second, Window: 300},
		Enforcer: EnforcerConfig{Interval: time.Second, AlertCooldown: 30 * time.Second, AlertCap: 1000, KillDelay: 5 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
		Server:   ServerConfig{Listen: "127.0.0.1:9535"},
	}
}

// Load reads a TOML file on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the supervisor cannot run with.
// Validation failures are fatal at initialization.
func (c Config) Validate() error {
	if c.Supervisor.MaxProcesses <= 0 {
		return fmt.Errorf("supervisor.max_processes must be positive: %d", c.Supervisor.MaxProcesses)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("supervisor.max_restarts must not be negative: %d", c.Supervisor.MaxRestarts)
	}
	if c.Supervisor.GracefulStopTimeout <= 0 || c.Supervisor.KillTimeout <= 0 {
		return fmt.Errorf("supervisor stop timeouts must be positive")
	}
	if err := c.Limits.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	for agent, l := range c.Limits.Overrides {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("limits.overrides.%s: %w", agent, err)
		}
	}
	if c.Sandbox.Enabled && len(c.Sandbox.AllowedCommands) == 0 {
		return fmt.Errorf("sandbox.enabled requires at least one allowed command")
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		return fmt.Errorf("history.enabled requires history.dsn")
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server.enabled requires server.listen")
	}
	return nil
}

// LimitsResolver builds the effective resolver for monitor and enforcer.
func (c Config) LimitsResolver() limits.Resolver {
	return limits.NewResolver(c.Limits.Limits, c.Limits.Overrides)
}

// GlobalEnv merges the worker environment: OS env when enabled, then
// env_files in order, then the inline env list, last writer wins.
func (c Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				m[k] = v
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; blank lines and # comments are
// skipped.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}
