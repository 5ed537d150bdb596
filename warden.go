// Package warden embeds the process supervisor into a host application.
// The facade wires the registry, monitor, enforcer and supervisor together
// from one configuration and exposes the lifecycle API.
package warden

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wardenproc/warden/internal/config"
	"github.com/wardenproc/warden/internal/enforcer"
	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/history"
	"github.com/wardenproc/warden/internal/history/factory"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/monitor"
	"github.com/wardenproc/warden/internal/registry"
	"github.com/wardenproc/warden/internal/server"
	"github.com/wardenproc/warden/internal/stats"
	"github.com/wardenproc/warden/internal/supervisor"
)

// Re-exported types for embedders.
type (
	Config       = config.Config
	StartOptions = supervisor.StartOptions
	Record       = registry.Record
	Query        = registry.Query
	HealthReport = monitor.HealthReport
	Alert        = enforcer.Alert
	Limits       = limits.Limits
	Bus          = events.Bus
)

// Re-exported sentinel errors.
var (
	ErrCapacityExceeded     = supervisor.ErrCapacityExceeded
	ErrCommandNotAllowed    = supervisor.ErrCommandNotAllowed
	ErrWorkDirNotAllowed    = supervisor.ErrWorkDirNotAllowed
	ErrRestartLimitExceeded = supervisor.ErrRestartLimitExceeded
	ErrProcessNotFound      = supervisor.ErrProcessNotFound
)

// Warden is a fully wired supervisor instance.
type Warden struct {
	cfg config.Config
	bus *events.Bus

	reg *registry.Registry
	mon *monitor.Monitor
	enf *enforcer.Enforcer
	sup *supervisor.Supervisor

	recorder *history.Recorder
	srv      *server.Server
}

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config { return config.Default() }

// New wires a supervisor from cfg and starts its background loops.
// Initialization failures are fatal to the caller; nothing is left half
// started.
func New(cfg Config) (*Warden, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	res := cfg.LimitsResolver()
	bus := events.NewBus()
	provider := stats.NewFallbackProvider(stats.NewSystemProvider(), os.Getpid())

	reg := registry.New(registry.Config{
		SnapshotPath:     cfg.Registry.SnapshotPath,
		SnapshotInterval: cfg.Registry.SnapshotInterval,
		StaleAfter:       cfg.Registry.StaleAfter,
		MaxRecords:       cfg.Registry.MaxRecords,
	}, registry.WithBus(bus))
	if err := reg.Open(); err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	mon := monitor.New(provider, res,
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithWindow(cfg.Monitor.Window),
		monitor.WithBus(bus))

	enf := enforcer.New(enforcer.Config{
		Interval:      cfg.Enforcer.Interval,
		AlertCooldown: cfg.Enforcer.AlertCooldown,
		AlertCap:      cfg.Enforcer.AlertCap,
		KillDelay:     cfg.Enforcer.KillDelay,
	}, res, provider, enforcer.WithBus(bus))
	enf.Start()

	baseEnv, err := cfg.GlobalEnv()
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("worker environment: %w", err)
	}

	sup := supervisor.New(cfg.Supervisor, res, reg, mon, enf,
		supervisor.WithBus(bus),
		supervisor.WithSandbox(cfg.Sandbox),
		supervisor.WithWorkerLog(cfg.Log.Worker),
		supervisor.WithBaseEnv(baseEnv))
	sup.Start()

	w := &Warden{cfg: cfg, bus: bus, reg: reg, mon: mon, enf: enf, sup: sup}

	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			w.Shutdown()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		w.recorder = history.NewRecorder(bus, sink)
	}
	if cfg.Server.Enabled {
		w.srv = server.New(cfg.Server.Listen, server.Deps{
			Registry: reg, Monitor: mon, Enforcer: enf, Version: Version,
		})
		w.srv.Start()
	}
	return w, nil
}

// Version is stamped by the build; the default marks development builds.
var Version = "dev"

// Events exposes the bus for subscribing to lifecycle notifications.
func (w *Warden) Events() *Bus { return w.bus }

// StartProcess spawns and registers a worker, returning its process id.
func (w *Warden) StartProcess(opts StartOptions) (string, error) {
	return w.sup.StartProcess(opts)
}

// StopProcess gracefully stops a worker, escalating on timeout.
func (w *Warden) StopProcess(processID, reason string) error {
	return w.sup.StopProcess(processID, reason)
}

// RestartProcess restarts a worker under the same process id, bounded by
// the restart budget.
func (w *Warden) RestartProcess(processID, reason string) error {
	return w.sup.RestartProcess(processID, reason)
}

// UnregisterProcess discards a stopped worker's record and monitoring
// state. Live workers must be stopped first.
func (w *Warden) UnregisterProcess(processID string) error {
	return w.sup.UnregisterProcess(processID)
}

// Get returns the registry record for processID.
func (w *Warden) Get(processID string) (Record, bool) { return w.reg.Get(processID) }

// List queries registry records.
func (w *Warden) List(q Query) []Record { return w.reg.List(q) }

// Health returns the latest health report for processID, assessing on
// demand when none exists yet.
func (w *Warden) Health(processID string) (HealthReport, error) {
	if rep, ok := w.mon.LatestReport(processID); ok {
		return rep, nil
	}
	return w.mon.AssessHealth(processID)
}

// Alerts returns the retained resource alert history.
func (w *Warden) Alerts() []Alert { return w.enf.Alerts() }

// Shutdown stops all workers and tears the subsystems down. Safe to call
// more than once.
func (w *Warden) Shutdown() {
	if w.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = w.srv.Shutdown(ctx)
		cancel()
		w.srv = nil
	}
	w.sup.Shutdown()
	if w.recorder != nil {
		w.recorder.Close()
		w.recorder = nil
	}
}
