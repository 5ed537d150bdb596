// Package supervisor orchestrates worker process lifecycles: admission,
// spawn, stop, bounded restart and the periodic supervision loops. It
// composes the registry, monitor and enforcer and is the only component
// that touches more than one of them.
package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wardenproc/warden/internal/config"
	"github.com/wardenproc/warden/internal/enforcer"
	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/logger"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/monitor"
	"github.com/wardenproc/warden/internal/probe"
	"github.com/wardenproc/warden/internal/registry"
)

const healthCheckCmdTimeout = 5 * time.Second

// managed is the supervisor's handle on one spawned process instance.
type managed struct {
	opts        StartOptions
	taskID      string // current task id, restart-suffixed after restarts
	cmd         *exec.Cmd
	pid         int
	waitDone    chan struct{}
	stdout      io.WriteCloser
	stderr      io.WriteCloser
	autoRestart bool
	maxRestarts int
	stopping    bool // a deliberate stop is in flight, do not auto-restart
}

func (m *managed) closeLogs() {
	if m.stdout != nil {
		_ = m.stdout.Close()
		m.stdout = nil
	}
	if m.stderr != nil {
		_ = m.stderr.Close()
		m.stderr = nil
	}
}

// Supervisor owns the managed process table and the supervision timers.
type Supervisor struct {
	cfg       config.SupervisorConfig
	sandbox   sandbox
	workerLog logger.WorkerLogConfig
	limits    limits.Resolver

	reg *registry.Registry
	mon *monitor.Monitor
	enf *enforcer.Enforcer
	bus *events.Bus

	alive    probe.Func
	baseEnv  []string
	capacity func() error // host-level admission check
	log      *slog.Logger

	mu      sync.Mutex
	procs   map[string]*managed
	guards  map[string]*sync.Mutex // serializes stop/restart per process id
	stopCh  chan struct{}
	downOne sync.Once
	down    atomic.Bool
	wg      sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Supervisor)

func WithProbe(fn probe.Func) Option {
	return func(s *Supervisor) { s.alive = fn }
}

func WithBus(b *events.Bus) Option {
	return func(s *Supervisor) { s.bus = b }
}

// WithBaseEnv replaces the inherited environment for spawned workers.
func WithBaseEnv(env []string) Option {
	return func(s *Supervisor) { s.baseEnv = env }
}

func WithWorkerLog(cfg logger.WorkerLogConfig) Option {
	return func(s *Supervisor) { s.workerLog = cfg }
}

func WithSandbox(cfg config.SandboxConfig) Option {
	return func(s *Supervisor) { s.sandbox = sandbox{cfg: cfg} }
}

// WithCapacityCheck replaces the host-level admission check (tests use
// this to decouple from real system load).
func WithCapacityCheck(fn func() error) Option {
	return func(s *Supervisor) { s.capacity = fn }
}

// New composes a supervisor over its three subsystems.
func New(cfg config.SupervisorConfig, res limits.Resolver, reg *registry.Registry, mon *monitor.Monitor, enf *enforcer.Enforcer, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		limits:  res,
		reg:     reg,
		mon:     mon,
		enf:     enf,
		alive:   probe.Default,
		baseEnv: os.Environ(),
		log:     slog.Default().With("component", "supervisor"),
		procs:   make(map[string]*managed),
		guards:  make(map[string]*sync.Mutex),
		stopCh:  make(chan struct{}),
	}
	s.capacity = enf.CheckSystemCapacity
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the three supervision timers. Each cycle is self-guarding:
// a panic in one pass is logged and the next pass still runs.
func (s *Supervisor) Start() {
	s.startTicker("health-check", s.cfg.HealthCheckInterval, func() { s.PerformHealthCheck() })
	s.startTicker("orphan-sweep", s.cfg.OrphanSweepInterval, func() { s.CleanupOrphanedProcesses() })
	s.startTicker("stats", s.cfg.StatsInterval, s.collectStats)
	s.bus.PublishSupervisor(events.SupervisorEvent{Type: "initialized", Time: time.Now()})
}

func (s *Supervisor) startTicker(name string, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.runCycle(name, fn)
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *Supervisor) runCycle(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("supervision cycle panicked", "cycle", name, "panic", r)
		}
	}()
	fn()
}

// guard returns the per-process operation mutex, creating it on first use.
// Guards outlive their process so a stop racing an unregister stays safe.
func (s *Supervisor) guard(processID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[processID]
	if !ok {
		g = &sync.Mutex{}
		s.guards[processID] = g
	}
	return g
}

// StartProcess validates capacity and sandbox policy, spawns the worker and
// registers it everywhere. On any rejection no process is spawned and no
// registry entry is created.
func (s *Supervisor) StartProcess(opts StartOptions) (string, error) {
	if s.down.Load() {
		return "", ErrShuttingDown
	}
	if err := opts.validate(); err != nil {
		return "", err
	}
	if opts.ProcessID == "" {
		opts.ProcessID = opts.AgentType + "-" + uuid.NewString()[:8]
	}
	if opts.Priority == "" {
		opts.Priority = registry.PriorityNormal
	}

	if n := s.activeCount(); n >= s.cfg.MaxProcesses {
		return "", fmt.Errorf("%w: %d processes active, limit %d", ErrCapacityExceeded, n, s.cfg.MaxProcesses)
	}
	if err := s.capacity(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	if err := s.sandbox.checkCommand(opts.Command); err != nil {
		return "", err
	}
	if err := s.sandbox.checkWorkDir(opts.WorkDir); err != nil {
		return "", err
	}

	m := &managed{
		opts:        opts,
		taskID:      opts.TaskID,
		autoRestart: s.cfg.AutoRestart,
		maxRestarts: s.cfg.MaxRestarts,
	}
	if opts.AutoRestart != nil {
		m.autoRestart = *opts.AutoRestart
	}
	if opts.MaxRestarts != nil {
		m.maxRestarts = *opts.MaxRestarts
	}

	if err := s.spawn(m); err != nil {
		s.bus.PublishProcess(events.ProcessEvent{
			Type: events.ProcessError, ProcessID: opts.ProcessID, TaskID: opts.TaskID,
			AgentType: opts.AgentType, Reason: err.Error(), Time: time.Now(),
		})
		return "", err
	}

	rec := registry.Record{
		ProcessID: opts.ProcessID,
		PID:       m.pid,
		TaskID:    opts.TaskID,
		AgentType: opts.AgentType,
		Command:   opts.Command,
		Args:      opts.Args,
		WorkDir:   opts.WorkDir,
		Priority:  opts.Priority,
		Status:    registry.StatusRunning,
		Metadata:  opts.Metadata,
		Tags:      opts.Tags,
		ParentPID: os.Getpid(),
	}
	if err := s.reg.Register(rec); err != nil {
		// Duplicate id: kill the just-spawned instance, nothing else saw it.
		_ = probe.Kill(m.pid)
		go func() { _ = m.cmd.Wait(); m.closeLogs() }()
		return "", err
	}

	s.mu.Lock()
	s.procs[opts.ProcessID] = m
	s.mu.Unlock()

	s.bus.PublishProcess(events.ProcessEvent{
		Type: events.ProcessRegistered, ProcessID: opts.ProcessID, TaskID: opts.TaskID,
		AgentType: opts.AgentType, PID: m.pid, Time: time.Now(),
	})
	s.mon.RegisterProcess(opts.ProcessID, m.pid, opts.AgentType, opts.TaskID)
	if err := s.mon.StartMonitoring(opts.ProcessID); err != nil {
		s.log.Warn("monitoring not started", "process_id", opts.ProcessID, "error", err)
	}
	s.enf.RegisterTask(opts.TaskID, opts.ProcessID, opts.AgentType, m.pid)

	metrics.IncStart(opts.AgentType)
	metrics.SetActiveProcesses(s.activeCount())
	s.bus.PublishProcess(events.ProcessEvent{
		Type: events.ProcessStarted, ProcessID: opts.ProcessID, TaskID: opts.TaskID,
		AgentType: opts.AgentType, PID: m.pid, Time: time.Now(),
	})
	s.log.Info("process started", "process_id", opts.ProcessID, "task_id", opts.TaskID,
		"agent_type", opts.AgentType, "pid", m.pid)

	s.watchExit(opts.ProcessID, m, m.cmd, m.waitDone)
	return opts.ProcessID, nil
}

// spawn starts the OS process for m and fills in cmd, pid and waitDone.
func (s *Supervisor) spawn(m *managed) error {
	cmd := exec.Command(m.opts.Command, m.opts.Args...)
	cmd.Dir = m.opts.WorkDir
	cmd.Env = s.workerEnv(m.opts, m.taskID)
	setSysProcAttr(cmd)

	if s.workerLog.Enabled() {
		m.stdout, m.stderr = s.workerLog.Writers(m.opts.ProcessID)
		cmd.Stdout = m.stdout
		cmd.Stderr = m.stderr
	}

	if err := cmd.Start(); err != nil {
		m.closeLogs()
		return fmt.Errorf("spawn %s: %w", m.opts.Command, err)
	}
	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.waitDone = make(chan struct{})
	m.stopping = false
	return nil
}

// workerEnv builds the child environment: base env, caller env, then the
// injected supervision context, last writer winning.
func (s *Supervisor) workerEnv(opts StartOptions, taskID string) []string {
	env := make([]string, 0, len(s.baseEnv)+len(opts.Env)+8)
	env = append(env, s.baseEnv...)
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	lim := s.effectiveLimits(opts)
	env = append(env,
		"WARDEN_PROCESS_ID="+opts.ProcessID,
		"WARDEN_TASK_ID="+taskID,
		"WARDEN_AGENT_TYPE="+opts.AgentType,
		"WARDEN_PRIORITY="+string(opts.Priority),
		fmt.Sprintf("WARDEN_MAX_MEMORY_MB=%.0f", lim.MaxMemoryMB),
		fmt.Sprintf("WARDEN_MAX_CPU_PERCENT=%.0f", lim.MaxCPUPercent),
	)
	return env
}

func (s *Supervisor) effectiveLimits(opts StartOptions) limits.Limits {
	if opts.Limits != nil {
		return *opts.Limits
	}
	return s.limits.For(opts.AgentType)
}

// watchExit reaps the instance and finalizes its state. Exactly one waiter
// exists per spawned instance.
func (s *Supervisor) watchExit(processID string, m *managed, cmd *exec.Cmd, done chan struct{}) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := cmd.Wait()
		code, sig := exitStatus(err, cmd)
		exitPID := cmd.Process.Pid

		s.mu.Lock()
		current := s.procs[processID]
		// A restart may have replaced this instance already; its exit was
		// accounted for when the restart reset the registry state.
		replaced := current != nil && current.cmd != cmd
		stopping := m.stopping
		taskID := m.taskID
		willRestart := code != 0 && !stopping && m.autoRestart && !s.down.Load()
		s.mu.Unlock()
		if replaced {
			m.closeLogs()
			close(done)
			return
		}

		s.reg.RecordExit(processID, code, sig)
		s.mon.StopMonitoring(processID)
		s.enf.UnregisterTask(taskID)
		m.closeLogs()

		// The entry leaves the table only after RecordExit so the orphan
		// sweep keeps excluding this pid for its whole zombie window, and
		// before close(done) so a restart never mutates a reachable entry.
		s.mu.Lock()
		if s.procs[processID] == m {
			delete(s.procs, processID)
		}
		s.mu.Unlock()

		agentType := m.opts.AgentType
		if code != 0 && !stopping {
			metrics.IncCrash(agentType)
		}
		metrics.SetActiveProcesses(s.activeCount())
		s.bus.PublishProcess(events.ProcessEvent{
			Type: events.ProcessExited, ProcessID: processID, TaskID: taskID,
			AgentType: agentType, PID: exitPID, ExitCode: &code, ExitSignal: sig, Time: time.Now(),
		})
		s.log.Info("process exited", "process_id", processID, "exit_code", code, "signal", sig)

		close(done)

		if willRestart {
			go func() {
				g := s.guard(processID)
				g.Lock()
				defer g.Unlock()
				if err := s.restart(processID, m, "unexpected exit"); err != nil {
					s.log.Warn("auto-restart abandoned", "process_id", processID, "error", err)
					s.bus.PublishProcess(events.ProcessEvent{
						Type: events.ProcessError, ProcessID: processID, TaskID: taskID,
						AgentType: agentType, Reason: "auto-restart abandoned: " + err.Error(), Time: time.Now(),
					})
				}
			}()
		}
	}()
}

// StopProcess gracefully stops a process, escalating to a forced kill on
// timeout. Stopping an already-stopped process is a no-op.
func (s *Supervisor) StopProcess(processID, reason string) error {
	g := s.guard(processID)
	g.Lock()
	defer g.Unlock()
	return s.stopLocked(processID, reason, true)
}

// stopLocked is the stop path shared with restart; the caller holds the
// per-process guard. removeEntry keeps the managed entry for restarts.
func (s *Supervisor) stopLocked(processID, reason string, removeEntry bool) error {
	s.mu.Lock()
	m, ok := s.procs[processID]
	if !ok {
		s.mu.Unlock()
		if rec, found := s.reg.Get(processID); found && rec.Status.Terminal() {
			return nil // idempotent
		}
		return fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	m.stopping = true
	pid := m.pid
	done := m.waitDone
	taskID := m.taskID
	agentType := m.opts.AgentType
	if removeEntry {
		delete(s.procs, processID)
	}
	s.mu.Unlock()

	select {
	case <-done:
		return nil // already exited
	default:
	}

	s.reg.UpdateStatus(processID, registry.StatusStopping)
	s.log.Info("stopping process", "process_id", processID, "pid", pid, "reason", reason)
	if err := probe.Terminate(pid); err != nil {
		s.log.Debug("terminate signal failed", "process_id", processID, "pid", pid, "error", err)
	}

	select {
	case <-done:
	case <-time.After(s.cfg.GracefulStopTimeout):
		s.log.Warn("graceful stop timed out, killing", "process_id", processID, "pid", pid)
		if err := probe.Kill(pid); err != nil {
			s.log.Debug("kill signal failed", "process_id", processID, "pid", pid, "error", err)
		}
		select {
		case <-done:
		case <-time.After(s.cfg.KillTimeout):
			s.bus.PublishProcess(events.ProcessEvent{
				Type: events.ProcessError, ProcessID: processID, TaskID: taskID,
				AgentType: agentType, PID: pid, Reason: "survived SIGKILL window", Time: time.Now(),
			})
			return fmt.Errorf("process %s (pid %d) survived SIGKILL window", processID, pid)
		}
	}

	// The exit handler recorded a non-zero exit; rewrite it as a clean stop.
	s.reg.UpdateStatus(processID, registry.StatusStopped)
	s.reg.UpdateHealth(processID, registry.HealthHealthy)
	metrics.IncStop(agentType)
	s.bus.PublishProcess(events.ProcessEvent{
		Type: events.ProcessStopped, ProcessID: processID, TaskID: taskID,
		AgentType: agentType, PID: pid, Reason: reason, Time: time.Now(),
	})
	return nil
}

// RestartProcess stops the current instance and re-spawns it under the same
// process id, with the task id suffixed by the restart ordinal. The restart
// budget is checked before anything is touched.
func (s *Supervisor) RestartProcess(processID, reason string) error {
	if s.down.Load() {
		return ErrShuttingDown
	}
	g := s.guard(processID)
	g.Lock()
	defer g.Unlock()

	s.mu.Lock()
	m, managedHere := s.procs[processID]
	s.mu.Unlock()
	if !managedHere {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	return s.restart(processID, m, reason)
}

// restart is the shared restart path. The caller holds the per-process
// guard; m may already be out of the managed table (the exit watcher
// removes it before scheduling an auto-restart), which keeps its mutation
// here invisible to the supervision loops until re-insertion.
func (s *Supervisor) restart(processID string, m *managed, reason string) error {
	rec, found := s.reg.Get(processID)
	if !found {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}

	if rec.RestartCount >= m.maxRestarts {
		return fmt.Errorf("%w: %s restarted %d times, limit %d",
			ErrRestartLimitExceeded, processID, rec.RestartCount, m.maxRestarts)
	}

	if s.alive(m.pid) {
		if err := s.stopLocked(processID, reason, false); err != nil {
			return fmt.Errorf("stop before restart: %w", err)
		}
	} else {
		// Dead already: wait for the reaper to finish its bookkeeping.
		<-m.waitDone
	}

	select {
	case <-time.After(s.cfg.RestartDelay):
	case <-s.stopCh:
		return ErrShuttingDown
	}

	oldTaskID := m.taskID
	newTaskID := fmt.Sprintf("%s-r%d", m.opts.TaskID, rec.RestartCount+1)
	m.taskID = newTaskID
	if err := s.spawn(m); err != nil {
		m.taskID = oldTaskID
		return err
	}

	// The exit watcher removed the entry when the old instance died.
	s.mu.Lock()
	s.procs[processID] = m
	s.mu.Unlock()

	s.reg.RecordRestart(processID, m.pid, newTaskID)
	s.mon.RemapPID(processID, m.pid)
	if err := s.mon.StartMonitoring(processID); err != nil {
		s.log.Warn("monitoring not restarted", "process_id", processID, "error", err)
	}
	s.enf.UnregisterTask(oldTaskID)
	s.enf.RegisterTask(newTaskID, processID, m.opts.AgentType, m.pid)

	metrics.IncRestart(m.opts.AgentType)
	s.bus.PublishProcess(events.ProcessEvent{
		Type: events.ProcessRestarted, ProcessID: processID, TaskID: newTaskID,
		AgentType: m.opts.AgentType, PID: m.pid, Reason: reason, Time: time.Now(),
	})
	s.log.Info("process restarted", "process_id", processID, "task_id", newTaskID, "pid", m.pid, "reason", reason)

	s.watchExit(processID, m, m.cmd, m.waitDone)
	return nil
}

// PerformHealthCheck assesses every managed process and auto-restarts the
// unhealthy ones when enabled. Per-process failures never abort the pass.
func (s *Supervisor) PerformHealthCheck() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.checkOne(id)
	}
}

func (s *Supervisor) checkOne(processID string) {
	s.mu.Lock()
	m, ok := s.procs[processID]
	if !ok {
		s.mu.Unlock()
		return
	}
	pid := m.pid
	stopping := m.stopping
	autoRestart := m.autoRestart
	healthCmd := m.opts.HealthCheckCmd
	s.mu.Unlock()
	if stopping {
		return
	}

	healthy := true
	var cause string
	if !s.alive(pid) {
		// The exit watcher or orphan sweep will finalize; nothing to score.
		return
	}

	if rep, err := s.mon.AssessHealth(processID); err == nil {
		if rep.Status == monitor.StatusCritical || rep.Status == monitor.StatusFailing {
			healthy = false
			cause = "health score " + rep.Status
		}
	}
	if healthy && healthCmd != "" {
		if err := s.runHealthCommand(processID, healthCmd); err != nil {
			healthy = false
			cause = fmt.Sprintf("health command failed: %v", err)
		}
	}

	if healthy {
		s.reg.UpdateHealth(processID, registry.HealthHealthy)
		return
	}

	s.reg.UpdateHealth(processID, registry.HealthUnhealthy)
	s.log.Warn("process unhealthy", "process_id", processID, "cause", cause)
	if autoRestart {
		if err := s.RestartProcess(processID, cause); err != nil {
			s.log.Warn("unhealthy restart failed", "process_id", processID, "error", err)
		}
	}
}

// runHealthCommand executes the external check with a fixed timeout. Any
// non-zero exit, spawn failure or timeout counts as unhealthy.
func (s *Supervisor) runHealthCommand(processID, command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = append(os.Environ(), "WARDEN_PROCESS_ID="+processID)

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(healthCheckCmdTimeout):
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("timed out after %s", healthCheckCmdTimeout)
	}
}

// CleanupOrphanedProcesses sweeps the registry for dead running records.
// Managed processes are excluded: each has an exit watcher that will
// finalize it, and a just-exited child reads as gone during its zombie
// window even though the watcher has not reaped it yet.
func (s *Supervisor) CleanupOrphanedProcesses() int {
	s.mu.Lock()
	watched := make([]string, 0, len(s.procs))
	for id := range s.procs {
		watched = append(watched, id)
	}
	s.mu.Unlock()

	n := s.reg.CleanupOrphans(watched...)
	s.reg.CleanupStale()
	if n > 0 {
		metrics.SetActiveProcesses(s.activeCount())
	}
	return n
}

// UnregisterProcess discards a terminal process entirely: its monitoring
// state and its registry record. Live processes must be stopped first.
func (s *Supervisor) UnregisterProcess(processID string) error {
	s.mu.Lock()
	_, managedHere := s.procs[processID]
	s.mu.Unlock()
	if managedHere {
		return fmt.Errorf("process %s is still managed, stop it first", processID)
	}
	rec, found := s.reg.Get(processID)
	if !found {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	if !rec.Status.Terminal() {
		return fmt.Errorf("process %s is %s, stop it first", processID, rec.Status)
	}

	s.mon.UnregisterProcess(processID)
	s.reg.Unregister(processID)
	s.bus.PublishProcess(events.ProcessEvent{
		Type: events.ProcessUnregistered, ProcessID: processID, TaskID: rec.TaskID,
		AgentType: rec.AgentType, PID: rec.PID, Time: time.Now(),
	})
	return nil
}

// collectStats pushes the monitor's latest usage into the registry.
func (s *Supervisor) collectStats() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if u, ok := s.mon.LatestUsage(id); ok {
			s.reg.UpdateResources(id, registry.ResourceUsage{
				MemoryMB:        u.MemoryMB,
				CPUPercent:      u.CPUPercent,
				ExecutionTimeMs: u.ExecutionTimeMs,
				FileHandles:     u.FileHandles,
			})
		}
	}
	metrics.SetActiveProcesses(len(ids))
}

// ActiveProcesses returns the ids of currently managed processes.
func (s *Supervisor) ActiveProcesses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Supervisor) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Shutdown stops every managed process in parallel best-effort, then tears
// the subsystems down in reverse dependency order. Concurrent calls
// collapse into one execution.
func (s *Supervisor) Shutdown() {
	s.downOne.Do(func() {
		s.down.Store(true)
		close(s.stopCh)

		ids := s.ActiveProcesses()
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := s.StopProcess(id, "supervisor shutdown"); err != nil {
					s.log.Warn("stop during shutdown failed", "process_id", id, "error", err)
				}
			}(id)
		}
		wg.Wait()
		s.wg.Wait()

		s.enf.Close()
		s.mon.Close()
		s.reg.Close()
		s.bus.PublishSupervisor(events.SupervisorEvent{Type: "shutdown", Time: time.Now()})
		s.log.Info("supervisor shut down", "stopped", len(ids))
	})
}
