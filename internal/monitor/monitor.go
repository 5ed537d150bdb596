// Package monitor collects per-process telemetry on a fixed tick and turns
// it into composite health scores. It owns its own tracking state keyed by
// process id and never reaches into the registry.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/stats"
)

const (
	defaultInterval = time.Second
	defaultWindow   = 300 // samples per trend buffer, ~5 minutes at 1 Hz

	responsivenessPenalty = 10
	stabilityPenalty      = 5
	recoveryStep          = 5

	trendSpan      = 10   // samples per trend mean
	trendThreshold = 0.10 // relative change that flips the trend

	alertRateWindow = time.Hour
)

// Usage is the latest collected usage for one process.
type Usage struct {
	MemoryMB        float64
	CPUPercent      float64
	ExecutionTimeMs int64
	FileHandles     int
	Threads         int
}

// sample is the per-process tracking structure. All fields are guarded by
// the Monitor mutex.
type sample struct {
	pid       int
	agentType string
	taskID    string
	startedAt time.Time

	memTrend *ringBuffer
	cpuTrend *ringBuffer

	violations     map[string]int
	responsiveness float64
	stability      float64

	latest   stats.Snapshot
	hasStats bool

	stop chan struct{}
}

// Monitor drives one collection goroutine per registered process.
type Monitor struct {
	mu      sync.RWMutex
	samples map[string]*sample
	reports map[string]HealthReport
	alerts  map[string][]time.Time

	provider stats.Provider
	limits   limits.Resolver
	interval time.Duration
	window   int
	bus      *events.Bus
	log      *slog.Logger

	wg     sync.WaitGroup
	closed bool
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithWindow(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.window = n
		}
	}
}

func WithBus(b *events.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

func New(provider stats.Provider, res limits.Resolver, opts ...Option) *Monitor {
	m := &Monitor{
		samples:  make(map[string]*sample),
		reports:  make(map[string]HealthReport),
		alerts:   make(map[string][]time.Time),
		provider: provider,
		limits:   res,
		interval: defaultInterval,
		window:   defaultWindow,
		log:      slog.Default().With("component", "monitor"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RegisterProcess creates a zeroed tracking sample. Registering an id twice
// replaces the old sample after stopping its collector.
func (m *Monitor) RegisterProcess(processID string, pid int, agentType, taskID string) {
	m.mu.Lock()
	if old, ok := m.samples[processID]; ok && old.stop != nil {
		close(old.stop)
		old.stop = nil
	}
	m.samples[processID] = &sample{
		pid:            pid,
		agentType:      agentType,
		taskID:         taskID,
		startedAt:      time.Now(),
		memTrend:       newRingBuffer(m.window),
		cpuTrend:       newRingBuffer(m.window),
		violations:     make(map[string]int),
		responsiveness: 100,
		stability:      100,
	}
	m.mu.Unlock()
}

// StartMonitoring launches the periodic collector for processID. It is an
// error to start an unregistered process.
func (m *Monitor) StartMonitoring(processID string) error {
	m.mu.Lock()
	s, ok := m.samples[processID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("monitor: unknown process %q", processID)
	}
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("monitor: closed")
	}
	if s.stop != nil {
		m.mu.Unlock()
		return nil // already running
	}
	s.stop = make(chan struct{})
	stop := s.stop
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.collect(processID)
			case <-stop:
				return
			}
		}
	}()
	return nil
}

// StopMonitoring halts the collector but keeps the sample and last report
// for inspection.
func (m *Monitor) StopMonitoring(processID string) {
	m.mu.Lock()
	if s, ok := m.samples[processID]; ok && s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	m.mu.Unlock()
}

// UnregisterProcess stops collection and discards all tracking state.
func (m *Monitor) UnregisterProcess(processID string) {
	m.mu.Lock()
	s, ok := m.samples[processID]
	var agentType string
	if ok {
		if s.stop != nil {
			close(s.stop)
			s.stop = nil
		}
		agentType = s.agentType
		delete(m.samples, processID)
	}
	delete(m.reports, processID)
	delete(m.alerts, processID)
	m.mu.Unlock()
	if ok {
		metrics.DropHealthScore(processID, agentType)
		metrics.DropUsage(processID, agentType)
	}
}

// RemapPID points an existing sample at a new pid after a restart. Trend
// buffers and violation counters start over for the new instance.
func (m *Monitor) RemapPID(processID string, pid int) {
	m.mu.Lock()
	if s, ok := m.samples[processID]; ok {
		s.pid = pid
		s.startedAt = time.Now()
		s.memTrend = newRingBuffer(m.window)
		s.cpuTrend = newRingBuffer(m.window)
		s.violations = make(map[string]int)
		s.responsiveness = 100
		s.stability = 100
		s.hasStats = false
	}
	m.mu.Unlock()
}

// collect runs one tick: snapshot the pid, append trends, re-evaluate
// violation counters. A failed collection decays responsiveness and
// stability instead of stopping the loop.
func (m *Monitor) collect(processID string) {
	m.mu.RLock()
	s, ok := m.samples[processID]
	if !ok {
		m.mu.RUnlock()
		return
	}
	pid := s.pid
	agentType := s.agentType
	m.mu.RUnlock()

	snap, err := m.provider.Snapshot(pid)

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok = m.samples[processID]
	if !ok || s.pid != pid {
		return
	}
	if err != nil {
		s.responsiveness = clamp(s.responsiveness - responsivenessPenalty)
		s.stability = clamp(s.stability - stabilityPenalty)
		m.log.Debug("metric collection failed", "process_id", processID, "pid", pid, "error", err)
		return
	}
	s.latest = snap
	s.hasStats = true
	s.responsiveness = clamp(s.responsiveness + recoveryStep)
	s.stability = clamp(s.stability + recoveryStep)
	s.memTrend.push(snap.MemoryMB)
	s.cpuTrend.push(snap.CPUPercent)
	metrics.SetUsage(processID, agentType, snap.MemoryMB, snap.CPUPercent, int(snap.NumThreads), int(snap.NumFDs))

	lim := m.limits.For(agentType)
	if lim.MaxMemoryMB > 0 && snap.MemoryMB >= lim.MaxMemoryMB {
		s.violations["memory"]++
	}
	if lim.MaxCPUPercent > 0 && snap.CPUPercent >= lim.MaxCPUPercent {
		s.violations["cpu"]++
	}
	if lim.MaxExecutionTime > 0 && time.Since(s.startedAt) >= lim.MaxExecutionTime {
		s.violations["execution"]++
	}
	if lim.MaxFileHandles > 0 && int(snap.NumFDs) >= lim.MaxFileHandles {
		s.violations["handles"]++
	}
}

// LatestUsage returns the most recent collected usage for processID.
func (m *Monitor) LatestUsage(processID string) (Usage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[processID]
	if !ok || !s.hasStats {
		return Usage{}, false
	}
	return Usage{
		MemoryMB:        s.latest.MemoryMB,
		CPUPercent:      s.latest.CPUPercent,
		ExecutionTimeMs: time.Since(s.startedAt).Milliseconds(),
		FileHandles:     int(s.latest.NumFDs),
		Threads:         int(s.latest.NumThreads),
	}, true
}

// Violations returns a copy of the violation counters for processID.
func (m *Monitor) Violations(processID string) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[processID]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(s.violations))
	for k, v := range s.violations {
		out[k] = v
	}
	return out
}

// AlertRate counts non-healthy assessments for processID within the
// trailing hour.
func (m *Monitor) AlertRate(processID string) int {
	cutoff := time.Now().Add(-alertRateWindow)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ts := range m.alerts[processID] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Close stops every collector and waits for them to drain.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	for _, s := range m.samples {
		if s.stop != nil {
			close(s.stop)
			s.stop = nil
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
