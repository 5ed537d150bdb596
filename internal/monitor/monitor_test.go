package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/stats"
)

// fakeProvider serves canned snapshots and optionally fails.
type fakeProvider struct {
	snap stats.Snapshot
	err  error
}

func (f *fakeProvider) Snapshot(pid int) (stats.Snapshot, error) {
	if f.err != nil {
		return stats.Snapshot{}, f.err
	}
	s := f.snap
	s.PID = pid
	s.Timestamp = time.Now()
	return s, nil
}

func testLimits() limits.Resolver {
	return limits.NewResolver(limits.Limits{
		MaxMemoryMB:      1000,
		MaxCPUPercent:    100,
		MaxExecutionTime: time.Hour,
		MaxFileHandles:   1000,
	}, nil)
}

func TestAssessHealthNearMemoryLimitIsCritical(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 960, CPUPercent: 10, NumFDs: 5}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")

	rep, err := m.AssessHealth("p1")
	require.NoError(t, err)
	assert.LessOrEqual(t, rep.Score, 75.0)
	assert.Equal(t, StatusCritical, rep.Status)
	assert.NotEmpty(t, rep.Issues)
}

func TestAssessHealthLowUsageIsHealthy(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 50, CPUPercent: 5, NumFDs: 3}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")

	rep, err := m.AssessHealth("p1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, rep.Score)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Equal(t, TrendStable, rep.Trend)
	assert.Empty(t, rep.Issues)
}

func TestCollectionFailureDegradesResponsiveness(t *testing.T) {
	p := &fakeProvider{err: errors.New("process table unavailable")}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	for i := 0; i < 3; i++ {
		m.collect("p1")
	}

	m.mu.RLock()
	resp := m.samples["p1"].responsiveness
	stab := m.samples["p1"].stability
	m.mu.RUnlock()
	assert.Equal(t, 70.0, resp)
	assert.Equal(t, 85.0, stab)

	rep, err := m.AssessHealth("p1")
	require.NoError(t, err)
	assert.Less(t, rep.Score, 100.0)
}

func TestResponsivenessFloorsAtZero(t *testing.T) {
	p := &fakeProvider{err: errors.New("down")}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	for i := 0; i < 50; i++ {
		m.collect("p1")
	}
	m.mu.RLock()
	resp := m.samples["p1"].responsiveness
	m.mu.RUnlock()
	assert.Equal(t, 0.0, resp)
}

func TestTrendDeterioratingOnRisingMemory(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 100, CPUPercent: 5}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	for i := 0; i < 10; i++ {
		p.snap.MemoryMB = 100
		m.collect("p1")
	}
	for i := 0; i < 10; i++ {
		p.snap.MemoryMB = 200
		m.collect("p1")
	}

	rep, err := m.AssessHealth("p1")
	require.NoError(t, err)
	assert.Equal(t, TrendDeteriorating, rep.Trend)
}

func TestTrendImprovingOnFallingMemory(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 200, CPUPercent: 5}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	for i := 0; i < 10; i++ {
		p.snap.MemoryMB = 200
		m.collect("p1")
	}
	for i := 0; i < 10; i++ {
		p.snap.MemoryMB = 100
		m.collect("p1")
	}

	rep, err := m.AssessHealth("p1")
	require.NoError(t, err)
	assert.Equal(t, TrendImproving, rep.Trend)
}

func TestViolationCountersTrackOverLimitTicks(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 1200, CPUPercent: 5}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")
	m.collect("p1")

	v := m.Violations("p1")
	assert.Equal(t, 2, v["memory"])
	assert.Zero(t, v["cpu"])
}

func TestNonHealthyAssessmentsEmitAlertsAndRateTrack(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 960, CPUPercent: 10}}
	bus := events.NewBus()
	var got []events.HealthEvent
	bus.SubscribeHealth(func(e events.HealthEvent) { got = append(got, e) })

	m := New(p, testLimits(), WithBus(bus))
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")

	for i := 0; i < 3; i++ {
		_, err := m.AssessHealth("p1")
		require.NoError(t, err)
	}

	assert.Len(t, got, 3)
	assert.Equal(t, 3, m.AlertRate("p1"))
	assert.Zero(t, m.AlertRate("other"))
}

func TestLatestUsageAndReportLifecycle(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 42, CPUPercent: 1, NumFDs: 7, NumThreads: 4}}
	m := New(p, testLimits())
	defer m.Close()

	_, ok := m.LatestUsage("p1")
	assert.False(t, ok)

	m.RegisterProcess("p1", 100, "coder", "t1")
	_, ok = m.LatestUsage("p1")
	assert.False(t, ok, "no usage before the first successful tick")

	m.collect("p1")
	u, ok := m.LatestUsage("p1")
	require.True(t, ok)
	assert.Equal(t, 42.0, u.MemoryMB)
	assert.Equal(t, 7, u.FileHandles)

	_, err := m.AssessHealth("p1")
	require.NoError(t, err)
	_, ok = m.LatestReport("p1")
	assert.True(t, ok)

	m.UnregisterProcess("p1")
	_, ok = m.LatestReport("p1")
	assert.False(t, ok)
	_, err = m.AssessHealth("p1")
	assert.Error(t, err)
}

func TestCollectExportsUsageGauges(t *testing.T) {
	promReg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(promReg))

	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 64, CPUPercent: 3, NumThreads: 4, NumFDs: 9}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")

	v, ok := gaugeValue(t, promReg, "warden_monitor_memory_mb", "p1")
	require.True(t, ok)
	assert.Equal(t, 64.0, v)
	v, ok = gaugeValue(t, promReg, "warden_monitor_open_fds", "p1")
	require.True(t, ok)
	assert.Equal(t, 9.0, v)

	m.UnregisterProcess("p1")
	_, ok = gaugeValue(t, promReg, "warden_monitor_memory_mb", "p1")
	assert.False(t, ok, "usage series must be deleted with the process")
}

func gaugeValue(t *testing.T, g prometheus.Gatherer, name, processID string) (float64, bool) {
	t.Helper()
	fams, err := g.Gather()
	require.NoError(t, err)
	for _, f := range fams {
		if f.GetName() != name {
			continue
		}
		for _, mf := range f.GetMetric() {
			for _, l := range mf.GetLabel() {
				if l.GetName() == "process_id" && l.GetValue() == processID {
					return mf.GetGauge().GetValue(), true
				}
			}
		}
	}
	return 0, false
}

func TestRemapPIDResetsTracking(t *testing.T) {
	p := &fakeProvider{snap: stats.Snapshot{MemoryMB: 1200}}
	m := New(p, testLimits())
	defer m.Close()

	m.RegisterProcess("p1", 100, "coder", "t1")
	m.collect("p1")
	require.Equal(t, 1, m.Violations("p1")["memory"])

	m.RemapPID("p1", 200)
	assert.Zero(t, m.Violations("p1")["memory"])
	_, ok := m.LatestUsage("p1")
	assert.False(t, ok)
}

func TestStartMonitoringUnknownProcess(t *testing.T) {
	m := New(&fakeProvider{}, testLimits())
	defer m.Close()
	assert.Error(t, m.StartMonitoring("ghost"))
}
