package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproc/warden/internal/enforcer"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/monitor"
	"github.com/wardenproc/warden/internal/registry"
	"github.com/wardenproc/warden/internal/stats"
)

type staticProvider struct{ snap stats.Snapshot }

func (s staticProvider) Snapshot(pid int) (stats.Snapshot, error) {
	out := s.snap
	out.PID = pid
	return out, nil
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	res := limits.NewResolver(limits.Default(), nil)
	provider := staticProvider{snap: stats.Snapshot{MemoryMB: 10, CPUPercent: 1}}

	reg := registry.New(registry.Config{}, registry.WithProbe(func(int) bool { return true }))
	mon := monitor.New(provider, res)
	enf := enforcer.New(enforcer.Config{}, res, provider)
	t.Cleanup(func() {
		enf.Close()
		mon.Close()
	})
	return Deps{Registry: reg, Monitor: mon, Enforcer: enf, Version: "test"}
}

func seed(t *testing.T, d Deps) {
	t.Helper()
	require.NoError(t, d.Registry.Register(registry.Record{
		ProcessID: "p1", PID: 100, TaskID: "t1", AgentType: "coder",
		Command: "/bin/sh", Status: registry.StatusRunning, Priority: registry.PriorityNormal,
	}))
	require.NoError(t, d.Registry.Register(registry.Record{
		ProcessID: "p2", PID: 101, TaskID: "t2", AgentType: "tester",
		Command: "/bin/sh", Status: registry.StatusRunning, Priority: registry.PriorityNormal,
	}))
	d.Registry.RecordExit("p2", 0, "")
	d.Monitor.RegisterProcess("p1", 100, "coder", "t1")
}

func get(t *testing.T, d Deps, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	router := NewRouter(d)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestStatusEndpoint(t *testing.T) {
	d := newTestDeps(t)
	seed(t, d)

	w, body := get(t, d, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["records"])
	assert.Equal(t, float64(1), body["running"])
	assert.Equal(t, "test", body["version"])
}

func TestProcessListFiltering(t *testing.T) {
	d := newTestDeps(t)
	seed(t, d)

	w, body := get(t, d, "/processes?status=running")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	_, body = get(t, d, "/processes?agent_type=tester")
	assert.Equal(t, float64(1), body["count"])

	_, body = get(t, d, "/processes?limit=1")
	assert.Equal(t, float64(1), body["count"])

	_, body = get(t, d, "/processes")
	assert.Equal(t, float64(2), body["count"])
}

func TestProcessByID(t *testing.T) {
	d := newTestDeps(t)
	seed(t, d)

	w, body := get(t, d, "/processes/p1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", body["process_id"])

	w, _ = get(t, d, "/processes/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpointComputesOnDemand(t *testing.T) {
	d := newTestDeps(t)
	seed(t, d)

	w, body := get(t, d, "/processes/p1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "health_score")

	w, _ = get(t, d, "/processes/ghost/health")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	d := newTestDeps(t)
	w, body := get(t, d, "/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDeps(t)
	router := NewRouter(d)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoMutatingRoutes(t *testing.T) {
	d := newTestDeps(t)
	router := NewRouter(d)
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, "/processes", nil))
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}
