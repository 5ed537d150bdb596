// Package server exposes a read-only observability endpoint over the
// supervisor's state: process listings, health reports, alerts and
// prometheus metrics. There is no mutating control surface.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenproc/warden/internal/enforcer"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/monitor"
	"github.com/wardenproc/warden/internal/registry"
	"github.com/wardenproc/warden/internal/stats"
)

// Deps are the subsystems the router reads from.
type Deps struct {
	Registry *registry.Registry
	Monitor  *monitor.Monitor
	Enforcer *enforcer.Enforcer
	Version  string
}

// NewRouter builds the gin engine. Callers mount it on their own listener
// or embed it into a larger application router.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", d.handleStatus)
	r.GET("/processes", d.handleProcesses)
	r.GET("/processes/:id", d.handleProcess)
	r.GET("/processes/:id/health", d.handleHealth)
	r.GET("/alerts", d.handleAlerts)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

func (d Deps) handleStatus(c *gin.Context) {
	running := len(d.Registry.List(registry.Query{Status: registry.StatusRunning}))
	c.JSON(http.StatusOK, gin.H{
		"version": d.Version,
		"records": d.Registry.Len(),
		"running": running,
		"system":  stats.ReadSystemUsage(),
	})
}

func (d Deps) handleProcesses(c *gin.Context) {
	q := registry.Query{
		Status:     registry.Status(c.Query("status")),
		Health:     registry.Health(c.Query("health")),
		AgentType:  c.Query("agent_type"),
		TaskID:     c.Query("task_id"),
		Priority:   registry.Priority(c.Query("priority")),
		SortBy:     c.Query("sort"),
		Descending: c.Query("order") == "desc",
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		q.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		q.Offset = v
	}
	if ts, err := time.Parse(time.RFC3339, c.Query("started_after")); err == nil {
		q.StartedAfter = ts
	}
	if ts, err := time.Parse(time.RFC3339, c.Query("started_before")); err == nil {
		q.StartedBefore = ts
	}
	if ts, err := time.Parse(time.RFC3339, c.Query("active_after")); err == nil {
		q.ActiveAfter = ts
	}
	if v, err := strconv.ParseFloat(c.Query("min_memory_mb"), 64); err == nil && v > 0 {
		q.MinMemoryMB = v
	}
	if v, err := strconv.ParseFloat(c.Query("min_cpu_percent"), 64); err == nil && v > 0 {
		q.MinCPUPercent = v
	}
	recs := d.Registry.List(q)
	c.JSON(http.StatusOK, gin.H{"count": len(recs), "processes": recs})
}

func (d Deps) handleProcess(c *gin.Context) {
	rec, ok := d.Registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (d Deps) handleHealth(c *gin.Context) {
	id := c.Param("id")
	rep, ok := d.Monitor.LatestReport(id)
	if !ok {
		// No assessment yet; compute one on demand for known processes.
		var err error
		rep, err = d.Monitor.AssessHealth(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "process not monitored"})
			return
		}
	}
	c.JSON(http.StatusOK, rep)
}

func (d Deps) handleAlerts(c *gin.Context) {
	alerts := d.Enforcer.Alerts()
	c.JSON(http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}
