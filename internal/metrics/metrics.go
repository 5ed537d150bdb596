// Package metrics exposes the supervisor's prometheus collectors. Register
// wires them into a registerer once; the helper functions no-op until then
// so internal packages can record unconditionally.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process spawns.",
		}, []string{"agent_type"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of process stops, graceful or forced.",
		}, []string{"agent_type"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of supervised restarts.",
		}, []string{"agent_type"},
	)
	processCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "crashes_total",
			Help:      "Number of crashes and orphan reclassifications.",
		}, []string{"agent_type"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Status transitions between process states.",
		}, []string{"from", "to"},
	)
	resourceViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "enforcer",
			Name:      "violations_total",
			Help:      "Resource limit violations by type and action taken.",
		}, []string{"type", "action"},
	)
	alertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "enforcer",
			Name:      "alerts_total",
			Help:      "Resource alerts emitted after cooldown deduplication.",
		}, []string{"type", "severity"},
	)
	activeProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "supervisor",
			Name:      "active_processes",
			Help:      "Currently managed live processes.",
		},
	)
	healthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "monitor",
			Name:      "health_score",
			Help:      "Latest composite health score per process (0-100).",
		}, []string{"process_id", "agent_type"},
	)
	usageMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "monitor",
			Name:      "memory_mb",
			Help:      "Latest resident memory per process in megabytes.",
		}, []string{"process_id", "agent_type"},
	)
	usageCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "monitor",
			Name:      "cpu_percent",
			Help:      "Latest CPU usage per process.",
		}, []string{"process_id", "agent_type"},
	)
	usageThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "monitor",
			Name:      "threads",
			Help:      "Latest thread count per process.",
		}, []string{"process_id", "agent_type"},
	)
	usageFDs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "monitor",
			Name:      "open_fds",
			Help:      "Latest open file descriptor count per process.",
		}, []string{"process_id", "agent_type"},
	)
)

// Register registers all collectors with r. Safe to call more than once.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processStarts, processStops, processRestarts, processCrashes,
		stateTransitions, resourceViolations, alertsEmitted,
		activeProcesses, healthScore,
		usageMemory, usageCPU, usageThreads, usageFDs,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer; callers mount it where they like.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(agentType string) {
	if regOK.Load() {
		processStarts.WithLabelValues(agentType).Inc()
	}
}

func IncStop(agentType string) {
	if regOK.Load() {
		processStops.WithLabelValues(agentType).Inc()
	}
}

func IncRestart(agentType string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(agentType).Inc()
	}
}

func IncCrash(agentType string) {
	if regOK.Load() {
		processCrashes.WithLabelValues(agentType).Inc()
	}
}

func RecordTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncViolation(vtype, action string) {
	if regOK.Load() {
		resourceViolations.WithLabelValues(vtype, action).Inc()
	}
}

func IncAlert(atype, severity string) {
	if regOK.Load() {
		alertsEmitted.WithLabelValues(atype, severity).Inc()
	}
}

func SetActiveProcesses(n int) {
	if regOK.Load() {
		activeProcesses.Set(float64(n))
	}
}

func SetHealthScore(processID, agentType string, score float64) {
	if regOK.Load() {
		healthScore.WithLabelValues(processID, agentType).Set(score)
	}
}

func DropHealthScore(processID, agentType string) {
	if regOK.Load() {
		healthScore.DeleteLabelValues(processID, agentType)
	}
}

func SetUsage(processID, agentType string, memMB, cpu float64, threads, fds int) {
	if regOK.Load() {
		usageMemory.WithLabelValues(processID, agentType).Set(memMB)
		usageCPU.WithLabelValues(processID, agentType).Set(cpu)
		usageThreads.WithLabelValues(processID, agentType).Set(float64(threads))
		usageFDs.WithLabelValues(processID, agentType).Set(float64(fds))
	}
}

func DropUsage(processID, agentType string) {
	if regOK.Load() {
		usageMemory.DeleteLabelValues(processID, agentType)
		usageCPU.DeleteLabelValues(processID, agentType)
		usageThreads.DeleteLabelValues(processID, agentType)
		usageFDs.DeleteLabelValues(processID, agentType)
	}
}
