// Package metrics exposes the Prometheus counters and histograms that
// observe the Execution Engine's worker pool and the Task Scheduler's
// tick loop, grounded on the teacher repository's pervasive
// github.com/prometheus/client_golang usage (e.g.
// internal/observability's registered collectors): package-level
// promauto-style registration against a caller-supplied registry so
// tests can use a private one instead of the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram the orchestration core emits.
type Metrics struct {
	ActionExecutions      *prometheus.CounterVec
	ActionDuration        *prometheus.HistogramVec
	ActionCacheHits        *prometheus.CounterVec
	WorkerPoolInUse       prometheus.Gauge
	SchedulerTicks        prometheus.Counter
	SchedulerTasksFired   *prometheus.CounterVec
	PermissionDecisions   *prometheus.CounterVec
	TurnLoops             prometheus.Histogram
}

// New constructs and registers every collector against reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global default
// registry; passing prometheus.DefaultRegisterer matches the teacher's
// production wiring.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genesis",
			Subsystem: "execengine",
			Name:      "action_executions_total",
			Help:      "Count of plugin action executions by action name and outcome status.",
		}, []string{"action", "status"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genesis",
			Subsystem: "execengine",
			Name:      "action_duration_seconds",
			Help:      "Plugin action execution wall-clock duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		ActionCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genesis",
			Subsystem: "cache",
			Name:      "action_cache_lookups_total",
			Help:      "Action cache lookups by result: fresh, stale, miss.",
		}, []string{"result"}),
		WorkerPoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis",
			Subsystem: "execengine",
			Name:      "worker_pool_in_use",
			Help:      "Currently occupied worker pool slots.",
		}),
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of times the scheduler's minute tick fired.",
		}),
		SchedulerTasksFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genesis",
			Subsystem: "scheduler",
			Name:      "tasks_fired_total",
			Help:      "Scheduled tasks dispatched to the execution engine, by outcome.",
		}, []string{"task", "status"}),
		PermissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genesis",
			Subsystem: "orchestrator",
			Name:      "permission_decisions_total",
			Help:      "Permission checks made by the turn orchestrator, by decision.",
		}, []string{"decision"}),
		TurnLoops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "genesis",
			Subsystem: "orchestrator",
			Name:      "turn_loop_iterations",
			Help:      "Number of reason-act loop iterations consumed per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ActionExecutions, m.ActionDuration, m.ActionCacheHits, m.WorkerPoolInUse,
			m.SchedulerTicks, m.SchedulerTasksFired, m.PermissionDecisions, m.TurnLoops,
		)
	}
	return m
}
