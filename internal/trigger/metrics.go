package trigger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rule evaluation outcomes.
const (
	OutcomeDispatched = "dispatched"
	OutcomeForced     = "forced"
	OutcomeFiltered   = "filtered"
	OutcomeCondition  = "condition"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	fires           *prometheus.CounterVec
	aborted         *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	dispatched      *prometheus.CounterVec
	reentrant       prometheus.Counter
	remoteLookups   *prometheus.CounterVec
	taskFailures    *prometheus.CounterVec
	taskDropped     prometheus.Counter
	taskDuration    *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
	decayPasses     *prometheus.CounterVec
	decayedCounters prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_events_fired_total",
			Help: "Events fired into the engine",
		}, []string{"event"}),
		aborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_events_aborted_total",
			Help: "Firings aborted before rule evaluation",
		}, []string{"reason"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_rule_evaluations_total",
			Help: "Rule evaluations by outcome",
		}, []string{"outcome"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_operations_dispatched_total",
			Help: "Operations submitted to the executor",
		}, []string{"operation"}),
		reentrant: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sogebot_operations_reentrant_skipped_total",
			Help: "run-command operations skipped to prevent command loops",
		}),
		remoteLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_identity_remote_lookups_total",
			Help: "Remote identity lookups by result",
		}, []string{"result"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_executor_task_failures_total",
			Help: "Operation tasks that returned an error or panicked",
		}, []string{"operation"}),
		taskDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sogebot_executor_tasks_dropped_total",
			Help: "Operation tasks dropped due to a full queue",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sogebot_executor_task_duration_seconds",
			Help:    "Time spent running operation tasks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sogebot_executor_queue_depth",
			Help: "Operation tasks waiting in the executor queue",
		}),
		decayPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sogebot_decay_passes_total",
			Help: "Decay passes by result",
		}, []string{"result"}),
		decayedCounters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sogebot_decay_counters_decremented_total",
			Help: "Rule counters decremented by the decayer",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.fires, m.aborted, m.evaluations, m.dispatched, m.reentrant,
			m.remoteLookups, m.taskFailures, m.taskDropped, m.taskDuration,
			m.queueDepth, m.decayPasses, m.decayedCounters,
		)
	}
	return m
}
