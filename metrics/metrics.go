// Package metrics exposes Prometheus instrumentation for the orchestration
// engine: lifecycle transitions, health probes, workflow step execution and
// run outcomes. A nil *Collector is a valid no-op so components can take
// metrics as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the engine's Prometheus metrics.
type Collector struct {
	transitionsTotal  *prometheus.CounterVec
	transitionRejects prometheus.Counter
	healthChecksTotal *prometheus.CounterVec
	stepsTotal        *prometheus.CounterVec
	stepRetriesTotal  prometheus.Counter
	stepDuration      *prometheus.HistogramVec
	runsTotal         *prometheus.CounterVec
	runCostUSD        prometheus.Counter
	activeRuns        prometheus.Gauge
	trackedInstances  prometheus.Gauge
}

// NewCollector registers the engine metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for production use or a fresh registry
// in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_transitions_total",
				Help: "Total number of accepted lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		transitionRejects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentforge_transition_rejects_total",
				Help: "Total number of rejected lifecycle transitions",
			},
		),
		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_health_checks_total",
				Help: "Total number of health probes",
			},
			[]string{"healthy"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_workflow_steps_total",
				Help: "Total number of executed workflow steps",
			},
			[]string{"kind", "status"},
		),
		stepRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentforge_workflow_step_retries_total",
				Help: "Total number of workflow step retries",
			},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentforge_workflow_step_duration_seconds",
				Help:    "Workflow step duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentforge_workflow_runs_total",
				Help: "Total number of settled workflow runs",
			},
			[]string{"status"},
		),
		runCostUSD: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentforge_workflow_cost_usd_total",
				Help: "Cumulative reported cost across workflow runs in USD",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentforge_active_runs",
				Help: "Number of workflow runs currently in flight",
			},
		),
		trackedInstances: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentforge_tracked_instances",
				Help: "Number of agent instances tracked by the lifecycle manager",
			},
		),
	}
}

// ObserveTransition records an accepted transition.
func (c *Collector) ObserveTransition(from, to string) {
	if c == nil {
		return
	}
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveTransitionReject records a rejected transition.
func (c *Collector) ObserveTransitionReject() {
	if c == nil {
		return
	}
	c.transitionRejects.Inc()
}

// ObserveHealthCheck records a health probe outcome.
func (c *Collector) ObserveHealthCheck(healthy bool) {
	if c == nil {
		return
	}
	label := "false"
	if healthy {
		label = "true"
	}
	c.healthChecksTotal.WithLabelValues(label).Inc()
}

// ObserveStep records a settled workflow step.
func (c *Collector) ObserveStep(kind, status string, dur time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(kind, status).Inc()
	c.stepDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// ObserveStepRetry records one retry attempt.
func (c *Collector) ObserveStepRetry() {
	if c == nil {
		return
	}
	c.stepRetriesTotal.Inc()
}

// RunStarted marks a workflow run as in flight.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunSettled records a settled run with its final status and total cost.
func (c *Collector) RunSettled(status string, costUSD float64) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(status).Inc()
	c.runCostUSD.Add(costUSD)
}

// SetTrackedInstances records the lifecycle manager's population.
func (c *Collector) SetTrackedInstances(n int) {
	if c == nil {
		return
	}
	c.trackedInstances.Set(float64(n))
}
