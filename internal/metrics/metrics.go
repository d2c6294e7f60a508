// Package metrics holds the bridge's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels for a finished poll cycle.
const (
	OutcomeNoTask        = "no_task"
	OutcomePollError     = "poll_error"
	OutcomeBuildError    = "build_error"
	OutcomeDispatched    = "dispatched"
	OutcomeDispatchError = "dispatch_error"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	dispatchSteps *prometheus.HistogramVec
	danglingRefs  prometheus.Counter
	lastSuccess   prometheus.Gauge
}

// New registers the bridge collectors plus the Go and process collectors
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rquest_bridge",
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome and task kind.",
		}, []string{"outcome", "kind"}),
		dispatchSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rquest_bridge",
			Name:      "dispatch_step_duration_seconds",
			Help:      "Duration of store, notify and enqueue steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "result"}),
		danglingRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rquest_bridge",
			Name:      "dangling_references_total",
			Help:      "Unresolved references found in finished crates.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rquest_bridge",
			Name:      "last_dispatch_success_timestamp_seconds",
			Help:      "Unix time of the last fully dispatched task.",
		}),
	}
	reg.MustRegister(
		m.cycles,
		m.dispatchSteps,
		m.danglingRefs,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recording methods are no-ops on a nil *Metrics.

func (m *Metrics) Cycle(outcome, kind string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome, kind).Inc()
	if outcome == OutcomeDispatched {
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) DispatchStep(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatchSteps.WithLabelValues(step, result).Observe(d.Seconds())
}

func (m *Metrics) DanglingRefs(n int) {
	if m == nil {
		return
	}
	m.danglingRefs.Add(float64(n))
}
