// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scenario

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/operator-sub000/core/hooks"
)

const metricsNamespace = "charmscenario"

// Run outcomes reported by the collector.
const (
	outcomeSuccess      = "success"
	outcomeActionFailed = "action-failed"
	outcomeMisuse       = "misuse"
	outcomeInconsistent = "inconsistent"
	outcomeCharmError   = "charm-error"
)

// Collector is a prometheus.Collector that collects metrics about runs.
type Collector struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	deferredQueue prometheus.Gauge
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "The number of runs by event kind and outcome.",
			}, []string{"kind", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "The time taken by a run.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
			}, []string{"kind"},
		),
		deferredQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "deferred_events",
				Help:      "The number of deferred events in the last output state.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.runDuration.Describe(ch)
	c.deferredQueue.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.runDuration.Collect(ch)
	c.deferredQueue.Collect(ch)
}

func (c *Collector) observe(kind hooks.Kind, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(string(kind), outcome).Inc()
	c.runDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
}

func (c *Collector) setDeferred(n int) {
	if c == nil {
		return
	}
	c.deferredQueue.Set(float64(n))
}
