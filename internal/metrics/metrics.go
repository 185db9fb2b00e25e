// Package metrics exposes Prometheus metrics for the scheduler and LED
// channels. Cycle counters are updated on the scheduler goroutine through
// sched.Observer; everything else is read from the status tracker at scrape
// time.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/ledctl/internal/status"
)

const namespace = "ledctl"

// Metrics owns a private registry so tests and multiple instances do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry
	cycles   prometheus.Counter
	overruns prometheus.Counter
	taskTime prometheus.Histogram
}

// New creates the metric set. tracker may be nil, in which case only the
// cycle metrics are exported.
func New(tracker *status.Tracker) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "cycles_total",
			Help:      "Scheduler cycles completed",
		}),
		overruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "overruns_total",
			Help:      "Cycles whose tasks took longer than the budget",
		}),
		taskTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "task_seconds",
			Help:      "Time spent running all tasks in one cycle",
			Buckets:   []float64{10e-6, 25e-6, 50e-6, 100e-6, 250e-6, 500e-6, 1e-3, 2.5e-3, 10e-3},
		}),
	}

	reg.MustRegister(collectors.NewGoCollector())
	if tracker != nil {
		reg.MustRegister(newTrackerCollector(tracker))
	}
	return m
}

// ObserveCycle implements sched.Observer.
func (m *Metrics) ObserveCycle(taskTime time.Duration, overrun bool) {
	m.cycles.Inc()
	if overrun {
		m.overruns.Inc()
	}
	m.taskTime.Observe(taskTime.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
