// ============================================================================
// Ruvltra Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collects and exposes the execution core's runtime metrics.
//
// Metric families:
//
//	Counters (monotonic):
//	  ruvltra_tasks_submitted_total   admitted tasks
//	  ruvltra_tasks_completed_total   successful settlements
//	  ruvltra_tasks_failed_total      backend-failure settlements
//	  ruvltra_tasks_cancelled_total   cancellations (timeouts included)
//	  ruvltra_tasks_timed_out_total   deadline settlements
//	  ruvltra_tasks_rejected_total    queue-overflow rejections
//
//	Histogram:
//	  ruvltra_task_latency_seconds    submit-to-settle latency
//
//	Gauges:
//	  ruvltra_queue_length            waiting tasks
//	  ruvltra_tasks_in_flight         running tasks
//	  ruvltra_workers                 current pool size
//
// Each collector owns its registry so independent pools (and tests) never
// collide on registration.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the pool's metrics sink.
type Collector struct {
	registry *prometheus.Registry

	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksTimedOut  prometheus.Counter
	tasksRejected  prometheus.Counter

	taskLatency prometheus.Histogram

	queueLength   prometheus.Gauge
	tasksInFlight prometheus.Gauge
	workers       prometheus.Gauge
}

// NewCollector creates and registers the metric families.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_submitted_total",
			Help: "Total number of tasks admitted to the pool",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_completed_total",
			Help: "Total number of tasks settled successfully",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_failed_total",
			Help: "Total number of tasks settled as backend failures",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_cancelled_total",
			Help: "Total number of cancelled tasks (timeouts included)",
		}),
		tasksTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_timed_out_total",
			Help: "Total number of tasks settled by deadline",
		}),
		tasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruvltra_tasks_rejected_total",
			Help: "Total number of submissions rejected by queue overflow",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruvltra_task_latency_seconds",
			Help:    "Submit-to-settle task latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_queue_length",
			Help: "Current number of tasks waiting in the queue",
		}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_tasks_in_flight",
			Help: "Current number of running tasks",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruvltra_workers",
			Help: "Current number of pool workers",
		}),
	}

	c.registry.MustRegister(
		c.tasksSubmitted, c.tasksCompleted, c.tasksFailed,
		c.tasksCancelled, c.tasksTimedOut, c.tasksRejected,
		c.taskLatency,
		c.queueLength, c.tasksInFlight, c.workers,
	)
	return c
}

// RecordSubmitted counts one admitted task.
func (c *Collector) RecordSubmitted() { c.tasksSubmitted.Inc() }

// RecordCompleted counts one success and observes its latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.tasksCompleted.Inc()
	c.taskLatency.Observe(latencySeconds)
}

// RecordFailed counts one backend-failure settlement.
func (c *Collector) RecordFailed() { c.tasksFailed.Inc() }

// RecordCancelled counts one cancellation.
func (c *Collector) RecordCancelled() { c.tasksCancelled.Inc() }

// RecordTimedOut counts one deadline settlement.
func (c *Collector) RecordTimedOut() { c.tasksTimedOut.Inc() }

// RecordRejected counts one queue-overflow rejection.
func (c *Collector) RecordRejected() { c.tasksRejected.Inc() }

// UpdatePoolStats refreshes the gauges.
func (c *Collector) UpdatePoolStats(queueLength, inFlight, workers int) {
	c.queueLength.Set(float64(queueLength))
	c.tasksInFlight.Set(float64(inFlight))
	c.workers.Set(float64(workers))
}

// Handler serves this collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on the given port. Blocks; run in its own
// goroutine.
func (c *Collector) StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
