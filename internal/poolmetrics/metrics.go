// Package poolmetrics collects and exposes Prometheus metrics for a
// worker-process pool. Grounded on the teacher's internal/metrics
// package: the same Counter/Histogram/Gauge shapes and the same
// MustRegister + StartServer pattern, renamed to pool vocabulary.
package poolmetrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects pool-level Prometheus metrics.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksDispatched prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksUserError prometheus.Counter
	tasksSerError  prometheus.Counter
	tasksAborted   prometheus.Counter

	dispatchLatency prometheus.Histogram
	recoveryTime    prometheus.Gauge

	workersIdle     prometheus.Gauge
	workersBusy     prometheus.Gauge
	workersDraining prometheus.Gauge
	workersDead     prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// NewCollector builds and registers a fresh Collector against the
// default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_submitted_total",
			Help: "Total number of tasks submitted to the pool.",
		}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_dispatched_total",
			Help: "Total number of tasks handed off to a worker.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_completed_total",
			Help: "Total number of tasks that completed with a status of Ok.",
		}),
		tasksUserError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_user_error_total",
			Help: "Total number of tasks that completed with a UserError.",
		}),
		tasksSerError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_serialization_error_total",
			Help: "Total number of tasks that failed to encode or decode.",
		}),
		tasksAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procpool_tasks_aborted_total",
			Help: "Total number of tasks lost to a worker death.",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "procpool_task_latency_seconds",
			Help:    "Time from dispatch to result for a task.",
			Buckets: prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_recovery_time_seconds",
			Help: "Time taken to respawn a worker after its sentinel fired.",
		}),
		workersIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_workers_idle",
			Help: "Current number of idle workers.",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_workers_busy",
			Help: "Current number of busy workers.",
		}),
		workersDraining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_workers_draining",
			Help: "Current number of workers picked for removal by a shrink and awaiting stop.",
		}),
		workersDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_workers_dead",
			Help: "Current number of workers awaiting respawn.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procpool_queue_depth",
			Help: "Current number of tasks waiting in the task queue.",
		}),
	}

	prometheus.MustRegister(
		c.tasksSubmitted,
		c.tasksDispatched,
		c.tasksCompleted,
		c.tasksUserError,
		c.tasksSerError,
		c.tasksAborted,
		c.dispatchLatency,
		c.recoveryTime,
		c.workersIdle,
		c.workersBusy,
		c.workersDraining,
		c.workersDead,
		c.queueDepth,
	)

	return c
}

func (c *Collector) RecordSubmit()     { c.tasksSubmitted.Inc() }
func (c *Collector) RecordDispatch()   { c.tasksDispatched.Inc() }
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.tasksCompleted.Inc()
	c.dispatchLatency.Observe(latencySeconds)
}
func (c *Collector) RecordUserError()        { c.tasksUserError.Inc() }
func (c *Collector) RecordSerializationError() { c.tasksSerError.Inc() }
func (c *Collector) RecordAborted()          { c.tasksAborted.Inc() }
func (c *Collector) SetRecoveryTime(seconds float64) { c.recoveryTime.Set(seconds) }

// SetWorkerCounts updates the worker-state gauges in one call.
func (c *Collector) SetWorkerCounts(idle, busy, draining, dead int) {
	c.workersIdle.Set(float64(idle))
	c.workersBusy.Set(float64(busy))
	c.workersDraining.Set(float64(draining))
	c.workersDead.Set(float64(dead))
}

// SetQueueDepth updates the pending-task gauge.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// StartServer serves /metrics on the given port until the process
// exits or ListenAndServe fails.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
