// Package metrics exposes Prometheus counters and histograms for uploads,
// jobs, workers and the queue reconciler.
//
// Metrics are registered on an injected prometheus.Registerer so tests and
// multiple processes in one binary never collide on the default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomePanic    = "panic"
)

// Reconciler actions.
const (
	ActionRemoved  = "removed"
	ActionEnqueued = "enqueued"
	ActionFailed   = "failed"
	ActionDropped  = "dropped"
)

// Collector holds every metric the service records.
type Collector struct {
	uploads          *prometheus.CounterVec
	jobsCreated      prometheus.Counter
	jobsQueued       prometheus.Counter
	workerJobs       *prometheus.CounterVec
	workerDuration   prometheus.Histogram
	workersBusy      prometheus.Gauge
	reconcilePasses  prometheus.Counter
	reconcileErrors  prometheus.Counter
	reconcileActions *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a collector and registers its metrics on reg. When reg is also
// a prometheus.Gatherer, Handler serves from it; otherwise the default
// gatherer is used.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spi_uploads_total",
			Help: "Data uploads by outcome",
		}, []string{"outcome"}),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spi_jobs_created_total",
			Help: "Jobs created",
		}),
		jobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spi_jobs_queued_total",
			Help: "Jobs queued for computation",
		}),
		workerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spi_worker_jobs_total",
			Help: "Jobs handled by workers by outcome",
		}, []string{"outcome"}),
		workerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spi_worker_job_duration_seconds",
			Help:    "Wall-clock time spent running a job",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spi_workers_busy",
			Help: "Workers currently running a job",
		}),
		reconcilePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spi_reconciler_passes_total",
			Help: "Completed reconciler passes",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spi_reconciler_errors_total",
			Help: "Reconciler passes that hit an error",
		}),
		reconcileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spi_reconciler_actions_total",
			Help: "Corrective actions taken by the reconciler",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spi_http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),
		gatherer: prometheus.DefaultGatherer,
	}

	reg.MustRegister(
		c.uploads,
		c.jobsCreated,
		c.jobsQueued,
		c.workerJobs,
		c.workerDuration,
		c.workersBusy,
		c.reconcilePasses,
		c.reconcileErrors,
		c.reconcileActions,
		c.httpRequests,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// RecordUpload counts an upload; outcome is "ok" or an error class.
func (c *Collector) RecordUpload(outcome string) {
	c.uploads.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordJobCreated() { c.jobsCreated.Inc() }
func (c *Collector) RecordJobQueued()  { c.jobsQueued.Inc() }

// WorkerStarted marks a worker busy. Call the returned func with the outcome
// once the job is done.
func (c *Collector) WorkerStarted() func(outcome string) {
	start := time.Now()
	c.workersBusy.Inc()
	return func(outcome string) {
		c.workersBusy.Dec()
		c.workerJobs.WithLabelValues(outcome).Inc()
		c.workerDuration.Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) RecordReconcilePass(err error) {
	c.reconcilePasses.Inc()
	if err != nil {
		c.reconcileErrors.Inc()
	}
}

func (c *Collector) RecordReconcileAction(action string) {
	c.reconcileActions.WithLabelValues(action).Inc()
}

func (c *Collector) RecordHTTPRequest(method, status string) {
	c.httpRequests.WithLabelValues(method, status).Inc()
}

// Handler serves the registered metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
