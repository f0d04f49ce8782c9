// Package metrics exposes the Prometheus collectors used by the file tree
// service. A nil *Recorder is valid and records nothing, so callers can pass
// nil when metrics are disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filetree"

type Recorder struct {
	registry *prometheus.Registry

	transferBytes    *prometheus.CounterVec
	operations       *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	trashPurged      prometheus.Counter
	activeJobs       prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpSeconds      *prometheus.HistogramVec
}

// New builds a Recorder on its own registry, including the Go runtime and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		transferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Bytes written by transfer operations",
			},
			[]string{"operation"}, // save, move
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Storage operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of storage operations",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"operation"},
		),
		trashPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trash_purged_total",
				Help:      "Trash records removed by the expiry sweep",
			},
		),
		activeJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_active",
				Help:      "Move jobs currently running",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		httpSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// ObserveOperation records one storage operation. bytes is only counted for
// operations that move data.
func (r *Recorder) ObserveOperation(operation string, bytes int64, duration time.Duration, err error) {
	if r == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	r.operations.WithLabelValues(operation, outcome).Inc()
	r.operationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
	if bytes > 0 {
		r.transferBytes.WithLabelValues(operation).Add(float64(bytes))
	}
}

func (r *Recorder) ObservePurge(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.trashPurged.Add(float64(count))
}

func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.activeJobs.Inc()
}

func (r *Recorder) JobFinished() {
	if r == nil {
		return
	}
	r.activeJobs.Dec()
}

func (r *Recorder) ObserveHTTP(method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.httpSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
