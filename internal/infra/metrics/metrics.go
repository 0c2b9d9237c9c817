// Package metrics exports service and snapshot metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teammatch"

// Recorder implements core.MetricsRecorder, core.OutcomeRecorder and
// core.FlushObserver.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	flushes    *prometheus.CounterVec
	lastFlush  prometheus.Gauge
}

// New builds a recorder on its own registry together with the Go and process
// collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_flushes_total",
			Help:      "Snapshot flush attempts by outcome.",
		}, []string{"status"}),
		lastFlush: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot flush.",
		}),
	}
	r.registry.MustRegister(
		r.operations, r.latency, r.flushes, r.lastFlush,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Observe records one service operation as success or error.
func (r *Recorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	r.ObserveOutcome(ctx, operation, status(success), duration)
}

// ObserveOutcome records one service operation under its outcome label
// (success, conflict, not_found, invalid or error).
func (r *Recorder) ObserveOutcome(_ context.Context, operation, outcome string, duration time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveFlush records one snapshot flush attempt.
func (r *Recorder) ObserveFlush(success bool, at time.Time) {
	r.flushes.WithLabelValues(status(success)).Inc()
	if success {
		r.lastFlush.Set(float64(at.Unix()))
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
