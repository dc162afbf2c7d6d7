package registry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder fulfills MetricsRecorder by exporting operation
// counters and a latency histogram through a prometheus registerer.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the registry collectors with the
// supplied registerer (prometheus.DefaultRegisterer when nil) and returns
// the recorder.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recordcore",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recordcore",
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, collector := range []prometheus.Collector{rec.operations, rec.durations} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe records a registry operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
