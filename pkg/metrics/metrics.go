// Package metrics exposes Prometheus instrumentation for the provider server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InferenceRequests counts completed inference requests by HTTP status.
	InferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clawcompute_inference_requests_total",
		Help: "Total inference requests served, labeled by status code.",
	}, []string{"status"})

	// InferenceDuration observes end-to-end inference latency, including the
	// backend round trip.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clawcompute_inference_duration_seconds",
		Help:    "Inference request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// ActiveRequests gauges in-flight inference requests.
	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clawcompute_inference_active_requests",
		Help: "Inference requests currently being served.",
	})

	// BackendErrors counts upstream completion failures.
	BackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawcompute_backend_errors_total",
		Help: "Total upstream backend completion failures.",
	})
)
