// Package metrics - prometheus.go exports aggregate counters for scraping.
//
// DESIGN: The bucket store is the readable source of truth for the alert
// engine; prometheus is the write-only export path for dashboards. Both are
// updated from the same record call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_gateway_requests_total",
		Help: "Total provider operations by kind and provider",
	}, []string{"operation", "provider"})

	promFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_gateway_request_failures_total",
		Help: "Failed provider operations by kind and provider",
	}, []string{"operation", "provider"})

	promDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audio_gateway_operation_duration_seconds",
		Help:    "Provider operation latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"operation"})

	promActiveOps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audio_gateway_active_operations",
		Help: "Currently in-flight operations by kind",
	}, []string{"operation"})

	promProviderHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audio_gateway_provider_healthy",
		Help: "Last reported provider health (1 healthy, 0 unhealthy)",
	}, []string{"provider"})

	promRealtimeAudioSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_gateway_realtime_audio_seconds_total",
		Help: "Cumulative realtime session audio seconds",
	})

	promCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_gateway_cache_hits_total",
		Help: "Synthesis/transcription cache hits",
	})
)

func observeOutcome(op Operation, provider string, seconds float64, success bool) {
	promRequests.WithLabelValues(string(op), provider).Inc()
	if !success {
		promFailures.WithLabelValues(string(op), provider).Inc()
	}
	promDuration.WithLabelValues(string(op)).Observe(seconds)
}
