// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration on the ingress.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests on the ingress.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RoundsTotal tracks response rounds by outcome.
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_rounds_total",
			Help: "Response rounds processed",
		},
		[]string{"outcome"},
	)

	// ProviderRequestsTotal tracks provider calls by persona and status.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Provider completion requests",
		},
		[]string{"persona", "kind", "status"},
	)

	// ProviderLatency tracks provider completion latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Provider completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"persona", "kind"},
	)

	// RepliesSuppressed tracks PASS replies that were not posted.
	RepliesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_replies_suppressed_total",
			Help: "Persona replies suppressed as a pass",
		},
		[]string{"persona"},
	)

	// HistoryLength tracks retained history length, observed at each append.
	// Unlabeled: a per-chat label would grow without bound over the process
	// lifetime.
	HistoryLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conversation_history_length",
			Help:    "Messages retained for a chat, observed at append",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 150, 200, 500},
		},
	)

	// MessagesTotal tracks appended messages by speaker.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_messages_total",
			Help: "Messages appended to conversation history",
		},
		[]string{"speaker"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordProviderCall records one provider request outcome.
func RecordProviderCall(persona, kind, status string, duration float64) {
	ProviderRequestsTotal.WithLabelValues(persona, kind, status).Inc()
	ProviderLatency.WithLabelValues(persona, kind).Observe(duration)
}
