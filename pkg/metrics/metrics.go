// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SessionConnectionsActive tracks active WebSocket session connections.
	SessionConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_connections_active",
			Help: "Number of active WebSocket session connections",
		},
	)

	// ChannelMembers tracks memberships across live channels.
	ChannelMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_channel_members",
			Help: "Connections joined to session channels",
		},
		[]string{"kind"},
	)

	// LLMCallDuration tracks gateway call duration by purpose.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM gateway call duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"purpose", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed by purpose.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"purpose", "direction"},
	)

	// MessagesTotal tracks chat messages broadcast per tenant and role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total chat messages broadcast",
		},
		[]string{"tenant_id", "role"},
	)

	// ScreenshotRequestsTotal tracks screenshot negotiation cycles started.
	ScreenshotRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screenshot_requests_total",
			Help: "Screenshot request cycles initiated by the tutor",
		},
	)

	// ContextsActive tracks live interaction contexts in the store.
	ContextsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interaction_contexts_active",
			Help: "Interaction contexts currently held in memory",
		},
	)

	// ContextEvictionsTotal tracks contexts evicted by the TTL sweep.
	ContextEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "interaction_context_evictions_total",
			Help: "Interaction contexts evicted after idle TTL",
		},
	)

	// UsageQueueDepth tracks pending entries in the usage log queue.
	UsageQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_queue_depth",
			Help: "Entries waiting in the usage log queue",
		},
	)

	// UsageEntriesDropped tracks usage entries dropped on queue overflow.
	UsageEntriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_entries_dropped_total",
			Help: "Usage log entries dropped because the queue was full",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a gateway call.
func RecordLLMCall(purpose, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(purpose, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(purpose, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(purpose, "out").Add(float64(tokensOut))
}

// IncrementSessionConnections increments the active connection count.
func IncrementSessionConnections() {
	SessionConnectionsActive.Inc()
}

// DecrementSessionConnections decrements the active connection count.
func DecrementSessionConnections() {
	SessionConnectionsActive.Dec()
}
