package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "housing"
	subsystem = "voice_agent"
)

var (
	// ProxyRequestsTotal counts /api/chat requests by response status code.
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proxy_requests_total",
			Help:      "Total number of chat proxy requests by response status",
		},
		[]string{"status"},
	)

	// UpstreamLatencySeconds observes the time spent waiting on the chat API.
	UpstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upstream_latency_seconds",
			Help:      "Latency of chat API calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"mode"},
	)

	// TurnsTotal counts conversation turns committed to engine histories.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Conversation turns appended, by role",
		},
		[]string{"role"},
	)

	// EngineErrorsTotal counts errors surfaced to the presentation layer.
	EngineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "engine_errors_total",
			Help:      "Errors reported by conversation engines, by kind",
		},
		[]string{"kind"},
	)

	// VoiceSessionsActive tracks open /ws/voice connections.
	VoiceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "voice_sessions_active",
			Help:      "Number of open voice WebSocket sessions",
		},
	)

	// KnowledgeDocumentsLoaded counts knowledge document fetches by outcome.
	KnowledgeDocumentsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "knowledge_documents_total",
			Help:      "Knowledge document fetches, by outcome",
		},
		[]string{"outcome"},
	)
)
