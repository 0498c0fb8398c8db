package metrics

import "github.com/prometheus/client_golang/prometheus"

// Real-time session and generation metrics.
var (
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meetscribe",
			Name:      "active_sessions",
			Help:      "Number of live transcription sessions",
		},
	)

	AudioChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meetscribe",
			Name:      "audio_chunks_total",
			Help:      "Audio chunks processed per engine and outcome",
		},
		[]string{"engine", "outcome"}, // outcome: accepted / rejected / error
	)

	QualityGateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meetscribe",
			Name:      "quality_gate_rejections_total",
			Help:      "Transcriptions rejected by the quality gate, per rule",
		},
		[]string{"rule"},
	)

	SuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meetscribe",
			Name:      "suggestions_total",
			Help:      "Suggestion generation attempts by outcome",
		},
		[]string{"outcome"}, // generated / fallback / rate_limited / empty / error
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meetscribe",
			Name:      "generation_request_duration_seconds",
			Help:      "Text-generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meetscribe",
			Name:      "generation_requests_total",
			Help:      "Total number of text-generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meetscribe",
			Name:      "index_chunks",
			Help:      "Number of chunks currently held in the vector index",
		},
	)
)

var rtMetricsRegistered bool

// RegisterRealtimeMetrics registers session and generation metrics. Must be called once from main.
func RegisterRealtimeMetrics() {
	if rtMetricsRegistered {
		return
	}
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(AudioChunksTotal)
	prometheus.MustRegister(QualityGateRejectionsTotal)
	prometheus.MustRegister(SuggestionsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(IndexChunks)
	rtMetricsRegistered = true
}
