package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	ChannelSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "channel_searches_total",
			Help:      "Total number of per-channel store queries",
		},
		[]string{"channel", "status"},
	)

	ChannelSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Name:      "channel_search_duration_seconds",
			Help:      "Per-channel store query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"channel"},
	)

	VocabularyRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "vocabulary_rebuilds_total",
			Help:      "Lazy sparse vocabulary rebuilds",
		},
		[]string{"status"}, // "success" / "error"
	)

	RerankTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "rerank_total",
			Help:      "Rerank invocations by implementation and outcome",
		},
		[]string{"reranker", "status"}, // status: "reranked" / "passthrough" / "fallback"
	)

	// RetrievalQuality exports the latest offline evaluation per metric key.
	// Label values are the stable field names used as dashboard keys
	// (recall_at_5, ndcg_at_10, mrr, hit_rate_at_15, ...).
	RetrievalQuality = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shopsearch",
			Name:      "retrieval_quality",
			Help:      "Latest retrieval evaluation metrics",
		},
		[]string{"metric"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "evaluations_total",
			Help:      "Offline retrieval evaluations",
		},
		[]string{"status"},
	)
)

var retrievalRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalRegistered {
		return
	}
	prometheus.MustRegister(ChannelSearchesTotal)
	prometheus.MustRegister(ChannelSearchDuration)
	prometheus.MustRegister(VocabularyRebuildsTotal)
	prometheus.MustRegister(RerankTotal)
	prometheus.MustRegister(RetrievalQuality)
	prometheus.MustRegister(EvaluationsTotal)
	retrievalRegistered = true
}
