package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM provider transport metrics (embeddings, query expansion, relevance judging).
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "llm_requests_total",
			Help:      "Total LLM API requests by operation and status",
		},
		[]string{"operation", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopsearch",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopsearch",
			Name:      "llm_tokens_total",
			Help:      "Total tokens consumed by LLM API requests",
		},
		[]string{"operation", "model", "kind"}, // kind: "prompt" / "completion" / "total"
	)
)

var llmRegistered bool

// RegisterLLMMetrics registers LLM transport metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	llmRegistered = true
}
