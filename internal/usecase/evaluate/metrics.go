package evaluate

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
)

// DefaultRelevanceThreshold marks a judged document relevant when its
// reranker score meets or exceeds it.
const DefaultRelevanceThreshold = 0.5

// DefaultKValues are the canonical cutoffs for per-K metrics.
var DefaultKValues = []int{5, 10, 15}

// RetrievedDoc is one retrieval-stage hit prepared for metric computation.
// DocID must use the same identity scheme as the judgments (content-derived
// ids for reranker judgments).
type RetrievedDoc struct {
	DocID string  `json:"doc_id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Result is the fixed, immutable metrics report for one query. Field names
// are stable identifiers consumed as dashboard keys downstream.
type Result struct {
	RecallAt5        float64 `json:"recall_at_5"`
	RecallAt10       float64 `json:"recall_at_10"`
	RecallAt15       float64 `json:"recall_at_15"`
	NDCGAt5          float64 `json:"ndcg_at_5"`
	NDCGAt10         float64 `json:"ndcg_at_10"`
	NDCGAt15         float64 `json:"ndcg_at_15"`
	MRR              float64 `json:"mrr"`
	HitRateAt5       float64 `json:"hit_rate_at_5"`
	HitRateAt10      float64 `json:"hit_rate_at_10"`
	HitRateAt15      float64 `json:"hit_rate_at_15"`
	NumRelevantDocs  int     `json:"num_relevant_docs"`
	NumRetrievedDocs int     `json:"num_retrieved_docs"`
}

// Fields flattens the report into metric-name -> value pairs for export.
func (r Result) Fields() map[string]float64 {
	return map[string]float64{
		"recall_at_5":        r.RecallAt5,
		"recall_at_10":       r.RecallAt10,
		"recall_at_15":       r.RecallAt15,
		"ndcg_at_5":          r.NDCGAt5,
		"ndcg_at_10":         r.NDCGAt10,
		"ndcg_at_15":         r.NDCGAt15,
		"mrr":                r.MRR,
		"hit_rate_at_5":      r.HitRateAt5,
		"hit_rate_at_10":     r.HitRateAt10,
		"hit_rate_at_15":     r.HitRateAt15,
		"num_relevant_docs":  float64(r.NumRelevantDocs),
		"num_retrieved_docs": float64(r.NumRetrievedDocs),
	}
}

// Metrics computes information-retrieval metrics using reranker judgments as
// pseudo ground truth for the initial retrieval stage. Pure and stateless
// per call.
type Metrics struct {
	relevanceThreshold float64
	logger             *zap.Logger
}

// NewMetrics creates a metrics calculator. threshold <= 0 falls back to
// DefaultRelevanceThreshold.
func NewMetrics(threshold float64, logger *zap.Logger) *Metrics {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}
	return &Metrics{relevanceThreshold: threshold, logger: logger}
}

// ComputeAllMetrics computes Recall@K, nDCG@K, Hit-Rate@K for each K in
// kValues plus a single MRR. Empty retrieved or judgments yields an all-zero
// result, never an error. Panics on non-positive K values (a programming
// error that would silently corrupt metrics otherwise).
func (m *Metrics) ComputeAllMetrics(
	retrieved []RetrievedDoc, judgments []judgment.Judgment, kValues []int,
) Result {
	for _, k := range kValues {
		if k <= 0 {
			panic(fmt.Sprintf("evaluate: k values must be positive, got %d", k))
		}
	}

	if len(retrieved) == 0 || len(judgments) == 0 {
		if m.logger != nil {
			m.logger.Warn("Empty retrieved docs or judgments, returning zero metrics")
		}
		return Result{}
	}

	relevanceMap := make(map[string]float64, len(judgments))
	for _, j := range judgments {
		relevanceMap[j.DocID] = j.RelevanceScore
	}

	// Relevance in retrieval order; unjudged documents default to 0.
	relevances := make([]float64, len(retrieved))
	binary := make([]int, len(retrieved))
	for i, doc := range retrieved {
		relevances[i] = relevanceMap[doc.DocID]
		if relevances[i] >= m.relevanceThreshold {
			binary[i] = 1
		}
	}

	// Ground-truth denominator: the judged set, independent of retrieval.
	numRelevant := 0
	for _, score := range relevanceMap {
		if score >= m.relevanceThreshold {
			numRelevant++
		}
	}

	perK := make(map[string]float64, 3*len(kValues))
	for _, k := range kValues {
		perK[fmt.Sprintf("recall_at_%d", k)] = recallAtK(binary, numRelevant, k)
		perK[fmt.Sprintf("ndcg_at_%d", k)] = ndcgAtK(relevances, k)
		perK[fmt.Sprintf("hit_rate_at_%d", k)] = hitRateAtK(binary, k)
	}

	return Result{
		RecallAt5:        perK["recall_at_5"],
		RecallAt10:       perK["recall_at_10"],
		RecallAt15:       perK["recall_at_15"],
		NDCGAt5:          perK["ndcg_at_5"],
		NDCGAt10:         perK["ndcg_at_10"],
		NDCGAt15:         perK["ndcg_at_15"],
		MRR:              mrr(binary),
		HitRateAt5:       perK["hit_rate_at_5"],
		HitRateAt10:      perK["hit_rate_at_10"],
		HitRateAt15:      perK["hit_rate_at_15"],
		NumRelevantDocs:  numRelevant,
		NumRetrievedDocs: len(retrieved),
	}
}

// recallAtK is the proportion of relevant documents found in the top K,
// against the total judged-relevant count. Defined as 0 when nothing is
// judged relevant.
func recallAtK(binary []int, numRelevant, k int) float64 {
	if numRelevant == 0 {
		return 0.0
	}
	found := 0
	for _, rel := range topK(binary, k) {
		found += rel
	}
	return float64(found) / float64(numRelevant)
}

// ndcgAtK is DCG over retrieval order normalized by the ideal DCG over
// relevance sorted descending. Defined as 0 when the ideal DCG is 0.
func ndcgAtK(relevances []float64, k int) float64 {
	if len(relevances) == 0 {
		return 0.0
	}

	dcg := computeDCG(relevances[:minInt(k, len(relevances))])

	ideal := make([]float64, len(relevances))
	copy(ideal, relevances)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	idcg := computeDCG(ideal[:minInt(k, len(ideal))])

	if idcg == 0.0 {
		return 0.0
	}
	return dcg / idcg
}

// computeDCG sums rel_i / log2(i+1) over 1-based positions.
func computeDCG(relevances []float64) float64 {
	dcg := 0.0
	for i, rel := range relevances {
		dcg += rel / math.Log2(float64(i+2))
	}
	return dcg
}

// mrr is the reciprocal rank of the first relevant document, or 0 when none
// is found. Single value per query, not K-indexed.
func mrr(binary []int) float64 {
	for i, rel := range binary {
		if rel == 1 {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

// hitRateAtK is 1 when any of the top K documents is relevant, else 0.
func hitRateAtK(binary []int, k int) float64 {
	for _, rel := range topK(binary, k) {
		if rel == 1 {
			return 1.0
		}
	}
	return 0.0
}

func topK(binary []int, k int) []int {
	return binary[:minInt(k, len(binary))]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
