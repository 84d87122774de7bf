package rerank

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

// maxDocumentTextLength bounds per-document tokenization cost.
const maxDocumentTextLength = 4000

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Reranker re-scores candidates with a BM25 model fit over the candidate
// set itself, not the full corpus. Reranking quality therefore depends on
// what is already in the candidate set; this mirrors the retrieval design
// where corpus-wide statistics live in the sparse channel, not here.
type BM25Reranker struct {
	logger *zap.Logger
}

// NewBM25 creates a local lexical reranker.
func NewBM25(logger *zap.Logger) *BM25Reranker {
	return &BM25Reranker{logger: logger}
}

var _ Reranker = (*BM25Reranker)(nil)

// Rerank implements Reranker. Scores are min-max normalized into [0,1]
// across the candidate set; when all raw scores are equal every candidate
// gets 0 rather than dividing by zero. Judgments use content-derived ids so
// the evaluation stage can match them against pre-rerank candidates.
func (r *BM25Reranker) Rerank(
	_ context.Context, query string,
	candidates []result.ScoredDocument, limit int,
) (out []result.ScoredDocument, judgments []judgment.Judgment) {
	if len(candidates) <= limit {
		metrics.RerankTotal.WithLabelValues(string(KindBM25), "passthrough").Inc()
		return candidates, nil
	}

	// Scoring must never fail the request: fall back to the original order.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("BM25 rerank failed, using original ranking",
				zap.Any("panic", rec))
			metrics.RerankTotal.WithLabelValues(string(KindBM25), "fallback").Inc()
			out = candidates[:limit]
			judgments = nil
		}
	}()

	queryTokens := sparse.Tokenize(query)

	docTokens := make([][]string, len(candidates))
	anyTokens := false
	for i := range candidates {
		text := candidates[i].Document().Text()
		if len(text) > maxDocumentTextLength {
			text = text[:maxDocumentTextLength]
		}
		docTokens[i] = sparse.Tokenize(text)
		if len(docTokens[i]) > 0 {
			anyTokens = true
		}
	}
	if !anyTokens {
		r.logger.Warn("No valid documents to rerank")
		metrics.RerankTotal.WithLabelValues(string(KindBM25), "fallback").Inc()
		return candidates[:limit], nil
	}

	scores := scoreBM25(queryTokens, docTokens)
	normalized := normalizeMinMax(scores)

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	// Stable sort keeps the input order on ties for deterministic output.
	sort.SliceStable(idx, func(a, b int) bool {
		return normalized[idx[a]] > normalized[idx[b]]
	})

	out = make([]result.ScoredDocument, 0, limit)
	judgments = make([]judgment.Judgment, 0, limit)
	for _, i := range idx[:limit] {
		reranked := candidates[i].Rescored(normalized[i], channel.Reranked)
		out = append(out, reranked)
		judgments = append(judgments,
			judgment.New(document.StableID(candidates[i].Document().Text()), normalized[i]))
	}

	r.logger.Info("BM25 reranked candidates",
		zap.Int("candidates", len(candidates)), zap.Int("returned", len(out)))
	metrics.RerankTotal.WithLabelValues(string(KindBM25), "reranked").Inc()
	return out, judgments
}

// scoreBM25 fits an Okapi BM25 model over docTokens and scores each document
// against the query tokens.
func scoreBM25(queryTokens []string, docTokens [][]string) []float64 {
	n := len(docTokens)

	df := make(map[string]int)
	tf := make([]map[string]int, n)
	totalLen := 0
	for i, tokens := range docTokens {
		tf[i] = make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[i][tok]++
		}
		for tok := range tf[i] {
			df[tok]++
		}
		totalLen += len(tokens)
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	idf := make(map[string]float64, len(df))
	for tok, freq := range df {
		idf[tok] = math.Log(1 + (float64(n)-float64(freq)+0.5)/(float64(freq)+0.5))
	}

	scores := make([]float64, n)
	for i := range docTokens {
		docLen := float64(len(docTokens[i]))
		for _, tok := range queryTokens {
			freq := float64(tf[i][tok])
			if freq == 0 {
				continue
			}
			norm := freq + bm25K1*(1-bm25B+bm25B*docLen/avgLen)
			scores[i] += idf[tok] * freq * (bm25K1 + 1) / norm
		}
	}
	return scores
}

// normalizeMinMax maps scores into [0,1]. Degenerate all-equal input yields
// all zeros.
func normalizeMinMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	spread := maxScore - minScore
	if spread <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = (s - minScore) / spread
	}
	return out
}
