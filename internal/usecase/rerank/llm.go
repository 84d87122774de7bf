package rerank

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// RelevanceJudge scores candidate texts against a query through the
// text-generation service, returning one score in [0,1] per text.
type RelevanceJudge interface {
	JudgeRelevance(ctx context.Context, query string, texts []string) ([]float64, error)
}

// LLMReranker delegates relevance judging to the LLM. It shares the
// (documents, judgments) contract with BM25Reranker and is selected by
// configuration.
type LLMReranker struct {
	judge  RelevanceJudge
	logger *zap.Logger
}

// NewLLM creates an LLM-backed reranker.
func NewLLM(judge RelevanceJudge, logger *zap.Logger) *LLMReranker {
	return &LLMReranker{judge: judge, logger: logger}
}

var _ Reranker = (*LLMReranker)(nil)

// Rerank implements Reranker. An LLM failure degrades to the first limit
// candidates with no judgments, never to a request failure.
func (r *LLMReranker) Rerank(
	ctx context.Context, query string,
	candidates []result.ScoredDocument, limit int,
) ([]result.ScoredDocument, []judgment.Judgment) {
	if len(candidates) <= limit {
		metrics.RerankTotal.WithLabelValues(string(KindLLM), "passthrough").Inc()
		return candidates, nil
	}

	texts := make([]string, len(candidates))
	for i := range candidates {
		text := candidates[i].Document().Text()
		if len(text) > maxDocumentTextLength {
			text = text[:maxDocumentTextLength]
		}
		texts[i] = text
	}

	scores, err := r.judge.JudgeRelevance(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Error("LLM rerank failed, using original ranking",
			zap.Error(err), zap.Int("scores", len(scores)), zap.Int("candidates", len(candidates)))
		metrics.RerankTotal.WithLabelValues(string(KindLLM), "fallback").Inc()
		return candidates[:limit], nil
	}

	for i, s := range scores {
		scores[i] = clamp01(s)
	}

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	out := make([]result.ScoredDocument, 0, limit)
	judgments := make([]judgment.Judgment, 0, limit)
	for _, i := range idx[:limit] {
		out = append(out, candidates[i].Rescored(scores[i], channel.Reranked))
		judgments = append(judgments,
			judgment.New(document.StableID(candidates[i].Document().Text()), scores[i]))
	}

	metrics.RerankTotal.WithLabelValues(string(KindLLM), "reranked").Inc()
	return out, judgments
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
