package rerank

import (
	"context"

	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
)

// Reranker re-orders a candidate list against the live query and emits one
// relevance judgment per returned document.
//
// Implementations must never fail the request: any internal error degrades to
// returning the first limit candidates unscored with no judgments. When
// len(candidates) <= limit the input is returned unchanged with no judgments
// (reranking only adds value when there is something to cut).
type Reranker interface {
	Rerank(
		ctx context.Context, query string,
		candidates []result.ScoredDocument, limit int,
	) ([]result.ScoredDocument, []judgment.Judgment)
}

// Kind selects a reranker implementation in configuration.
type Kind string

const (
	// KindBM25 is the local lexical reranker.
	KindBM25 Kind = "bm25"
	// KindLLM judges relevance through the text-generation service.
	KindLLM Kind = "llm"
)
