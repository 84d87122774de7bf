package retrieval

import (
	"context"

	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

// Store is the vector-store boundary: two independently ranked channels over
// the same corpus. Scores are monotone within one call but not comparable
// across channels.
type Store interface {
	SearchDense(ctx context.Context, vector []float32, limit int) ([]result.ScoredDocument, error)
	SearchSparse(ctx context.Context, vector sparse.Vector, limit int) ([]result.ScoredDocument, error)
}

// Embedder vectorizes text for the dense channel.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vectorizer produces the sparse query vector. An empty vector is a valid
// degraded output (dense-only retrieval).
type Vectorizer interface {
	Vectorize(ctx context.Context, text string) sparse.Vector
}

// QueryExpander produces the two query variants searched per chat turn: the
// rewritten literal query and a hypothetical-answer expansion.
type QueryExpander interface {
	Rewrite(ctx context.Context, query string, history []string) (string, error)
	HypotheticalAnswer(ctx context.Context, query string) (string, error)
}
