package index

import (
	"context"

	"github.com/kailas-cloud/shopsearch/internal/domain/document"
)

// Item is one fully vectorized document ready for storage.
type Item struct {
	Doc         document.Document
	Dense       []float32
	SparseTerms map[string]float64
}

// Store persists vectorized documents and their sparse postings.
type Store interface {
	Upsert(ctx context.Context, items []Item) error
}

// Embedder produces dense vectors for a text batch.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
