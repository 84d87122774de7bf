package index

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

// --- Mocks ---

type mockBatchEmbedder struct {
	vectors   [][]float32
	err       error
	lastTexts []string
}

func (m *mockBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.lastTexts = texts
	if m.err != nil {
		return nil, m.err
	}
	if m.vectors != nil {
		return m.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type mockIndexStore struct {
	items []Item
	err   error
}

func (m *mockIndexStore) Upsert(_ context.Context, items []Item) error {
	m.items = items
	return m.err
}

func newTestService(embedder Embedder, store Store) *Service {
	indexer := sparse.NewIndexer(sparse.Config{}, nil, zap.NewNop())
	return New(indexer, embedder, store, zap.NewNop())
}

// --- Tests ---

func TestIndexBatch_EmptyBatch(t *testing.T) {
	svc := newTestService(&mockBatchEmbedder{}, &mockIndexStore{})

	err := svc.IndexBatch(context.Background(), nil)
	if !errors.Is(err, domain.ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestIndexBatch_HappyPath(t *testing.T) {
	embedder := &mockBatchEmbedder{}
	store := &mockIndexStore{}
	svc := newTestService(embedder, store)

	docs := []document.Document{
		document.New("", "wireless headphones with noise cancelling", nil),
		document.New("", "mechanical keyboard with brown switches", nil),
	}

	if err := svc.IndexBatch(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.items) != 2 {
		t.Fatalf("expected 2 upserted items, got %d", len(store.items))
	}
	if len(embedder.lastTexts) != 2 {
		t.Errorf("expected 2 embedded texts, got %d", len(embedder.lastTexts))
	}
	for i, item := range store.items {
		if len(item.Dense) == 0 {
			t.Errorf("item %d missing dense vector", i)
		}
		if len(item.SparseTerms) == 0 {
			t.Errorf("item %d missing sparse terms", i)
		}
		if item.Doc.ID() == "" {
			t.Errorf("item %d missing id", i)
		}
	}
}

func TestIndexBatch_DerivesChunkIDFromMetadata(t *testing.T) {
	store := &mockIndexStore{}
	svc := newTestService(&mockBatchEmbedder{}, store)

	md := map[string]any{
		"post_id":        "abc123",
		"subreddit_name": "BuyItForLife",
		"chunk_id":       "2",
		"type":           "comment",
	}
	docs := []document.Document{document.New("ignored", "some text here", md)}

	if err := svc.IndexBatch(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("abc123_BuyItForLife_2_comment")).String()
	if got := store.items[0].Doc.ID(); got != want {
		t.Errorf("derived id = %q, want %q", got, want)
	}
}

func TestIndexBatch_ContentHashFallbackID(t *testing.T) {
	store := &mockIndexStore{}
	svc := newTestService(&mockBatchEmbedder{}, store)

	docs := []document.Document{document.New("", "fallback text", nil)}

	if err := svc.IndexBatch(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.items[0].Doc.ID(); got != document.StableID("fallback text") {
		t.Errorf("id = %q, want content hash", got)
	}
}

func TestIndexBatch_EmbedFailure(t *testing.T) {
	store := &mockIndexStore{}
	svc := newTestService(&mockBatchEmbedder{err: errors.New("provider down")}, store)

	docs := []document.Document{document.New("", "some text", nil)}

	if err := svc.IndexBatch(context.Background(), docs); err == nil {
		t.Fatal("expected error")
	}
	if store.items != nil {
		t.Error("no items must be upserted on embed failure")
	}
}

func TestIndexBatch_VectorCountMismatch(t *testing.T) {
	embedder := &mockBatchEmbedder{vectors: [][]float32{{1}}}
	svc := newTestService(embedder, &mockIndexStore{})

	docs := []document.Document{
		document.New("", "text one", nil),
		document.New("", "text two", nil),
	}

	if err := svc.IndexBatch(context.Background(), docs); err == nil {
		t.Fatal("expected error on vector count mismatch")
	}
}

func TestIndexBatch_StoreFailure(t *testing.T) {
	store := &mockIndexStore{err: errors.New("redis down")}
	svc := newTestService(&mockBatchEmbedder{}, store)

	docs := []document.Document{document.New("", "some text", nil)}

	if err := svc.IndexBatch(context.Background(), docs); err == nil {
		t.Fatal("expected store error to surface")
	}
}
