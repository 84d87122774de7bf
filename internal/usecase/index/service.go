package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

// Service runs batch indexing: build the sparse vocabulary over the batch,
// embed texts, and upsert dense vectors plus sparse postings. One indexing
// job runs at a time; the caller provides that exclusivity.
type Service struct {
	indexer  *sparse.Indexer
	embedder Embedder
	store    Store
	logger   *zap.Logger
}

// New creates an indexing service.
func New(indexer *sparse.Indexer, embedder Embedder, store Store, logger *zap.Logger) *Service {
	return &Service{indexer: indexer, embedder: embedder, store: store, logger: logger}
}

// IndexBatch indexes a document batch. The sparse vocabulary is replaced
// wholesale by this batch; searches during the swap see either the old or
// the new table, never a mix.
func (s *Service) IndexBatch(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return domain.ErrEmptyBatch
	}

	withIDs := make([]document.Document, len(docs))
	texts := make([]string, len(docs))
	for i := range docs {
		withIDs[i] = document.New(documentID(&docs[i]), docs[i].Text(), docs[i].Metadata())
		texts[i] = docs[i].Text()
	}

	s.indexer.Build(withIDs)

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(withIDs) {
		return fmt.Errorf("embed batch: got %d vectors for %d documents", len(vectors), len(withIDs))
	}

	items := make([]Item, len(withIDs))
	for i := range withIDs {
		vec := s.indexer.Vectorize(ctx, texts[i])
		items[i] = Item{
			Doc:         withIDs[i],
			Dense:       vectors[i],
			SparseTerms: s.indexer.ResolveTerms(vec),
		}
	}

	if err := s.store.Upsert(ctx, items); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}

	s.logger.Info("Indexed document batch",
		zap.Int("documents", len(items)),
		zap.Int("vocabulary", s.indexer.VocabSize()))
	return nil
}

// documentID derives a deterministic id from the chunk's source coordinates
// when present, falling back to the document's own identity (explicit id or
// content hash).
func documentID(doc *document.Document) string {
	md := doc.Metadata()
	postID, ok1 := md["post_id"].(string)
	subreddit, ok2 := md["subreddit_name"].(string)
	chunkID, ok3 := md["chunk_id"].(string)
	kind, ok4 := md["type"].(string)
	if ok1 && ok2 && ok3 && ok4 {
		name := fmt.Sprintf("%s_%s_%s_%s", postID, subreddit, chunkID, kind)
		return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
	}
	return doc.ID()
}
