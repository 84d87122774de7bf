package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/db"
	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/usecase/index"
	"github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
)

const (
	docKeyPrefix  = "shopsearch:doc:"
	termKeyPrefix = "shopsearch:term:"
	indexName     = "shopsearch_doc_idx"
	vectorField   = "vector"
)

// TermResolver maps sparse vector indices back to vocabulary terms. The
// sparse indexer owns the vocabulary; the repository only consults it.
type TermResolver interface {
	ResolveTerms(v sparse.Vector) map[string]float64
}

// Repo adapts the Redis store to the retrieval, indexing, and vocabulary
// rebuild contracts. The dense channel is FT.SEARCH KNN over an HNSW index;
// the sparse channel is a dot product over per-term posting lists.
type Repo struct {
	store  dbStore
	terms  TermResolver
	dims   int
	logger *zap.Logger
}

// dbStore is the consumer interface for the repository.
type dbStore interface {
	db.HashStore
	db.SortedSetStore
	db.VectorSearcher
}

// New creates a store repository.
func New(store dbStore, terms TermResolver, dims int, logger *zap.Logger) *Repo {
	return &Repo{store: store, terms: terms, dims: dims, logger: logger}
}

// EnsureIndex creates the dense vector index if missing. Called once at startup.
func (r *Repo) EnsureIndex(ctx context.Context, hnswM, hnswEFConstruct int) error {
	return r.store.EnsureVectorIndex(ctx, &db.VectorIndexDefinition{
		Name:            indexName,
		Prefix:          docKeyPrefix,
		VectorField:     vectorField,
		Dimensions:      r.dims,
		HNSWM:           hnswM,
		HNSWEFConstruct: hnswEFConstruct,
	})
}

// SearchDense runs a KNN query over the dense channel.
func (r *Repo) SearchDense(ctx context.Context, vector []float32, limit int) ([]result.ScoredDocument, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName,
		Vector:       vector,
		K:            limit,
		ReturnFields: []string{"text", "metadata", "__vector_score"},
	})
	if err != nil {
		return nil, storeError("search dense", err)
	}

	out := make([]result.ScoredDocument, 0, len(res.Entries))
	for _, entry := range res.Entries {
		doc := r.docFromFields(entry.Key, entry.Fields)
		out = append(out, result.New(doc, entry.Score, channel.Dense))
	}
	return out, nil
}

// SearchSparse scores documents by the dot product between the query's
// TF-IDF weights and the stored posting weights, then hydrates the top hits.
func (r *Repo) SearchSparse(ctx context.Context, vector sparse.Vector, limit int) ([]result.ScoredDocument, error) {
	weights := r.terms.ResolveTerms(vector)
	if len(weights) == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	for term, qw := range weights {
		postings, err := r.store.ZRangeWithScores(ctx, termKeyPrefix+term)
		if err != nil {
			return nil, storeError(fmt.Sprintf("read postings for %q", term), err)
		}
		for _, p := range postings {
			scores[p.Member] += qw * p.Score
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	// Ties by id keep the ranking deterministic across calls.
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKeyPrefix + id
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, storeError("hydrate sparse hits", err)
	}

	out := make([]result.ScoredDocument, 0, len(ids))
	for i, id := range ids {
		doc := r.docFromFields(docKeyPrefix+id, hashes[i])
		out = append(out, result.New(doc, scores[id], channel.Sparse))
	}
	return out, nil
}

// Upsert stores vectorized documents and their term postings.
func (r *Repo) Upsert(ctx context.Context, items []index.Item) error {
	hashItems := make([]db.HashSetItem, 0, len(items))
	postings := make(map[string][]db.ZMember)

	for _, item := range items {
		metadata, err := json.Marshal(item.Doc.Metadata())
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", item.Doc.ID(), err)
		}
		hashItems = append(hashItems, db.HashSetItem{
			Key: docKeyPrefix + item.Doc.ID(),
			Fields: map[string]string{
				"text":      item.Doc.Text(),
				"metadata":  string(metadata),
				vectorField: encodeVector(item.Dense),
			},
		})
		for term, weight := range item.SparseTerms {
			postings[term] = append(postings[term], db.ZMember{
				Member: item.Doc.ID(),
				Score:  weight,
			})
		}
	}

	if err := r.store.HSetMulti(ctx, hashItems); err != nil {
		return storeError("upsert documents", err)
	}

	zadds := make([]db.ZAddItem, 0, len(postings))
	for term, members := range postings {
		zadds = append(zadds, db.ZAddItem{Key: termKeyPrefix + term, Members: members})
	}
	if err := r.store.ZAddMulti(ctx, zadds); err != nil {
		return storeError("upsert postings", err)
	}

	return nil
}

// ListTexts returns one page of stored document texts for vocabulary
// rebuilds. Implements the sparse indexer's document source.
func (r *Repo) ListTexts(ctx context.Context, cursor uint64, limit int) ([]string, uint64, error) {
	keys, next, err := r.store.ScanPage(ctx, docKeyPrefix+"*", cursor, limit)
	if err != nil {
		return nil, 0, storeError("scan documents", err)
	}
	if len(keys) == 0 {
		return nil, next, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, 0, storeError("read documents", err)
	}

	texts := make([]string, 0, len(hashes))
	for _, fields := range hashes {
		if text := fields["text"]; text != "" {
			texts = append(texts, text)
		}
	}
	return texts, next, nil
}

func (r *Repo) docFromFields(key string, fields map[string]string) document.Document {
	id := strings.TrimPrefix(key, docKeyPrefix)

	var metadata map[string]any
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil && r.logger != nil {
			r.logger.Warn("Failed to decode document metadata",
				zap.String("id", id), zap.Error(err))
		}
	}
	return document.New(id, fields["text"], metadata)
}

// storeError tags a database failure so transport maps it to 503.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func encodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}
