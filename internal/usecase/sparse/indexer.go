package sparse

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

var errNoSource = errors.New("no document source configured")

// DocumentSource pages through stored document texts so an empty vocabulary
// can be rebuilt from the store at query time.
type DocumentSource interface {
	// ListTexts returns up to limit document texts starting at cursor, plus
	// the cursor for the next page. A returned cursor of 0 means exhausted.
	ListTexts(ctx context.Context, cursor uint64, limit int) ([]string, uint64, error)
}

// Config holds sparse indexer settings.
type Config struct {
	// MaxVocabSize caps the vocabulary by document-frequency rank.
	// Non-positive values leave the vocabulary uncapped.
	MaxVocabSize int
	// RebuildSampleSize bounds how many documents a lazy rebuild samples
	// from the store.
	RebuildSampleSize int
	// RebuildPageSize is the page size for rebuild reads.
	RebuildPageSize int
}

// Indexer builds a TF-IDF sparse representation for document batches and
// queries over a shared vocabulary/IDF table.
//
// The table is a single mutable cache replaced wholesale by Build. Reads and
// swaps are guarded by an RWMutex, so concurrent Vectorize calls are safe;
// concurrent rebuilds race benignly (last build wins, wasted work only).
type Indexer struct {
	mu    sync.RWMutex
	vocab map[string]int
	terms []string // reverse lookup, index -> term
	idf   map[string]float64

	cfg    Config
	source DocumentSource
	logger *zap.Logger
}

// NewIndexer creates a sparse indexer. source may be nil, in which case an
// empty vocabulary is never rebuilt and Vectorize degrades to empty vectors.
func NewIndexer(cfg Config, source DocumentSource, logger *zap.Logger) *Indexer {
	if cfg.RebuildSampleSize <= 0 {
		cfg.RebuildSampleSize = 1000
	}
	if cfg.RebuildPageSize <= 0 {
		cfg.RebuildPageSize = 100
	}
	return &Indexer{cfg: cfg, source: source, logger: logger}
}

// WithSource attaches the document source used for lazy rebuilds. Breaks the
// construction cycle with the repository, which needs the indexer as its term
// resolver.
func (ix *Indexer) WithSource(source DocumentSource) *Indexer {
	ix.source = source
	return ix
}

// Build tokenizes the batch, ranks terms by document frequency, and replaces
// the stored vocabulary/IDF table atomically.
// IDF uses the smoothed form ln((N+1)/(df+1)) + 1 with N = batch size.
func (ix *Indexer) Build(docs []document.Document) {
	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Text()
	}
	ix.buildFromTexts(texts)
}

func (ix *Indexer) buildFromTexts(texts []string) {
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	// Rank by document frequency, ties by term for determinism.
	ranked := make([]string, 0, len(df))
	for term := range df {
		ranked = append(ranked, term)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if df[ranked[i]] != df[ranked[j]] {
			return df[ranked[i]] > df[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if ix.cfg.MaxVocabSize > 0 && len(ranked) > ix.cfg.MaxVocabSize {
		ranked = ranked[:ix.cfg.MaxVocabSize]
	}

	vocab := make(map[string]int, len(ranked))
	idf := make(map[string]float64, len(ranked))
	n := float64(len(texts))
	for i, term := range ranked {
		vocab[term] = i
		idf[term] = math.Log((n+1)/float64(df[term]+1)) + 1
	}

	ix.mu.Lock()
	ix.vocab = vocab
	ix.terms = ranked
	ix.idf = idf
	ix.mu.Unlock()

	if ix.logger != nil {
		ix.logger.Info("Built sparse vocabulary",
			zap.Int("terms", len(ranked)), zap.Int("documents", len(texts)))
	}
}

// Vectorize computes the TF-IDF sparse vector for a text against the current
// vocabulary. Terms absent from the vocabulary are silently dropped.
//
// If the vocabulary is empty it first attempts a bounded rebuild from the
// document source; a failed rebuild is non-fatal and yields an empty vector,
// degrading retrieval to dense-only.
func (ix *Indexer) Vectorize(ctx context.Context, text string) Vector {
	if ix.vocabSize() == 0 {
		if err := ix.Rebuild(ctx); err != nil {
			if ix.logger != nil {
				ix.logger.Warn("Sparse vocabulary rebuild failed, returning empty vector",
					zap.Error(err))
			}
			return Vector{}
		}
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Vector{}
	}

	counts := make(map[string]int)
	for _, tok := range tokens {
		counts[tok]++
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := float64(len(tokens))
	indices := make([]int, 0, len(counts))
	values := make(map[int]float64, len(counts))
	for term, count := range counts {
		idx, ok := ix.vocab[term]
		if !ok {
			continue
		}
		tf := float64(count) / total
		indices = append(indices, idx)
		values[idx] = tf * ix.idf[term]
	}
	sort.Ints(indices)

	v := Vector{Indices: indices, Values: make([]float64, len(indices))}
	for i, idx := range indices {
		v.Values[i] = values[idx]
	}
	return v
}

// Rebuild repopulates the vocabulary from a bounded, paginated sample of
// stored documents. Callers needing mutual exclusion across goroutines
// should serialize calls themselves; overlapping rebuilds are tolerated.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	if ix.source == nil {
		metrics.VocabularyRebuildsTotal.WithLabelValues("error").Inc()
		return errNoSource
	}

	texts := make([]string, 0, ix.cfg.RebuildSampleSize)
	var cursor uint64
	for len(texts) < ix.cfg.RebuildSampleSize {
		page := ix.cfg.RebuildPageSize
		if remaining := ix.cfg.RebuildSampleSize - len(texts); remaining < page {
			page = remaining
		}
		batch, next, err := ix.source.ListTexts(ctx, cursor, page)
		if err != nil {
			metrics.VocabularyRebuildsTotal.WithLabelValues("error").Inc()
			return err
		}
		texts = append(texts, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}

	ix.buildFromTexts(texts)
	metrics.VocabularyRebuildsTotal.WithLabelValues("success").Inc()
	return nil
}

// ResolveTerms maps a sparse vector back to term -> weight pairs using the
// current vocabulary. Indices outside the vocabulary are skipped.
func (ix *Indexer) ResolveTerms(v Vector) map[string]float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]float64, len(v.Indices))
	for i, idx := range v.Indices {
		if idx < 0 || idx >= len(ix.terms) {
			continue
		}
		out[ix.terms[idx]] = v.Values[i]
	}
	return out
}

// VocabSize returns the current vocabulary size.
func (ix *Indexer) VocabSize() int { return ix.vocabSize() }

func (ix *Indexer) vocabSize() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vocab)
}
