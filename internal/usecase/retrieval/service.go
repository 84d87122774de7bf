package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
	"github.com/kailas-cloud/shopsearch/internal/usecase/fusion"
	"github.com/kailas-cloud/shopsearch/internal/usecase/rerank"
)

// Config holds pipeline tuning parameters.
type Config struct {
	// Alpha weights dense vs sparse RRF contributions, in [0,1].
	Alpha float64
	// RRFK is the reciprocal rank fusion constant.
	RRFK int
	// ChannelLimit is how many hits each channel query requests. Fetching
	// beyond the fusion limit improves coverage of the fused list.
	ChannelLimit int
	// FusionLimit caps each variant's fused list.
	FusionLimit int
	// RerankLimit caps the final reranked output.
	RerankLimit int
}

// Output carries one chat turn's retrieval artifacts: the final ordering for
// answer generation plus the pre-rerank candidates and judgments the
// asynchronous evaluation stage consumes.
type Output struct {
	Documents []result.ScoredDocument
	PreRerank []result.ScoredDocument
	Judgments []judgment.Judgment
}

// Service is the per-turn retrieval pipeline: expand the query into two
// variants, search both channels per variant concurrently, fuse, merge, and
// rerank.
type Service struct {
	store    Store
	embedder Embedder
	sparse   Vectorizer
	expander QueryExpander
	reranker rerank.Reranker
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval service.
func New(
	store Store, embedder Embedder, sparseVec Vectorizer,
	expander QueryExpander, reranker rerank.Reranker,
	cfg Config, logger *zap.Logger,
) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = fusion.DefaultK
	}
	if cfg.ChannelLimit <= 0 {
		cfg.ChannelLimit = 2 * cfg.FusionLimit
	}
	return &Service{
		store: store, embedder: embedder, sparse: sparseVec,
		expander: expander, reranker: reranker,
		cfg: cfg, logger: logger,
	}
}

// Retrieve runs the pipeline for one chat turn. Channel failures degrade to
// whichever channel succeeded; only a fully empty pipeline with a cancelled
// context returns an error.
func (s *Service) Retrieve(ctx context.Context, query string, history []string) (Output, error) {
	variants := s.queryVariants(ctx, query, history)

	fusedPerVariant := make([][]result.ScoredDocument, len(variants))
	for i, variant := range variants {
		fusedPerVariant[i] = s.searchVariant(ctx, variant)
	}

	merged := mergeMaxScore(fusedPerVariant)
	if len(merged) == 0 {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		s.logger.Warn("Retrieval produced no candidates", zap.String("query", query))
		return Output{}, nil
	}

	reranked, judgments := s.reranker.Rerank(ctx, query, merged, s.cfg.RerankLimit)

	return Output{
		Documents: reranked,
		PreRerank: merged,
		Judgments: judgments,
	}, nil
}

// queryVariants returns the rewritten literal query plus a hypothetical
// answer expansion. Either LLM call failing degrades to the raw query for
// that variant; duplicate variants collapse.
func (s *Service) queryVariants(ctx context.Context, query string, history []string) []string {
	rewritten, err := s.expander.Rewrite(ctx, query, history)
	if err != nil || strings.TrimSpace(rewritten) == "" {
		s.logger.Warn("Query rewrite failed, using raw query", zap.Error(err))
		rewritten = query
	}

	hypothetical, err := s.expander.HypotheticalAnswer(ctx, query)
	if err != nil || strings.TrimSpace(hypothetical) == "" {
		s.logger.Warn("Hypothetical answer expansion failed", zap.Error(err))
		return []string{rewritten}
	}

	if strings.TrimSpace(hypothetical) == strings.TrimSpace(rewritten) {
		return []string{rewritten}
	}
	return []string{rewritten, hypothetical}
}

// searchVariant queries the dense and sparse channels concurrently for one
// query variant and fuses the two rankings. A failed channel contributes an
// empty list; fusion handles the rest.
func (s *Service) searchVariant(ctx context.Context, variant string) []result.ScoredDocument {
	var dense, sparseHits []result.ScoredDocument

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		vector, err := s.embedder.Embed(gctx, variant)
		if err != nil {
			s.logger.Warn("Dense query embedding failed, skipping dense channel", zap.Error(err))
			metrics.ChannelSearchesTotal.WithLabelValues("dense", "error").Inc()
			return nil
		}
		hits, err := s.store.SearchDense(gctx, vector, s.cfg.ChannelLimit)
		metrics.ChannelSearchDuration.WithLabelValues("dense").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("Dense channel search failed", zap.Error(err))
			metrics.ChannelSearchesTotal.WithLabelValues("dense", "error").Inc()
			return nil
		}
		metrics.ChannelSearchesTotal.WithLabelValues("dense", "success").Inc()
		dense = hits
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		vec := s.sparse.Vectorize(gctx, variant)
		if vec.IsEmpty() {
			metrics.ChannelSearchesTotal.WithLabelValues("sparse", "empty_vector").Inc()
			return nil
		}
		hits, err := s.store.SearchSparse(gctx, vec, s.cfg.ChannelLimit)
		metrics.ChannelSearchDuration.WithLabelValues("sparse").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("Sparse channel search failed", zap.Error(err))
			metrics.ChannelSearchesTotal.WithLabelValues("sparse", "error").Inc()
			return nil
		}
		metrics.ChannelSearchesTotal.WithLabelValues("sparse", "success").Inc()
		sparseHits = hits
		return nil
	})

	// Channel goroutines swallow their own errors; Wait only joins.
	_ = g.Wait()

	return fusion.Fuse(dense, sparseHits, s.cfg.Alpha, s.cfg.RRFK, s.cfg.FusionLimit)
}

// mergeMaxScore deduplicates fused lists across query variants, keeping the
// highest fused score per document, sorted descending. Both lists carry
// fused-channel scores, so comparing them is sound.
func mergeMaxScore(lists [][]result.ScoredDocument) []result.ScoredDocument {
	best := make(map[string]result.ScoredDocument)
	order := make([]string, 0)

	for _, list := range lists {
		for _, doc := range list {
			id := doc.ID()
			existing, ok := best[id]
			if !ok {
				best[id] = doc
				order = append(order, id)
				continue
			}
			if doc.Score() > existing.Score() {
				best[id] = doc
			}
		}
	}

	merged := make([]result.ScoredDocument, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	// Stable: equal scores keep first-encounter order across variants.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score() > merged[j].Score()
	})
	return merged
}
