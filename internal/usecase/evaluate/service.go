package evaluate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/judgment"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/result"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// Record is the flat evaluation payload handed to the feedback sink.
type Record struct {
	RequestID string              `json:"request_id"`
	Query     string              `json:"query"`
	Metrics   Result              `json:"metrics"`
	Judgments []judgment.Judgment `json:"judgments"`
	CreatedAt time.Time           `json:"created_at"`
}

// Sink persists evaluation records and serves the latest one back to the
// downstream dashboard.
type Sink interface {
	SaveEvaluation(ctx context.Context, rec Record) error
	LatestEvaluation(ctx context.Context) (Record, error)
}

// Service runs the asynchronous retrieval-quality evaluation for one chat
// turn: pre-rerank candidates scored against reranker judgments.
type Service struct {
	metrics *Metrics
	sink    Sink
	kValues []int
	logger  *zap.Logger
}

// NewService creates an evaluation service. sink may be nil (metrics are
// still exported to Prometheus). Empty kValues fall back to DefaultKValues.
func NewService(m *Metrics, sink Sink, kValues []int, logger *zap.Logger) *Service {
	if len(kValues) == 0 {
		kValues = DefaultKValues
	}
	return &Service{metrics: m, sink: sink, kValues: kValues, logger: logger}
}

// Evaluate computes retrieval metrics for one query, exports them, and
// persists a feedback record. Judgments are consumed here and not retained.
// A sink failure degrades to export-only and is reported as an error the
// caller may log.
func (s *Service) Evaluate(
	ctx context.Context, requestID, query string,
	preRerank []result.ScoredDocument, judgments []judgment.Judgment,
) (Result, error) {
	retrieved := make([]RetrievedDoc, len(preRerank))
	for i := range preRerank {
		text := preRerank[i].Document().Text()
		// Content-derived ids: judgments from the reranker use the same
		// scheme, so the two sides join on identical keys.
		retrieved[i] = RetrievedDoc{
			DocID: document.StableID(text),
			Text:  text,
			Score: preRerank[i].Score(),
		}
	}

	res := s.metrics.ComputeAllMetrics(retrieved, judgments, s.kValues)

	for name, value := range res.Fields() {
		metrics.RetrievalQuality.WithLabelValues(name).Set(value)
	}

	s.logger.Info("Computed retrieval metrics",
		zap.String("request_id", requestID),
		zap.Float64("recall_at_5", res.RecallAt5),
		zap.Float64("ndcg_at_5", res.NDCGAt5),
		zap.Float64("mrr", res.MRR),
		zap.Int("num_relevant_docs", res.NumRelevantDocs),
		zap.Int("num_retrieved_docs", res.NumRetrievedDocs))

	if s.sink != nil {
		rec := Record{
			RequestID: requestID,
			Query:     query,
			Metrics:   res,
			Judgments: judgments,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.sink.SaveEvaluation(ctx, rec); err != nil {
			metrics.EvaluationsTotal.WithLabelValues("sink_error").Inc()
			return res, fmt.Errorf("save evaluation: %w", err)
		}
	}

	metrics.EvaluationsTotal.WithLabelValues("success").Inc()
	return res, nil
}

// Latest returns the most recently persisted evaluation record. Without a
// sink there is nothing to read back.
func (s *Service) Latest(ctx context.Context) (Record, error) {
	if s.sink == nil {
		return Record{}, domain.ErrNotFound
	}
	return s.sink.LatestEvaluation(ctx)
}
