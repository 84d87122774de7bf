package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	evaluateuc "github.com/kailas-cloud/shopsearch/internal/usecase/evaluate"
	healthuc "github.com/kailas-cloud/shopsearch/internal/usecase/health"
	indexuc "github.com/kailas-cloud/shopsearch/internal/usecase/index"
	retrievaluc "github.com/kailas-cloud/shopsearch/internal/usecase/retrieval"
)

const (
	maxBatchSize    = 500
	maxHistoryTurns = 20
	evaluateTimeout = 30 * time.Second
)

// ErrorCode is the machine-readable error class in error responses.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeNotFound         ErrorCode = "not_found"
	CodeLLMProviderError ErrorCode = "llm_provider_error"
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is one chat turn's retrieval request.
type SearchRequest struct {
	Query   string   `json:"query"`
	History []string `json:"history,omitempty"`
}

// SearchResultItem is one retrieved chunk.
type SearchResultItem struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Channel  string         `json:"channel"`
}

// SearchResponse carries the reranked chunks for answer generation.
type SearchResponse struct {
	RequestID string             `json:"request_id"`
	Items     []SearchResultItem `json:"items"`
	Total     int                `json:"total"`
}

// IndexDocument is one document in a batch indexing request.
type IndexDocument struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexRequest is a batch indexing request.
type IndexRequest struct {
	Documents []IndexDocument `json:"documents"`
}

// IndexResponse reports how many documents were indexed.
type IndexResponse struct {
	Indexed int `json:"indexed"`
}

// HealthResponse reports aggregated component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server exposes the retrieval pipeline over HTTP.
type Server struct {
	retrieval *retrievaluc.Service
	index     *indexuc.Service
	evaluator *evaluateuc.Service
	health    *healthuc.Service
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	index *indexuc.Service,
	evaluator *evaluateuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		retrieval: retrieval,
		index:     index,
		evaluator: evaluator,
		health:    health,
		logger:    logger,
	}
}

// Routes mounts the API on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/v1/search", s.Search)
	r.Post("/api/v1/documents/batch", s.IndexDocuments)
	r.Get("/api/v1/evaluations/latest", s.LatestEvaluation)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles POST /api/v1/search. The response is the reranked chunk
// list; retrieval-quality evaluation runs in the background after the
// response is sent and never delays or fails the turn.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}
	if len(req.History) > maxHistoryTurns {
		req.History = req.History[len(req.History)-maxHistoryTurns:]
	}

	out, err := s.retrieval.Retrieve(r.Context(), req.Query, req.History)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	requestID := chiMiddleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	items := make([]SearchResultItem, len(out.Documents))
	for i, doc := range out.Documents {
		items[i] = SearchResultItem{
			ID:       doc.ID(),
			Score:    doc.Score(),
			Text:     doc.Document().Text(),
			Metadata: doc.Document().Metadata(),
			Channel:  doc.Channel().String(),
		}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		RequestID: requestID,
		Items:     items,
		Total:     len(items),
	})

	// Pass-through turns produce no judgments; nothing to grade.
	if len(out.Judgments) > 0 {
		go s.evaluateAsync(requestID, req.Query, out)
	}
}

// evaluateAsync grades the turn's retrieval quality off the request path.
func (s *Server) evaluateAsync(requestID, query string, out retrievaluc.Output) {
	defer func() {
		if rvr := recover(); rvr != nil {
			s.logger.Error("Evaluation panicked", zap.Any("panic", rvr))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()

	if _, err := s.evaluator.Evaluate(ctx, requestID, query, out.PreRerank, out.Judgments); err != nil {
		s.logger.Warn("Evaluation failed",
			zap.String("request_id", requestID), zap.Error(err))
	}
}

// LatestEvaluation handles GET /api/v1/evaluations/latest: the most recent
// retrieval-quality record for the feedback dashboard.
func (s *Server) LatestEvaluation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.evaluator.Latest(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// IndexDocuments handles POST /api/v1/documents/batch.
func (s *Server) IndexDocuments(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Documents) == 0 || len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"documents count must be between 1 and 500")
		return
	}

	docs := make([]document.Document, 0, len(req.Documents))
	for i, d := range req.Documents {
		if d.Text == "" {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				"document "+chiDocLabel(i, d.ID)+" has empty text")
			return
		}
		docs = append(docs, document.New(d.ID, d.Text, d.Metadata))
	}

	if err := s.index.IndexBatch(r.Context(), docs); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IndexResponse{Indexed: len(docs)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, CodeValidationFailed, domain.ErrEmptyBatch.Error())
	case errors.Is(err, domain.ErrLLMUnavailable):
		writeError(w, http.StatusBadGateway, CodeLLMProviderError, domain.ErrLLMUnavailable.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, domain.ErrStoreUnavailable.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, CodeBadRequest, "request cancelled")
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func chiDocLabel(i int, id string) string {
	if id != "" {
		return id
	}
	return "#" + strconv.Itoa(i)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
