package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/config"
	dbRedis "github.com/kailas-cloud/shopsearch/internal/db/redis"
	logpkg "github.com/kailas-cloud/shopsearch/internal/logger"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
	feedbackrepo "github.com/kailas-cloud/shopsearch/internal/repository/feedback"
	storerepo "github.com/kailas-cloud/shopsearch/internal/repository/store"
	chiTransport "github.com/kailas-cloud/shopsearch/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/shopsearch/internal/transport/openai"
	evaluateuc "github.com/kailas-cloud/shopsearch/internal/usecase/evaluate"
	healthuc "github.com/kailas-cloud/shopsearch/internal/usecase/health"
	indexuc "github.com/kailas-cloud/shopsearch/internal/usecase/index"
	rerankuc "github.com/kailas-cloud/shopsearch/internal/usecase/rerank"
	retrievaluc "github.com/kailas-cloud/shopsearch/internal/usecase/retrieval"
	sparseuc "github.com/kailas-cloud/shopsearch/internal/usecase/sparse"
	"github.com/kailas-cloud/shopsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting shopsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterLLMMetrics()

	llm := openaiTransport.New(&openaiTransport.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		ChatModel:      cfg.LLM.ChatModel,
		Dimensions:     cfg.LLM.Dimensions,
		User:           cfg.LLM.User,
		Logger:         logger,
	})

	// The indexer resolves term ids for the repository; the repository pages
	// stored texts for the indexer's lazy rebuilds. Wire the cycle explicitly.
	indexer := sparseuc.NewIndexer(sparseuc.Config{
		MaxVocabSize:      cfg.Sparse.MaxVocabSize,
		RebuildSampleSize: cfg.Sparse.RebuildSampleSize,
		RebuildPageSize:   cfg.Sparse.RebuildPageSize,
	}, nil, logger)
	repo := storerepo.New(store, indexer, cfg.LLM.Dimensions, logger)
	indexer.WithSource(repo)

	if err := repo.EnsureIndex(ctx, cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	var reranker rerankuc.Reranker
	switch rerankuc.Kind(cfg.Retrieval.Reranker) {
	case rerankuc.KindLLM:
		reranker = rerankuc.NewLLM(llm, logger)
	default:
		reranker = rerankuc.NewBM25(logger)
	}
	logger.Info("Reranker selected", zap.String("kind", cfg.Retrieval.Reranker))

	retrievalSvc := retrievaluc.New(repo, llm, indexer, llm, reranker, retrievaluc.Config{
		Alpha:        cfg.Retrieval.Alpha,
		RRFK:         cfg.Retrieval.RRFK,
		ChannelLimit: cfg.Retrieval.ChannelLimit,
		FusionLimit:  cfg.Retrieval.FusionLimit,
		RerankLimit:  cfg.Retrieval.RerankLimit,
	}, logger)

	indexSvc := indexuc.New(indexer, llm, repo, logger)

	evalMetrics := evaluateuc.NewMetrics(cfg.Evaluation.RelevanceThreshold, logger)
	evalSvc := evaluateuc.NewService(evalMetrics, feedbackrepo.New(store), cfg.Evaluation.KValues, logger)

	healthSvc := healthuc.New(store, llm)

	server := chiTransport.NewServer(retrievalSvc, indexSvc, evalSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
