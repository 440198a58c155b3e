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

	"github.com/hexleaf/kbsearch/internal/config"
	"github.com/hexleaf/kbsearch/internal/db"
	dbRedis "github.com/hexleaf/kbsearch/internal/db/redis"
	"github.com/hexleaf/kbsearch/internal/domain"
	"github.com/hexleaf/kbsearch/internal/domain/tag"
	logpkg "github.com/hexleaf/kbsearch/internal/logger"
	"github.com/hexleaf/kbsearch/internal/metrics"
	accessrepo "github.com/hexleaf/kbsearch/internal/repository/access"
	catalogrepo "github.com/hexleaf/kbsearch/internal/repository/catalog"
	documentrepo "github.com/hexleaf/kbsearch/internal/repository/document"
	"github.com/hexleaf/kbsearch/internal/repository/embcache"
	searchrepo "github.com/hexleaf/kbsearch/internal/repository/search"
	chiTransport "github.com/hexleaf/kbsearch/internal/transport/chi"
	openaiEmb "github.com/hexleaf/kbsearch/internal/transport/openai"
	healthuc "github.com/hexleaf/kbsearch/internal/usecase/health"
	searchuc "github.com/hexleaf/kbsearch/internal/usecase/search"
	"github.com/hexleaf/kbsearch/internal/version"
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

	logger.Info("Starting kbsearch API server",
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

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	if err := ensureChunkIndex(ctx, store, cfg.Embedding.Dimensions, cfg.Index); err != nil {
		logger.Fatal("Failed to ensure chunk index", zap.Error(err))
	}

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	embedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories
	chunkRepo := searchrepo.New(store)
	accessGate := accessrepo.New(store)
	tagCatalog := catalogrepo.New(store)
	docNames := documentrepo.New(store)

	// Use case services
	searchSvc := searchuc.New(chunkRepo, accessGate, tagCatalog, docNames, embedder, logger)
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(credentialsFromConfig(cfg.Auth)))
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

// ensureChunkIndex creates the chunk FT index if it does not exist.
// The schema carries the fixed typed slot columns plus the eligibility
// and identity fields every query touches.
func ensureChunkIndex(ctx context.Context, store db.Store, dimensions int, idxCfg config.IndexConfig) error {
	exists, err := store.IndexExists(ctx, searchrepo.IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	b := db.NewIndex(searchrepo.IndexName).
		OnHash().
		Prefix(searchrepo.ChunkKeyPrefix).
		Tag("kb_id").
		Tag("chunk_id").
		Tag("document_id").
		Tag("doc_status").
		Tag("doc_enabled").
		Tag("doc_deleted").
		Numeric("chunk_index")

	for _, slot := range tag.Slots(tag.TypeText) {
		b.Tag(string(slot))
	}
	for _, slot := range tag.Slots(tag.TypeNumber) {
		b.Numeric(string(slot))
	}
	for _, slot := range tag.Slots(tag.TypeDate) {
		b.Numeric(string(slot))
	}
	for _, slot := range tag.Slots(tag.TypeBoolean) {
		b.Tag(string(slot))
	}

	def, err := b.
		VectorHNSW("embedding", dimensions, db.DistanceCosine, idxCfg.HNSWM, idxCfg.HNSWEFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// buildEmbedder assembles the embedder chain: OpenAI -> Cached.
func buildEmbedder(embCfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	return embcache.New(
		base,
		store,
		time.Duration(embCfg.CacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal,
		logger,
	)
}

func credentialsFromConfig(auth config.AuthConfig) []chiTransport.Credential {
	creds := make([]chiTransport.Credential, 0, len(auth.APIKeys))
	for _, k := range auth.APIKeys {
		creds = append(creds, chiTransport.Credential{
			Key: k.Key,
			Caller: domain.Caller{
				UserID:      k.UserID,
				WorkspaceID: k.WorkspaceID,
			},
		})
	}
	return creds
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one line per request
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
