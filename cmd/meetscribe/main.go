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

	"github.com/meetscribe/meetscribe/internal/chat"
	"github.com/meetscribe/meetscribe/internal/config"
	dbRedis "github.com/meetscribe/meetscribe/internal/db/redis"
	"github.com/meetscribe/meetscribe/internal/domain"
	"github.com/meetscribe/meetscribe/internal/index"
	logpkg "github.com/meetscribe/meetscribe/internal/logger"
	"github.com/meetscribe/meetscribe/internal/media"
	"github.com/meetscribe/meetscribe/internal/metrics"
	"github.com/meetscribe/meetscribe/internal/quality"
	"github.com/meetscribe/meetscribe/internal/realtime"
	"github.com/meetscribe/meetscribe/internal/repository/embcache"
	meetingrepo "github.com/meetscribe/meetscribe/internal/repository/meeting"
	"github.com/meetscribe/meetscribe/internal/repository/snapshot"
	chiTransport "github.com/meetscribe/meetscribe/internal/transport/chi"
	openaiTransport "github.com/meetscribe/meetscribe/internal/transport/openai"
	"github.com/meetscribe/meetscribe/internal/transport/vosk"
	"github.com/meetscribe/meetscribe/internal/transport/whisper"
	"github.com/meetscribe/meetscribe/internal/transport/ws"
	"github.com/meetscribe/meetscribe/internal/version"
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

	logger.Info("Starting meetscribe server",
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
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRealtimeMetrics()

	// Embedder chain: OpenAI -> Cached -> Instruction (outermost, so the
	// cache key includes the instruction prefix)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)

	var docEmbedder index.BatchEmbedder = cached
	if cfg.Embedding.DocumentInstruction != "" {
		docEmbedder = domain.NewInstructionEmbedder(cached, cfg.Embedding.DocumentInstruction)
	}
	var queryEmbedder index.Embedder = cached
	if cfg.Embedding.QueryInstruction != "" {
		queryEmbedder = domain.NewInstructionEmbedder(cached, cfg.Embedding.QueryInstruction)
	}
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Model:    cfg.Generation.Model,
		Provider: cfg.Generation.Provider,
		Logger:   logger,
	})

	// Index engine over the snapshot store
	snapshots := snapshot.New(store, logger)
	engine := index.NewEngine(docEmbedder, queryEmbedder, snapshots, index.Options{
		ChunkSize:           cfg.Index.ChunkSize,
		ChunkOverlap:        cfg.Index.ChunkOverlap,
		MinChunkChars:       cfg.Index.MinChunkChars,
		SimilarityThreshold: cfg.Index.SimilarityThreshold,
	}, logger)
	if err := engine.Load(ctx); err != nil {
		logger.Warn("Index snapshot not loaded, starting empty", zap.Error(err))
	}
	logger.Info("Index ready", zap.Int("chunks", engine.Len()))

	meetings := meetingrepo.New(store)

	// Transcription engines
	voskFactory := vosk.NewFactory(cfg.Engines.StreamURL, 5*time.Second, logger)
	if err := voskFactory.Probe(ctx); err != nil {
		logger.Warn("Stream engine not reachable, sessions will fall back to batch", zap.Error(err))
	}
	transcriber := whisper.New(&whisper.Config{
		BaseURL: cfg.Engines.BatchURL,
		Model:   cfg.Engines.BatchModel,
		Timeout: time.Duration(cfg.Engines.BatchTimeoutSec) * time.Second,
		Logger:  logger,
	})
	converter := media.NewConverter(os.TempDir(), logger)

	suggester := realtime.NewSuggester(engine, generator, realtime.SuggesterOptions{
		TopK:      cfg.Realtime.SuggestionTopK,
		TailChars: cfg.Realtime.TranscriptTailChars,
		Window:    cfg.Realtime.SuggestionWindow(),
		FPChars:   cfg.Realtime.FingerprintChars,
		Timeout:   cfg.Realtime.GenerationTimeout(),
		PoolSize:  int64(cfg.Realtime.WorkerPoolSize),
	}, logger)

	manager := realtime.NewManager(
		voskFactory,
		transcriber,
		converter,
		quality.NewValidator(),
		suggester,
		realtime.Options{
			SampleRate:         cfg.Engines.SampleRate,
			MinSuggestionConf:  cfg.Realtime.MinSuggestionConf,
			MinSuggestionChars: cfg.Realtime.MinSuggestionChars,
		},
		logger,
	)

	chatSvc := chat.NewService(engine, meetings, generator, chat.Options{
		SearchTopK:      10,
		RecentFallback:  5,
		ContextMeetings: 5,
		ExcerptChars:    500,
	}, logger)

	server := chiTransport.NewServer(
		chatSvc, engine, meetings, manager, store, base, cfg.Index.SearchTopK, logger,
	)
	wsHandler := ws.NewHandler(manager, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Method(http.MethodGet, "/v1/realtime", wsHandler)

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

	if n := manager.ClearAll(); n > 0 {
		logger.Info("Closed live sessions", zap.Int("sessions", n))
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
