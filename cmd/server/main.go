// Package main is the entrypoint for the review execution API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/reviewexec/internal/ai"
	"github.com/kiranshivaraju/reviewexec/internal/api"
	"github.com/kiranshivaraju/reviewexec/internal/api/handler"
	mw "github.com/kiranshivaraju/reviewexec/internal/api/middleware"
	"github.com/kiranshivaraju/reviewexec/internal/api/response"
	"github.com/kiranshivaraju/reviewexec/internal/blob"
	"github.com/kiranshivaraju/reviewexec/internal/blob/local"
	"github.com/kiranshivaraju/reviewexec/internal/blob/s3"
	"github.com/kiranshivaraju/reviewexec/internal/cache"
	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/internal/docstore"
	"github.com/kiranshivaraju/reviewexec/internal/notify"
	"github.com/kiranshivaraju/reviewexec/internal/review"
	"github.com/kiranshivaraju/reviewexec/internal/statestore"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

const (
	shutdownTimeout = 30 * time.Second
	tracerName      = "github.com/kiranshivaraju/reviewexec"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"env", cfg.Server.Env,
		"state_store", cfg.State.Backend,
		"blob_backend", cfg.Blob.Backend,
		"max_parallel_workers", cfg.Review.MaxParallelWorkers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	if c, ok := aiProvider.(io.Closer); ok {
		defer c.Close()
	}
	assistant := ai.NewReviewAssistant(aiProvider, cfg.AI.InferenceTimeout)
	slog.Info("AI provider initialized", "provider", assistant.ProviderName())

	// 6. Create stores
	pgStore := store.NewPostgresStore(pool)
	documents := docstore.New(pool, assistant)

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	var states store.StateStore = pgStore
	if cfg.State.Backend == "sqlite" {
		sqliteStore, err := statestore.NewSQLiteStore(ctx, cfg.State.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite state store: %w", err)
		}
		defer sqliteStore.Close()
		states = sqliteStore
	}

	// 7. Observability
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := review.NewMetrics(registry)

	tracerProvider, err := telemetry.NewTracerProvider(cfg.Tracing, slog.Default())
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tracerProvider)
	slog.Info("tracing initialized", "exporter", cfg.Tracing.Exporter)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer provider shutdown", "error", err)
		}
	}()

	relay := notify.NewRelay(cfg.Review.NotifyBuffer, notify.NewRedisPublisher(redisCache), notify.LogPublisher{})

	// 8. Wire the review pipeline
	pipeline := review.NewPipeline(review.Config{
		MaxParallelWorkers: cfg.Review.MaxParallelWorkers,
		SlotTimeout:        cfg.Review.SlotTimeout,
		DispatchStagger:    cfg.Review.DispatchStagger,
		QuestionCacheTTL:   cfg.Review.QuestionCacheTTL,
		AccessBaseURL:      cfg.Blob.AccessBaseURL,
	}, review.Dependencies{
		Repository: pgStore,
		States:     states,
		Cache:      redisCache,
		Blobs:      blobs,
		Documents:  documents,
		Sentiment:  assistant,
		Notifier:   relay,
		Metrics:    metrics,
		Tracer:     tracerProvider.Tracer(tracerName),
	})

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit),

		HealthHandler:       healthHandler(pgStore, redisCache),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ExecuteHandler:      handler.NewExecuteReviewHandler(pipeline),
		GetExecutionHandler: handler.NewGetExecutionHandler(pipeline),
		ListAnswersHandler:  handler.NewListAnswersHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := pipeline.Wait(shutdownCtx); err != nil {
		slog.Warn("review work still running at shutdown", "error", err)
	}
	if err := relay.Close(shutdownCtx); err != nil {
		slog.Warn("notification relay did not drain", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	if cfg.Backend == "s3" {
		st, err := s3.New(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return local.New(cfg.LocalDir), nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
