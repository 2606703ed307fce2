// Package main is the entrypoint for the captchaocr API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/captchaocr/internal/api"
	"github.com/kiranshivaraju/captchaocr/internal/api/handler"
	"github.com/kiranshivaraju/captchaocr/internal/api/response"
	"github.com/kiranshivaraju/captchaocr/internal/cache"
	"github.com/kiranshivaraju/captchaocr/internal/config"
	"github.com/kiranshivaraju/captchaocr/internal/extract"
	"github.com/kiranshivaraju/captchaocr/internal/extract/provider"
	"github.com/kiranshivaraju/captchaocr/internal/jobs"
	"github.com/kiranshivaraju/captchaocr/internal/store"
)

const shutdownTimeout = 30 * time.Second

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
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store_backend", cfg.Store.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the job store
	jobStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Optional Redis cache
	var resultCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		resultCache = redisCache
		slog.Info("redis connected")
	} else {
		slog.Info("result cache disabled")
	}

	// 4. Create extraction provider
	extractor, err := provider.New(cfg.AI, extract.Options{
		HTTPClient: &http.Client{},
		MaxRetries: cfg.AI.MaxRetries,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create extraction provider: %w", err)
	}
	slog.Info("extraction provider initialized", "provider", extractor.Name())

	// 5. Job service
	svc := jobs.NewService(jobStore, resultCache, extractor, jobs.Options{
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		Timeout:       cfg.AI.InferenceTimeout,
		Instruction:   cfg.AI.Instruction,
		CacheTTL:      cfg.Redis.TTL,
	})

	// 6. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		HealthHandler: healthHandler(jobStore, resultCache),
		UploadHandler: handler.NewUploadHandler(svc),
		ResultHandler: handler.NewResultHandler(svc),
	})

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("extraction jobs still running at shutdown deadline", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore builds the configured job store and returns a matching close func.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return store.NewPostgresStore(pool), pool.Close, nil
	default:
		fs := store.NewFileStore(cfg.Store.FilePath)
		if err := fs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("open job store %s: %w", fs.Path(), err)
		}
		slog.Info("file job store ready", "path", fs.Path())
		return fs, func() {}, nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// healthHandler checks store and cache connectivity. A nil cache reports "disabled".
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store": "ok",
			"cache": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["store"] == "degraded" || checks["cache"] == "degraded" {
			response.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":    "one or more services degraded",
				"services": checks,
			})
			return
		}

		response.OK(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
