package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/config"
	httpapi "github.com/tbourn/dental-gateway/internal/http"
	"github.com/tbourn/dental-gateway/internal/http/middleware"
	"github.com/tbourn/dental-gateway/internal/observability"
	"github.com/tbourn/dental-gateway/internal/queue"
	"github.com/tbourn/dental-gateway/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		Long: `Start the HTTP server exposing /v1/submit-analysis, /v1/get-result, /health
and /metrics. SIGINT or SIGTERM drains in-flight requests and background tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	// 1. Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// 2. Relational store
	db, closeDB, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	log.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	// 3. Object store
	buckets, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("object store ready")

	// 4. Work queue
	pub, err := queue.Open(cfg.Queue, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("close queue")
		}
	}()
	log.Info().Str("driver", cfg.Queue.Driver).Msg("queue ready")

	// 5. Rate limiter
	limiter, closeLimiter, err := openLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 6. Background side effects; drained before the queue and DB close
	runner := background.New(cfg.BackgroundWorkers, cfg.BackgroundTimeout)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn().Err(err).Msg("close background runner")
		}
		overflow, failed := runner.Stats()
		log.Info().Int64("overflow", overflow).Int64("failed", failed).Msg("background runner drained")
	}()

	// 7. HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:         db,
		Buckets:    buckets,
		Queue:      pub,
		Background: runner,
		Limiter:    limiter,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining connections")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// openLimiter builds the per-credential limiter selected by
// RATE_LIMIT_BACKEND. The returned func releases it.
func openLimiter(cfg config.Config) (middleware.Limiter, func(), error) {
	switch cfg.RateLimitBackend {
	case "redis":
		l, err := middleware.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis limiter: %w", err)
		}
		return l, func() {
			if err := l.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis limiter")
			}
		}, nil
	default:
		return middleware.NewRateLimiter(), func() {}, nil
	}
}
