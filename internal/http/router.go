// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Every /v1 route is authenticated; /health is not
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/dental-gateway/docs"
	"github.com/tbourn/dental-gateway/internal/background"
	"github.com/tbourn/dental-gateway/internal/config"
	"github.com/tbourn/dental-gateway/internal/http/handlers"
	"github.com/tbourn/dental-gateway/internal/http/middleware"
	"github.com/tbourn/dental-gateway/internal/queue"
	"github.com/tbourn/dental-gateway/internal/repo"
	"github.com/tbourn/dental-gateway/internal/services"
	"github.com/tbourn/dental-gateway/internal/storage"
)

const (
	// defaultBodyLimit caps bodies on every route except submission.
	defaultBodyLimit = 1 << 20
	// multipartOverhead is allowed on top of the image ceiling for
	// boundaries, part headers and the text fields.
	multipartOverhead = 1 << 20
)

// Deps are the backing services the routes need.
type Deps struct {
	DB         *gorm.DB
	Buckets    storage.Buckets
	Queue      queue.Publisher
	Background *background.Runner
	// Limiter backs per-credential rate limiting; nil uses an in-memory
	// limiter.
	Limiter middleware.Limiter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret masking
//  4. Recovery: capture panics after logger
//  5. Body size limiter (per route)
//  6. Metrics
//  7. CORS, security headers and gzip
//
// Versioned routes then run Auth, the idempotency validator (submission
// only, so replays can skip the limiter) and the rate limiter.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (X-API-Key is masked by default)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to the JSON envelope (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limits; submission gets room for one full image
	apiBase := cfg.APIBasePath
	submitPath := joinPath(apiBase, "/submit-analysis")
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		submitPath: cfg.MaxImageBytes + multipartOverhead,
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS, security headers, compression
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "Endpoint not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "Method not allowed")
	})

	// Liveness/health
	health := handlers.Health{
		Database: func(ctx context.Context) error { return repo.Ping(ctx, deps.DB) },
	}
	if deps.Buckets.Images != nil {
		health.Storage = deps.Buckets.Images.Ping
	}
	r.GET("/health", health.Check)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/storage/queue
	usage := &services.UsageRecorder{DB: deps.DB, Background: deps.Background}
	submitSvc := &services.SubmissionService{
		DB:             deps.DB,
		Images:         deps.Buckets.Images,
		Queue:          deps.Queue,
		Background:     deps.Background,
		Usage:          usage,
		JobTTL:         cfg.JobTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	resultSvc := &services.ResultService{DB: deps.DB, Results: deps.Buckets.Results, Usage: usage}
	authSvc := &services.AuthService{DB: deps.DB, Background: deps.Background}
	h := handlers.New(submitSvc, resultSvc, cfg.MaxImageBytes)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter()
	}
	rateLimit := middleware.RateLimit(limiter, middleware.Quota{Rate: cfg.RateRPS, Burst: cfg.RateBurst})
	idempotency := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, submitSvc.HasReplay)

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.Auth(authSvc.Verify))
	{
		api.POST("/submit-analysis", idempotency, rateLimit, h.SubmitAnalysis)
		api.GET("/get-result", rateLimit, h.GetResult)
	}
}

// corsMiddleware returns the CORS posture for the configured origins (safe
// defaults: allow all if none configured).
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Retry-After"}
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size using
// http.MaxBytesReader. perRoute overrides def for matched route patterns.
// Requests exceeding the cap will cause downstream body reads to error.
func limitBody(def int64, perRoute map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := def
		if n, ok := perRoute[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to a normalized base path.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
