// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes gateway settings such
// as server timeouts, logging, the relational store, object storage, the work
// queue, upload limits, rate limiting, and observability.
//
// Secrets (database DSNs, storage credentials, queue signing secrets) are only
// ever read from the environment; there are no built-in production values.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "dental-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path (sqlite driver)
	URL    string // Postgres DSN (postgres driver)
}

// StorageConfig configures the object store holding source images and
// oversized inference results.
type StorageConfig struct {
	Driver       string // memory|s3
	Endpoint     string // S3_ENDPOINT, empty for AWS
	Region       string
	AccessKey    string
	SecretKey    string
	ImageBucket  string
	ResultBucket string
	UsePathStyle bool // required by MinIO and most S3-compatible servers
}

// QueueConfig configures the inference work queue.
type QueueConfig struct {
	Driver        string // log|redis|webhook
	Name          string // redis list key
	WebhookURL    string
	WebhookSecret string
	Timeout       time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Backing services
	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	RedisURL string

	// Submissions
	MaxImageBytes     int64         // hard ceiling for a single image part
	JobTTL            time.Duration // expires_at = created_at + JobTTL
	BackgroundWorkers int           // concurrent fire-and-forget side effects
	BackgroundTimeout time.Duration // per side-effect deadline

	// Rate limiting
	RateRPS          float64 // default tokens per second per credential
	RateBurst        int
	RateLimitBackend string // memory|redis

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 60*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 120*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/v1")),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "gateway.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(getenv("STORAGE_DRIVER", "memory")),
			Endpoint:     getenv("S3_ENDPOINT", ""),
			Region:       getenv("S3_REGION", "us-east-1"),
			AccessKey:    getenv("S3_ACCESS_KEY", ""),
			SecretKey:    getenv("S3_SECRET_KEY", ""),
			ImageBucket:  getenv("S3_IMAGE_BUCKET", "radiographs"),
			ResultBucket: getenv("S3_RESULT_BUCKET", "results"),
			UsePathStyle: getbool("S3_USE_PATH_STYLE", true),
		},
		Queue: QueueConfig{
			Driver:        strings.ToLower(getenv("QUEUE_DRIVER", "log")),
			Name:          getenv("QUEUE_NAME", "inference-jobs"),
			WebhookURL:    getenv("QUEUE_WEBHOOK_URL", ""),
			WebhookSecret: getenv("QUEUE_WEBHOOK_SECRET", ""),
			Timeout:       getdur("QUEUE_TIMEOUT", 10*time.Second),
		},
		RedisURL: getenv("REDIS_URL", ""),

		MaxImageBytes:     getint64("MAX_IMAGE_BYTES", 20<<20),
		JobTTL:            getdur("JOB_TTL", time.Hour),
		BackgroundWorkers: getint("BACKGROUND_WORKERS", 16),
		BackgroundTimeout: getdur("BACKGROUND_TIMEOUT", 15*time.Second),

		// Rate limiting
		RateRPS:          getfloat("RATE_RPS", 5.0),
		RateBurst:        getint("RATE_BURST", 10),
		RateLimitBackend: strings.ToLower(getenv("RATE_LIMIT_BACKEND", "memory")),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "dental-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting in cfg.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "s3":
		if cfg.Storage.AccessKey == "" || cfg.Storage.SecretKey == "" {
			return errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_DRIVER=s3")
		}
	default:
		return errors.New("STORAGE_DRIVER must be one of: memory, s3")
	}
	if cfg.Storage.ImageBucket == "" || cfg.Storage.ResultBucket == "" {
		return errors.New("S3_IMAGE_BUCKET and S3_RESULT_BUCKET must not be empty")
	}

	switch cfg.Queue.Driver {
	case "log":
	case "redis":
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when QUEUE_DRIVER=redis")
		}
	case "webhook":
		if cfg.Queue.WebhookURL == "" || cfg.Queue.WebhookSecret == "" {
			return errors.New("QUEUE_WEBHOOK_URL and QUEUE_WEBHOOK_SECRET are required when QUEUE_DRIVER=webhook")
		}
	default:
		return errors.New("QUEUE_DRIVER must be one of: log, redis, webhook")
	}

	if cfg.MaxImageBytes <= 0 {
		return errors.New("MAX_IMAGE_BYTES must be > 0")
	}
	if cfg.JobTTL <= 0 {
		return errors.New("JOB_TTL must be > 0")
	}
	if cfg.BackgroundWorkers < 1 {
		return errors.New("BACKGROUND_WORKERS must be >= 1")
	}
	if cfg.BackgroundTimeout <= 0 {
		return errors.New("BACKGROUND_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	switch cfg.RateLimitBackend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return errors.New("RATE_LIMIT_BACKEND must be one of: memory, redis")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
