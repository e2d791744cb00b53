package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	pkgconfig "github.com/utafrali/EcommerceGo/storefront/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Remote catalog API
	CatalogBaseURL        string        `env:"CATALOG_BASE_URL" envDefault:"https://dummyjson.com"`
	CatalogTimeout        time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	CatalogBulkSampleSize int           `env:"CATALOG_BULK_SAMPLE_SIZE" envDefault:"100"`
	CatalogRPS            float64       `env:"CATALOG_RATE_LIMIT_RPS" envDefault:"10"`
	CatalogBurst          int           `env:"CATALOG_RATE_LIMIT_BURST" envDefault:"20"`

	// Circuit breaker settings for the catalog API
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Query cache
	CacheListingStale    time.Duration `env:"CACHE_LISTING_STALE" envDefault:"5m"`
	CacheCategoriesStale time.Duration `env:"CACHE_CATEGORIES_STALE" envDefault:"30m"`
	CacheSearchStale     time.Duration `env:"CACHE_SEARCH_STALE" envDefault:"2m"`
	CacheProductStale    time.Duration `env:"CACHE_PRODUCT_STALE" envDefault:"0s"`
	CacheRetention       time.Duration `env:"CACHE_RETENTION" envDefault:"10m"`
	CacheGCInterval      time.Duration `env:"CACHE_GC_INTERVAL" envDefault:"1m"`
	CacheRetry           int           `env:"CACHE_RETRY" envDefault:"3"`
	CacheRetryDelay      time.Duration `env:"CACHE_RETRY_DELAY" envDefault:"1s"`
	CacheMaxRetryDelay   time.Duration `env:"CACHE_MAX_RETRY_DELAY" envDefault:"30s"`
	SearchLimit          int           `env:"SEARCH_LIMIT" envDefault:"100"`

	// Redis shared cache. Empty address disables it.
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPass      string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"storefront:qc:"`
	RedisPoolSize  int           `env:"REDIS_POOL_SIZE" envDefault:"0"`
	RedisTimeout   time.Duration `env:"REDIS_TIMEOUT" envDefault:"500ms"`

	// Redis commands slower than this are logged. Zero disables it.
	RedisSlowThreshold time.Duration `env:"REDIS_SLOW_COMMAND_THRESHOLD" envDefault:"100ms"`

	// Kafka cache invalidation fan-out. No brokers disables it.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// JWT authentication for catalog mutations. Empty leaves them open.
	JWTSecret string `env:"JWT_SECRET"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Listing sessions
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SessionSecureCookie  bool          `env:"SESSION_SECURE_COOKIE" envDefault:"false"`
	ListingPageSize      int           `env:"LISTING_PAGE_SIZE" envDefault:"20"`
	CategoriesMaxAge     time.Duration `env:"CATEGORIES_MAX_AGE" envDefault:"10m"`

	// Inbound rate limiting per client IP. Zero RPS disables it.
	// Proxy trust keys clients by X-Forwarded-For instead of the socket.
	RateLimitRPS        float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst      int     `env:"RATE_LIMIT_BURST" envDefault:"100"`
	RateLimitTrustProxy bool    `env:"RATE_LIMIT_TRUST_PROXY" envDefault:"false"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporter   string  `env:"OTEL_EXPORTER" envDefault:"otlp"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisEnabled reports whether a shared cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// KafkaEnabled reports whether invalidations fan out over Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if _, err := url.ParseRequestURI(c.CatalogBaseURL); err != nil {
		return fmt.Errorf("CATALOG_BASE_URL is not a valid URL: %w", err)
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be positive, got %s", c.CatalogTimeout)
	}
	if c.CatalogBulkSampleSize < 1 {
		return fmt.Errorf("CATALOG_BULK_SAMPLE_SIZE must be at least 1, got %d", c.CatalogBulkSampleSize)
	}
	if c.CatalogRPS < 0 || c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	for name, d := range map[string]time.Duration{
		"CACHE_LISTING_STALE":    c.CacheListingStale,
		"CACHE_CATEGORIES_STALE": c.CacheCategoriesStale,
		"CACHE_SEARCH_STALE":     c.CacheSearchStale,
		"CACHE_PRODUCT_STALE":    c.CacheProductStale,
		"CACHE_RETRY_DELAY":      c.CacheRetryDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.CacheRetention <= 0 || c.CacheGCInterval <= 0 {
		return fmt.Errorf("CACHE_RETENTION and CACHE_GC_INTERVAL must be positive")
	}
	if c.CacheRetry < 0 {
		return fmt.Errorf("CACHE_RETRY must not be negative, got %d", c.CacheRetry)
	}
	if c.SearchLimit < 1 || c.SearchLimit > 100 {
		return fmt.Errorf("SEARCH_LIMIT must be between 1 and 100, got %d", c.SearchLimit)
	}
	if !domain.IsValidPageSize(c.ListingPageSize) {
		return fmt.Errorf("LISTING_PAGE_SIZE must be one of %v, got %d", domain.PageSizeOptions(), c.ListingPageSize)
	}
	if c.SessionTTL <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in %s environment", c.Environment)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
