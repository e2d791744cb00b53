package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/EcommerceGo/storefront/internal/catalogapi"
	"github.com/utafrali/EcommerceGo/storefront/internal/config"
	"github.com/utafrali/EcommerceGo/storefront/internal/event"
	handler "github.com/utafrali/EcommerceGo/storefront/internal/handler/http"
	"github.com/utafrali/EcommerceGo/storefront/internal/listing"
	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	"github.com/utafrali/EcommerceGo/storefront/internal/session"
	"github.com/utafrali/EcommerceGo/storefront/pkg/database"
	"github.com/utafrali/EcommerceGo/storefront/pkg/health"
	"github.com/utafrali/EcommerceGo/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/EcommerceGo/storefront/pkg/kafka"
	"github.com/utafrali/EcommerceGo/storefront/pkg/middleware"
	"github.com/utafrali/EcommerceGo/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	instanceID string

	rdb        *redis.Client
	producer   *pkgkafka.Producer
	consumer   *pkgkafka.Consumer
	dedupe     *pkgkafka.MemoryIdempotencyStore
	cache      *querycache.Cache
	sessions   *session.Store
	breaker    *httpclient.CircuitBreakerClient
	queries    *query.Service
	router     http.Handler
	httpServer *http.Server

	// stopLimiter ends the rate limiter's cleanup loop.
	stopLimiter    context.CancelFunc
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
	logger = logger.With(slog.String("instance_id", a.instanceID))
	a.logger = logger

	tracerShutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		InstanceID:     a.instanceID,
		Environment:    cfg.Environment,
		Exporter:       cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Outbound client: pooled transport, breaker, then the catalog API.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CatalogTimeout
	a.breaker = httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), httpclient.CircuitBreakerConfig{
		Name:         "catalog-api",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}, logger)
	api := catalogapi.New(a.breaker, catalogapi.Config{
		BaseURL:           cfg.CatalogBaseURL,
		BulkSampleSize:    cfg.CatalogBulkSampleSize,
		RequestsPerSecond: cfg.CatalogRPS,
		Burst:             cfg.CatalogBurst,
	}, logger)

	healthHandler := health.NewHandler(a.instanceID)
	healthHandler.RegisterNonCritical("catalog_api", func(context.Context) error {
		if !a.breaker.Healthy() {
			return fmt.Errorf("circuit breaker is %s", a.breaker.State())
		}
		return nil
	})

	// Shared cache.
	var store querycache.Store
	if cfg.RedisEnabled() {
		database.SetSlowCommandLogging(cfg.RedisSlowThreshold, logger)
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
			Timeout:  cfg.RedisTimeout,
		})
		if err != nil {
			_ = tracerShutdown(context.Background())
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		redisStore := querycache.NewRedisStore(a.rdb, cfg.RedisKeyPrefix)
		store = redisStore
		healthHandler.RegisterNonCritical("redis", redisStore.Ping)
	}

	// Invalidation fan-out.
	var publisher query.Publisher
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, a.instanceID, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	a.cache = querycache.New(
		querycache.WithRetention(cfg.CacheRetention),
		querycache.WithLogger(logger),
	)
	a.queries = query.NewService(api, a.cache, store, publisher, queryConfig(cfg), logger)

	if cfg.KafkaEnabled() {
		a.dedupe = pkgkafka.NewMemoryIdempotencyStore(event.DedupeTTL)
		consumerHandler := event.NewConsumerHandler(a.queries, a.instanceID, logger)
		a.consumer = event.NewConsumer(cfg.KafkaBrokers, a.instanceID, consumerHandler, a.dedupe, logger)
	}

	a.sessions = session.NewStore(func() *listing.Controller {
		return listing.NewController(a.queries, cfg.ListingPageSize, logger)
	}, cfg.SessionTTL, logger)

	routerCfg := handler.RouterConfig{
		ServiceName:      serviceName,
		Queries:          a.queries,
		Sessions:         a.sessions,
		Health:           healthHandler,
		CORS:             corsConfig(cfg),
		CategoriesMaxAge: cfg.CategoriesMaxAge,
		SecureCookies:    cfg.SessionSecureCookie,
	}
	if cfg.JWTSecret != "" {
		routerCfg.TokenValidator = middleware.HMACValidator(cfg.JWTSecret)
	}
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	a.stopLimiter = stopLimiter
	if cfg.RateLimitRPS > 0 {
		routerCfg.RateLimit = middleware.RateLimit(limiterCtx, middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			TrustProxyHeaders: cfg.RateLimitTrustProxy,
		}, logger)
	}

	a.router = handler.NewRouter(routerCfg, logger)
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func queryConfig(cfg *config.Config) query.Config {
	policy := func(stale time.Duration) querycache.Policy {
		return querycache.Policy{
			StaleTime:     stale,
			Retry:         cfg.CacheRetry,
			RetryDelay:    cfg.CacheRetryDelay,
			MaxRetryDelay: cfg.CacheMaxRetryDelay,
		}
	}
	return query.Config{
		Listing:     policy(cfg.CacheListingStale),
		Categories:  policy(cfg.CacheCategoriesStale),
		Search:      policy(cfg.CacheSearchStale),
		Product:     policy(cfg.CacheProductStale),
		SearchLimit: cfg.SearchLimit,
	}
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.AllowCredentials = true
	cors.Environment = cfg.Environment
	return cors
}

// Handler returns the HTTP handler the server serves.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and background jobs, then blocks until the
// context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.cache.Run(gctx, a.cfg.CacheGCInterval)
	})

	g.Go(func() error {
		return a.sessions.Run(gctx, a.cfg.SessionSweepInterval)
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil {
				return fmt.Errorf("cache invalidation consumer: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			a.runDedupeSweep(gctx)
			return nil
		})
	}

	// Stops the server once any job fails or ctx is canceled.
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// runDedupeSweep drops expired event ids from the idempotency store.
func (a *App) runDedupeSweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.dedupe.Sweep(); n > 0 {
				a.logger.Debug("expired processed event ids", slog.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer and producer
// 4. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopLimiter()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
