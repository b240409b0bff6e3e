package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/config"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/event"
	handler "github.com/hemasoorya80-maker/stock-reservation-service/internal/handler/http"
	appmw "github.com/hemasoorya80-maker/stock-reservation-service/internal/middleware"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/repository/postgres"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/service"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/worker"
	"github.com/hemasoorya80-maker/stock-reservation-service/migrations"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/cache"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/database"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/health"
	pkgkafka "github.com/hemasoorya80-maker/stock-reservation-service/pkg/kafka"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/middleware"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/tracing"
)

// App wires together all dependencies and runs the reservation service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer // nil when event publishing is disabled
	httpServer     *http.Server
	limiter        *appmw.RateLimiter
	idempotency    *appmw.Idempotency
	expirer        *worker.ExpirationWorker
	listCache      *cache.Cache[[]domain.Item]
	itemCache      *cache.Cache[domain.Item]
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "reservation",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "reservation")

	// Run database migrations (schema + seed catalog).
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	// Initialize the Kafka producer with connection validation and retry. A
	// dead broker degrades event publishing, never the reservation API.
	var kafkaProducer *pkgkafka.Producer
	if cfg.KafkaEnabled {
		kafkaProducer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, kafkaProducer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
	} else {
		logger.Info("event publishing disabled")
	}

	// Read caches for the item catalog. Reservation reads bypass caching.
	listCache := cache.New[[]domain.Item](cfg.ItemCacheTTL())
	itemCache := cache.New[domain.Item](cfg.ItemCacheTTL())

	// Build the dependency graph.
	items := postgres.NewItemRepository(pool)
	reservations := postgres.NewReservationRepository(pool)
	idemRepo := postgres.NewIdempotencyRepository(pool)
	eventProducer := event.NewProducer(kafkaProducer, logger)

	engine := service.NewReservationService(
		items, reservations, pool, eventProducer, listCache, itemCache, logger, cfg.HoldTTL(),
	)

	// Safety envelope around the engine: replay layer, token buckets, and the
	// background expiry schedule.
	idem := appmw.NewIdempotency(idemRepo, cfg.IdempotencyTTL(), logger)
	limiter := appmw.NewRateLimiter(appmw.RateLimiterConfig{
		Window:           cfg.RateLimitWindow(),
		MaxRequests:      cfg.RateLimitMaxRequests,
		ReadMaxRequests:  cfg.RateLimitReadMaxRequests,
		SlowDownAfter:    cfg.SlowDownAfter,
		SlowDownDelay:    cfg.SlowDownDelay(),
		SlowDownMaxDelay: cfg.SlowDownMaxDelay(),
		CleanupInterval:  cfg.RateLimitCleanupInterval,
	}, logger)
	expirer := worker.NewExpirationWorker(engine.ExpireDue, cfg.ExpireInterval(), logger)

	// Health checks. The database is critical; the cache and broker degrade
	// the reported status without failing readiness.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("database", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("cache", cacheCheck(itemCache))
	if kafkaProducer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return kafkaProducer.Ping(ctx)
		})
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterDeps{
		Service:     engine,
		Health:      healthHandler,
		RateLimiter: limiter,
		Idempotency: idem,
		Logger:      logger,
		APIPrefix:   cfg.APIPrefix,
		CORS:        corsCfg,
		PprofCIDRs:  cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       kafkaProducer,
		httpServer:     httpServer,
		limiter:        limiter,
		idempotency:    idem,
		expirer:        expirer,
		listCache:      listCache,
		itemCache:      itemCache,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the background jobs, then blocks until the
// context is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// The expiry worker runs a pass immediately, releasing holds that lapsed
	// while the process was down, then keeps the schedule.
	go a.expirer.Run(ctx)

	// Janitors: replay-record sweep, stale limiter buckets, expired cache
	// entries. Each loop stops with the context.
	go a.idempotency.Sweep(ctx, a.cfg.IdempotencySweepEvery)
	go a.limiter.Cleanup(ctx)
	go a.runCachePurge(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runCachePurge evicts expired read-cache entries on the limiter cleanup
// cadence. Reads already ignore expired entries; this bounds memory.
func (a *App) runCachePurge(ctx context.Context) {
	interval := a.cfg.RateLimitCleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged := a.listCache.PurgeExpired() + a.itemCache.PurgeExpired()
			if purged > 0 {
				a.logger.Debug("read cache purged", slog.Int("evicted", purged))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer (flush pending events)
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s deadline).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after the drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close the Kafka producer, flushing pending events.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close the PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// cacheCheck round-trips a probe entry through the item cache. The key uses a
// colon so it can never collide with a real item id (ids are slugs).
func cacheCheck(c *cache.Cache[domain.Item]) health.Checker {
	const probe = "health:probe"
	return func(context.Context) error {
		c.SetTTL(probe, domain.Item{ID: probe}, time.Second)
		got, ok := c.Get(probe)
		c.Delete(probe)
		if !ok || got.ID != probe {
			return fmt.Errorf("cache probe round-trip failed")
		}
		return nil
	}
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
