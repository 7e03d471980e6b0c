package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicsuite/agenda/internal/config"
	"github.com/clinicsuite/agenda/internal/domain/appointment"
	"github.com/clinicsuite/agenda/internal/domain/availability"
	"github.com/clinicsuite/agenda/internal/domain/professional"
	"github.com/clinicsuite/agenda/internal/domain/settings"
	"github.com/clinicsuite/agenda/internal/domain/waitlist"
	"github.com/clinicsuite/agenda/internal/platform/auth"
	"github.com/clinicsuite/agenda/internal/platform/cache"
	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/middleware"
	"github.com/clinicsuite/agenda/internal/platform/outbox"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// buildHandlers wires repositories, services and handlers over one pool.
func buildHandlers(pool *pgxpool.Pool, settingsCache cache.Cache, cfg *config.Config, loc *time.Location) []routeRegistrar {
	txRunner := db.NewTxRunner(pool)
	events := outbox.NewPGRecorder(pool)

	settingsSvc := settings.NewService(settings.NewRepoPG(pool), settingsCache, cfg.SettingsCacheTTL)
	professionalSvc := professional.NewService(professional.NewRepoPG(pool))
	appointmentSvc := appointment.NewService(appointment.NewRepoPG(pool), professionalSvc, txRunner, events, loc)
	finder := availability.NewFinder(settingsSvc, professionalSvc, appointmentSvc, loc)
	waitlistSvc := waitlist.NewService(waitlist.NewRepoPG(pool), txRunner, events, appointmentSvc)

	return []routeRegistrar{
		settings.NewHandler(settingsSvc),
		professional.NewHandler(professionalSvc),
		appointment.NewHandler(appointmentSvc),
		availability.NewHandler(finder),
		waitlist.NewHandler(waitlistSvc, finder),
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
}

// newEcho assembles the middleware chain and mounts the handlers under /api.
// Health endpoints sit outside authentication. A nil limiter means an
// in-process one.
func newEcho(cfg *config.Config, logger zerolog.Logger, handlers []routeRegistrar, checks map[string]db.CheckFunc, stats func() *db.PoolStats, limiter middleware.Limiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(checks, stats))

	api := e.Group("/api")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(cfg.DefaultTenant))
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	api.Use(db.TenantMiddleware(cfg.DefaultTenant, cfg.IsDev()))

	if limiter == nil {
		limiter = middleware.NewMemoryLimiter(rateLimitConfig(cfg))
	}
	api.Use(middleware.RateLimit(limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSamplingRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	checks := map[string]db.CheckFunc{"postgres": pool.Ping}
	var settingsCache cache.Cache = cache.NewMemory()
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "clinic")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		settingsCache = rc
		limiter = middleware.NewRedisLimiter(rc.Client(), rateLimitConfig(cfg), "clinic:ratelimit")
		checks["redis"] = rc.Ping
		logger.Info().Msg("connected to redis")
	}

	var writer outbox.MessageWriter = outbox.DiscardWriter{Logger: logger}
	if brokers := outbox.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer = outbox.NewKafkaWriter(brokers)
		logger.Info().Str("brokers", strings.Join(brokers, ",")).Msg("publishing outbox events to kafka")
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, outbox events are acknowledged without publishing")
	}
	defer writer.Close()

	publisher := outbox.NewPublisher(db.NewTxRunner(pool), outbox.NewPGStore(pool), writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		publisher.Run(ctx)
	}()

	e := newEcho(cfg, logger, buildHandlers(pool, settingsCache, cfg, loc), checks,
		func() *db.PoolStats { return db.GetPoolStats(pool) }, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "clinic-server"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	<-publisherDone
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
