package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/feedrank/internal/api"
	"github.com/onnwee/feedrank/internal/auth"
	"github.com/onnwee/feedrank/internal/config"
	"github.com/onnwee/feedrank/internal/feature"
	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/health"
	"github.com/onnwee/feedrank/internal/middleware"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

const serviceName = "feedrank"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the assembled HTTP handler plus the resources it owns.
type app struct {
	handler http.Handler
	closers []func(context.Context) error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp wires storage, ranking, observability and the HTTP stack from cfg.
// Without a database the feed is served from an in-memory corpus, loaded from
// seedPath when set. Background work stops when ctx is cancelled.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, seedPath string) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	registry, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking calibration: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rankingMetrics := ranking.NewMetrics()
	if err := rankingMetrics.Register(promRegistry); err != nil {
		return nil, fmt.Errorf("failed to register ranking metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(promRegistry); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		Exporter:       cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Insecure:       !cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	engine := ranking.NewEngine(registry,
		ranking.WithLogger(logger),
		ranking.WithMetrics(rankingMetrics),
		ranking.WithParallelism(cfg.RankParallelism, 0),
	)

	healthCfg := api.HealthHandlersConfig{Logger: logger}

	var source feature.Source
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })

		source = feature.NewPostgresSource(db)
		healthCfg.DBChecker = health.NewDBChecker(db)
		logger.Info("using postgres feature source")
	case seedPath != "":
		store, err := feature.LoadSeed(seedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed corpus: %w", err)
		}
		source = store
		logger.Info("using seeded in-memory feature source", "path", seedPath)
	default:
		source = feature.NewInMemoryStore()
		logger.Warn("no DATABASE_URL or seed file, serving an empty in-memory corpus")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
		healthCfg.RedisChecker = health.NewRedisChecker(redisClient)
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimitPerMinute > 0 {
		var store middleware.RateLimitStore
		if redisClient != nil {
			store = middleware.NewRedisRateLimitStore(redisClient,
				middleware.WithStoreMetrics(httpMetrics),
				middleware.WithStoreLogger(logger),
			)
		} else {
			mem := middleware.NewInMemoryRateLimitStore()
			go mem.RunCleanup(ctx, time.Minute)
			store = mem
		}
		rateLimit = middleware.RateLimiter(store, middleware.PerMinute(cfg.RateLimitPerMinute), middleware.UserKeyFunc(), httpMetrics)
	}

	feedService := feed.NewService(source, engine, feed.Options{
		DefaultPageSize:        cfg.DefaultPageSize,
		MaxPageSize:            cfg.MaxPageSize,
		DefaultExperienceLevel: cfg.DefaultExperienceLevel,
		Logger:                 logger,
	})

	mux := api.NewRouter(api.RouterConfig{
		Feed: api.NewFeedHandlers(feedService, cfg.AuthEnabled()),
		Rank: api.NewRankHandlers(engine, api.RankOptions{
			MaxCandidates: cfg.RankMaxCandidates,
			MaxPageSize:   cfg.MaxPageSize,
		}),
		Health:    api.NewHealthHandlers(healthCfg),
		Metrics:   promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry}),
		RateLimit: rateLimit,
		Version:   version,
	})

	// Outermost first: Tracing -> RequestID -> Logging -> HTTPMetrics -> CORS -> Auth -> routes.
	// Tracing wraps logging so the access log carries the trace id.
	var handler http.Handler = mux
	if cfg.AuthEnabled() {
		jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret)
		handler = middleware.Auth(jwtService, false, httpMetrics)(handler)
	}
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins))(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Tracing(serviceName)(handler)

	a.handler = handler
	return a, nil
}
