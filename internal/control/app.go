// Package control wires configuration, stores, the remote source and the
// resilience layers into a running App.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/cache"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/result"
	"github.com/vietddude/resilience/internal/core/worker"
	"github.com/vietddude/resilience/internal/health"
	"github.com/vietddude/resilience/internal/infra/errmap"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/remote"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/infra/storage/memory"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
	"github.com/vietddude/resilience/internal/metrics"
	"github.com/vietddude/resilience/internal/orchestrator"
	"github.com/vietddude/resilience/internal/resilience/breaker"
	"github.com/vietddude/resilience/internal/resilience/retry"
)

const sourceName = "remote"

// Value is the payload type served by the App. Documents are passed through
// undecoded.
type Value = json.RawMessage

// App is the main application struct that manages the read path lifecycle.
type App struct {
	cfg      config.AppConfig
	clock    clock.WithTicker
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	cache   *cache.Store[string, Value]
	local   storage.LocalStore[Value]
	source  *remote.HTTPSource[Value]
	breaker *breaker.CircuitBreaker
	orch    *orchestrator.Orchestrator[Value]

	healthMon    *health.Monitor
	healthServer *health.Server
	sweeper      *cache.Sweeper
	pruner       *worker.Pruner

	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// Option customizes App construction.
type Option func(*App)

// WithClock replaces the real clock, e.g. in tests.
func WithClock(c clock.WithTicker) Option {
	return func(a *App) { a.clock = c }
}

// NewApp creates a new App with all dependencies initialized. Stores are
// opened and migrated here; background work begins in Start.
func NewApp(ctx context.Context, cfg config.AppConfig, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		clock: clock.RealClock{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	staleKinds, err := cfg.Orchestrator.Kinds()
	if err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}

	// 1. Metrics
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	// 2. Local store
	if err := a.initLocalStore(ctx); err != nil {
		a.closeStores()
		return nil, err
	}

	// 3. Cache
	ns := cfg.Orchestrator.Namespace
	a.cache = cache.New[string, Value](cache.Config{
		Name:       ns,
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Clock:      a.clock,
		Observer:   a.metrics,
	})
	a.sweeper = cache.NewSweeper(a.cache, cfg.Cache.SweepInterval, a.clock)

	// 4. Remote source behind the breaker
	a.source = remote.NewHTTPSource[Value](sourceName, cfg.Remote, a.clock)
	a.breaker = breaker.NewCircuitBreaker(breaker.Config{
		Name:             sourceName,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
		Clock:            a.clock,
		Logger:           a.log,
		Observer:         a.metrics,
	})

	// 5. Orchestrator
	a.orch = orchestrator.New[Value](orchestrator.Config{
		Name:          ns,
		CacheTTL:      cfg.Orchestrator.CacheTTL,
		LocalTTL:      cfg.Orchestrator.LocalTTL,
		StaleKinds:    staleKinds,
		ClassifyError: errmap.FromError,
		Clock:         a.clock,
		Logger:        a.log,
		Observer:      a.metrics,
	}, a.cache, a.local)

	// 6. Health
	a.healthMon = health.NewMonitor(a.clock)
	a.healthMon.AddBreaker(a.breaker)
	a.healthMon.AddCache(a.cache)
	a.healthMon.AddSource(a.source)
	if hc, ok := a.local.(storage.HealthChecker); ok {
		a.healthMon.AddStore(a.storeName(), hc)
	}
	a.healthServer = health.NewServer(a.healthMon, a, a.registry, cfg.Server.Port)

	return a, nil
}

func (a *App) initLocalStore(ctx context.Context) error {
	ns := a.cfg.Orchestrator.Namespace
	retention := a.cfg.Orchestrator.RetentionPeriod

	switch {
	case a.cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		repo := postgres.NewKVRepo[Value](db, ns, a.clock)
		a.local = repo
		a.pruner = worker.NewPruner("postgres", repo, retention, a.clock)
		a.log.Info("Using PostgreSQL local store", "driver", a.cfg.Database.Driver)

	case a.cfg.Redis.URL != "":
		client, err := redisclient.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		// Redis expires keys itself after ttl + stale_retention
		a.local = redisclient.NewKVRepo[Value](client, ns, a.cfg.Redis.StaleRetention, a.clock)
		a.log.Info("Using Redis local store")

	default:
		store := memory.NewStore[Value](a.clock)
		a.local = store
		a.pruner = worker.NewPruner("memory", store, retention, a.clock)
		a.log.Info("Using memory local store")
	}
	return nil
}

func (a *App) storeName() string {
	switch {
	case a.db != nil:
		return "postgres"
	case a.redisClient != nil:
		return "redis"
	default:
		return "memory"
	}
}

// Get reads key through cache, local store and the remote source.
func (a *App) Get(ctx context.Context, key string) result.Result[Value] {
	return a.GetWith(ctx, key)
}

// GetWith is Get with per-call options. Remote calls run inside the circuit
// breaker; retries wrap the breaker so that an open circuit fails fast
// instead of being retried.
func (a *App) GetWith(ctx context.Context, key string, opts ...orchestrator.FetchOption) result.Result[Value] {
	if key == "" {
		return result.Fail[Value](failure.NewValidation(
			map[string][]string{"key": {"must not be empty"}}, "key is required"))
	}
	return a.orch.GetOrFetch(ctx, key, a.fetcher(key), opts...)
}

func (a *App) fetcher(key string) orchestrator.Fetcher[Value] {
	return func(ctx context.Context) result.Result[Value] {
		return retry.WithBackoff(ctx, a.cfg.Retry.Policy(),
			func(ctx context.Context) result.Result[Value] {
				return breaker.Run(ctx, a.breaker, func(ctx context.Context) result.Result[Value] {
					return a.source.Fetch(ctx, key)
				})
			},
			retry.WithName(sourceName),
			retry.WithClock(a.clock),
			retry.WithLogger(a.log),
			retry.WithObserver(a.metrics),
		)
	}
}

// Invalidate drops key from the cache and the local store.
func (a *App) Invalidate(ctx context.Context, key string) error {
	return a.orch.Invalidate(ctx, key)
}

// Health returns the current health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Handler exposes the HTTP routes without starting a listener.
func (a *App) Handler() http.Handler {
	return a.healthServer.Handler()
}

// Start starts the HTTP server and background workers.
func (a *App) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx, a.metrics)
	}

	go a.sweeper.Start(ctx)

	if a.pruner != nil {
		a.log.Info("Starting pruner", "store", a.storeName(), "retention", a.cfg.Orchestrator.RetentionPeriod)
		go a.pruner.Start(ctx)
	}

	a.log.Info("App started", "port", a.cfg.Server.Port, "remote", a.cfg.Remote.BaseURL)
	return nil
}

// Stop stops the HTTP server and closes the stores.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping App...")

	err := a.healthServer.Stop(ctx)
	a.closeStores()
	return err
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
