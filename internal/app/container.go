// Package app wires configuration, storage, the engine and the application
// handlers into one container shared by the worker and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/volunteerhub/profile-analytics/config"
	"github.com/volunteerhub/profile-analytics/internal/application/command"
	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/application/query"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/memory"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/postgres"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/redis"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/scheduler"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/volunteerhub/profile-analytics/internal/interface/http"
	"github.com/volunteerhub/profile-analytics/internal/interface/http/handlers"
	"github.com/volunteerhub/profile-analytics/pkg/circuitbreaker"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
)

// Container holds every long-lived component of the process.
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Manager

	DB    *postgres.Connection
	Redis *redis.Cache // nil unless the redis driver is active
	Cache analytics.Cache

	Engine *engine.Engine

	Recalculate     *command.RecalculateProfilesHandler
	Invalidate      *command.InvalidateAnalyticsHandler
	ProfileScore    *query.ProfileScoreHandler
	BehaviorProfile *query.BehavioralProfileHandler

	Health *handlers.CompositeHealthChecker
}

// NewLogger builds the process logger from the observability section.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}

// New connects to storage and builds the engine and handlers.
// A Redis outage at startup degrades to no caching instead of failing.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewManager(metrics.WithMetricsEnabled(cfg.Observability.MetricsEnabled)),
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	components, err := cfg.Rules.Engine().Build()
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	c.DB, err = postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.Health.AddCheck("postgres", handlers.PingCheck(c.DB), true)
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// Analytics cache
	// ─────────────────────────────────────────────────────────────────────────
	c.Cache = c.newCache(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// Engine and handlers
	// ─────────────────────────────────────────────────────────────────────────
	facts := postgres.NewFactsRepository(c.DB)
	ledger := postgres.NewActivityLedger(c.DB)
	scores := postgres.NewScoreRepository(c.DB)
	directory := postgres.NewUserDirectory(c.DB)

	c.Engine = engine.New(facts, ledger, components, engine.WithLogger(log))

	recalcCfg := command.DefaultRecalculateProfilesHandlerConfig()
	recalcCfg.Concurrency = cfg.Batch.Concurrency
	recalcCfg.PerUserTimeout = cfg.Batch.PerUserTimeout
	recalcCfg.CacheTTL = cfg.Cache.TTL
	recalcCfg.RetryIf = retryIf
	recalcCfg.RecomputeFresh = !cfg.Features.SkipFreshUsers
	c.Recalculate = command.NewRecalculateProfilesHandler(c.Engine, scores, scores, c.Cache, directory, c.Metrics, log, recalcCfg)
	c.Invalidate = command.NewInvalidateAnalyticsHandler(c.Cache, c.Metrics, log)

	loaderCfg := query.DefaultLoaderConfig()
	loaderCfg.CacheTTL = cfg.Cache.TTL
	loaderCfg.ComputeTimeout = cfg.Batch.PerUserTimeout
	loaderCfg.RetryIf = retryIf
	loaderCfg.StoredOnly = !cfg.Features.RecomputeOnRead
	loader := query.NewLoader(c.Engine, scores, c.Cache, directory, c.Metrics, log, loaderCfg)
	c.ProfileScore = query.NewProfileScoreHandler(loader, c.Engine)
	c.BehaviorProfile = query.NewBehavioralProfileHandler(loader)

	log.Info("container ready",
		logger.String("rules_version", c.Engine.RulesVersion()),
		logger.String("cache_driver", cfg.Cache.Driver),
	)
	return c, nil
}

func (c *Container) newCache(ctx context.Context) analytics.Cache {
	log := c.Logger
	switch c.Config.Cache.Driver {
	case config.CacheNone:
		log.Warn("analytics cache disabled")
		return analytics.NopCache{}
	case config.CacheMemory:
		return memory.NewAnalyticsCache()
	}

	log.Info("connecting to Redis...")
	rc, err := redis.NewCache(ctx, redisConfig(c.Config.Redis))
	if err != nil {
		log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return analytics.NopCache{}
	}
	c.Redis = rc

	breaker := redis.NewBreaker(
		circuitbreaker.WithFailureThreshold(c.Config.Redis.BreakerFailures),
		circuitbreaker.WithTimeout(c.Config.Redis.BreakerTimeout),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)
	cache := redis.NewAnalyticsCache(rc, breaker, c.Metrics)
	c.Health.AddCheck("redis", handlers.PingCheck(cache), false)
	log.Info("Redis connection established")
	return cache
}

// Migrate applies pending schema migrations.
func (c *Container) Migrate(ctx context.Context) (int, error) {
	return postgres.NewMigrator(c.DB).Migrate(ctx)
}

// NewScheduler registers the recalculation job.
func (c *Container) NewScheduler() (*scheduler.Scheduler, error) {
	sc := c.Config.Scheduler
	s := scheduler.New(scheduler.Config{
		TickInterval: scheduler.DefaultConfig().TickInterval,
		JobTimeout:   sc.JobTimeout,
		RunOnStart:   sc.RunOnStart,
	}, c.Logger, c.Metrics)

	job := jobs.NewRecalculateProfilesJob(c.Recalculate, c.Logger, jobs.RecalculateProfilesConfig{
		BatchSize: c.Config.Batch.Size,
	})
	if err := s.Register(job, scheduler.Aligned(sc.RecalculateInterval)); err != nil {
		return nil, err
	}
	if !sc.Enabled {
		// Registered but idle, so the API can still trigger it.
		if err := s.SetEnabled(job.Name(), false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewHTTPServer builds the API server. jobs may be nil.
func (c *Container) NewHTTPServer(jobRunner httpapi.JobRunner) *httpapi.Server {
	hc := c.Config.HTTP
	cfg := httpapi.DefaultConfig()
	cfg.Addr = hc.Addr
	cfg.ReadTimeout = hc.ReadTimeout
	cfg.WriteTimeout = hc.WriteTimeout
	cfg.RequestTimeout = hc.RequestTimeout
	cfg.AllowedOrigins = hc.AllowedOrigins
	cfg.APIKeys = hc.APIKeys

	deps := httpapi.Dependencies{
		Scores:        c.ProfileScore,
		Behavior:      c.BehaviorProfile,
		Recalculate:   c.Recalculate,
		Invalidate:    c.Invalidate,
		HealthChecker: c.Health,
		Logger:        c.Logger,
	}
	if jobRunner != nil {
		deps.Jobs = jobRunner
	}
	if c.Config.Observability.MetricsEnabled {
		deps.Metrics = c.Metrics
	}
	return httpapi.NewServer(cfg, deps)
}

// Close releases connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close Redis", logger.Err(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// retryIf reports whether a store error is transient.
func retryIf(err error) bool {
	return postgres.IsRetryable(err) || shared.IsRetryable(err)
}

func postgresConfig(d config.DatabaseConfig) postgres.Config {
	cfg := postgres.DefaultConfig()
	cfg.URL = d.URL
	cfg.Host = d.Host
	cfg.Port = d.Port
	cfg.Database = d.Name
	cfg.User = d.User
	cfg.Password = d.Password
	cfg.SSLMode = d.SSLMode
	cfg.MaxConns = d.MaxConns
	cfg.MinConns = d.MinConns
	cfg.MaxConnLifetime = d.ConnMaxLifetime
	cfg.MaxConnIdleTime = d.ConnMaxIdleTime
	cfg.ConnectTimeout = d.ConnectTimeout
	return cfg
}

func redisConfig(r config.RedisConfig) redis.Config {
	cfg := redis.DefaultConfig()
	cfg.Host = r.Host
	cfg.Port = r.Port
	cfg.Password = r.Password
	cfg.DB = r.DB
	cfg.PoolSize = r.PoolSize
	cfg.MaxRetries = r.MaxRetries
	cfg.DialTimeout = r.DialTimeout
	cfg.ReadTimeout = r.ReadTimeout
	cfg.WriteTimeout = r.WriteTimeout
	if r.KeyPrefix != "" {
		cfg.KeyPrefix = r.KeyPrefix
	}
	return cfg
}
