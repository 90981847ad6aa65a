package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/config"
	"github.com/volunteerhub/profile-analytics/internal/application/command"
	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/memory"
	"github.com/volunteerhub/profile-analytics/internal/interface/http/handlers"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
)

func TestPostgresConfig(t *testing.T) {
	d := config.Default().Database
	d.Name = "analytics"
	d.ConnMaxLifetime = 42 * time.Minute
	d.MaxConns = 25

	cfg := postgresConfig(d)
	assert.Equal(t, "analytics", cfg.Database)
	assert.Equal(t, 42*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, d.Host, cfg.Host)
}

func TestRedisConfig(t *testing.T) {
	r := config.Default().Redis
	r.DB = 3
	assert.Equal(t, 3, redisConfig(r).DB)

	r.KeyPrefix = ""
	assert.NotEmpty(t, redisConfig(r).KeyPrefix, "an empty prefix keeps the default")
}

func TestRetryIf(t *testing.T) {
	assert.True(t, retryIf(&pgconn.PgError{Code: "40001"}))
	assert.True(t, retryIf(shared.ErrRankPassInProgress))
	assert.False(t, retryIf(shared.ErrProfileNotFound))
	assert.False(t, retryIf(errors.New("syntax error")))
}

// newMemoryContainer wires a container over the in-memory stores.
func newMemoryContainer(t *testing.T, mutate func(*config.Config)) *Container {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	components, err := cfg.Rules.Engine().Build()
	require.NoError(t, err)

	platform := memory.NewPlatform()
	scores := memory.NewScoreRepository(platform.Active)
	cache := memory.NewAnalyticsCache()
	m := metrics.NewManager()
	eng := engine.New(platform, platform, components)

	return &Container{
		Config:  cfg,
		Logger:  logger.Nop(),
		Metrics: m,
		Cache:   cache,
		Engine:  eng,
		Recalculate: command.NewRecalculateProfilesHandler(eng, scores, scores, cache, platform, m, nil,
			command.DefaultRecalculateProfilesHandlerConfig()),
		Invalidate: command.NewInvalidateAnalyticsHandler(cache, m, nil),
		Health:     handlers.NewCompositeHealthChecker("test"),
	}
}

func TestNewScheduler(t *testing.T) {
	c := newMemoryContainer(t, nil)
	s, err := c.NewScheduler()
	require.NoError(t, err)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "recalculate_profiles", jobs[0].Name)
	assert.True(t, jobs[0].Enabled)
	assert.Contains(t, jobs[0].Schedule, "aligned")
}

func TestNewScheduler_Disabled(t *testing.T) {
	c := newMemoryContainer(t, func(cfg *config.Config) { cfg.Scheduler.Enabled = false })
	s, err := c.NewScheduler()
	require.NoError(t, err)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1, "the job stays registered for manual triggers")
	assert.False(t, jobs[0].Enabled)
}

func TestNewHTTPServer(t *testing.T) {
	c := newMemoryContainer(t, nil)
	c.Health.AddCheck("postgres", func(context.Context) error { return nil }, true)

	s := c.NewHTTPServer(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Observability.LogLevel = "debug"
	cfg.Observability.LogFormat = "console"
	assert.NotNil(t, NewLogger(cfg))
}

func TestNewCache_Drivers(t *testing.T) {
	c := newMemoryContainer(t, func(cfg *config.Config) { cfg.Cache.Driver = config.CacheMemory })
	assert.IsType(t, &memory.AnalyticsCache{}, c.newCache(t.Context()))

	c.Config.Cache.Driver = config.CacheNone
	assert.IsType(t, analytics.NopCache{}, c.newCache(t.Context()))
	assert.Nil(t, c.Redis)
}
