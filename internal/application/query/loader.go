// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
	"github.com/volunteerhub/profile-analytics/pkg/retry"
)

// Source tells where a served value came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceComputed Source = "computed"
	// SourceStore is the persisted score row, served when recomputation failed.
	SourceStore Source = "store"
)

// ActiveChecker reports whether a user may be recomputed on read.
type ActiveChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// LoaderConfig contains configuration for the Loader.
type LoaderConfig struct {
	CacheTTL       time.Duration
	ComputeTimeout time.Duration
	RetryIf        func(error) bool

	// StoredOnly serves misses from the persisted row without recomputing.
	StoredOnly bool
}

// DefaultLoaderConfig returns default configuration.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		CacheTTL:       6 * time.Hour,
		ComputeTimeout: 10 * time.Second,
	}
}

// Loader implements the read path shared by the query handlers:
// cache, then synchronous recompute, then the persisted row.
type Loader struct {
	engine  *engine.Engine
	scores  scoring.Repository
	cache   analytics.Cache
	users   ActiveChecker
	metrics *metrics.Manager
	logger  *logger.Logger
	retrier *retry.Retrier
	config  LoaderConfig
}

// NewLoader creates a new Loader. cache may be nil.
func NewLoader(eng *engine.Engine, scores scoring.Repository, cache analytics.Cache, users ActiveChecker, m *metrics.Manager, log *logger.Logger, config LoaderConfig) *Loader {
	if cache == nil {
		cache = analytics.NopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return false }
	}
	return &Loader{
		engine:  eng,
		scores:  scores,
		cache:   cache,
		users:   users,
		metrics: m,
		logger:  log.With(logger.Component("profile_reader")),
		retrier: retry.StoreRetrier(retryIf),
		config:  config,
	}
}

// Loaded is one resolved snapshot.
type Loaded struct {
	Snapshot *analytics.Snapshot
	Source   Source
	// Stale is set when the score is the persisted row of an earlier run.
	Stale bool
}

// Load returns a snapshot holding at least the needed section.
func (l *Loader) Load(ctx context.Context, userID string, need analytics.Section) (*Loaded, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	log := l.logger.With(logger.UserID(userID))

	snap, hit, err := analytics.Lookup(ctx, l.cache, userID)
	switch {
	case err != nil:
		l.metrics.RecordCache("get", metrics.CacheError)
		log.Warn("cache lookup failed, recomputing", logger.Err(err))
	case hit && snap.Serves(need):
		l.metrics.RecordCache("get", metrics.CacheHit)
		return &Loaded{Snapshot: snap, Source: SourceCache}, nil
	default:
		l.metrics.RecordCache("get", metrics.CacheMiss)
	}

	if l.config.StoredOnly {
		return l.fallback(ctx, userID, need, nil)
	}

	loaded, err := l.recompute(ctx, userID, need, log)
	if err == nil {
		return loaded, nil
	}
	log.Warn("recompute failed, falling back to stored score", logger.Err(err))
	return l.fallback(ctx, userID, need, err)
}

func (l *Loader) recompute(ctx context.Context, userID string, need analytics.Section, log *logger.Logger) (*Loaded, error) {
	if l.config.ComputeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.ComputeTimeout)
		defer cancel()
	}

	if l.users != nil {
		active, err := l.users.IsActive(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, shared.ErrProfileNotFound
		}
	}

	res, err := l.engine.ScoreUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = l.retrier.Do(ctx, func(ctx context.Context) error {
		return l.scores.Upsert(ctx, res.Score)
	})
	if err != nil {
		return nil, engine.AsTimeout(userID, err)
	}

	// The stored row keeps the rank from the last pass.
	score := res.Score
	stored, err := retry.DoWithData(ctx, l.retrier, func(ctx context.Context) (*scoring.ProfileScore, error) {
		s, err := l.scores.Get(ctx, userID)
		if shared.IsNotFound(err) {
			return nil, retry.Permanent(err)
		}
		return s, err
	})
	if err == nil {
		score = stored
	}

	profile, err := l.engine.BuildProfile(ctx, userID, score)
	if err != nil {
		if need == analytics.SectionScore {
			log.Warn("behavioral profile unavailable", logger.Err(err))
			return &Loaded{Snapshot: l.engine.Snapshot(score, nil), Source: SourceComputed}, nil
		}
		return nil, err
	}

	snap := l.engine.Snapshot(score, profile)
	if err := l.cache.Put(ctx, snap, l.config.CacheTTL); err != nil {
		l.metrics.RecordCache("put", metrics.CacheError)
		log.Warn("cache write failed", logger.Err(err))
	} else {
		l.metrics.RecordCache("put", metrics.CacheOK)
	}
	return &Loaded{Snapshot: snap, Source: SourceComputed}, nil
}

func (l *Loader) fallback(ctx context.Context, userID string, need analytics.Section, cause error) (*Loaded, error) {
	stored, err := l.scores.Get(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrProfileNotFound
		}
		if cause == nil {
			return nil, err
		}
		return nil, cause
	}

	snap := &analytics.Snapshot{UserID: userID, Score: stored, ComputedAt: stored.LastCalculatedAt}
	if need == analytics.SectionBehavior {
		profile, err := l.engine.BuildProfile(ctx, userID, stored)
		if err != nil {
			if cause == nil {
				return nil, err
			}
			return nil, cause
		}
		snap.Behavior = profile
	}
	return &Loaded{Snapshot: snap, Source: SourceStore, Stale: true}, nil
}
