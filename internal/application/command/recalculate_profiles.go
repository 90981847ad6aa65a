// Package command contains write operations (CQRS - Commands).
// Commands change the persisted scores, the population ranks and the analytics cache.
package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/volunteerhub/profile-analytics/internal/application/batch"
	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/ranking"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
	"github.com/volunteerhub/profile-analytics/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE PROFILES COMMAND
// Recomputes scores, runs one population rank pass and refreshes the
// analytics cache for a single user or for every active user.
// ══════════════════════════════════════════════════════════════════════════════

// Target selects the users of a run. Exactly one of UserID and AllActive is set.
type Target struct {
	UserID    string `json:"user_id,omitempty"`
	AllActive bool   `json:"all_active,omitempty"`
}

// RecalculateProfilesCommand contains the data needed to start a run.
type RecalculateProfilesCommand struct {
	Target Target

	// BatchSize is the number of users fetched per directory page.
	BatchSize int

	// Force recomputes users whose cache entry is still fresh.
	Force bool

	// Trigger names who started the run, for logs only.
	Trigger string
}

// Validate validates the command.
func (c RecalculateProfilesCommand) Validate() error {
	if (c.Target.UserID == "") == !c.Target.AllActive {
		return shared.ErrInvalidTarget
	}
	if c.BatchSize <= 0 {
		return shared.ErrInvalidBatchSize
	}
	return nil
}

// Summary contains the result of a run.
type Summary struct {
	RunID string `json:"run_id"`

	// ProcessedCount is the number of users whose score was committed.
	ProcessedCount int `json:"processed_count"`

	// ErrorCount is len(Failures) plus one when the rank pass failed.
	// Failures holds only users whose score was not committed.
	ErrorCount int `json:"error_count"`

	// AnalyticsErrorCount is the number of committed users whose behavioral
	// profile could not be built, so their cache entry was not refreshed.
	// These users are part of ProcessedCount, not of ErrorCount.
	AnalyticsErrorCount int `json:"analytics_error_count"`

	// SkippedCount is the number of users skipped because their cache entry was fresh.
	SkippedCount int `json:"skipped_count"`

	// UnchangedCount is the number of processed users whose facts digest did not change.
	UnchangedCount int `json:"unchanged_count"`

	// CacheErrorCount is the number of cache writes that failed.
	CacheErrorCount int `json:"cache_error_count"`

	// Ranked is the population size of the rank pass.
	Ranked int `json:"ranked"`

	// RankError is set when the rank pass failed; previous ranks were retained.
	RankError string `json:"rank_error,omitempty"`

	Failures          []batch.Failure `json:"failures"`
	AnalyticsFailures []batch.Failure `json:"analytics_failures"`
	Cancelled         bool            `json:"cancelled"`
	StartedAt         time.Time       `json:"started_at"`
	Duration          time.Duration   `json:"duration"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// UserDirectory lists the active population.
type UserDirectory interface {
	batch.Source
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecalculateProfilesHandlerConfig contains configuration for the handler.
type RecalculateProfilesHandlerConfig struct {
	// Concurrency is the number of users computed in parallel.
	Concurrency int

	// PerUserTimeout bounds each user's work in each phase.
	PerUserTimeout time.Duration

	// CacheTTL is the lifetime of refreshed cache entries.
	CacheTTL time.Duration

	// RetryIf reports whether a store error is transient. Nil disables retries.
	RetryIf func(error) bool

	// RecomputeFresh disables the fresh-entry skip for every run.
	RecomputeFresh bool
}

// DefaultRecalculateProfilesHandlerConfig returns default configuration.
func DefaultRecalculateProfilesHandlerConfig() RecalculateProfilesHandlerConfig {
	return RecalculateProfilesHandlerConfig{
		Concurrency:    8,
		PerUserTimeout: 10 * time.Second,
		CacheTTL:       6 * time.Hour,
	}
}

// RecalculateProfilesHandler handles the RecalculateProfilesCommand.
type RecalculateProfilesHandler struct {
	engine     *engine.Engine
	scores     scoring.Repository
	population ranking.PopulationStore
	cache      analytics.Cache
	directory  UserDirectory
	metrics    *metrics.Manager
	logger     *logger.Logger
	retrier    *retry.Retrier
	config     RecalculateProfilesHandlerConfig
}

// NewRecalculateProfilesHandler creates a new RecalculateProfilesHandler.
// cache may be nil, which disables caching.
func NewRecalculateProfilesHandler(
	eng *engine.Engine,
	scores scoring.Repository,
	population ranking.PopulationStore,
	cache analytics.Cache,
	directory UserDirectory,
	m *metrics.Manager,
	log *logger.Logger,
	config RecalculateProfilesHandlerConfig,
) *RecalculateProfilesHandler {
	if cache == nil {
		cache = analytics.NopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return false }
	}
	return &RecalculateProfilesHandler{
		engine:     eng,
		scores:     scores,
		population: population,
		cache:      cache,
		directory:  directory,
		metrics:    m,
		logger:     log.With(logger.Component("recalculate_profiles")),
		retrier:    retry.StoreRetrier(retryIf),
		config:     config,
	}
}

// run is the mutable state of one Handle call.
type run struct {
	mu       sync.Mutex
	summary  Summary
	computed map[string]*scoring.ProfileScore
	log      *logger.Logger
}

func (r *run) record(f func(s *Summary)) {
	r.mu.Lock()
	f(&r.summary)
	r.mu.Unlock()
}

// Handle executes the run.
//
// Phase 1 scores and upserts every targeted user. Phase 2 runs one rank pass
// over the whole active population. Phase 3 builds the behavioral profile of
// every committed user and refreshes its cache entry. A failing user never
// stops the run; a failing rank pass retains the previous ranks.
func (h *RecalculateProfilesHandler) Handle(ctx context.Context, cmd RecalculateProfilesCommand) (*Summary, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		summary: Summary{
			RunID:     uuid.NewString(),
			StartedAt:         h.engine.Now(),
			Failures:          []batch.Failure{},
			AnalyticsFailures: []batch.Failure{},
		},
		computed: make(map[string]*scoring.ProfileScore),
	}
	r.log = h.logger.With(logger.RunID(r.summary.RunID))
	r.log.Info("recalculation started",
		logger.String("user_id", cmd.Target.UserID),
		logger.Bool("all_active", cmd.Target.AllActive),
		logger.Int("batch_size", cmd.BatchSize),
		logger.Bool("force", cmd.Force),
		logger.String("trigger", cmd.Trigger),
	)
	start := time.Now()

	// Phase 1: score and upsert.
	if err := h.scoreTargets(ctx, r, cmd); err != nil {
		r.log.Error("recalculation aborted", logger.Err(err))
		return nil, err
	}

	if r.summary.Cancelled || ctx.Err() != nil {
		r.summary.Cancelled = true
	} else {
		// Phase 2: population rank pass.
		h.rankPass(ctx, r)

		// Phase 3: analytics and cache refresh.
		h.refreshAnalytics(ctx, r)
	}

	r.summary.ErrorCount = len(r.summary.Failures)
	if r.summary.RankError != "" {
		r.summary.ErrorCount++
	}
	r.summary.AnalyticsErrorCount = len(r.summary.AnalyticsFailures)
	r.summary.Duration = time.Since(start)
	h.metrics.ObserveBatch(r.summary.Duration, r.summary.Cancelled)

	r.log.Info("recalculation finished",
		logger.Int("processed", r.summary.ProcessedCount),
		logger.Int("errors", r.summary.ErrorCount),
		logger.Int("analytics_errors", r.summary.AnalyticsErrorCount),
		logger.Int("skipped", r.summary.SkippedCount),
		logger.Int("unchanged", r.summary.UnchangedCount),
		logger.Int("cache_errors", r.summary.CacheErrorCount),
		logger.Int("ranked", r.summary.Ranked),
		logger.Bool("cancelled", r.summary.Cancelled),
		logger.Latency(r.summary.Duration),
	)
	out := r.summary
	return &out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Phase 1
// ─────────────────────────────────────────────────────────────────────────────

func (h *RecalculateProfilesHandler) scoreTargets(ctx context.Context, r *run, cmd RecalculateProfilesCommand) error {
	work := func(ctx context.Context, userID string) error {
		return h.scoreOne(ctx, r, userID, cmd.Force)
	}

	if cmd.Target.UserID != "" {
		h.absorb(r, batch.Run(ctx, []string{cmd.Target.UserID}, 1, work))
		return nil
	}

	it, err := batch.NewChunkIterator(h.directory, cmd.BatchSize)
	if err != nil {
		return err
	}
	for it.Next(ctx) {
		h.absorb(r, batch.Run(ctx, it.Chunk(), h.config.Concurrency, work))
		if r.summary.Cancelled {
			return nil
		}
	}
	if err := it.Err(); err != nil {
		if ctx.Err() != nil {
			r.summary.Cancelled = true
			return nil
		}
		// Users committed so far stay committed; the rank pass still runs.
		r.log.Error("failed to list active users", logger.Err(err))
		r.record(func(s *Summary) {
			s.Failures = append(s.Failures, batch.Failure{Err: err, Reason: err.Error()})
		})
	}
	return nil
}

func (h *RecalculateProfilesHandler) absorb(r *run, report batch.Report) {
	r.record(func(s *Summary) {
		s.Failures = append(s.Failures, report.Failures...)
		if report.Cancelled {
			s.Cancelled = true
		}
	})
}

// scoreOne returns nil for skipped users.
func (h *RecalculateProfilesHandler) scoreOne(ctx context.Context, r *run, userID string, force bool) error {
	ctx, cancel := h.userContext(ctx)
	defer cancel()
	start := time.Now()
	log := r.log.With(logger.UserID(userID))

	if !force && !h.config.RecomputeFresh && h.fresh(ctx, userID, log) {
		h.metrics.RecordUser(metrics.UserSkipped)
		r.record(func(s *Summary) { s.SkippedCount++ })
		return nil
	}

	res, err := h.engine.ScoreUser(ctx, userID)
	if err != nil {
		return h.fail(log, userID, err)
	}

	unchanged := false
	if prev, err := h.scores.Get(ctx, userID); err == nil {
		unchanged = prev.FactsDigest == res.Score.FactsDigest && prev.RulesVersion == res.Score.RulesVersion
	} else if !shared.IsNotFound(err) {
		log.Debug("previous score unavailable", logger.Err(err))
	}

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.scores.Upsert(ctx, res.Score)
	})
	if err != nil {
		return h.fail(log, userID, err)
	}

	h.metrics.ObserveCompute(time.Since(start), res.Score.TotalScore)
	if unchanged {
		h.metrics.RecordUser(metrics.UserUnchanged)
	} else {
		h.metrics.RecordUser(metrics.UserProcessed)
	}
	r.record(func(s *Summary) {
		s.ProcessedCount++
		if unchanged {
			s.UnchangedCount++
		}
	})
	r.mu.Lock()
	r.computed[userID] = res.Score
	r.mu.Unlock()

	log.Debug("score committed", logger.Score(res.Score.TotalScore), logger.Latency(time.Since(start)))
	return nil
}

// fresh reports whether the user's cache entry is complete and unexpired.
func (h *RecalculateProfilesHandler) fresh(ctx context.Context, userID string, log *logger.Logger) bool {
	snap, hit, err := analytics.Lookup(ctx, h.cache, userID)
	if err != nil {
		h.metrics.RecordCache("get", metrics.CacheError)
		log.Warn("cache lookup failed, recomputing", logger.Err(err))
		return false
	}
	if !hit {
		h.metrics.RecordCache("get", metrics.CacheMiss)
		return false
	}
	h.metrics.RecordCache("get", metrics.CacheHit)
	return snap.Complete() && !snap.Expired(h.engine.Now())
}

// ─────────────────────────────────────────────────────────────────────────────
// Phase 2
// ─────────────────────────────────────────────────────────────────────────────

func (h *RecalculateProfilesHandler) rankPass(ctx context.Context, r *run) {
	start := time.Now()
	summary, err := h.population.RankPass(ctx, func(entries []ranking.Entry) ([]ranking.Placement, error) {
		return ranking.Compete(entries), nil
	})
	h.metrics.ObserveRankPass(time.Since(start), summary.Ranked, err)

	if err != nil {
		r.log.Error("rank pass failed, previous ranks retained", logger.Err(err))
		r.summary.RankError = err.Error()
		return
	}
	r.summary.Ranked = summary.Ranked
	r.log.Info("rank pass committed",
		logger.Int("ranked", summary.Ranked),
		logger.Int("moved", summary.Moved),
		logger.Int("newly_ranked", summary.NewlyRanked),
		logger.Latency(time.Since(start)),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Phase 3
// ─────────────────────────────────────────────────────────────────────────────

func (h *RecalculateProfilesHandler) refreshAnalytics(ctx context.Context, r *run) {
	ids := make([]string, 0, len(r.computed))
	for id := range r.computed {
		ids = append(ids, id)
	}

	report := batch.Run(ctx, ids, h.config.Concurrency, func(ctx context.Context, userID string) error {
		return h.refreshOne(ctx, r, userID)
	})
	// The scores are committed; these users only miss a fresh cache entry.
	r.record(func(s *Summary) {
		s.AnalyticsFailures = append(s.AnalyticsFailures, report.Failures...)
		if report.Cancelled {
			s.Cancelled = true
		}
	})
}

func (h *RecalculateProfilesHandler) refreshOne(ctx context.Context, r *run, userID string) error {
	ctx, cancel := h.userContext(ctx)
	defer cancel()
	log := r.log.With(logger.UserID(userID))

	// The stored row carries the rank assigned by the pass.
	score, err := h.scores.Get(ctx, userID)
	if err != nil {
		log.Warn("reading ranked score failed, caching computed score", logger.Err(err))
		score = r.computed[userID]
	}

	profile, err := h.engine.BuildProfile(ctx, userID, score)
	if err != nil {
		err = engine.AsTimeout(userID, err)
		log.Warn("behavioral profile failed, cache entry not refreshed", logger.Err(err))
		return err
	}

	if err := h.cache.Put(ctx, h.engine.Snapshot(score, profile), h.config.CacheTTL); err != nil {
		h.metrics.RecordCache("put", metrics.CacheError)
		log.Warn("cache write failed", logger.Err(err))
		r.record(func(s *Summary) { s.CacheErrorCount++ })
		return nil
	}
	h.metrics.RecordCache("put", metrics.CacheOK)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (h *RecalculateProfilesHandler) userContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.PerUserTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.config.PerUserTimeout)
}

func (h *RecalculateProfilesHandler) fail(log *logger.Logger, userID string, err error) error {
	err = engine.AsTimeout(userID, err)
	h.metrics.RecordUser(metrics.UserFailed)
	if errors.Is(err, context.Canceled) {
		log.Warn("user computation cancelled", logger.Err(err))
	} else {
		log.Error("user computation failed", logger.Err(err))
	}
	return err
}
