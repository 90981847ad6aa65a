package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/ranking"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/memory"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type fixture struct {
	now      time.Time
	platform *memory.Platform
	scores   *memory.ScoreRepository
	cache    *memory.AnalyticsCache
	engine   *engine.Engine
	metrics  *metrics.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.platform = memory.NewPlatform()
	f.scores = memory.NewScoreRepository(f.platform.Active)
	f.cache = memory.NewAnalyticsCache().WithClock(clock)
	f.metrics = metrics.NewManager()

	components, err := engine.DefaultRules().Build()
	require.NoError(t, err)
	f.engine = engine.New(f.platform, f.platform, components, engine.WithClock(clock))

	// Two identical strong profiles and one weaker one: ranks 1, 1, 3.
	for _, id := range []string{"u-1", "u-2", "u-3"} {
		f.platform.AddUser(id, true).SetCompletion(id, scoring.DefaultRules().RequiredFields...)
	}
	for _, id := range []string{"u-1", "u-2"} {
		f.platform.SetVerified(id, "identity", "background_check", "address", "certification")
	}
	return f
}

func (f *fixture) handler(opts ...func(*RecalculateProfilesHandler)) *RecalculateProfilesHandler {
	cfg := DefaultRecalculateProfilesHandlerConfig()
	cfg.Concurrency = 2
	cfg.CacheTTL = 6 * time.Hour
	h := NewRecalculateProfilesHandler(f.engine, f.scores, f.scores, f.cache, f.platform, f.metrics, nil, cfg)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func allActive() RecalculateProfilesCommand {
	return RecalculateProfilesCommand{Target: Target{AllActive: true}, BatchSize: 2}
}

type flakyScores struct {
	scoring.Repository
	mu       sync.Mutex
	failures map[string]int
	err      error
}

func (s *flakyScores) Upsert(ctx context.Context, score *scoring.ProfileScore) error {
	s.mu.Lock()
	if s.failures[score.UserID] > 0 {
		s.failures[score.UserID]--
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()
	return s.Repository.Upsert(ctx, score)
}

type brokenPopulation struct{}

func (brokenPopulation) RankPass(context.Context, ranking.PassFunc) (ranking.Summary, error) {
	return ranking.Summary{}, shared.PopulationSnapshotError("RankPass", errors.New("snapshot read failed"))
}

type brokenCache struct{ analytics.Cache }

func (brokenCache) Put(context.Context, *analytics.Snapshot, time.Duration) error {
	return shared.CacheUnavailableError("Put", errors.New("connection refused"))
}

// ─────────────────────────────────────────────────────────────────────────────
// RecalculateProfiles
// ─────────────────────────────────────────────────────────────────────────────

func TestRecalculateProfilesCommand_Validate(t *testing.T) {
	tests := []struct {
		name string
		cmd  RecalculateProfilesCommand
		want error
	}{
		{"single user", RecalculateProfilesCommand{Target: Target{UserID: "u-1"}, BatchSize: 1}, nil},
		{"all active", allActive(), nil},
		{"no target", RecalculateProfilesCommand{BatchSize: 1}, shared.ErrInvalidTarget},
		{"both targets", RecalculateProfilesCommand{Target: Target{UserID: "u-1", AllActive: true}, BatchSize: 1}, shared.ErrInvalidTarget},
		{"zero batch", RecalculateProfilesCommand{Target: Target{AllActive: true}}, shared.ErrInvalidBatchSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecalculateProfiles_AllActive(t *testing.T) {
	f := newFixture(t)
	f.platform.AddUser("u-gone", false)

	summary, err := f.handler().Handle(t.Context(), allActive())
	require.NoError(t, err)

	_, err = uuid.Parse(summary.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 3, summary.ProcessedCount)
	assert.Zero(t, summary.ErrorCount)
	assert.Zero(t, summary.SkippedCount)
	assert.Equal(t, 3, summary.Ranked)
	assert.Empty(t, summary.RankError)
	assert.False(t, summary.Cancelled)
	assert.True(t, summary.StartedAt.Equal(f.now))

	ranks := map[string]int{}
	for _, id := range []string{"u-1", "u-2", "u-3"} {
		s, err := f.scores.Get(t.Context(), id)
		require.NoError(t, err)
		ranks[id] = s.RankPosition

		snap, err := f.cache.Get(t.Context(), id)
		require.NoError(t, err)
		assert.True(t, snap.Complete())
		assert.Equal(t, s.RankPosition, snap.Score.RankPosition, "cached score carries the rank")
	}
	assert.Equal(t, map[string]int{"u-1": 1, "u-2": 1, "u-3": 3}, ranks)

	_, err = f.scores.Get(t.Context(), "u-gone")
	assert.ErrorIs(t, err, shared.ErrProfileNotFound)
}

func TestRecalculateProfiles_SkipsFreshUnlessForced(t *testing.T) {
	f := newFixture(t)
	h := f.handler()

	_, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	first, err := f.cache.Get(t.Context(), "u-1")
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	summary, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.SkippedCount)
	assert.Zero(t, summary.ProcessedCount)

	cmd := allActive()
	cmd.Force = true
	summary, err = h.Handle(t.Context(), cmd)
	require.NoError(t, err)
	assert.Zero(t, summary.SkippedCount)
	assert.Equal(t, 3, summary.ProcessedCount)
	assert.Equal(t, 3, summary.UnchangedCount)

	second, err := f.cache.Get(t.Context(), "u-1")
	require.NoError(t, err)
	assert.True(t, second.ComputedAt.After(first.ComputedAt), "forced run overwrites the fresh entry")
	assert.True(t, second.Score.LastCalculatedAt.Equal(f.now))
}

func TestRecalculateProfiles_RecomputeFreshDisablesSkip(t *testing.T) {
	f := newFixture(t)
	h := f.handler(func(h *RecalculateProfilesHandler) { h.config.RecomputeFresh = true })

	_, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)

	summary, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	assert.Zero(t, summary.SkippedCount)
	assert.Equal(t, 3, summary.ProcessedCount)
}

func TestRecalculateProfiles_ExpiredEntryIsRecomputed(t *testing.T) {
	f := newFixture(t)
	h := f.handler()

	_, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)

	f.now = f.now.Add(7 * time.Hour)
	summary, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	assert.Zero(t, summary.SkippedCount)
	assert.Equal(t, 3, summary.ProcessedCount)
}

func TestRecalculateProfiles_RankFailureRetainsRanks(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler().Handle(t.Context(), allActive())
	require.NoError(t, err)

	f.platform.SetVerified("u-3", "identity", "background_check", "address", "certification")
	cmd := allActive()
	cmd.Force = true
	summary, err := f.handler(func(h *RecalculateProfilesHandler) { h.population = brokenPopulation{} }).Handle(t.Context(), cmd)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ProcessedCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Contains(t, summary.RankError, "population snapshot")
	assert.Zero(t, summary.Ranked)

	s, err := f.scores.Get(t.Context(), "u-3")
	require.NoError(t, err)
	assert.Equal(t, 50, s.TotalScore)
	assert.Equal(t, 3, s.RankPosition, "previous rank retained")
}

func TestRecalculateProfiles_FailingUserDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyScores{Repository: f.scores, failures: map[string]int{"u-2": 100}, err: errors.New("check violation")}

	summary, err := f.handler(func(h *RecalculateProfilesHandler) { h.scores = flaky }).Handle(t.Context(), allActive())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.ErrorCount)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "u-2", summary.Failures[0].UserID)
	assert.Equal(t, 2, summary.Ranked)
}

func TestRecalculateProfiles_AnalyticsFailureIsCountedSeparately(t *testing.T) {
	f := newFixture(t)
	f.platform.FailLedger(errors.New("ledger offline"))

	summary, err := f.handler().Handle(t.Context(), allActive())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ProcessedCount, "scores are committed before the analytics phase")
	assert.Zero(t, summary.ErrorCount)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 3, summary.AnalyticsErrorCount)
	require.Len(t, summary.AnalyticsFailures, 3)
	assert.Equal(t, 3, summary.Ranked)
	assert.Zero(t, f.cache.Len())

	_, err = f.scores.Get(t.Context(), "u-1")
	require.NoError(t, err)
}

func TestRecalculateProfiles_RetriesTransientStoreErrors(t *testing.T) {
	f := newFixture(t)
	transient := errors.New("deadlock detected")
	flaky := &flakyScores{Repository: f.scores, failures: map[string]int{"u-1": 1}, err: transient}

	cfg := DefaultRecalculateProfilesHandlerConfig()
	cfg.RetryIf = func(err error) bool { return errors.Is(err, transient) }
	h := NewRecalculateProfilesHandler(f.engine, flaky, f.scores, f.cache, f.platform, nil, nil, cfg)

	summary, err := h.Handle(t.Context(), RecalculateProfilesCommand{Target: Target{UserID: "u-1"}, BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Zero(t, summary.ErrorCount)
}

func TestRecalculateProfiles_CacheWriteFailureKeepsUser(t *testing.T) {
	f := newFixture(t)
	h := f.handler(func(h *RecalculateProfilesHandler) { h.cache = brokenCache{Cache: f.cache} })

	summary, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ProcessedCount)
	assert.Equal(t, 3, summary.CacheErrorCount)
	assert.Zero(t, summary.ErrorCount)
}

// stallingFacts blocks completion reads until the caller's context ends.
type stallingFacts struct{ scoring.FactsProvider }

func (stallingFacts) CompletionFacts(ctx context.Context, _ string) (*scoring.CompletionFacts, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRecalculateProfiles_TimeoutIsRecordedPerUser(t *testing.T) {
	f := newFixture(t)
	components, err := engine.DefaultRules().Build()
	require.NoError(t, err)
	stalled := engine.New(stallingFacts{f.platform}, f.platform, components)

	cfg := DefaultRecalculateProfilesHandlerConfig()
	cfg.PerUserTimeout = 20 * time.Millisecond
	h := NewRecalculateProfilesHandler(stalled, f.scores, f.scores, f.cache, f.platform, nil, nil, cfg)

	summary, err := h.Handle(t.Context(), allActive())
	require.NoError(t, err)
	assert.False(t, summary.Cancelled)
	assert.Zero(t, summary.ProcessedCount)
	assert.Equal(t, 3, summary.ErrorCount)
	require.Len(t, summary.Failures, 3)
	for _, fl := range summary.Failures {
		assert.True(t, shared.IsTimeout(fl.Err), fl.Reason)
	}
}

func TestRecalculateProfiles_CancelledRunSkipsRankPass(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	summary, err := f.handler().Handle(ctx, allActive())
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Zero(t, summary.ProcessedCount)
	assert.Zero(t, summary.Ranked)
	assert.Zero(t, f.scores.Len())
}

func TestRecalculateProfiles_SingleUser(t *testing.T) {
	f := newFixture(t)
	summary, err := f.handler().Handle(t.Context(), RecalculateProfilesCommand{Target: Target{UserID: "u-3"}, BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 1, summary.Ranked)

	s, err := f.scores.Get(t.Context(), "u-3")
	require.NoError(t, err)
	assert.Equal(t, 1, s.RankPosition)
}

// ─────────────────────────────────────────────────────────────────────────────
// InvalidateAnalytics
// ─────────────────────────────────────────────────────────────────────────────

func TestReason_Sections(t *testing.T) {
	tests := []struct {
		reason Reason
		want   []analytics.Section
	}{
		{ReasonProfileEdited, []analytics.Section{analytics.SectionScore}},
		{ReasonDocumentVerified, []analytics.Section{analytics.SectionScore}},
		{ReasonActivityRecorded, []analytics.Section{analytics.SectionScore, analytics.SectionBehavior}},
		{ReasonAll, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			got, err := tt.reason.Sections()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Reason("password_changed").Sections()
	assert.True(t, shared.IsValidation(err))
}

func TestInvalidateAnalytics(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler().Handle(t.Context(), allActive())
	require.NoError(t, err)
	h := NewInvalidateAnalyticsHandler(f.cache, f.metrics, nil)

	res, err := h.Handle(t.Context(), InvalidateAnalyticsCommand{UserID: "u-1", Reason: ReasonProfileEdited})
	require.NoError(t, err)
	assert.Equal(t, []analytics.Section{analytics.SectionScore}, res.Sections)

	snap, err := f.cache.Get(t.Context(), "u-1")
	require.NoError(t, err)
	assert.Nil(t, snap.Score)
	assert.NotNil(t, snap.Behavior)

	res, err = h.Handle(t.Context(), InvalidateAnalyticsCommand{UserID: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, analytics.Sections(), res.Sections)
	_, err = f.cache.Get(t.Context(), "u-2")
	assert.ErrorIs(t, err, analytics.ErrMiss)

	_, err = h.Handle(t.Context(), InvalidateAnalyticsCommand{Reason: ReasonActivityRecorded})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestInvalidateAnalytics_All(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler().Handle(t.Context(), allActive())
	require.NoError(t, err)
	require.Equal(t, 3, f.cache.Len())

	deleted, err := NewInvalidateAnalyticsHandler(f.cache, f.metrics, nil).HandleAll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Zero(t, f.cache.Len())

	deleted, err = NewInvalidateAnalyticsHandler(nil, nil, nil).HandleAll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = NewInvalidateAnalyticsHandler(brokenCache{Cache: f.cache}, nil, nil).HandleAll(t.Context())
	assert.ErrorIs(t, err, ErrFlushUnsupported)
}
