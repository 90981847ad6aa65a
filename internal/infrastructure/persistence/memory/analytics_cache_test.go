package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

func TestAnalyticsCache_PutGetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cache := NewAnalyticsCache().WithClock(func() time.Time { return now })

	_, err := cache.Get(ctx, "u-1")
	assert.ErrorIs(t, err, analytics.ErrMiss)

	require.NoError(t, cache.Put(ctx, &analytics.Snapshot{
		UserID:   "u-1",
		Score:    &scoring.ProfileScore{UserID: "u-1", TotalScore: 42},
		Behavior: &analytics.BehavioralProfile{UserID: "u-1"},
	}, time.Hour))

	snap, err := cache.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 42, snap.Score.TotalScore)
	assert.Equal(t, now.Add(time.Hour), snap.ExpiresAt)

	now = now.Add(time.Hour)
	_, err = cache.Get(ctx, "u-1")
	assert.ErrorIs(t, err, analytics.ErrMiss)
	assert.Equal(t, 0, cache.Len())
}

func TestAnalyticsCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	cache := NewAnalyticsCache()

	require.NoError(t, cache.Put(ctx, &analytics.Snapshot{UserID: "u-1", Score: &scoring.ProfileScore{TotalScore: 10}}, time.Hour))
	require.NoError(t, cache.Put(ctx, &analytics.Snapshot{UserID: "u-1", Score: &scoring.ProfileScore{TotalScore: 20}}, time.Hour))

	snap, err := cache.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 20, snap.Score.TotalScore)
}

func TestAnalyticsCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewAnalyticsCache()
	put := func() {
		require.NoError(t, cache.Put(ctx, &analytics.Snapshot{
			UserID:   "u-1",
			Score:    &scoring.ProfileScore{},
			Behavior: &analytics.BehavioralProfile{},
		}, time.Hour))
	}

	put()
	require.NoError(t, cache.Invalidate(ctx, "u-1", analytics.SectionScore))
	snap, err := cache.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, snap.Has(analytics.SectionScore))
	assert.True(t, snap.Has(analytics.SectionBehavior))

	require.NoError(t, cache.Invalidate(ctx, "u-1", analytics.SectionBehavior))
	_, err = cache.Get(ctx, "u-1")
	assert.ErrorIs(t, err, analytics.ErrMiss)

	put()
	require.NoError(t, cache.Invalidate(ctx, "u-1"))
	_, err = cache.Get(ctx, "u-1")
	assert.ErrorIs(t, err, analytics.ErrMiss)

	assert.NoError(t, cache.Invalidate(ctx, "unknown", analytics.SectionScore))
}
