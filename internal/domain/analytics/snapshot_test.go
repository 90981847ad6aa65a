package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

type failingCache struct{ NopCache }

func (failingCache) Get(context.Context, string) (*Snapshot, error) {
	return nil, shared.CacheUnavailableError("Get", errors.New("dial tcp: refused"))
}

func TestLookup_FoldsFailuresIntoMiss(t *testing.T) {
	ctx := context.Background()

	snap, hit, err := Lookup(ctx, NopCache{}, "u-1")
	assert.Nil(t, snap)
	assert.False(t, hit)
	assert.NoError(t, err)

	snap, hit, err = Lookup(ctx, failingCache{}, "u-1")
	assert.Nil(t, snap)
	assert.False(t, hit)
	assert.True(t, shared.IsCacheUnavailable(err))
}

func TestSnapshot_State(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Snapshot{UserID: "u-1", Score: &scoring.ProfileScore{}, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, s.Has(SectionScore))
	assert.False(t, s.Has(SectionBehavior))
	assert.False(t, s.Complete())
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))

	var nilSnap *Snapshot
	assert.True(t, nilSnap.Expired(now))
	assert.False(t, nilSnap.Has(SectionScore))

	assert.True(t, SectionBehavior.IsValid())
	assert.False(t, Section("heatmap").IsValid())
}

func TestSnapshot_ServesBehaviorOnlyWithScore(t *testing.T) {
	full := &Snapshot{UserID: "u-1", Score: &scoring.ProfileScore{}, Behavior: &BehavioralProfile{}}
	assert.True(t, full.Serves(SectionScore))
	assert.True(t, full.Serves(SectionBehavior))

	scoreDropped := &Snapshot{UserID: "u-1", Behavior: &BehavioralProfile{}}
	assert.False(t, scoreDropped.Serves(SectionScore))
	assert.False(t, scoreDropped.Serves(SectionBehavior), "behavior holds score-derived values")

	behaviorDropped := &Snapshot{UserID: "u-1", Score: &scoring.ProfileScore{}}
	assert.True(t, behaviorDropped.Serves(SectionScore))
	assert.False(t, behaviorDropped.Serves(SectionBehavior))
}
