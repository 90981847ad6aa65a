package predictive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/domain/behavior"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newHeuristics(t *testing.T) *Heuristics {
	t.Helper()
	h, err := NewHeuristics(DefaultRules())
	require.NoError(t, err)
	return h
}

func activeAnalysis(lastAgo time.Duration, velocity, consistency float64, recent, history int) *behavior.Analysis {
	last := now.Add(-lastAgo)
	return &behavior.Analysis{
		Usage: behavior.UsagePatterns{
			TotalEvents:         recent + 1,
			ActivityConsistency: consistency,
		},
		Engagement: behavior.EngagementPatterns{
			RecentCount: recent,
			Velocity:    velocity,
		},
		LastActivityAt: &last,
		HistoryDays:    history,
		Classification: behavior.ClassificationSufficient,
	}
}

func scoreWith(total int, verification float64) *scoring.ProfileScore {
	return &scoring.ProfileScore{
		TotalScore: total,
		CategoryScores: map[scoring.Category]scoring.CategoryScore{
			scoring.CategoryVerification: {Category: scoring.CategoryVerification, Value: verification},
		},
	}
}

func TestChurn_EmptyLedger(t *testing.T) {
	h := newHeuristics(t)
	analyzer, err := behavior.NewAnalyzer(behavior.DefaultRules())
	require.NoError(t, err)

	empty := analyzer.Analyze(nil, analyzer.Window(now))
	churn := h.Churn(scoreWith(50, 0), empty, now)

	assert.Contains(t, churn.Factors, FactorNoRecentActivity)
	assert.Contains(t, churn.Factors, FactorInconsistentActivity)
	assert.NotContains(t, churn.Factors, FactorDecliningEngagement)
	assert.Equal(t, 60, churn.Score)
	assert.Equal(t, BandHigh, churn.Band)
}

func TestChurn_Factors(t *testing.T) {
	h := newHeuristics(t)

	t.Run("healthy user has no risk", func(t *testing.T) {
		churn := h.Churn(scoreWith(80, 100), activeAnalysis(time.Hour, 20, 80, 30, 40), now)
		assert.Empty(t, churn.Factors)
		assert.Equal(t, 0, churn.Score)
		assert.Equal(t, BandLow, churn.Band)
	})

	t.Run("declining and inactive", func(t *testing.T) {
		churn := h.Churn(scoreWith(80, 100), activeAnalysis(20*24*time.Hour, -60, 80, 2, 40), now)
		assert.Equal(t, []string{FactorLongInactivity, FactorDecliningEngagement}, churn.Factors)
		assert.Equal(t, 60, churn.Score)
		assert.Equal(t, BandHigh, churn.Band)
	})

	t.Run("medium band", func(t *testing.T) {
		churn := h.Churn(scoreWith(30, 0), activeAnalysis(time.Hour, 0, 10, 5, 40), now)
		assert.Equal(t, []string{FactorInconsistentActivity, FactorLowProfileScore}, churn.Factors)
		assert.Equal(t, 30, churn.Score)
		assert.Equal(t, BandMedium, churn.Band)
	})

	t.Run("score is clamped", func(t *testing.T) {
		rules := DefaultRules()
		rules.Churn.NoActivityPoints = 90
		rules.Churn.LowConsistencyPoints = 90
		hh, err := NewHeuristics(rules)
		require.NoError(t, err)

		churn := hh.Churn(nil, &behavior.Analysis{}, now)
		assert.Equal(t, 100, churn.Score)
	})

	t.Run("missing inputs contribute nothing", func(t *testing.T) {
		churn := h.Churn(nil, nil, now)
		assert.Equal(t, 0, churn.Score)
		assert.Empty(t, churn.Factors)
	})
}

func TestForecast(t *testing.T) {
	h := newHeuristics(t)

	cases := []struct {
		name       string
		recent     int
		velocity   float64
		history    int
		estimate   float64
		trend      Trend
		confidence Band
	}{
		{"growing", 10, 50, 30, 15, TrendIncreasing, BandHigh},
		{"flat", 10, 5, 20, 10.5, TrendStable, BandMedium},
		{"shrinking", 10, -40, 3, 6, TrendDecreasing, BandLow},
		{"floored at zero", 4, -300, 3, 0, TrendDecreasing, BandLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := h.Forecast(activeAnalysis(time.Hour, tc.velocity, 50, tc.recent, tc.history))
			assert.InDelta(t, tc.estimate, f.NextPeriodEstimate, 1e-9)
			assert.Equal(t, tc.trend, f.Trend)
			assert.Equal(t, tc.confidence, f.Confidence)
		})
	}

	f := h.Forecast(nil)
	assert.Zero(t, f.NextPeriodEstimate)
	assert.Equal(t, BandLow, f.Confidence)
}

func TestSuccess(t *testing.T) {
	h := newHeuristics(t)

	t.Run("strong volunteer", func(t *testing.T) {
		s := h.Success(scoreWith(90, 100), activeAnalysis(time.Hour, 0, 80, 10, 30))
		// 0.5*90 + 0.3*100 + 0.2*80
		assert.Equal(t, 91, s.Score)
		assert.Equal(t, BandHigh, s.Band)
		assert.Equal(t, []string{FactorStrongProfile, FactorVerifiedDocuments, FactorConsistentActivity}, s.Factors)
	})

	t.Run("missing behavior counts as zero", func(t *testing.T) {
		s := h.Success(scoreWith(60, 40), nil)
		// 0.5*60 + 0.3*40
		assert.Equal(t, 42, s.Score)
		assert.Equal(t, BandMedium, s.Band)
		assert.Empty(t, s.Factors)
	})

	t.Run("nothing known", func(t *testing.T) {
		s := h.Success(nil, nil)
		assert.Equal(t, 0, s.Score)
		assert.Equal(t, BandLow, s.Band)
	})
}

func TestPredict_IsDeterministic(t *testing.T) {
	h := newHeuristics(t)
	score := scoreWith(72, 55)
	analysis := activeAnalysis(3*24*time.Hour, -30, 45, 7, 21)

	assert.Equal(t, h.Predict(score, analysis, now), h.Predict(score, analysis, now))
}

func TestRules_Validate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	r := DefaultRules()
	r.Success.TotalWeight = 0.9
	r.Churn.DecliningVelocity = 10
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "success weights")
	assert.Contains(t, err.Error(), "declining velocity")
}
