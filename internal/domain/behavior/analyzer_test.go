package behavior

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
)

var windowEnd = time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC) // a Friday

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Rules{
		Lookback:            14 * 24 * time.Hour,
		TrendPeriod:         7 * 24 * time.Hour,
		MediumEngagementMin: 5,
		HighEngagementMin:   20,
		TimeZone:            "UTC",
	})
	require.NoError(t, err)
	return a
}

func ev(at time.Time, typ activity.EventType) activity.Event {
	return activity.Event{UserID: "u-1", Type: typ, OccurredAt: at}
}

func TestAnalyze_EmptyWindow(t *testing.T) {
	a := testAnalyzer(t)

	res := a.Analyze(nil, a.Window(windowEnd))

	assert.Equal(t, Heatmap{}, res.Heatmap)
	assert.Zero(t, res.MaxActivity)
	assert.Equal(t, LevelLow, res.Engagement.Level)
	assert.Zero(t, res.Engagement.Velocity)
	assert.Zero(t, res.Usage.ActivityConsistency)
	assert.Equal(t, PeriodNone, res.Usage.MostActivePeriod)
	assert.Equal(t, ClassificationInsufficientData, res.Classification)
	assert.Nil(t, res.LastActivityAt)
	assert.False(t, res.HasActivity())
	assert.False(t, math.IsNaN(res.Usage.ActivityConsistency))
}

func TestAnalyze_HeatmapSumMatchesWindowCount(t *testing.T) {
	a := testAnalyzer(t)
	w := a.Window(windowEnd)
	rng := rand.New(rand.NewPCG(3, 5))

	for range 20 {
		var events []activity.Event
		inside := 0
		for range rng.IntN(300) {
			// Spread events over three weeks so some fall before the window.
			at := windowEnd.Add(-time.Duration(rng.Int64N(int64(21 * 24 * time.Hour))))
			events = append(events, ev(at, activity.EventPageView))
			if w.Contains(at) {
				inside++
			}
		}
		// An event exactly at the window end is excluded.
		events = append(events, ev(windowEnd, activity.EventLogin))

		res := a.Analyze(events, w)

		assert.Equal(t, inside, res.Heatmap.Sum())
		assert.Equal(t, inside, res.Usage.TotalEvents)
	}
}

func TestAnalyze_UsagePatterns(t *testing.T) {
	a := testAnalyzer(t)
	day := windowEnd.AddDate(0, 0, -2) // Wednesday

	events := []activity.Event{
		ev(day.Add(15*time.Hour), activity.EventForumPost),
		ev(day.Add(15*time.Hour+10*time.Minute), activity.EventForumPost),
		ev(day.Add(16*time.Hour), activity.EventPageView),
		ev(day.Add(9*time.Hour), activity.EventLogin),
		ev(day.Add(23*time.Hour), activity.EventLogin),
	}

	res := a.Analyze(events, a.Window(windowEnd))

	assert.Equal(t, 2, res.Heatmap[int(time.Wednesday)][15])
	assert.Equal(t, 2, res.MaxActivity)
	assert.Equal(t, 15, res.Usage.PeakHour)
	assert.Equal(t, int(time.Wednesday), res.Usage.PeakDay)
	assert.Equal(t, PeriodAfternoon, res.Usage.MostActivePeriod)
	assert.Equal(t, 1, res.Usage.ActiveDays)
	assert.Equal(t, 2, res.Usage.EventTypes[activity.EventForumPost])
	assert.Equal(t, ClassificationSufficient, res.Classification)
	require.NotNil(t, res.LastActivityAt)
	assert.Equal(t, day.Add(23*time.Hour), *res.LastActivityAt)
}

func TestAnalyze_Consistency(t *testing.T) {
	a := testAnalyzer(t)
	w := a.Window(windowEnd)

	t.Run("evenly spread activity is fully consistent", func(t *testing.T) {
		var events []activity.Event
		for d := 0; d < 14; d++ {
			events = append(events, ev(w.From.AddDate(0, 0, d).Add(10*time.Hour), activity.EventLogin))
		}
		res := a.Analyze(events, w)
		assert.Equal(t, 100.0, res.Usage.ActivityConsistency)
		assert.Equal(t, 14, res.Usage.ActiveDays)
	})

	t.Run("a single burst is inconsistent", func(t *testing.T) {
		var events []activity.Event
		for i := 0; i < 14; i++ {
			events = append(events, ev(w.From.Add(time.Duration(i)*time.Minute), activity.EventPageView))
		}
		res := a.Analyze(events, w)
		// CV = sqrt(13) > 1, so the score clamps to zero.
		assert.Equal(t, 0.0, res.Usage.ActivityConsistency)
	})

	t.Run("every other day", func(t *testing.T) {
		var events []activity.Event
		for d := 0; d < 14; d += 2 {
			events = append(events, ev(w.From.AddDate(0, 0, d).Add(time.Hour), activity.EventLogin))
		}
		res := a.Analyze(events, w)
		// mean 0.5, stddev 0.5, CV 1.
		assert.Equal(t, 0.0, res.Usage.ActivityConsistency)
	})
}

func TestAnalyze_EngagementTrend(t *testing.T) {
	a := testAnalyzer(t)
	w := a.Window(windowEnd)

	build := func(prior, recent int) []activity.Event {
		var events []activity.Event
		for i := 0; i < prior; i++ {
			events = append(events, ev(w.From.Add(time.Duration(i+1)*time.Hour), activity.EventLogin))
		}
		for i := 0; i < recent; i++ {
			events = append(events, ev(windowEnd.Add(-time.Duration(i+1)*time.Hour), activity.EventLogin))
		}
		return events
	}

	cases := []struct {
		name     string
		prior    int
		recent   int
		velocity float64
		level    Level
	}{
		{"doubling", 4, 8, 100, LevelMedium},
		{"from nothing", 0, 3, 300, LevelLow},
		{"halving", 30, 15, -50, LevelMedium},
		{"gone quiet", 10, 0, -100, LevelLow},
		{"busy", 20, 25, 25, LevelHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := a.Analyze(build(tc.prior, tc.recent), w)
			assert.Equal(t, tc.recent, res.Engagement.RecentCount)
			assert.Equal(t, tc.prior, res.Engagement.PriorCount)
			assert.InDelta(t, tc.velocity, res.Engagement.Velocity, 1e-9)
			assert.Equal(t, tc.level, res.Engagement.Level)
		})
	}
}

func TestAnalyze_TimeZoneShiftsBuckets(t *testing.T) {
	rules := DefaultRules()
	rules.TimeZone = "Asia/Tokyo"
	a, err := NewAnalyzer(rules)
	require.NoError(t, err)

	// 20:00 UTC Thursday is 05:00 Friday in Tokyo.
	at := time.Date(2026, 5, 14, 20, 0, 0, 0, time.UTC)
	res := a.Analyze([]activity.Event{ev(at, activity.EventLogin)}, a.Window(windowEnd))

	assert.Equal(t, 1, res.Heatmap[int(time.Friday)][5])
	assert.Equal(t, PeriodNight, res.Usage.MostActivePeriod)
}

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, PeriodNight, PeriodOf(0))
	assert.Equal(t, PeriodNight, PeriodOf(5))
	assert.Equal(t, PeriodMorning, PeriodOf(6))
	assert.Equal(t, PeriodMorning, PeriodOf(13))
	assert.Equal(t, PeriodAfternoon, PeriodOf(14))
	assert.Equal(t, PeriodAfternoon, PeriodOf(21))
	assert.Equal(t, PeriodNight, PeriodOf(22))
}

func TestRules_Validate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	r := DefaultRules()
	r.Lookback = r.TrendPeriod
	r.HighEngagementMin = 1
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two trend periods")
	assert.Contains(t, err.Error(), "medium < high")
}
