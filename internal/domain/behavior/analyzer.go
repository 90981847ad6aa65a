package behavior

import (
	"math"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/timeutil"
)

// Level is the coarse engagement band.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Classification describes whether the window had enough data to analyze.
type Classification string

const (
	ClassificationSufficient       Classification = "sufficient"
	ClassificationInsufficientData Classification = "insufficient_data"
)

// UsagePatterns describes when and how evenly a user is active.
type UsagePatterns struct {
	MostActivePeriod    Period                     `json:"most_active_period"`
	PeakHour            int                        `json:"peak_hour"`
	PeakDay             int                        `json:"peak_day"`
	ActivityConsistency float64                    `json:"activity_consistency"`
	ActiveDays          int                        `json:"active_days"`
	TotalEvents         int                        `json:"total_events"`
	EventTypes          map[activity.EventType]int `json:"event_types"`
}

// EngagementPatterns compares the most recent sub-period with the one before it.
type EngagementPatterns struct {
	RecentCount int     `json:"recent_count"`
	PriorCount  int     `json:"prior_count"`
	Velocity    float64 `json:"engagement_velocity"`
	Level       Level   `json:"engagement_level"`
}

// Analysis is the full analyzer output for one window.
type Analysis struct {
	Window         activity.Window    `json:"window"`
	Heatmap        Heatmap            `json:"activity_heatmap"`
	MaxActivity    int                `json:"max_activity"`
	Usage          UsagePatterns      `json:"usage_patterns"`
	Engagement     EngagementPatterns `json:"engagement_patterns"`
	LastActivityAt *time.Time         `json:"last_activity_at,omitempty"`
	HistoryDays    int                `json:"history_days"`
	Classification Classification     `json:"classification"`
}

// HasActivity reports whether any event fell inside the window.
func (a *Analysis) HasActivity() bool {
	return a != nil && a.Usage.TotalEvents > 0
}

// Analyzer turns ledger events into an Analysis. It is stateless and safe for concurrent use.
type Analyzer struct {
	rules Rules
	loc   *time.Location
}

// NewAnalyzer validates the rules and resolves the bucketing time zone.
func NewAnalyzer(rules Rules) (*Analyzer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	loc, err := timeutil.LoadLocation(rules.TimeZone)
	if err != nil {
		return nil, err
	}
	return &Analyzer{rules: rules, loc: loc}, nil
}

// Rules returns the analyzer settings.
func (a *Analyzer) Rules() Rules { return a.rules }

// Window returns the analysis window ending at now.
func (a *Analyzer) Window(now time.Time) activity.Window {
	return activity.Window{From: now.Add(-a.rules.Lookback), To: now}
}

// Analyze computes every metric from the events inside the window.
// Events outside the window are ignored, so the heatmap always sums to the
// number of events counted.
func (a *Analyzer) Analyze(events []activity.Event, window activity.Window) *Analysis {
	inWindow := window.Filter(events)

	out := &Analysis{
		Window: window,
		Usage: UsagePatterns{
			MostActivePeriod: PeriodNone,
			EventTypes:       map[activity.EventType]int{},
		},
		Engagement:     EngagementPatterns{Level: LevelLow},
		Classification: ClassificationInsufficientData,
	}
	if len(inWindow) == 0 {
		return out
	}

	daily := make(map[string]int)
	first, last := inWindow[0].OccurredAt, inWindow[0].OccurredAt
	for _, e := range inWindow {
		day, hour := timeutil.Bucket(e.OccurredAt, a.loc)
		out.Heatmap[day][hour]++
		daily[timeutil.DayKey(e.OccurredAt, a.loc)]++
		out.Usage.EventTypes[e.Type]++

		if e.OccurredAt.Before(first) {
			first = e.OccurredAt
		}
		if e.OccurredAt.After(last) {
			last = e.OccurredAt
		}
	}

	hours := out.Heatmap.HourTotals()
	days := out.Heatmap.DayTotals()

	out.MaxActivity = out.Heatmap.Max()
	out.Usage.TotalEvents = len(inWindow)
	out.Usage.MostActivePeriod = out.Heatmap.MostActivePeriod()
	out.Usage.PeakHour = argmax(hours[:])
	out.Usage.PeakDay = argmax(days[:])
	out.Usage.ActiveDays = len(daily)
	out.Usage.ActivityConsistency = round2(consistency(daily, timeutil.DayKeys(window.From, window.To, a.loc)))

	out.Engagement = a.engagement(inWindow, window)

	lastUTC := last.UTC()
	out.LastActivityAt = &lastUTC
	out.HistoryDays = timeutil.DaysSince(first, window.To)
	out.Classification = ClassificationSufficient

	return out
}

func (a *Analyzer) engagement(events []activity.Event, window activity.Window) EngagementPatterns {
	recentWin := window.Tail(a.rules.TrendPeriod)
	priorWin := recentWin.Shift(a.rules.TrendPeriod)

	var recent, prior int
	for _, e := range events {
		switch {
		case recentWin.Contains(e.OccurredAt):
			recent++
		case priorWin.Contains(e.OccurredAt):
			prior++
		}
	}

	ep := EngagementPatterns{
		RecentCount: recent,
		PriorCount:  prior,
		Velocity:    round2(100 * shared.SafeDiv(float64(recent-prior), float64(prior))),
		Level:       LevelLow,
	}
	switch {
	case recent >= a.rules.HighEngagementMin:
		ep.Level = LevelHigh
	case recent >= a.rules.MediumEngagementMin:
		ep.Level = LevelMedium
	}
	return ep
}

// consistency is 100·(1−CV) over the daily counts of every calendar day in the window.
func consistency(daily map[string]int, dayKeys []string) float64 {
	n := len(dayKeys)
	if n == 0 {
		return 0
	}
	counts := make([]float64, n)
	var sum float64
	for i, k := range dayKeys {
		counts[i] = float64(daily[k])
		sum += counts[i]
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, c := range counts {
		sq += (c - mean) * (c - mean)
	}
	cv := math.Sqrt(sq/float64(n)) / mean
	return shared.ClampPercent(100 * (1 - cv))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
