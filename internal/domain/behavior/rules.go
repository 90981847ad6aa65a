// Package behavior derives usage patterns, a day/hour heatmap and
// engagement trend metrics from a user's activity ledger window.
package behavior

import (
	"errors"
	"strings"
	"time"
)

// Rules parameterize the analyzer.
type Rules struct {
	// Lookback is the analysis window length ending at the run time.
	Lookback time.Duration `koanf:"lookback"`
	// TrendPeriod is the length of the recent and prior sub-periods.
	TrendPeriod time.Duration `koanf:"trend_period"`
	// MediumEngagementMin and HighEngagementMin are recent-volume thresholds.
	MediumEngagementMin int `koanf:"medium_engagement_min"`
	HighEngagementMin   int `koanf:"high_engagement_min"`
	// TimeZone is the IANA zone used to bucket events into days and hours.
	TimeZone string `koanf:"time_zone"`
}

// DefaultRules returns the production analyzer settings.
func DefaultRules() Rules {
	return Rules{
		Lookback:            8 * 7 * 24 * time.Hour,
		TrendPeriod:         7 * 24 * time.Hour,
		MediumEngagementMin: 5,
		HighEngagementMin:   20,
		TimeZone:            "UTC",
	}
}

// Validate collects every rule problem into one error.
func (r Rules) Validate() error {
	var errs []string
	if r.TrendPeriod <= 0 {
		errs = append(errs, "trend period must be positive")
	}
	if r.Lookback < 2*r.TrendPeriod {
		errs = append(errs, "lookback must cover at least two trend periods")
	}
	if r.MediumEngagementMin <= 0 || r.HighEngagementMin <= r.MediumEngagementMin {
		errs = append(errs, "engagement thresholds must satisfy 0 < medium < high")
	}
	if len(errs) > 0 {
		return errors.New("invalid behavior rules:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
