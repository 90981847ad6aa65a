// Package predictive holds the deterministic, rule-based heuristics that
// estimate churn risk, next-period engagement and success likelihood.
// Nothing here is learned; every output is re-derivable from the score and
// the behavioral analysis of the same run.
package predictive

import (
	"errors"
	"math"
	"strings"
)

// ChurnRules set the points each risk factor contributes once its threshold is crossed.
type ChurnRules struct {
	NoActivityPoints     int     `koanf:"no_activity_points"`
	InactiveDays         int     `koanf:"inactive_days"`
	InactivityPoints     int     `koanf:"inactivity_points"`
	DecliningVelocity    float64 `koanf:"declining_velocity"`
	DecliningPoints      int     `koanf:"declining_points"`
	LowConsistency       float64 `koanf:"low_consistency"`
	LowConsistencyPoints int     `koanf:"low_consistency_points"`
	LowScore             int     `koanf:"low_score"`
	LowScorePoints       int     `koanf:"low_score_points"`
	MediumBandMin        int     `koanf:"medium_band_min"`
	HighBandMin          int     `koanf:"high_band_min"`
}

// ForecastRules classify the engagement projection.
type ForecastRules struct {
	// StableBand is the velocity magnitude under which the trend is "stable".
	StableBand float64 `koanf:"stable_band"`
	// MediumConfidenceDays and HighConfidenceDays are history lengths.
	MediumConfidenceDays int `koanf:"medium_confidence_days"`
	HighConfidenceDays   int `koanf:"high_confidence_days"`
}

// SuccessRules weight the success likelihood signals.
type SuccessRules struct {
	TotalWeight        float64 `koanf:"total_weight"`
	VerificationWeight float64 `koanf:"verification_weight"`
	ConsistencyWeight  float64 `koanf:"consistency_weight"`

	StrongTotal        int     `koanf:"strong_total"`
	StrongVerification float64 `koanf:"strong_verification"`
	StrongConsistency  float64 `koanf:"strong_consistency"`

	MediumBandMin int `koanf:"medium_band_min"`
	HighBandMin   int `koanf:"high_band_min"`
}

// Rules groups every heuristic table.
type Rules struct {
	Churn    ChurnRules    `koanf:"churn"`
	Forecast ForecastRules `koanf:"forecast"`
	Success  SuccessRules  `koanf:"success"`
}

// DefaultRules returns the production heuristic tables.
func DefaultRules() Rules {
	return Rules{
		Churn: ChurnRules{
			NoActivityPoints:     40,
			InactiveDays:         14,
			InactivityPoints:     30,
			DecliningVelocity:    -25,
			DecliningPoints:      30,
			LowConsistency:       30,
			LowConsistencyPoints: 20,
			LowScore:             40,
			LowScorePoints:       10,
			MediumBandMin:        30,
			HighBandMin:          60,
		},
		Forecast: ForecastRules{
			StableBand:           10,
			MediumConfidenceDays: 14,
			HighConfidenceDays:   28,
		},
		Success: SuccessRules{
			TotalWeight:        0.5,
			VerificationWeight: 0.3,
			ConsistencyWeight:  0.2,
			StrongTotal:        70,
			StrongVerification: 60,
			StrongConsistency:  60,
			MediumBandMin:      40,
			HighBandMin:        70,
		},
	}
}

// Validate collects every rule problem into one error.
func (r Rules) Validate() error {
	var errs []string

	c := r.Churn
	if c.MediumBandMin <= 0 || c.HighBandMin <= c.MediumBandMin || c.HighBandMin > 100 {
		errs = append(errs, "churn bands must satisfy 0 < medium < high <= 100")
	}
	if c.InactiveDays <= 0 {
		errs = append(errs, "churn inactive days must be positive")
	}
	if c.DecliningVelocity >= 0 {
		errs = append(errs, "churn declining velocity must be negative")
	}

	f := r.Forecast
	if f.StableBand < 0 {
		errs = append(errs, "forecast stable band must not be negative")
	}
	if f.MediumConfidenceDays <= 0 || f.HighConfidenceDays <= f.MediumConfidenceDays {
		errs = append(errs, "forecast confidence days must satisfy 0 < medium < high")
	}

	s := r.Success
	if sum := s.TotalWeight + s.VerificationWeight + s.ConsistencyWeight; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, "success weights must sum to 1.0")
	}
	if s.MediumBandMin <= 0 || s.HighBandMin <= s.MediumBandMin || s.HighBandMin > 100 {
		errs = append(errs, "success bands must satisfy 0 < medium < high <= 100")
	}

	if len(errs) > 0 {
		return errors.New("invalid predictive rules:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
