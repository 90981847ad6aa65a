package predictive

import (
	"math"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/behavior"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/timeutil"
)

// Band is a coarse three-level classification.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Trend is the direction of the engagement projection.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Factor names reported alongside the scores.
const (
	FactorNoRecentActivity     = "no recent activity"
	FactorLongInactivity       = "long inactivity"
	FactorDecliningEngagement  = "declining engagement"
	FactorInconsistentActivity = "inconsistent activity"
	FactorLowProfileScore      = "low profile score"

	FactorStrongProfile      = "strong profile score"
	FactorVerifiedDocuments  = "verified documents"
	FactorConsistentActivity = "consistent activity"
)

// ChurnRisk is the disengagement heuristic.
type ChurnRisk struct {
	Score   int      `json:"score"`
	Band    Band     `json:"band"`
	Factors []string `json:"factors"`
}

// EngagementForecast projects next-period activity volume.
type EngagementForecast struct {
	NextPeriodEstimate float64 `json:"next_period_estimate"`
	Trend              Trend   `json:"trend"`
	Confidence         Band    `json:"confidence"`
}

// SuccessLikelihood estimates how likely a volunteer is to be placed successfully.
type SuccessLikelihood struct {
	Score   int      `json:"score"`
	Band    Band     `json:"band"`
	Factors []string `json:"success_factors"`
}

// Predictions groups the three independent heuristic blocks.
type Predictions struct {
	ChurnRisk         ChurnRisk          `json:"churn_risk"`
	Engagement        EngagementForecast `json:"engagement_prediction"`
	SuccessLikelihood SuccessLikelihood  `json:"success_likelihood"`
}

// Heuristics evaluates the rule tables. It is stateless.
type Heuristics struct {
	rules Rules
}

// NewHeuristics validates the rules and returns the evaluator.
func NewHeuristics(rules Rules) (*Heuristics, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Heuristics{rules: rules}, nil
}

// Predict evaluates every block. Either input may be nil; a missing signal contributes nothing.
func (h *Heuristics) Predict(score *scoring.ProfileScore, analysis *behavior.Analysis, now time.Time) Predictions {
	return Predictions{
		ChurnRisk:         h.Churn(score, analysis, now),
		Engagement:        h.Forecast(analysis),
		SuccessLikelihood: h.Success(score, analysis),
	}
}

// Churn sums the points of every triggered risk factor.
func (h *Heuristics) Churn(score *scoring.ProfileScore, analysis *behavior.Analysis, now time.Time) ChurnRisk {
	r := h.rules.Churn
	points := 0
	factors := []string{}

	add := func(name string, p int) {
		points += p
		factors = append(factors, name)
	}

	if analysis != nil {
		if !analysis.HasActivity() {
			add(FactorNoRecentActivity, r.NoActivityPoints)
		} else if analysis.LastActivityAt != nil && timeutil.DaysSince(*analysis.LastActivityAt, now) >= r.InactiveDays {
			add(FactorLongInactivity, r.InactivityPoints)
		}
		if analysis.HasActivity() && analysis.Engagement.Velocity <= r.DecliningVelocity {
			add(FactorDecliningEngagement, r.DecliningPoints)
		}
		if analysis.Usage.ActivityConsistency < r.LowConsistency {
			add(FactorInconsistentActivity, r.LowConsistencyPoints)
		}
	}
	if score != nil && score.TotalScore < r.LowScore {
		add(FactorLowProfileScore, r.LowScorePoints)
	}

	total := int(shared.ClampPercent(float64(points)))
	return ChurnRisk{
		Score:   total,
		Band:    band(total, r.MediumBandMin, r.HighBandMin),
		Factors: factors,
	}
}

// Forecast projects recent volume forward by the current velocity.
func (h *Heuristics) Forecast(analysis *behavior.Analysis) EngagementForecast {
	r := h.rules.Forecast
	if analysis == nil {
		return EngagementForecast{Trend: TrendStable, Confidence: BandLow}
	}

	v := analysis.Engagement.Velocity
	next := float64(analysis.Engagement.RecentCount) * (1 + v/100)

	f := EngagementForecast{
		NextPeriodEstimate: math.Round(math.Max(0, next)*100) / 100,
		Trend:              TrendStable,
		Confidence:         BandLow,
	}
	switch {
	case v > r.StableBand:
		f.Trend = TrendIncreasing
	case v < -r.StableBand:
		f.Trend = TrendDecreasing
	}
	switch {
	case analysis.HistoryDays >= r.HighConfidenceDays:
		f.Confidence = BandHigh
	case analysis.HistoryDays >= r.MediumConfidenceDays:
		f.Confidence = BandMedium
	}
	return f
}

// Success blends the composite score, verification and consistency.
func (h *Heuristics) Success(score *scoring.ProfileScore, analysis *behavior.Analysis) SuccessLikelihood {
	r := h.rules.Success

	var total, verification, consistency float64
	if score != nil {
		total = float64(score.TotalScore)
		verification = score.Value(scoring.CategoryVerification)
	}
	if analysis != nil {
		consistency = analysis.Usage.ActivityConsistency
	}

	value := r.TotalWeight*total + r.VerificationWeight*verification + r.ConsistencyWeight*consistency
	s := int(shared.ClampPercent(math.Round(value)))

	factors := []string{}
	if score != nil && score.TotalScore >= r.StrongTotal {
		factors = append(factors, FactorStrongProfile)
	}
	if verification >= r.StrongVerification {
		factors = append(factors, FactorVerifiedDocuments)
	}
	if consistency >= r.StrongConsistency {
		factors = append(factors, FactorConsistentActivity)
	}

	return SuccessLikelihood{
		Score:   s,
		Band:    band(s, r.MediumBandMin, r.HighBandMin),
		Factors: factors,
	}
}

func band(v, mediumMin, highMin int) Band {
	switch {
	case v >= highMin:
		return BandHigh
	case v >= mediumMin:
		return BandMedium
	default:
		return BandLow
	}
}
