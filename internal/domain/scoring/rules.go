package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Weights are the composite weights per category. They must sum to 1.0.
type Weights struct {
	Completion   float64 `koanf:"completion" json:"completion"`
	Quality      float64 `koanf:"quality" json:"quality"`
	Engagement   float64 `koanf:"engagement" json:"engagement"`
	Verification float64 `koanf:"verification" json:"verification"`
}

// For returns the weight of a category.
func (w Weights) For(c Category) float64 {
	switch c {
	case CategoryCompletion:
		return w.Completion
	case CategoryQuality:
		return w.Quality
	case CategoryEngagement:
		return w.Engagement
	case CategoryVerification:
		return w.Verification
	}
	return 0
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Completion + w.Quality + w.Engagement + w.Verification
}

const weightTolerance = 1e-6

// Rules parameterize every category rule of the calculator.
type Rules struct {
	Weights Weights    `koanf:"weights"`
	Grades  GradeTable `koanf:"grades"`

	// RequiredFields are the profile attributes counted by the completion rule.
	RequiredFields []string `koanf:"required_fields"`

	// DocumentWeights weight each verifiable document type.
	DocumentWeights map[string]float64 `koanf:"document_weights"`

	// EngagementWindow is how far back recent events are counted.
	EngagementWindow time.Duration `koanf:"engagement_window"`
	// EngagementSaturation is the event count that maps to an engagement of 100.
	EngagementSaturation int `koanf:"engagement_saturation"`

	// VoteWeight and AcceptanceWeight split the quality score when answers exist.
	VoteWeight       float64 `koanf:"vote_weight"`
	AcceptanceWeight float64 `koanf:"acceptance_weight"`
}

// DefaultRules returns the production rule set.
func DefaultRules() Rules {
	return Rules{
		Weights: Weights{
			Completion:   0.30,
			Quality:      0.20,
			Engagement:   0.30,
			Verification: 0.20,
		},
		Grades: DefaultGradeTable(),
		RequiredFields: []string{
			"first_name", "last_name", "bio", "city",
			"phone", "avatar_url", "skills", "availability",
		},
		DocumentWeights: map[string]float64{
			"identity":         40,
			"background_check": 30,
			"address":          15,
			"certification":    15,
		},
		EngagementWindow:     30 * 24 * time.Hour,
		EngagementSaturation: 50,
		VoteWeight:           0.6,
		AcceptanceWeight:     0.4,
	}
}

// Validate collects every rule problem into one error.
func (r Rules) Validate() error {
	var errs []string

	for _, c := range Categories() {
		if w := r.Weights.For(c); w < 0 || w > 1 {
			errs = append(errs, fmt.Sprintf("weight for %s must be within [0,1], got %v", c, w))
		}
	}
	if math.Abs(r.Weights.Sum()-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("category weights must sum to 1.0, got %v", r.Weights.Sum()))
	}
	if err := r.Grades.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(r.RequiredFields) == 0 {
		errs = append(errs, "at least one required profile field is needed")
	}
	var docTotal float64
	for doc, w := range r.DocumentWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("document weight for %s is negative", doc))
		}
		docTotal += w
	}
	if docTotal <= 0 {
		errs = append(errs, "document weights must sum to a positive value")
	}
	if r.EngagementWindow <= 0 {
		errs = append(errs, "engagement window must be positive")
	}
	if r.EngagementSaturation <= 0 {
		errs = append(errs, "engagement saturation must be positive")
	}
	if math.Abs(r.VoteWeight+r.AcceptanceWeight-1) > weightTolerance {
		errs = append(errs, "vote and acceptance weights must sum to 1.0")
	}

	if len(errs) > 0 {
		return errors.New("invalid scoring rules:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}
