// Package milestone maps a composite score onto an ascending table of
// achievement tiers and reports progress towards the next one.
package milestone

import (
	"errors"
	"fmt"

	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

// Tier is one achievement level unlocked at a score threshold.
type Tier struct {
	Title        string `koanf:"title" json:"title"`
	Description  string `koanf:"description" json:"description"`
	PointsNeeded int    `koanf:"points_needed" json:"points_needed"`
}

// Tiers is ordered by ascending threshold.
type Tiers []Tier

// DefaultTiers returns the standard tier table.
func DefaultTiers() Tiers {
	return Tiers{
		{Title: "Getting Started", Description: "Fill in the basics of your volunteer profile", PointsNeeded: 20},
		{Title: "Active Volunteer", Description: "Keep showing up and sharing your experience", PointsNeeded: 40},
		{Title: "Trusted Volunteer", Description: "Verified and consistently engaged", PointsNeeded: 60},
		{Title: "Community Champion", Description: "A reliable voice organizations look for", PointsNeeded: 80},
		{Title: "Impact Leader", Description: "Top of the community in every category", PointsNeeded: 95},
	}
}

var ErrEmptyTiers = errors.New("milestone tier table is empty")

// Validate checks that thresholds are strictly ascending within (0,100].
func (t Tiers) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTiers
	}
	prev := 0
	for i, tier := range t {
		if tier.Title == "" {
			return fmt.Errorf("milestone tier %d has no title", i)
		}
		if tier.PointsNeeded <= prev || tier.PointsNeeded > 100 {
			return fmt.Errorf("milestone %q: threshold %d must be above %d and at most 100", tier.Title, tier.PointsNeeded, prev)
		}
		prev = tier.PointsNeeded
	}
	return nil
}

// Milestone is the derived progress view for one score.
type Milestone struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	PointsNeeded       int     `json:"points_needed,omitempty"`
	PointsRemaining    int     `json:"points_remaining"`
	ProgressPercentage float64 `json:"progress_percentage"`
	MaxTierReached     bool    `json:"max_tier_reached"`
}

// Tracker evaluates scores against a validated tier table.
type Tracker struct {
	tiers Tiers
}

// NewTracker validates the tiers and returns a tracker.
func NewTracker(tiers Tiers) (*Tracker, error) {
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{tiers: tiers}, nil
}

// Next returns the next milestone for a score.
//
// The next tier is the first one whose threshold the score has not passed.
// A score sitting exactly on a threshold reports 100% towards that tier;
// the following tier becomes "next" once the score moves beyond it.
func (t *Tracker) Next(score int) Milestone {
	prev := 0
	for _, tier := range t.tiers {
		if score <= tier.PointsNeeded {
			progress := 100 * float64(score-prev) / float64(tier.PointsNeeded-prev)
			return Milestone{
				Title:              tier.Title,
				Description:        tier.Description,
				PointsNeeded:       tier.PointsNeeded,
				PointsRemaining:    tier.PointsNeeded - score,
				ProgressPercentage: shared.ClampPercent(progress),
			}
		}
		prev = tier.PointsNeeded
	}

	top := t.tiers[len(t.tiers)-1]
	return Milestone{
		Title:              top.Title,
		Description:        "Max tier reached",
		ProgressPercentage: 100,
		MaxTierReached:     true,
	}
}

// Achieved lists the tiers the score has moved past.
func (t *Tracker) Achieved(score int) []Tier {
	var out []Tier
	for _, tier := range t.tiers {
		if score >= tier.PointsNeeded {
			out = append(out, tier)
		}
	}
	return out
}
