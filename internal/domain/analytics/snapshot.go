// Package analytics defines the cached per-user analytics snapshot and the
// cache capability that stores it. The cache is a latency shield only; every
// value it holds can be recomputed from the score store and the ledger.
package analytics

import (
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
	"github.com/volunteerhub/profile-analytics/internal/domain/behavior"
	"github.com/volunteerhub/profile-analytics/internal/domain/milestone"
	"github.com/volunteerhub/profile-analytics/internal/domain/predictive"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

// BehavioralProfile is the read model served to presentation collaborators.
type BehavioralProfile struct {
	UserID             string                      `json:"user_id"`
	UsagePatterns      behavior.UsagePatterns      `json:"usage_patterns"`
	EngagementPatterns behavior.EngagementPatterns `json:"engagement_patterns"`
	ActivityHeatmap    behavior.Heatmap            `json:"activity_heatmap"`
	MaxActivity        int                         `json:"max_activity"`
	PredictiveMetrics  predictive.Predictions      `json:"predictive_metrics"`
	Milestone          *milestone.Milestone        `json:"milestone,omitempty"`
	Classification     behavior.Classification     `json:"classification"`
	LastActivityAt     *time.Time                  `json:"last_activity_at,omitempty"`
	Window             activity.Window             `json:"window"`
	ComputedAt         time.Time                   `json:"computed_at"`
}

// NewBehavioralProfile assembles the read model from the component outputs.
func NewBehavioralProfile(userID string, a *behavior.Analysis, p predictive.Predictions, m *milestone.Milestone, at time.Time) *BehavioralProfile {
	return &BehavioralProfile{
		UserID:             userID,
		UsagePatterns:      a.Usage,
		EngagementPatterns: a.Engagement,
		ActivityHeatmap:    a.Heatmap,
		MaxActivity:        a.MaxActivity,
		PredictiveMetrics:  p,
		Milestone:          m,
		Classification:     a.Classification,
		LastActivityAt:     a.LastActivityAt,
		Window:             a.Window,
		ComputedAt:         at.UTC(),
	}
}

// Section names a part of the snapshot that can be invalidated on its own.
type Section string

const (
	SectionScore    Section = "score"
	SectionBehavior Section = "behavior"
)

// Sections lists every section.
func Sections() []Section {
	return []Section{SectionScore, SectionBehavior}
}

// IsValid checks the section name.
func (s Section) IsValid() bool {
	return s == SectionScore || s == SectionBehavior
}

// Snapshot is the unit stored in the cache. Either section may be absent
// after a partial invalidation.
type Snapshot struct {
	UserID     string                `json:"user_id"`
	Score      *scoring.ProfileScore `json:"score,omitempty"`
	Behavior   *BehavioralProfile    `json:"behavior,omitempty"`
	ComputedAt time.Time             `json:"computed_at"`
	ExpiresAt  time.Time             `json:"expires_at"`
}

// Complete reports whether both sections are present.
func (s *Snapshot) Complete() bool {
	return s != nil && s.Score != nil && s.Behavior != nil
}

// Expired reports whether the snapshot's TTL has elapsed at now.
func (s *Snapshot) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// Has reports whether the named section is present.
func (s *Snapshot) Has(section Section) bool {
	if s == nil {
		return false
	}
	switch section {
	case SectionScore:
		return s.Score != nil
	case SectionBehavior:
		return s.Behavior != nil
	}
	return false
}

// Serves reports whether the snapshot can answer a read of the named section.
// The behavior section embeds the milestone and predictions derived from the
// score, so it is only served while the score section is present too.
func (s *Snapshot) Serves(section Section) bool {
	if section == SectionBehavior {
		return s.Has(SectionScore) && s.Has(SectionBehavior)
	}
	return s.Has(section)
}
