package query

import (
	"context"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/application/engine"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/milestone"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE SCORE QUERY
// Returns a user's composite score, grade, rank and next milestone.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileScoreDTO is the score view served to presentation collaborators.
type ProfileScoreDTO struct {
	*scoring.ProfileScore

	Milestone *milestone.Milestone `json:"milestone,omitempty"`
	Achieved  []string             `json:"achieved_milestones,omitempty"`

	// Source and Stale describe freshness; LastCalculatedAt shows the age of a stale row.
	Source     Source    `json:"source"`
	Stale      bool      `json:"stale"`
	ComputedAt time.Time `json:"computed_at"`
}

// ProfileScoreHandler handles score reads.
type ProfileScoreHandler struct {
	loader *Loader
	engine *engine.Engine
}

// NewProfileScoreHandler creates a new ProfileScoreHandler.
func NewProfileScoreHandler(loader *Loader, eng *engine.Engine) *ProfileScoreHandler {
	return &ProfileScoreHandler{loader: loader, engine: eng}
}

// Handle returns the user's score or shared.ErrProfileNotFound.
func (h *ProfileScoreHandler) Handle(ctx context.Context, userID string) (*ProfileScoreDTO, error) {
	loaded, err := h.loader.Load(ctx, userID, analytics.SectionScore)
	if err != nil {
		return nil, err
	}

	snap := loaded.Snapshot
	dto := &ProfileScoreDTO{
		ProfileScore: snap.Score,
		Source:       loaded.Source,
		Stale:        loaded.Stale,
		ComputedAt:   snap.ComputedAt,
	}
	if snap.Behavior != nil && snap.Behavior.Milestone != nil {
		dto.Milestone = snap.Behavior.Milestone
	} else {
		dto.Milestone = h.engine.Milestone(snap.Score)
	}
	dto.Achieved = h.engine.AchievedMilestones(snap.Score)
	return dto, nil
}
