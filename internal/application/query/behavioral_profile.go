package query

import (
	"context"

	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEHAVIORAL PROFILE QUERY
// Returns usage patterns, the activity heatmap and predictive metrics.
// ══════════════════════════════════════════════════════════════════════════════

// BehavioralProfileDTO is the behavior view served to presentation collaborators.
type BehavioralProfileDTO struct {
	*analytics.BehavioralProfile

	Source Source `json:"source"`
	// Stale is set when the profile was built on a persisted score after recomputation failed.
	Stale bool `json:"stale"`
}

// BehavioralProfileHandler handles behavioral profile reads.
type BehavioralProfileHandler struct {
	loader *Loader
}

// NewBehavioralProfileHandler creates a new BehavioralProfileHandler.
func NewBehavioralProfileHandler(loader *Loader) *BehavioralProfileHandler {
	return &BehavioralProfileHandler{loader: loader}
}

// Handle returns the user's behavioral profile or shared.ErrProfileNotFound.
func (h *BehavioralProfileHandler) Handle(ctx context.Context, userID string) (*BehavioralProfileDTO, error) {
	loaded, err := h.loader.Load(ctx, userID, analytics.SectionBehavior)
	if err != nil {
		return nil, err
	}
	return &BehavioralProfileDTO{
		BehavioralProfile: loaded.Snapshot.Behavior,
		Source:            loaded.Source,
		Stale:             loaded.Stale,
	}, nil
}
