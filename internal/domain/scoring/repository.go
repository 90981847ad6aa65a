package scoring

import "context"

// Repository persists profile scores, one row per user.
type Repository interface {
	// Upsert creates or overwrites the user's score row.
	// The stored rank position is left untouched; only a rank pass changes it.
	Upsert(ctx context.Context, score *ProfileScore) error

	// Get returns the user's persisted score or shared.ErrProfileNotFound.
	Get(ctx context.Context, userID string) (*ProfileScore, error)
}
