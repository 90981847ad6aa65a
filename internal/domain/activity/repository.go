package activity

import (
	"context"
	"time"
)

// Ledger defines read access to the activity ledger.
// This interface is implemented by the infrastructure layer.
// The domain never writes to the ledger.
type Ledger interface {
	// Events returns the user's events inside the window ordered by occurrence time.
	Events(ctx context.Context, userID string, window Window) ([]Event, error)

	// LastActivity returns the time of the user's most recent event.
	// ok is false when the user has no events at all.
	LastActivity(ctx context.Context, userID string) (at time.Time, ok bool, err error)
}
