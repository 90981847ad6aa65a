package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
)

// ActivityLedger implements activity.Ledger over the platform's activity_events table.
type ActivityLedger struct {
	conn Querier
}

// NewActivityLedger creates a new ActivityLedger.
func NewActivityLedger(conn Querier) *ActivityLedger {
	return &ActivityLedger{conn: conn}
}

var _ activity.Ledger = (*ActivityLedger)(nil)

// Events returns the user's events in [window.From, window.To) ordered by time.
func (l *ActivityLedger) Events(ctx context.Context, userID string, window activity.Window) ([]activity.Event, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	rows, err := l.conn.Query(ctx, `
		SELECT event_type, occurred_at, metadata
		FROM activity_events
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at
	`, userID, window.From.UTC(), window.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", userID, err)
	}
	defer rows.Close()

	var events []activity.Event
	for rows.Next() {
		e := activity.Event{UserID: userID}
		var (
			eventType string
			metadata  []byte
		)
		if err := rows.Scan(&eventType, &e.OccurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = activity.EventType(eventType)
		e.OccurredAt = e.OccurredAt.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events for %s: %w", userID, err)
	}
	return events, nil
}

// LastActivity returns the time of the user's most recent event.
func (l *ActivityLedger) LastActivity(ctx context.Context, userID string) (time.Time, bool, error) {
	var last *time.Time
	err := l.conn.QueryRow(ctx, `
		SELECT MAX(occurred_at) FROM activity_events WHERE user_id = $1
	`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last activity for %s: %w", userID, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

func countEvents(ctx context.Context, q Querier, userID string, from, to time.Time) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM activity_events
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`, userID, from.UTC(), to.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for %s: %w", userID, err)
	}
	return n, nil
}
