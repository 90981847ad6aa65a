package postgres

import (
	"context"
	"fmt"
)

// UserDirectory reads the platform's users table.
type UserDirectory struct {
	conn Querier
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(conn Querier) *UserDirectory {
	return &UserDirectory{conn: conn}
}

// ActiveUserIDs returns up to limit active user IDs strictly after afterID,
// in ascending order. Pass an empty afterID for the first page.
func (d *UserDirectory) ActiveUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT id::text
		FROM users
		WHERE is_active AND id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsActive reports whether the user exists and is active.
func (d *UserDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := d.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id::text = $1 AND is_active)
	`, userID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	return active, nil
}
