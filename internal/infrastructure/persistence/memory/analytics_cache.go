// Package memory provides in-process implementations of the storage
// capabilities. It backs single-process runs of the CLI and the tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
)

// AnalyticsCache is a TTL map keyed by user ID.
type AnalyticsCache struct {
	mu      sync.RWMutex
	entries map[string]analytics.Snapshot
	now     func() time.Time
}

// NewAnalyticsCache creates an empty cache using the wall clock.
func NewAnalyticsCache() *AnalyticsCache {
	return &AnalyticsCache{
		entries: make(map[string]analytics.Snapshot),
		now:     time.Now,
	}
}

// WithClock swaps the clock used for expiry checks.
func (c *AnalyticsCache) WithClock(now func() time.Time) *AnalyticsCache {
	c.now = now
	return c
}

// Get returns a copy of the stored snapshot or analytics.ErrMiss.
func (c *AnalyticsCache) Get(_ context.Context, userID string) (*analytics.Snapshot, error) {
	c.mu.RLock()
	snap, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || (snap.Score == nil && snap.Behavior == nil) {
		return nil, analytics.ErrMiss
	}
	if snap.Expired(c.now()) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, analytics.ErrMiss
	}
	return &snap, nil
}

// Put overwrites the user's entry.
func (c *AnalyticsCache) Put(_ context.Context, snapshot *analytics.Snapshot, ttl time.Duration) error {
	snap := *snapshot
	if ttl > 0 {
		snap.ExpiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[snap.UserID] = snap
	c.mu.Unlock()
	return nil
}

// Invalidate drops the whole entry or only the named sections.
func (c *AnalyticsCache) Invalidate(_ context.Context, userID string, sections ...analytics.Section) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(sections) == 0 {
		delete(c.entries, userID)
		return nil
	}
	snap, ok := c.entries[userID]
	if !ok {
		return nil
	}
	for _, s := range sections {
		switch s {
		case analytics.SectionScore:
			snap.Score = nil
		case analytics.SectionBehavior:
			snap.Behavior = nil
		}
	}
	c.entries[userID] = snap
	return nil
}

// InvalidateAll drops every entry and returns how many were removed.
func (c *AnalyticsCache) InvalidateAll(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	clear(c.entries)
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *AnalyticsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
