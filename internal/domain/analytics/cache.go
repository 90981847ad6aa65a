package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Cache.Get when no unexpired snapshot exists.
var ErrMiss = errors.New("analytics cache miss")

// Cache stores the latest snapshot per user.
//
// Implementations return ErrMiss for absent or expired entries and wrap
// store failures with shared.CacheUnavailableError. Put overwrites
// unconditionally; the batch pipeline is the only writer for a user at a time.
type Cache interface {
	Get(ctx context.Context, userID string) (*Snapshot, error)
	Put(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error
	// Invalidate drops the whole entry when no sections are given,
	// otherwise only the named sections.
	Invalidate(ctx context.Context, userID string, sections ...Section) error
}

// Flusher is implemented by caches that can drop every entry at once.
type Flusher interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// Lookup reads a snapshot and folds every failure into a miss.
// The returned error is the underlying store failure, if any, for logging.
func Lookup(ctx context.Context, c Cache, userID string) (snap *Snapshot, hit bool, storeErr error) {
	snap, err := c.Get(ctx, userID)
	switch {
	case err == nil:
		return snap, true, nil
	case errors.Is(err, ErrMiss):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// NopCache never stores anything. It is the degraded mode when no cache store is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Snapshot, error)       { return nil, ErrMiss }
func (NopCache) Put(context.Context, *Snapshot, time.Duration) error  { return nil }
func (NopCache) Invalidate(context.Context, string, ...Section) error { return nil }
func (NopCache) InvalidateAll(context.Context) (int, error)           { return 0, nil }
