package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/circuitbreaker"
	"github.com/volunteerhub/profile-analytics/pkg/metrics"
)

// Hash fields of a snapshot entry.
const (
	fieldScore      = "score"
	fieldBehavior   = "behavior"
	fieldComputedAt = "computed_at"
	fieldExpiresAt  = "expires_at"
)

// AnalyticsCache implements analytics.Cache with one hash per user.
// Every call goes through a circuit breaker; while it is open the cache
// reports itself unavailable without touching the network.
type AnalyticsCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Manager
	now     func() time.Time
}

// NewAnalyticsCache creates the adapter. breaker and m may be nil.
func NewAnalyticsCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker, m *metrics.Manager) *AnalyticsCache {
	if breaker == nil {
		breaker = NewBreaker()
	}
	return &AnalyticsCache{
		cache:   cache,
		breaker: breaker,
		metrics: m,
		now:     time.Now,
	}
}

// NewBreaker returns the breaker settings used for the analytics cache.
// Misses are not failures.
func NewBreaker(opts ...circuitbreaker.Option) *circuitbreaker.CircuitBreaker {
	base := []circuitbreaker.Option{
		circuitbreaker.WithFailureThreshold(5),
		circuitbreaker.WithTimeout(15 * time.Second),
		circuitbreaker.WithIsFailure(func(err error) bool {
			return !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled)
		}),
	}
	return circuitbreaker.New("redis-analytics", append(base, opts...)...)
}

var _ analytics.Cache = (*AnalyticsCache)(nil)

// Get returns the user's snapshot or analytics.ErrMiss.
func (c *AnalyticsCache) Get(ctx context.Context, userID string) (*analytics.Snapshot, error) {
	var fields map[string]string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		fields, err = c.cache.HGetAll(ctx, c.cache.SnapshotKey(userID))
		return err
	})
	if err != nil {
		c.metrics.RecordCache("get", metrics.CacheError)
		return nil, shared.CacheUnavailableError("Get", err)
	}

	snap, err := decodeSnapshot(userID, fields)
	if err != nil {
		// A corrupt entry is treated as absent and rewritten by the next run.
		c.metrics.RecordCache("get", metrics.CacheMiss)
		return nil, analytics.ErrMiss
	}
	if snap == nil || snap.Expired(c.now()) {
		c.metrics.RecordCache("get", metrics.CacheMiss)
		return nil, analytics.ErrMiss
	}

	c.metrics.RecordCache("get", metrics.CacheHit)
	return snap, nil
}

// Put replaces the user's entry and sets its TTL.
func (c *AnalyticsCache) Put(ctx context.Context, snapshot *analytics.Snapshot, ttl time.Duration) error {
	if snapshot == nil || snapshot.UserID == "" {
		return shared.ErrInvalidUserID
	}

	snap := *snapshot
	if ttl > 0 {
		snap.ExpiresAt = c.now().Add(ttl).UTC()
	}
	fields, err := encodeSnapshot(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", snap.UserID, err)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.ReplaceHash(ctx, c.cache.SnapshotKey(snap.UserID), fields, ttl)
	})
	if err != nil {
		c.metrics.RecordCache("put", metrics.CacheError)
		return shared.CacheUnavailableError("Put", err)
	}
	c.metrics.RecordCache("put", metrics.CacheOK)
	return nil
}

// Invalidate drops the whole entry, or only the named sections' fields.
func (c *AnalyticsCache) Invalidate(ctx context.Context, userID string, sections ...analytics.Section) error {
	fields := make([]string, 0, len(sections))
	for _, s := range sections {
		if !s.IsValid() {
			return shared.ErrInvalidCacheSection
		}
		fields = append(fields, sectionField(s))
	}
	key := c.cache.SnapshotKey(userID)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if len(fields) == 0 {
			return c.cache.Delete(ctx, key)
		}
		return c.cache.HDel(ctx, key, fields...)
	})
	if err != nil {
		c.metrics.RecordCache("invalidate", metrics.CacheError)
		return shared.CacheUnavailableError("Invalidate", err)
	}
	c.metrics.RecordCache("invalidate", metrics.CacheOK)
	return nil
}

// InvalidateAll drops every snapshot entry and returns how many were removed.
func (c *AnalyticsCache) InvalidateAll(ctx context.Context) (int, error) {
	var deleted int
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = c.cache.DeleteByPattern(ctx, c.cache.SnapshotPattern())
		return err
	})
	if err != nil {
		return deleted, shared.CacheUnavailableError("InvalidateAll", err)
	}
	return deleted, nil
}

// Ping reports whether the cache can be reached, honouring the breaker.
func (c *AnalyticsCache) Ping(ctx context.Context) error {
	if c.breaker.State() == circuitbreaker.StateOpen {
		return shared.CacheUnavailableError("Ping", circuitbreaker.ErrCircuitOpen)
	}
	return c.cache.Ping(ctx)
}

func sectionField(s analytics.Section) string {
	if s == analytics.SectionScore {
		return fieldScore
	}
	return fieldBehavior
}

func encodeSnapshot(s *analytics.Snapshot) (map[string]any, error) {
	fields := map[string]any{
		fieldComputedAt: s.ComputedAt.UTC().Format(time.RFC3339Nano),
	}
	if !s.ExpiresAt.IsZero() {
		fields[fieldExpiresAt] = s.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if s.Score != nil {
		data, err := json.Marshal(s.Score)
		if err != nil {
			return nil, err
		}
		fields[fieldScore] = string(data)
	}
	if s.Behavior != nil {
		data, err := json.Marshal(s.Behavior)
		if err != nil {
			return nil, err
		}
		fields[fieldBehavior] = string(data)
	}
	return fields, nil
}

// decodeSnapshot returns nil when the hash holds no section.
func decodeSnapshot(userID string, fields map[string]string) (*analytics.Snapshot, error) {
	rawScore, hasScore := fields[fieldScore]
	rawBehavior, hasBehavior := fields[fieldBehavior]
	if !hasScore && !hasBehavior {
		return nil, nil
	}

	snap := &analytics.Snapshot{UserID: userID}
	if v, ok := fields[fieldComputedAt]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldComputedAt, err)
		}
		snap.ComputedAt = t
	}
	if v, ok := fields[fieldExpiresAt]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", fieldExpiresAt, err)
		}
		snap.ExpiresAt = t
	}
	if hasScore {
		var score scoring.ProfileScore
		if err := json.Unmarshal([]byte(rawScore), &score); err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldScore, err)
		}
		snap.Score = &score
	}
	if hasBehavior {
		var profile analytics.BehavioralProfile
		if err := json.Unmarshal([]byte(rawBehavior), &profile); err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldBehavior, err)
		}
		snap.Behavior = &profile
	}
	return snap, nil
}
