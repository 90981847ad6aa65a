package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

// Platform holds the read-only platform data the engine consumes: users,
// profile facts and the activity ledger. It implements scoring.FactsProvider,
// activity.Ledger and the user directory used by the batch.
type Platform struct {
	mu           sync.RWMutex
	users        map[string]bool
	completion   map[string]*scoring.CompletionFacts
	verification map[string]*scoring.VerificationFacts
	quality      map[string]*scoring.QualityFacts
	events       map[string][]activity.Event
	failures     map[scoring.Category]error
	ledgerErr    error
}

var (
	_ scoring.FactsProvider = (*Platform)(nil)
	_ activity.Ledger       = (*Platform)(nil)
)

// NewPlatform creates an empty platform.
func NewPlatform() *Platform {
	return &Platform{
		users:        make(map[string]bool),
		completion:   make(map[string]*scoring.CompletionFacts),
		verification: make(map[string]*scoring.VerificationFacts),
		quality:      make(map[string]*scoring.QualityFacts),
		events:       make(map[string][]activity.Event),
		failures:     make(map[scoring.Category]error),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// AddUser registers a user.
func (p *Platform) AddUser(userID string, active bool) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = active
	return p
}

// SetCompletion records which profile fields the user filled in.
func (p *Platform) SetCompletion(userID string, fields ...string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := &scoring.CompletionFacts{Fields: make(map[string]bool, len(fields))}
	for _, name := range fields {
		f.Fields[name] = true
	}
	p.completion[userID] = f
	return p
}

// SetVerified records the user's verified document types.
func (p *Platform) SetVerified(userID string, docs ...string) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verification[userID] = &scoring.VerificationFacts{VerifiedDocuments: slices.Clone(docs)}
	return p
}

// SetQuality records the user's forum aggregates.
func (p *Platform) SetQuality(userID string, q scoring.QualityFacts) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quality[userID] = &q
	return p
}

// Record appends events to the ledger.
func (p *Platform) Record(events ...activity.Event) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		p.events[e.UserID] = append(p.events[e.UserID], e)
	}
	return p
}

// FailCategory makes every read of the category's facts return err.
// A nil err clears the failure.
func (p *Platform) FailCategory(c scoring.Category, err error) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, c)
	} else {
		p.failures[c] = err
	}
	return p
}

// FailLedger makes every ledger read return err.
func (p *Platform) FailLedger(err error) *Platform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledgerErr = err
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Directory
// ─────────────────────────────────────────────────────────────────────────────

// ActiveUserIDs returns up to limit active user IDs after afterID in ascending order.
func (p *Platform) ActiveUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []string
	for id, active := range p.users {
		if active && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// IsActive reports whether the user exists and is active.
func (p *Platform) IsActive(_ context.Context, userID string) (bool, error) {
	return p.Active(userID), nil
}

// Active is the context-free form of IsActive, shaped for NewScoreRepository.
func (p *Platform) Active(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.users[userID]
}

// ─────────────────────────────────────────────────────────────────────────────
// Facts
// ─────────────────────────────────────────────────────────────────────────────

func (p *Platform) CompletionFacts(ctx context.Context, userID string) (*scoring.CompletionFacts, error) {
	if err := p.check(ctx, scoring.CategoryCompletion); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if f, ok := p.completion[userID]; ok {
		return f, nil
	}
	return &scoring.CompletionFacts{Fields: map[string]bool{}}, nil
}

func (p *Platform) VerificationFacts(ctx context.Context, userID string) (*scoring.VerificationFacts, error) {
	if err := p.check(ctx, scoring.CategoryVerification); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if f, ok := p.verification[userID]; ok {
		return f, nil
	}
	return &scoring.VerificationFacts{VerifiedDocuments: []string{}}, nil
}

func (p *Platform) EngagementFacts(ctx context.Context, userID string, since, until time.Time) (*scoring.EngagementFacts, error) {
	if err := p.check(ctx, scoring.CategoryEngagement); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	window := activity.Window{From: since, To: until}
	return &scoring.EngagementFacts{RecentEvents: len(window.Filter(p.events[userID]))}, nil
}

func (p *Platform) QualityFacts(ctx context.Context, userID string) (*scoring.QualityFacts, error) {
	if err := p.check(ctx, scoring.CategoryQuality); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if f, ok := p.quality[userID]; ok {
		return f, nil
	}
	return &scoring.QualityFacts{}, nil
}

func (p *Platform) check(ctx context.Context, c scoring.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures[c]
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger
// ─────────────────────────────────────────────────────────────────────────────

// Events returns the user's events inside the window ordered by time.
func (p *Platform) Events(ctx context.Context, userID string, window activity.Window) ([]activity.Event, error) {
	if err := p.ledgerCheck(ctx); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	out := window.Filter(p.events[userID])
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// LastActivity returns the time of the user's most recent event.
func (p *Platform) LastActivity(ctx context.Context, userID string) (time.Time, bool, error) {
	if err := p.ledgerCheck(ctx); err != nil {
		return time.Time{}, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var last time.Time
	for _, e := range p.events[userID] {
		if e.OccurredAt.After(last) {
			last = e.OccurredAt
		}
	}
	return last.UTC(), !last.IsZero(), nil
}

func (p *Platform) ledgerCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledgerErr
}
