// Package engine runs the per-user scoring and analytics pipeline:
// facts → score → milestone → behavior → predictions → snapshot.
// It owns no storage; persistence and caching are left to the callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/activity"
	"github.com/volunteerhub/profile-analytics/internal/domain/analytics"
	"github.com/volunteerhub/profile-analytics/internal/domain/behavior"
	"github.com/volunteerhub/profile-analytics/internal/domain/milestone"
	"github.com/volunteerhub/profile-analytics/internal/domain/predictive"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Rules is one named, versioned set of rule tables.
type Rules struct {
	Version    string
	Scoring    scoring.Rules
	Milestones milestone.Tiers
	Behavior   behavior.Rules
	Predictive predictive.Rules
}

// DefaultRules returns the production rule tables.
func DefaultRules() Rules {
	return Rules{
		Version:    "default",
		Scoring:    scoring.DefaultRules(),
		Milestones: milestone.DefaultTiers(),
		Behavior:   behavior.DefaultRules(),
		Predictive: predictive.DefaultRules(),
	}
}

// Components are the validated domain evaluators built from one rule set.
type Components struct {
	Calculator *scoring.Calculator
	Tracker    *milestone.Tracker
	Analyzer   *behavior.Analyzer
	Heuristics *predictive.Heuristics
}

// Build validates every table and constructs the evaluators.
func (r Rules) Build() (Components, error) {
	var (
		c   Components
		err error
	)
	if c.Calculator, err = scoring.NewCalculator(r.Scoring, r.Version); err != nil {
		return Components{}, fmt.Errorf("scoring rules: %w", err)
	}
	if c.Tracker, err = milestone.NewTracker(r.Milestones); err != nil {
		return Components{}, fmt.Errorf("milestone tiers: %w", err)
	}
	if c.Analyzer, err = behavior.NewAnalyzer(r.Behavior); err != nil {
		return Components{}, fmt.Errorf("behavior rules: %w", err)
	}
	if c.Heuristics, err = predictive.NewHeuristics(r.Predictive); err != nil {
		return Components{}, fmt.Errorf("predictive rules: %w", err)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine computes scores and behavioral profiles for single users.
// It is safe for concurrent use.
type Engine struct {
	facts      scoring.FactsProvider
	ledger     activity.Ledger
	components Components
	logger     *logger.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(facts scoring.FactsProvider, ledger activity.Ledger, components Components, opts ...Option) *Engine {
	e := &Engine{
		facts:      facts,
		ledger:     ledger,
		components: components,
		logger:     logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("engine"))
	return e
}

// Now returns the engine clock reading in UTC.
func (e *Engine) Now() time.Time { return e.now().UTC() }

// RulesVersion returns the version of the active rule set.
func (e *Engine) RulesVersion() string { return e.components.Calculator.Version() }

// ScoreResult is the outcome of ScoreUser.
type ScoreResult struct {
	Score *scoring.ProfileScore
	Facts scoring.Facts

	// Degraded holds one input data error per category whose facts could
	// not be read. Those categories scored 0.
	Degraded []error
}

// GatherFacts loads every fact block independently. A failing block is left
// nil and reported in degraded; the returned error is set only when the
// context ended.
func (e *Engine) GatherFacts(ctx context.Context, userID string, at time.Time) (f scoring.Facts, degraded []error, err error) {
	note := func(category scoring.Category, err error) {
		degraded = append(degraded, shared.InputDataError(string(category), err))
	}

	if f.Completion, err = e.facts.CompletionFacts(ctx, userID); err != nil {
		note(scoring.CategoryCompletion, err)
	}
	if f.Verification, err = e.facts.VerificationFacts(ctx, userID); err != nil {
		note(scoring.CategoryVerification, err)
	}
	since := at.Add(-e.components.Calculator.Rules().EngagementWindow)
	if f.Engagement, err = e.facts.EngagementFacts(ctx, userID, since, at); err != nil {
		note(scoring.CategoryEngagement, err)
	}
	if f.Quality, err = e.facts.QualityFacts(ctx, userID); err != nil {
		note(scoring.CategoryQuality, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return scoring.Facts{}, nil, AsTimeout(userID, ctxErr)
	}
	return f, degraded, nil
}

// ScoreUser gathers facts and calculates the user's profile score at the engine clock.
func (e *Engine) ScoreUser(ctx context.Context, userID string) (*ScoreResult, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	at := e.Now()

	f, degraded, err := e.GatherFacts(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	for _, d := range degraded {
		e.logger.Warn("scoring with missing facts", logger.UserID(userID), logger.Err(d))
	}

	score := e.components.Calculator.Calculate(userID, f, at)
	return &ScoreResult{Score: score, Facts: f, Degraded: degraded}, nil
}

// BuildProfile derives the behavioral profile from the ledger window ending
// at the engine clock. score may be nil, in which case no milestone is set
// and the score-driven predictive factors are skipped.
func (e *Engine) BuildProfile(ctx context.Context, userID string, score *scoring.ProfileScore) (*analytics.BehavioralProfile, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	at := e.Now()
	window := e.components.Analyzer.Window(at)

	events, err := e.ledger.Events(ctx, userID, window)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, AsTimeout(userID, ctxErr)
		}
		return nil, shared.InputDataError("activity", err)
	}

	analysis := e.components.Analyzer.Analyze(events, window)
	if !analysis.HasActivity() {
		// The profile still shows when the user was last seen, even outside the window.
		last, ok, err := e.ledger.LastActivity(ctx, userID)
		switch {
		case err != nil:
			e.logger.Warn("failed to read last activity", logger.UserID(userID), logger.Err(err))
		case ok:
			analysis.LastActivityAt = &last
		}
	}

	predictions := e.components.Heuristics.Predict(score, analysis, at)
	return analytics.NewBehavioralProfile(userID, analysis, predictions, e.Milestone(score), at), nil
}

// Milestone returns the next milestone for the score, nil without a score.
func (e *Engine) Milestone(score *scoring.ProfileScore) *milestone.Milestone {
	if score == nil {
		return nil
	}
	m := e.components.Tracker.Next(score.TotalScore)
	return &m
}

// AchievedMilestones returns the titles of the tiers the score has passed.
func (e *Engine) AchievedMilestones(score *scoring.ProfileScore) []string {
	if score == nil {
		return nil
	}
	var titles []string
	for _, tier := range e.components.Tracker.Achieved(score.TotalScore) {
		titles = append(titles, tier.Title)
	}
	return titles
}

// Snapshot assembles a cache entry from the two sections.
func (e *Engine) Snapshot(score *scoring.ProfileScore, profile *analytics.BehavioralProfile) *analytics.Snapshot {
	snap := &analytics.Snapshot{Score: score, Behavior: profile, ComputedAt: e.Now()}
	switch {
	case score != nil:
		snap.UserID = score.UserID
	case profile != nil:
		snap.UserID = profile.UserID
	}
	return snap
}

// AsTimeout maps context deadline failures to a computation timeout.
// Other errors are returned unchanged.
func AsTimeout(userID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !shared.IsTimeout(err) {
		return shared.ComputationTimeoutError(userID, err)
	}
	return err
}
