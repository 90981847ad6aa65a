package scoring

import (
	"math"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

// Calculator computes category sub-scores and the composite total.
// It holds no mutable state; identical facts always produce the identical score.
type Calculator struct {
	rules   Rules
	version string
	docSum  float64
}

// NewCalculator validates the rules and returns a calculator bound to them.
// version is recorded on every produced score.
func NewCalculator(rules Rules, version string) (*Calculator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	var docSum float64
	for _, w := range rules.DocumentWeights {
		docSum += w
	}
	return &Calculator{rules: rules, version: version, docSum: docSum}, nil
}

// Rules returns the rule set the calculator was built with.
func (c *Calculator) Rules() Rules { return c.rules }

// Version returns the rules version stamped on scores.
func (c *Calculator) Version() string { return c.version }

// Calculate produces the full profile score for one user.
func (c *Calculator) Calculate(userID string, f Facts, at time.Time) *ProfileScore {
	categories := c.CategoryScores(f)

	values := make(map[Category]float64, len(categories))
	for cat, cs := range categories {
		values[cat] = cs.Value
	}
	total := c.Compose(values)
	band := c.rules.Grades.Lookup(total)

	return &ProfileScore{
		UserID:           userID,
		TotalScore:       total,
		CategoryScores:   categories,
		Grade:            band.Grade,
		GradeDescription: band.Description,
		LastCalculatedAt: at.UTC(),
		RulesVersion:     c.version,
		FactsDigest:      Digest(f, c.version),
	}
}

// CategoryScores evaluates every category rule. Missing facts degrade the category to 0.
func (c *Calculator) CategoryScores(f Facts) map[Category]CategoryScore {
	out := make(map[Category]CategoryScore, 4)

	set := func(cat Category, present bool, value float64) {
		out[cat] = CategoryScore{
			Category: cat,
			Value:    round2(shared.ClampPercent(value)),
			Degraded: !present,
		}
	}

	set(CategoryCompletion, f.Completion != nil, c.completion(f.Completion))
	set(CategoryQuality, f.Quality != nil, c.quality(f.Quality))
	set(CategoryEngagement, f.Engagement != nil, c.engagement(f.Engagement))
	set(CategoryVerification, f.Verification != nil, c.verification(f.Verification))

	return out
}

// Compose returns round(Σ weight × value) clamped to [0,100].
func (c *Calculator) Compose(values map[Category]float64) int {
	var sum float64
	for _, cat := range Categories() {
		sum += c.rules.Weights.For(cat) * values[cat]
	}
	return int(shared.ClampPercent(math.Round(sum)))
}

// Grade returns the grade band for a total score.
func (c *Calculator) Grade(total int) GradeBand {
	return c.rules.Grades.Lookup(total)
}

// ─────────────────────────────────────────────────────────────────────────────
// Category rules
// ─────────────────────────────────────────────────────────────────────────────

func (c *Calculator) completion(f *CompletionFacts) float64 {
	if f == nil {
		return 0
	}
	filled := 0
	for _, field := range c.rules.RequiredFields {
		if f.Fields[field] {
			filled++
		}
	}
	return 100 * float64(filled) / float64(len(c.rules.RequiredFields))
}

func (c *Calculator) verification(f *VerificationFacts) float64 {
	if f == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(f.VerifiedDocuments))
	var sum float64
	for _, doc := range f.VerifiedDocuments {
		if _, dup := seen[doc]; dup {
			continue
		}
		seen[doc] = struct{}{}
		sum += c.rules.DocumentWeights[doc]
	}
	return 100 * sum / c.docSum
}

func (c *Calculator) engagement(f *EngagementFacts) float64 {
	if f == nil || f.RecentEvents <= 0 {
		return 0
	}
	n := min(f.RecentEvents, c.rules.EngagementSaturation)
	return 100 * float64(n) / float64(c.rules.EngagementSaturation)
}

func (c *Calculator) quality(f *QualityFacts) float64 {
	if f == nil || (f.Posts <= 0 && f.Answers <= 0) {
		return 0
	}
	voteRatio := shared.SafeDiv(float64(f.PostsWithVotes), float64(f.Posts))
	if f.Answers <= 0 {
		return 100 * voteRatio
	}
	acceptRatio := shared.SafeDiv(float64(f.AcceptedAnswers), float64(f.Answers))
	return 100 * (c.rules.VoteWeight*voteRatio + c.rules.AcceptanceWeight*acceptRatio)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
