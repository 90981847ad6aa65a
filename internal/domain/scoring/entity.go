// Package scoring contains the profile score model and the calculator
// that turns per-category facts into a composite score and letter grade.
package scoring

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Categories
// ═══════════════════════════════════════════════════════════════════════════

// Category is one of the fixed score dimensions.
type Category string

const (
	CategoryCompletion   Category = "completion"
	CategoryQuality      Category = "quality"
	CategoryEngagement   Category = "engagement"
	CategoryVerification Category = "verification"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{CategoryCompletion, CategoryQuality, CategoryEngagement, CategoryVerification}
}

// IsValid checks that the category is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCompletion, CategoryQuality, CategoryEngagement, CategoryVerification:
		return true
	}
	return false
}

// ParseCategory converts a raw string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown score category %q", s)
	}
	return c, nil
}

// CategoryScore is a bounded sub-score for one category.
type CategoryScore struct {
	Category Category `json:"category"`
	Value    float64  `json:"value"`
	// Degraded is set when the facts for this category could not be read.
	Degraded bool `json:"degraded,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Grades
// ═══════════════════════════════════════════════════════════════════════════

// Grade is a letter band for the composite score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeBand maps a minimum total score to a grade.
type GradeBand struct {
	Grade       Grade  `koanf:"grade" json:"grade"`
	MinScore    int    `koanf:"min_score" json:"min_score"`
	Description string `koanf:"description" json:"description"`
}

// GradeTable is ordered from the highest band to the lowest.
// The last band must start at 0 so every score has a grade.
type GradeTable []GradeBand

// DefaultGradeTable returns the standard A–F banding.
func DefaultGradeTable() GradeTable {
	return GradeTable{
		{Grade: GradeA, MinScore: 90, Description: "Outstanding profile, fully trusted and highly active"},
		{Grade: GradeB, MinScore: 75, Description: "Strong profile with good engagement"},
		{Grade: GradeC, MinScore: 60, Description: "Solid profile with room to grow"},
		{Grade: GradeD, MinScore: 40, Description: "Basic profile, complete missing sections to improve"},
		{Grade: GradeF, MinScore: 0, Description: "Incomplete profile, start by filling in your details"},
	}
}

// Validate checks that bands are strictly descending and cover zero.
func (t GradeTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("grade table is empty")
	}
	for i, b := range t {
		if b.Grade == "" {
			return fmt.Errorf("grade band %d has no grade", i)
		}
		if b.MinScore < 0 || b.MinScore > 100 {
			return fmt.Errorf("grade %s: min score %d out of range", b.Grade, b.MinScore)
		}
		if i > 0 && b.MinScore >= t[i-1].MinScore {
			return fmt.Errorf("grade %s: bands must be strictly descending", b.Grade)
		}
	}
	if t[len(t)-1].MinScore != 0 {
		return fmt.Errorf("lowest grade band must start at 0")
	}
	return nil
}

// Lookup returns the band for a total score.
func (t GradeTable) Lookup(total int) GradeBand {
	for _, b := range t {
		if total >= b.MinScore {
			return b
		}
	}
	return t[len(t)-1]
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile score
// ═══════════════════════════════════════════════════════════════════════════

// ProfileScore is the persisted per-user score row.
type ProfileScore struct {
	UserID           string                     `json:"user_id"`
	TotalScore       int                        `json:"total_score"`
	CategoryScores   map[Category]CategoryScore `json:"category_scores"`
	Grade            Grade                      `json:"grade"`
	GradeDescription string                     `json:"grade_description"`
	// RankPosition is 0 until the user has been included in a rank pass.
	RankPosition     int        `json:"rank_position"`
	RankedAt         *time.Time `json:"ranked_at,omitempty"`
	LastCalculatedAt time.Time  `json:"last_calculated_at"`
	RulesVersion     string     `json:"rules_version"`
	FactsDigest      string     `json:"facts_digest"`
}

// Value returns the sub-score of a category, 0 when absent.
func (p *ProfileScore) Value(c Category) float64 {
	if p == nil {
		return 0
	}
	return p.CategoryScores[c].Value
}

// IsRanked reports whether a rank pass has assigned a position.
func (p *ProfileScore) IsRanked() bool {
	return p != nil && p.RankPosition >= 1
}

// DegradedCategories lists the categories whose facts were unreadable.
func (p *ProfileScore) DegradedCategories() []Category {
	var out []Category
	for _, c := range Categories() {
		if p.CategoryScores[c].Degraded {
			out = append(out, c)
		}
	}
	return out
}
