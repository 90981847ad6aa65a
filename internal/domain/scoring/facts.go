package scoring

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"
)

// CompletionFacts lists which profile attributes are filled in.
type CompletionFacts struct {
	Fields map[string]bool `json:"fields"`
}

// VerificationFacts lists the document types that passed verification.
type VerificationFacts struct {
	VerifiedDocuments []string `json:"verified_documents"`
}

// EngagementFacts carries recent activity volume.
type EngagementFacts struct {
	RecentEvents int `json:"recent_events"`
}

// QualityFacts carries community content signals.
type QualityFacts struct {
	Posts           int `json:"posts"`
	PostsWithVotes  int `json:"posts_with_votes"`
	Answers         int `json:"answers"`
	AcceptedAnswers int `json:"accepted_answers"`
}

// Facts is the full calculator input for one user.
// A nil block means the facts for that category could not be read.
type Facts struct {
	Completion   *CompletionFacts   `json:"completion,omitempty"`
	Verification *VerificationFacts `json:"verification,omitempty"`
	Engagement   *EngagementFacts   `json:"engagement,omitempty"`
	Quality      *QualityFacts      `json:"quality,omitempty"`
}

// FactsProvider loads the raw facts for each category.
// Implemented by the infrastructure layer over the platform's tables.
type FactsProvider interface {
	CompletionFacts(ctx context.Context, userID string) (*CompletionFacts, error)
	VerificationFacts(ctx context.Context, userID string) (*VerificationFacts, error)
	EngagementFacts(ctx context.Context, userID string, since, until time.Time) (*EngagementFacts, error)
	QualityFacts(ctx context.Context, userID string) (*QualityFacts, error)
}

// Digest fingerprints the facts together with the rules version.
// Two calculations with the same digest produce the same score.
func Digest(f Facts, rulesVersion string) string {
	canonical := f
	if f.Verification != nil {
		docs := slices.Clone(f.Verification.VerifiedDocuments)
		slices.Sort(docs)
		canonical.Verification = &VerificationFacts{VerifiedDocuments: slices.Compact(docs)}
	}

	// encoding/json sorts map keys, so the encoding is stable.
	payload, err := json.Marshal(struct {
		Version string `json:"v"`
		Facts   Facts  `json:"f"`
	}{rulesVersion, canonical})
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}
