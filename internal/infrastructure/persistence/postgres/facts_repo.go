package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
)

// FactsRepository implements scoring.FactsProvider over the platform's
// profiles, user_documents, forum_posts and activity_events tables.
type FactsRepository struct {
	conn Querier
}

// NewFactsRepository creates a new FactsRepository.
func NewFactsRepository(conn Querier) *FactsRepository {
	return &FactsRepository{conn: conn}
}

var _ scoring.FactsProvider = (*FactsRepository)(nil)

// CompletionFacts reads the profile row as JSON and reports which columns hold a value.
// A user without a profile row has no filled fields.
func (r *FactsRepository) CompletionFacts(ctx context.Context, userID string) (*scoring.CompletionFacts, error) {
	var raw []byte
	err := r.conn.QueryRow(ctx, `
		SELECT to_jsonb(p) FROM profiles p WHERE p.user_id::text = $1
	`, userID).Scan(&raw)
	if IsNoRows(err) {
		return &scoring.CompletionFacts{Fields: map[string]bool{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile for %s: %w", userID, err)
	}

	var columns map[string]any
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode profile for %s: %w", userID, err)
	}

	fields := make(map[string]bool, len(columns))
	for name, v := range columns {
		fields[name] = isFilled(v)
	}
	return &scoring.CompletionFacts{Fields: fields}, nil
}

// isFilled treats null, blank strings and empty collections as missing.
func isFilled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// VerificationFacts lists the distinct document types with a verification timestamp.
func (r *FactsRepository) VerificationFacts(ctx context.Context, userID string) (*scoring.VerificationFacts, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT DISTINCT doc_type
		FROM user_documents
		WHERE user_id::text = $1 AND verified_at IS NOT NULL
		ORDER BY doc_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents for %s: %w", userID, err)
	}
	defer rows.Close()

	docs := []string{}
	for rows.Next() {
		var docType string
		if err := rows.Scan(&docType); err != nil {
			return nil, fmt.Errorf("failed to scan document type: %w", err)
		}
		docs = append(docs, docType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents for %s: %w", userID, err)
	}
	return &scoring.VerificationFacts{VerifiedDocuments: docs}, nil
}

// EngagementFacts counts the user's ledger events in [since, until).
func (r *FactsRepository) EngagementFacts(ctx context.Context, userID string, since, until time.Time) (*scoring.EngagementFacts, error) {
	n, err := countEvents(ctx, r.conn, userID, since, until)
	if err != nil {
		return nil, err
	}
	return &scoring.EngagementFacts{RecentEvents: n}, nil
}

// QualityFacts aggregates the user's forum content. Posts counts everything
// the user authored, answers included.
func (r *FactsRepository) QualityFacts(ctx context.Context, userID string) (*scoring.QualityFacts, error) {
	var q scoring.QualityFacts
	err := r.conn.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE vote_count > 0),
			COUNT(*) FILTER (WHERE is_answer),
			COUNT(*) FILTER (WHERE is_answer AND is_accepted)
		FROM forum_posts
		WHERE author_id::text = $1
	`, userID).Scan(&q.Posts, &q.PostsWithVotes, &q.Answers, &q.AcceptedAnswers)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate forum posts for %s: %w", userID, err)
	}
	return &q, nil
}
