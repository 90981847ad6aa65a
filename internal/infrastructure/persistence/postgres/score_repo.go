package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/volunteerhub/profile-analytics/internal/domain/ranking"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

// RankPassLockKey is the advisory lock key that serializes rank passes
// across engine processes sharing a database.
const RankPassLockKey int64 = 0x70726f66696c65

// ══════════════════════════════════════════════════════════════════════════════
// SCORE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements scoring.Repository and ranking.PopulationStore.
type ScoreRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(conn *Connection) *ScoreRepository {
	return &ScoreRepository{conn: conn, now: time.Now}
}

var (
	_ scoring.Repository      = (*ScoreRepository)(nil)
	_ ranking.PopulationStore = (*ScoreRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// SCORE OPERATIONS
// ─────────────────────────────────────────────────────────────────────────────

// Upsert writes the score row. rank_position and ranked_at are never touched here.
func (r *ScoreRepository) Upsert(ctx context.Context, score *scoring.ProfileScore) error {
	categories, err := json.Marshal(score.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to encode category scores: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO profile_scores
			(user_id, total_score, category_scores, grade, grade_description,
			 last_calculated_at, rules_version, facts_digest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			total_score = EXCLUDED.total_score,
			category_scores = EXCLUDED.category_scores,
			grade = EXCLUDED.grade,
			grade_description = EXCLUDED.grade_description,
			last_calculated_at = EXCLUDED.last_calculated_at,
			rules_version = EXCLUDED.rules_version,
			facts_digest = EXCLUDED.facts_digest,
			updated_at = NOW()
	`,
		score.UserID,
		score.TotalScore,
		categories,
		string(score.Grade),
		score.GradeDescription,
		score.LastCalculatedAt.UTC(),
		score.RulesVersion,
		score.FactsDigest,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert score for %s: %w", score.UserID, err)
	}
	return nil
}

// Get returns the persisted score or shared.ErrProfileNotFound.
func (r *ScoreRepository) Get(ctx context.Context, userID string) (*scoring.ProfileScore, error) {
	var (
		s          scoring.ProfileScore
		grade      string
		categories []byte
	)

	err := r.conn.QueryRow(ctx, `
		SELECT user_id, total_score, category_scores, grade, grade_description,
		       rank_position, ranked_at, last_calculated_at, rules_version, facts_digest
		FROM profile_scores
		WHERE user_id = $1
	`, userID).Scan(
		&s.UserID,
		&s.TotalScore,
		&categories,
		&grade,
		&s.GradeDescription,
		&s.RankPosition,
		&s.RankedAt,
		&s.LastCalculatedAt,
		&s.RulesVersion,
		&s.FactsDigest,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score for %s: %w", userID, err)
	}

	if err := json.Unmarshal(categories, &s.CategoryScores); err != nil {
		return nil, fmt.Errorf("failed to decode category scores for %s: %w", userID, err)
	}
	s.Grade = scoring.Grade(grade)
	s.LastCalculatedAt = s.LastCalculatedAt.UTC()
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RANK PASS
// ─────────────────────────────────────────────────────────────────────────────

// RankPass ranks the active population inside one repeatable-read transaction.
//
// The pass takes a transaction-scoped advisory lock first; if another pass
// holds it, shared.ErrRankPassInProgress is returned and nothing is read.
// Scores of inactive users are unranked in the same transaction. Any other
// failure rolls back and is reported as a population snapshot error.
func (r *ScoreRepository) RankPass(ctx context.Context, fn ranking.PassFunc) (ranking.Summary, error) {
	var summary ranking.Summary

	err := r.conn.WithTx(ctx, SnapshotTxOptions(), func(tx pgx.Tx) error {
		var locked bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, RankPassLockKey).Scan(&locked); err != nil {
			return fmt.Errorf("failed to acquire rank lock: %w", err)
		}
		if !locked {
			return shared.ErrRankPassInProgress
		}

		entries, err := r.population(ctx, tx)
		if err != nil {
			return err
		}

		placements, err := fn(entries)
		if err != nil {
			return fmt.Errorf("rank computation failed: %w", err)
		}

		if err := r.writePlacements(ctx, tx, placements); err != nil {
			return err
		}

		summary = ranking.Summarize(placements)
		return nil
	})
	switch {
	case err == nil:
		return summary, nil
	case errors.Is(err, shared.ErrRankPassInProgress):
		return ranking.Summary{}, err
	default:
		return ranking.Summary{}, shared.PopulationSnapshotError("RankPass", err)
	}
}

func (r *ScoreRepository) population(ctx context.Context, tx pgx.Tx) ([]ranking.Entry, error) {
	rows, err := tx.Query(ctx, `
		SELECT ps.user_id, ps.total_score, ps.rank_position
		FROM profile_scores ps
		JOIN users u ON u.id::text = ps.user_id
		WHERE u.is_active
		ORDER BY ps.user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read population: %w", err)
	}
	defer rows.Close()

	var entries []ranking.Entry
	for rows.Next() {
		var (
			e    ranking.Entry
			prev int
		)
		if err := rows.Scan(&e.UserID, &e.TotalScore, &prev); err != nil {
			return nil, fmt.Errorf("failed to scan population row: %w", err)
		}
		e.PreviousRank = ranking.Rank(prev)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read population: %w", err)
	}
	return entries, nil
}

func (r *ScoreRepository) writePlacements(ctx context.Context, tx pgx.Tx, placements []ranking.Placement) error {
	rankedAt := r.now().UTC()
	ranked := make([]string, 0, len(placements))

	batch := &pgx.Batch{}
	for _, p := range placements {
		batch.Queue(`
			UPDATE profile_scores SET rank_position = $2, ranked_at = $3
			WHERE user_id = $1
		`, p.UserID, int(p.Rank), rankedAt)
		ranked = append(ranked, p.UserID)
	}
	batch.Queue(`
		UPDATE profile_scores SET rank_position = 0, ranked_at = NULL
		WHERE rank_position <> 0 AND NOT (user_id = ANY($1))
	`, ranked)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to write rank %d/%d: %w", i+1, batch.Len(), err)
		}
	}
	return br.Close()
}
