package postgres

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_profile_scores",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "index_profile_scores_rank",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROFILE SCORES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per scored user. rank_position 0 means not yet ranked.
CREATE TABLE IF NOT EXISTS profile_scores (
    user_id VARCHAR(64) PRIMARY KEY,
    total_score SMALLINT NOT NULL,
    category_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
    grade VARCHAR(2) NOT NULL,
    grade_description TEXT NOT NULL DEFAULT '',
    rank_position INTEGER NOT NULL DEFAULT 0,
    ranked_at TIMESTAMP WITH TIME ZONE,
    last_calculated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    rules_version VARCHAR(64) NOT NULL,
    facts_digest VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_score CHECK (total_score BETWEEN 0 AND 100),
    CONSTRAINT valid_rank_position CHECK (rank_position >= 0),
    CONSTRAINT valid_grade CHECK (grade IN ('A', 'B', 'C', 'D', 'F'))
);

CREATE INDEX IF NOT EXISTS idx_profile_scores_last_calculated ON profile_scores(last_calculated_at);
`

const migration001Down = `
DROP TABLE IF EXISTS profile_scores;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: RANK ORDER INDEX
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Matches the rank pass ordering: score descending, then user id.
CREATE INDEX IF NOT EXISTS idx_profile_scores_rank_order ON profile_scores(total_score DESC, user_id);
CREATE INDEX IF NOT EXISTS idx_profile_scores_rank_position ON profile_scores(rank_position) WHERE rank_position > 0;
`

const migration002Down = `
DROP INDEX IF EXISTS idx_profile_scores_rank_position;
DROP INDEX IF EXISTS idx_profile_scores_rank_order;
`
