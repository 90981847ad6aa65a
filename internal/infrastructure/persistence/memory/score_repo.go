package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/volunteerhub/profile-analytics/internal/domain/ranking"
	"github.com/volunteerhub/profile-analytics/internal/domain/scoring"
	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

// ScoreRepository keeps one score row per user in a map.
// It implements scoring.Repository and ranking.PopulationStore.
type ScoreRepository struct {
	mu      sync.RWMutex
	rows    map[string]scoring.ProfileScore
	active  func(userID string) bool
	ranking bool
	now     func() time.Time
}

var (
	_ scoring.Repository      = (*ScoreRepository)(nil)
	_ ranking.PopulationStore = (*ScoreRepository)(nil)
)

// NewScoreRepository creates an empty repository. active decides which rows
// take part in a rank pass; nil treats every user as active.
func NewScoreRepository(active func(userID string) bool) *ScoreRepository {
	if active == nil {
		active = func(string) bool { return true }
	}
	return &ScoreRepository{
		rows:   make(map[string]scoring.ProfileScore),
		active: active,
		now:    time.Now,
	}
}

// Upsert stores a copy of the score, keeping the previous rank.
func (r *ScoreRepository) Upsert(_ context.Context, score *scoring.ProfileScore) error {
	if score == nil || score.UserID == "" {
		return shared.ErrInvalidUserID
	}
	row := clone(score)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.rows[score.UserID]; ok {
		row.RankPosition = prev.RankPosition
		row.RankedAt = prev.RankedAt
	} else {
		row.RankPosition = 0
		row.RankedAt = nil
	}
	r.rows[score.UserID] = row
	return nil
}

// Get returns a copy of the stored row or shared.ErrProfileNotFound.
func (r *ScoreRepository) Get(_ context.Context, userID string) (*scoring.ProfileScore, error) {
	r.mu.RLock()
	row, ok := r.rows[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	out := clone(&row)
	return &out, nil
}

// RankPass holds the write lock for the whole pass, so the population it
// hands to fn is a consistent snapshot. Placements are validated before any
// row changes; an invalid placement leaves every rank as it was.
func (r *ScoreRepository) RankPass(_ context.Context, fn ranking.PassFunc) (ranking.Summary, error) {
	r.mu.Lock()
	if r.ranking {
		r.mu.Unlock()
		return ranking.Summary{}, shared.ErrRankPassInProgress
	}
	r.ranking = true
	defer func() {
		r.ranking = false
		r.mu.Unlock()
	}()

	var entries []ranking.Entry
	for id, row := range r.rows {
		if r.active(id) {
			entries = append(entries, ranking.Entry{
				UserID:       id,
				TotalScore:   row.TotalScore,
				PreviousRank: ranking.Rank(row.RankPosition),
			})
		}
	}

	placements, err := fn(entries)
	if err != nil {
		return ranking.Summary{}, shared.PopulationSnapshotError("RankPass", err)
	}
	for _, p := range placements {
		if _, ok := r.rows[p.UserID]; !ok || !p.Rank.IsValid() {
			return ranking.Summary{}, shared.PopulationSnapshotError("RankPass",
				shared.NewDomainError("ranking", "RankPass", shared.ErrValueOutOfRange, "invalid placement for "+p.UserID))
		}
	}

	rankedAt := r.now().UTC()
	placed := make(map[string]struct{}, len(placements))
	for _, p := range placements {
		row := r.rows[p.UserID]
		row.RankPosition = int(p.Rank)
		row.RankedAt = &rankedAt
		r.rows[p.UserID] = row
		placed[p.UserID] = struct{}{}
	}
	for id, row := range r.rows {
		if _, ok := placed[id]; !ok && row.RankPosition != 0 {
			row.RankPosition = 0
			row.RankedAt = nil
			r.rows[id] = row
		}
	}
	return ranking.Summarize(placements), nil
}

// Len returns the number of stored rows.
func (r *ScoreRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func clone(s *scoring.ProfileScore) scoring.ProfileScore {
	out := *s
	out.CategoryScores = maps.Clone(s.CategoryScores)
	if s.RankedAt != nil {
		t := *s.RankedAt
		out.RankedAt = &t
	}
	return out
}
