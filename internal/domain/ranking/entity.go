// Package ranking contains the population rank model.
// Ranks are computed once per batch over an immutable snapshot of every
// stored composite score using competition ranking: equal scores share a
// rank and the next distinct score skips ahead by the size of the tie group.
package ranking

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based population position. Zero means "not ranked yet".
type Rank int

// IsValid reports whether the rank has been assigned.
func (r Rank) IsValid() bool {
	return r > 0
}

// String returns the display form of the rank.
func (r Rank) String() string {
	if !r.IsValid() {
		return "unranked"
	}
	return fmt.Sprintf("#%d", r)
}

// RankChange is the movement between two passes. Positive means the user climbed.
type RankChange int

// Direction returns the direction of the change.
func (rc RankChange) Direction() RankDirection {
	switch {
	case rc > 0:
		return RankDirectionUp
	case rc < 0:
		return RankDirectionDown
	default:
		return RankDirectionStable
	}
}

// Abs returns the absolute size of the change.
func (rc RankChange) Abs() int {
	if rc < 0 {
		return int(-rc)
	}
	return int(rc)
}

// String returns a signed representation such as "+3" or "-1".
func (rc RankChange) String() string {
	switch {
	case rc > 0:
		return fmt.Sprintf("+%d", rc)
	case rc < 0:
		return fmt.Sprintf("%d", rc)
	default:
		return "0"
	}
}

// RankDirection classifies a rank change.
type RankDirection string

const (
	RankDirectionUp     RankDirection = "up"
	RankDirectionDown   RankDirection = "down"
	RankDirectionStable RankDirection = "stable"
	RankDirectionNew    RankDirection = "new"
)

// ══════════════════════════════════════════════════════════════════════════════
// POPULATION SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row of the population snapshot.
type Entry struct {
	UserID       string
	TotalScore   int
	PreviousRank Rank
}

// Placement is the rank assigned to one user by a pass.
type Placement struct {
	UserID     string
	TotalScore int
	Rank       Rank
	Change     RankChange
	Direction  RankDirection
}

// Compete assigns competition ranks: rank(u) = 1 + |{v : score(v) > score(u)}|.
// The input is not modified. Output is ordered by rank, then by user ID.
func Compete(entries []Entry) []Placement {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	placements := make([]Placement, len(sorted))
	currentRank := Rank(1)
	for i, entry := range sorted {
		rank := currentRank
		if i > 0 && entry.TotalScore == sorted[i-1].TotalScore {
			rank = placements[i-1].Rank
		}
		currentRank = Rank(i + 2)

		p := Placement{UserID: entry.UserID, TotalScore: entry.TotalScore, Rank: rank}
		if entry.PreviousRank.IsValid() {
			p.Change = RankChange(entry.PreviousRank - rank)
			p.Direction = p.Change.Direction()
		} else {
			p.Direction = RankDirectionNew
		}
		placements[i] = p
	}
	return placements
}

// Summary aggregates the movement of one pass.
type Summary struct {
	Ranked      int
	Moved       int
	NewlyRanked int
}

// Summarize counts placements by movement.
func Summarize(placements []Placement) Summary {
	s := Summary{Ranked: len(placements)}
	for _, p := range placements {
		switch p.Direction {
		case RankDirectionNew:
			s.NewlyRanked++
		case RankDirectionUp, RankDirectionDown:
			s.Moved++
		}
	}
	return s
}
