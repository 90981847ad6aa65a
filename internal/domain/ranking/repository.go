package ranking

import "context"

// PassFunc computes placements from an immutable population snapshot.
type PassFunc func(entries []Entry) ([]Placement, error)

// PopulationStore provides the snapshot boundary for the rank pass.
//
// RankPass must read every stored score inside one consistent snapshot, hand
// it to fn, and persist the returned placements atomically. If any step fails
// nothing is written and previous ranks are retained. Implementations must
// reject a pass while another pass holds the population.
type PopulationStore interface {
	RankPass(ctx context.Context, fn PassFunc) (Summary, error)
}
