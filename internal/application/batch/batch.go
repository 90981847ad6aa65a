// Package batch drives per-user work over the active population: a keyset
// chunk iterator over the user directory and a bounded fan-out runner that
// keeps going when single items fail.
package batch

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
)

// Source pages through active user IDs in ascending order.
type Source interface {
	ActiveUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHUNK ITERATOR
// ══════════════════════════════════════════════════════════════════════════════

// ChunkIterator walks a Source one page at a time using the last seen ID as
// the cursor, so users added or deactivated mid-run never shift the pages.
//
//	it := batch.NewChunkIterator(dir, 500)
//	for it.Next(ctx) {
//		process(it.Chunk())
//	}
//	if err := it.Err(); err != nil { ... }
type ChunkIterator struct {
	source Source
	size   int
	after  string
	chunk  []string
	done   bool
	err    error
}

// NewChunkIterator creates an iterator returning chunks of at most size IDs.
func NewChunkIterator(source Source, size int) (*ChunkIterator, error) {
	if size <= 0 {
		return nil, shared.ErrInvalidBatchSize
	}
	return &ChunkIterator{source: source, size: size}, nil
}

// Next fetches the following chunk. It returns false when the source is
// exhausted or a read failed; check Err afterwards.
func (it *ChunkIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.fail(err)
		return false
	}

	ids, err := it.source.ActiveUserIDs(ctx, it.after, it.size)
	if err != nil {
		it.fail(err)
		return false
	}
	if len(ids) == 0 {
		it.done = true
		it.chunk = nil
		return false
	}

	it.chunk = ids
	it.after = ids[len(ids)-1]
	if len(ids) < it.size {
		// Short page: the next call would return nothing.
		it.done = true
	}
	return true
}

// Chunk returns the IDs fetched by the last successful Next.
func (it *ChunkIterator) Chunk() []string { return it.chunk }

// Err returns the read error that stopped the iteration, if any.
func (it *ChunkIterator) Err() error { return it.err }

func (it *ChunkIterator) fail(err error) {
	it.err = err
	it.done = true
	it.chunk = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// Failure is one item that could not be processed.
type Failure struct {
	UserID string `json:"user_id"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// Report summarizes one Run.
type Report struct {
	Dispatched int
	Failures   []Failure
	Cancelled  bool
}

// Run calls fn for every ID with at most limit calls in flight.
//
// A failing item is recorded and the rest continue. Once ctx is cancelled no
// further items are dispatched; items already running finish with whatever
// their own context allows and Report.Cancelled is set.
func Run(ctx context.Context, ids []string, limit int, fn func(ctx context.Context, userID string) error) Report {
	if limit <= 0 {
		limit = 1
	}

	var (
		mu     sync.Mutex
		report Report
	)

	// The group context is not used: one item failing must not cancel the others.
	var g errgroup.Group
	g.SetLimit(limit)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Dispatched++
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				mu.Lock()
				report.Failures = append(report.Failures, Failure{UserID: id, Err: err, Reason: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Cancelled = ctx.Err() != nil
	return report
}

// Errors joins the failures into one error, nil when there were none.
func (r Report) Errors() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}
