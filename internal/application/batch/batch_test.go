package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteerhub/profile-analytics/internal/domain/shared"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/memory"
)

func platformWith(n int) *memory.Platform {
	p := memory.NewPlatform()
	for i := range n {
		p.AddUser(fmt.Sprintf("u-%03d", i), true)
	}
	p.AddUser("u-inactive", false)
	return p
}

func TestChunkIterator_WalksEveryActiveUserOnce(t *testing.T) {
	it, err := NewChunkIterator(platformWith(7), 3)
	require.NoError(t, err)

	var chunks [][]string
	for it.Next(t.Context()) {
		chunks = append(chunks, it.Chunk())
	}
	require.NoError(t, it.Err())

	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"u-000", "u-001", "u-002"}, chunks[0])
	assert.Equal(t, []string{"u-006"}, chunks[2])
	assert.False(t, it.Next(t.Context()))
}

func TestChunkIterator_ExactMultipleEndsWithEmptyPage(t *testing.T) {
	it, err := NewChunkIterator(platformWith(4), 2)
	require.NoError(t, err)

	n := 0
	for it.Next(t.Context()) {
		n += len(it.Chunk())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 4, n)
}

func TestChunkIterator_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewChunkIterator(platformWith(1), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidBatchSize)
}

type failingSource struct{ err error }

func (s failingSource) ActiveUserIDs(context.Context, string, int) ([]string, error) {
	return nil, s.err
}

func TestChunkIterator_SourceError(t *testing.T) {
	boom := errors.New("directory down")
	it, err := NewChunkIterator(failingSource{boom}, 10)
	require.NoError(t, err)

	assert.False(t, it.Next(t.Context()))
	assert.ErrorIs(t, it.Err(), boom)
	assert.Nil(t, it.Chunk())
}

func TestRun_ContinuesAfterFailures(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	var calls atomic.Int32

	report := Run(t.Context(), ids, 2, func(_ context.Context, id string) error {
		calls.Add(1)
		if id == "b" || id == "d" {
			return errors.New("bad " + id)
		}
		return nil
	})

	assert.EqualValues(t, 5, calls.Load())
	assert.Equal(t, 5, report.Dispatched)
	assert.False(t, report.Cancelled)
	require.Len(t, report.Failures, 2)

	failed := []string{report.Failures[0].UserID, report.Failures[1].UserID}
	assert.ElementsMatch(t, []string{"b", "d"}, failed)
	assert.ErrorContains(t, report.Errors(), "bad b")
}

func TestRun_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}

	Run(t.Context(), ids, 3, func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	ids := []string{"a", "b", "c", "d"}

	report := Run(ctx, ids, 1, func(_ context.Context, id string) error {
		if id == "b" {
			cancel()
		}
		return nil
	})

	assert.True(t, report.Cancelled)
	assert.Less(t, report.Dispatched, len(ids))
	assert.Empty(t, report.Failures)
	assert.NoError(t, report.Errors())
}
