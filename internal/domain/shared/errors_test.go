package shared

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	err := ComputationTimeoutError("u-1", context.DeadlineExceeded)

	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, IsCacheUnavailable(err))
	assert.Contains(t, err.Error(), "batch.ComputeUser")
	assert.Contains(t, err.Error(), "u-1")
}

func TestTaxonomyPredicates(t *testing.T) {
	cause := errors.New("connection refused")

	assert.True(t, IsInputData(InputDataError("verification", cause)))
	assert.True(t, IsPopulationSnapshot(PopulationSnapshotError("RankPass", cause)))
	assert.True(t, IsCacheUnavailable(CacheUnavailableError("Get", cause)))

	wrapped := fmt.Errorf("outer: %w", CacheUnavailableError("Put", cause))
	assert.True(t, IsCacheUnavailable(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
}

func TestPredefinedErrors(t *testing.T) {
	assert.True(t, IsNotFound(ErrProfileNotFound))
	assert.True(t, IsValidation(ErrInvalidBatchSize))
	assert.True(t, IsRetryable(ErrRankPassInProgress))
	assert.False(t, IsRetryable(ErrProfileNotFound))
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  3f1c2a9e-0b7d-4e55-9d0a-1b2c3d4e5f60 ")
	assert.NoError(t, err)
	assert.Equal(t, "3f1c2a9e-0b7d-4e55-9d0a-1b2c3d4e5f60", id.String())

	_, err = NewUserID("")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewUserID("bad id with spaces")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestClampPercentAndSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, ClampPercent(-3))
	assert.Equal(t, 100.0, ClampPercent(140))
	assert.Equal(t, 42.5, ClampPercent(42.5))
	assert.Equal(t, 0.0, ClampPercent(math.NaN()))

	assert.Equal(t, 5.0, SafeDiv(5, 0))
	assert.Equal(t, 2.5, SafeDiv(5, 2))
}
