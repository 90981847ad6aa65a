// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("conflict")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrValueOutOfRange = errors.New("value out of range")

	// Computation errors
	ErrInputData          = errors.New("input data unavailable")
	ErrPopulationSnapshot = errors.New("population snapshot unavailable")
	ErrCacheUnavailable   = errors.New("cache unavailable")
	ErrComputationTimeout = errors.New("computation timeout")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "scoring", "ranking", "analytics"
	Op      string // Operation that failed, e.g., "Calculate", "RankPass"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error taxonomy of the scoring pipeline
// ─────────────────────────────────────────────────────────────────────────────

// InputDataError reports unreadable facts for one score category.
// The category degrades to zero and the computation continues.
func InputDataError(category string, err error) *DomainError {
	return WrapError("scoring", "LoadFacts", ErrInputData, "facts unavailable for category "+category, err)
}

// PopulationSnapshotError reports that the rank pass could not get a consistent read
// or could not persist its result. Previous ranks are retained.
func PopulationSnapshotError(op string, err error) *DomainError {
	return WrapError("ranking", op, ErrPopulationSnapshot, "population snapshot failed", err)
}

// CacheUnavailableError reports a failed cache operation. Callers treat it as a miss.
func CacheUnavailableError(op string, err error) *DomainError {
	return WrapError("analytics", op, ErrCacheUnavailable, "cache store unavailable", err)
}

// ComputationTimeoutError marks a single user's computation as timed out.
func ComputationTimeoutError(userID string, err error) *DomainError {
	return WrapError("batch", "ComputeUser", ErrComputationTimeout, "computation timed out for user "+userID, err)
}

// Predefined domain errors
var (
	ErrProfileNotFound     = NewDomainError("scoring", "Find", ErrNotFound, "profile score not found")
	ErrInvalidUserID       = NewDomainError("scoring", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidWeights      = NewDomainError("scoring", "Validate", ErrInvalidInput, "category weights must sum to 1.0")
	ErrRankPassInProgress  = NewDomainError("ranking", "RankPass", ErrConflict, "another rank pass is running")
	ErrInvalidBatchSize    = NewDomainError("batch", "Validate", ErrInvalidInput, "batch size must be positive")
	ErrInvalidTarget       = NewDomainError("batch", "Validate", ErrInvalidInput, "target must be a single user or all active users")
	ErrInvalidCacheSection = NewDomainError("analytics", "Invalidate", ErrInvalidInput, "unknown cache section")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrValueOutOfRange)
}

func IsInputData(err error) bool          { return errors.Is(err, ErrInputData) }
func IsPopulationSnapshot(err error) bool { return errors.Is(err, ErrPopulationSnapshot) }
func IsCacheUnavailable(err error) bool   { return errors.Is(err, ErrCacheUnavailable) }
func IsTimeout(err error) bool            { return errors.Is(err, ErrComputationTimeout) }

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrConflict)
}
