package lease

import (
	"errors"
	"fmt"

	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/quota"
	"github.com/xraph/lease/vm"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("lease: not found")
	ErrAlreadyExists = errors.New("lease: already exists")
	ErrInvalidInput  = errors.New("lease: invalid input")

	// Lease errors
	ErrLeaseNotFound     = errors.New("lease: lease not found")
	ErrQuotaExceeded     = errors.New("lease: quota exceeded")
	ErrInvalidTransition = errors.New("lease: invalid state transition")

	// Driver errors
	ErrDriverFailure = errors.New("lease: container driver failure")

	// Cost errors
	ErrCostComputation = errors.New("lease: cost computation failed")

	// Store errors
	ErrStoreNotReady = errors.New("lease: store not ready")
	ErrStoreClosed   = errors.New("lease: store is closed")

	// Engine errors
	ErrEngineStopped = errors.New("lease: engine is stopped")
)

// Structured error types from the domain packages, re-exported so callers
// can work against the root package alone.
type (
	// QuotaExceededError carries the breached dimensions and amounts.
	QuotaExceededError = quota.ExceededError

	// InvalidStateTransitionError carries the current state and the
	// attempted event.
	InvalidStateTransitionError = vm.TransitionError

	// CostComputationError reports malformed lease configuration caught
	// at cost time. Unreachable when creation-time validation holds.
	CostComputationError = pricing.CostError
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("lease: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with
// errors.Is(err, ErrInvalidInput).
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLeaseNotFound)
}

// IsQuotaError returns true if the error is an admission rejection.
func IsQuotaError(err error) bool {
	var qe *QuotaExceededError
	return errors.Is(err, ErrQuotaExceeded) || errors.As(err, &qe)
}

// IsStateError returns true if the error is a lifecycle guard rejection.
func IsStateError(err error) bool {
	var te *InvalidStateTransitionError
	return errors.Is(err, ErrInvalidTransition) || errors.As(err, &te)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrDriverFailure)
}
