package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrOperationFailed     = errors.New("database operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidTransition   = errors.New("invalid payment status transition")
	ErrRateLimited         = errors.New("too many requests")
	ErrForbidden           = errors.New("forbidden")
	ErrLockNotAcquired     = errors.New("lock not acquired")
	ErrInvalidSignature    = errors.New("invalid callback signature")
)

// ValidationError reports malformed caller input. Nothing is persisted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// ProviderError reports that the payment provider was unreachable, answered with an
// HTTP error, or refused a request. It is retryable from the caller's point of view.
type ProviderError struct {
	Op     string // create_deposit | get_deposit
	Status string // provider status when the provider answered, empty on transport errors
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("provider %s: status %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable is always true; kept as a method so handlers can switch on behaviour.
func (e *ProviderError) Retryable() bool { return true }

// ReconciliationError reports a database failure while applying a provider status
// to local state. The provider status must not be dropped: callers log it, report
// it and answer with a non-2xx so the provider or reconciler retries.
type ReconciliationError struct {
	DepositID string
	Status    string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile deposit %s to %s: %v", e.DepositID, e.Status, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
