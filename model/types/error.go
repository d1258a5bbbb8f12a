package types

import (
	"errors"
	"fmt"
)

// Common, reusable engine errors. Using sentinel variables allows callers to
// reliably detect error conditions via errors.Is/As instead of brittle string
// comparisons.

var (
	// ErrNotFound is returned when the requested entity does not exist in the
	// underlying storage.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates an operation attempted from a status
	// that forbids it, e.g. approving a rejected action.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAuthorization indicates the actor is not permitted to perform the
	// operation, e.g. a non Director-3 submitting a reconciliation decision.
	ErrAuthorization = errors.New("authorization denied")

	// ErrDuplicate indicates an attempt to create a resource that must be
	// unique, e.g. a second reconciliation memo for one voting session.
	ErrDuplicate = errors.New("duplicate resource")
)

func NewNotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func NewInvalidTransitionError(kind, id, status, op string) error {
	return fmt.Errorf("%s %q in status %s does not allow %s: %w", kind, id, status, op, ErrInvalidTransition)
}

func NewAuthorizationError(actor, op string) error {
	return fmt.Errorf("actor %q may not %s: %w", actor, op, ErrAuthorization)
}

func NewDuplicateError(kind, id string) error {
	return fmt.Errorf("%s already exists for %q: %w", kind, id, ErrDuplicate)
}

// RetryableError marks an execution failure as transient so that the retry
// handler re-schedules the attempt regardless of message heuristics.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError wraps err as explicitly retryable.
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// TerminalError marks an execution failure as permanent; the retry handler
// escalates immediately without further attempts.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// NewTerminalError wraps err as explicitly non-retryable.
func NewTerminalError(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}
