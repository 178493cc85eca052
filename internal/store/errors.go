package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert would create a second record
	// with an existing primary key.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update cannot be applied for a reason
	// other than a lost race. A lost race is reported as zero affected rows.
	ErrUpdateFailed = errors.New("update failed")

	// ErrJobNotFound indicates that the requested media generation job does not exist.
	ErrJobNotFound = fmt.Errorf("%w: media generation job", ErrNotFound)

	// ErrJobExists indicates that a job with the same id was already stored.
	ErrJobExists = fmt.Errorf("%w: media generation job", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// EntityJob names media generation jobs in StoreError.
const EntityJob = "media_generation_job"

// JobStore operations reported in StoreError
const (
	OpCreate            = "create"
	OpGet               = "get"
	OpSelect            = "select"
	OpCount             = "count"
	OpConditionalUpdate = "conditional_update"
)

// StoreError is returned by stores when the backend itself fails. It names
// the operation so callers can log it via errors.As, and unwraps to the
// sentinel or driver error underneath.
type StoreError struct {
	Entity    string // EntityJob
	Operation string // one of the Op constants
	Message   string
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
