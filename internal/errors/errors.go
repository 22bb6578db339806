// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("resource not found")
	ErrAlreadyExists         = errors.New("resource already exists")
	ErrValidation            = errors.New("validation failed")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrConcurrencyConflict   = errors.New("concurrency conflict")
	ErrUnexpected            = errors.New("unexpected error")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a stale version on a ledger write.
type ConflictError struct {
	ID      int64
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("email %d was modified concurrently (expected version %d)", e.ID, e.Version)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

func NewConflict(id, version int64) error {
	return &ConflictError{ID: id, Version: version}
}

// DownstreamError wraps a failed call to a collaborator service.
type DownstreamError struct {
	Service string
	Err     error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *DownstreamError) Is(target error) bool { return target == ErrDownstreamUnavailable }

func (e *DownstreamError) Unwrap() error { return e.Err }

func NewDownstream(service string, err error) error {
	return &DownstreamError{Service: service, Err: err}
}

// Validation wraps a message as a ValidationFailed error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind maps an error onto its taxonomy name.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "ResourceNotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrValidation):
		return "ValidationFailed"
	case errors.Is(err, ErrDownstreamUnavailable):
		return "DownstreamUnavailable"
	case errors.Is(err, ErrConcurrencyConflict):
		return "ConcurrencyConflict"
	default:
		return "Unexpected"
	}
}
