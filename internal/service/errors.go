package service

import (
	"errors"
	"fmt"

	"shinebin/internal/database"
)

var (
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrBookingNotFound        = database.ErrBookingNotFound
	ErrConcurrentModification = database.ErrConcurrentModification
)

// ValidationError rejects a submission before anything is reserved.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError means the booking could not be stored. The reservation has
// already been released when the caller sees it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
