package core

import "errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError indicates that a referenced entity does not exist.
type NotFoundError struct {
	message string
}

func NewNotFoundError(msg string) error { return &NotFoundError{message: msg} }

func (err NotFoundError) Error() string { return err.message }

// ConflictError indicates a uniqueness or duplicate-detection violation.
type ConflictError struct {
	message string
}

func NewConflictError(msg string) error { return &ConflictError{message: msg} }

func (err ConflictError) Error() string { return err.message }

// StateError indicates an operation that is invalid for the entity's current
// status, e.g. approving an event that has no dates.
type StateError struct {
	message string
}

func NewStateError(msg string) error { return &StateError{message: msg} }

func (err StateError) Error() string { return err.message }

// shutdown signals that the application integrity is compromised and the
// server should be brought down gracefully.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error { return &shutdown{message: msg} }

func (s shutdown) Error() string { return s.message }

func IsShutdown(err error) bool {
	var e *shutdown
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflictError(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsStateError(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}
