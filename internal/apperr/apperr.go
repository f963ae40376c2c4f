// Package apperr defines the error classes shared by the contract core.
// Domain packages wrap one of these with %w so boundaries can classify
// failures with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means there is no authenticated identity, or the identity
	// lacks the organization scope a write requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers both missing resources and resources outside the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrValidation means malformed content or missing required fields.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means the operation is not allowed in the resource's current state.
	ErrConflict = errors.New("conflict")
	// ErrIntegrityViolation means a stored fingerprint does not match its content.
	// It is never retried.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrRateLimited means the caller exceeded a resend or retry budget.
	ErrRateLimited = errors.New("too many requests")
)

// classed is a sentinel that belongs to one of the classes above while keeping
// its own message.
type classed struct {
	msg   string
	class error
}

func (e *classed) Error() string { return e.msg }
func (e *classed) Unwrap() error { return e.class }

// New returns a sentinel error with the given message that matches class under errors.Is.
func New(class error, msg string) error {
	return &classed{msg: msg, class: class}
}

// Validation wraps a formatted message as ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict wraps a formatted message as ErrConflict.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Class returns the class an error belongs to, or nil if it is unclassified.
func Class(err error) error {
	for _, c := range []error{ErrIntegrityViolation, ErrUnauthorized, ErrNotFound, ErrValidation, ErrConflict, ErrRateLimited} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
