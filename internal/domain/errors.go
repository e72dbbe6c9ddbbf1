package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced user or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation detected by the store. The engine
	// resolves it by re-reading the winning record; it is never returned to callers.
	ErrConflict = errors.New("conflicting record already exists")
)

// ValidationError reports caller-supplied data that violates a precondition.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a storage or transaction failure. Mutations are atomic, so
// the operation that produced it can be retried safely.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetryable reports whether the failed operation may be retried by the caller.
func IsRetryable(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// classify leaves domain errors untouched and wraps everything else as a PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || errors.Is(err, ErrNotFound) || IsRetryable(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
