package service

import (
	"errors"
	"fmt"

	"selefli/internal/database"
)

var (
	ErrForbidden = errors.New("you do not have permission to perform this action")
	ErrNotFound  = errors.New("not found")

	ErrUnauthenticated = errors.New("invalid credentials")
	// ErrUnavailable means a required upstream is not configured or not reachable.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError rejects input that breaks a field rule or a business rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError is an operation attempted from the wrong current state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// storageError maps storage sentinels onto the service taxonomy.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrConcurrentModification):
		return conflict("the record was changed by another request, reload and try again")
	default:
		return err
	}
}
