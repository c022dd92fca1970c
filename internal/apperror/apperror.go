// Package apperror defines the typed errors returned by the match and
// conversation services.
//
// Every operation returns either its result or an *AppError wrapping one of
// the sentinel errors below. Callers branch with errors.Is:
//
//	if errors.Is(err, apperror.ErrInvalidTransition) { ... }
//
// The request layer maps each sentinel to a transport status (see
// internal/handler/response.go). Nothing in this package knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
)

type AppError struct {
	Err     error  // sentinel the error unwraps to
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a lost race on a uniqueness constraint. The caller should
// retry the lookup, not the create.
func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with key %s", resource, key),
	}
}

// Forbidden returns an AppError indicating the actor is not a participant of
// the resource it tried to act on.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidTransition reports a status change that the match state machine
// does not allow from the current state.
func InvalidTransition(resource, id, from, to string) *AppError {
	return &AppError{
		Err:     ErrInvalidTransition,
		Message: fmt.Sprintf("%s %s cannot move from %s to %s", resource, id, from, to),
	}
}
