// Package apperror defines the error taxonomy shared by the repository,
// service and handler layers.
//
// Errors come in two levels:
//   - categories (ErrNotFound, ErrValidation, ErrConflict, ErrUnauthorized)
//     that the HTTP layer maps to status codes
//   - kinds (ErrPasswordMismatch, ErrEmailTaken, ...) that wrap a category
//     so callers can match either with errors.Is
//
// The repository only ever returns ErrNotFound, ErrInvalidID and
// ErrDuplicateKey. Translating those into user-visible kinds is the job of
// the service layer.
package apperror

import (
	"errors"
	"fmt"
)

// Categories.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Repository kinds.
var (
	// ErrInvalidID means a string id could not be parsed into the store's native id.
	ErrInvalidID = errors.New("invalid id")
	// ErrDuplicateKey means a uniqueness constraint (email) rejected an insert.
	ErrDuplicateKey = fmt.Errorf("%w: duplicate key", ErrConflict)
)

// User-visible kinds.
var (
	ErrPasswordMismatch   = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrUnauthenticated    = fmt.Errorf("%w: not authenticated", ErrUnauthorized)
	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
)

type AppError struct {
	Err     error  // actual error
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

// InvalidID reports an id that is not in the store's native format.
func InvalidID(resource, id string) *AppError {
	return &AppError{
		Err:     ErrInvalidID,
		Message: fmt.Sprintf("%s id %q is malformed", resource, id),
	}
}

// DuplicateKey reports a uniqueness violation on field.
func DuplicateKey(resource, field string) *AppError {
	return &AppError{
		Err:     ErrDuplicateKey,
		Message: fmt.Sprintf("%s with this %s already exists", resource, field),
		Field:   field,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func PasswordMismatch() *AppError {
	return &AppError{
		Err:     ErrPasswordMismatch,
		Message: "passwords do not match",
		Field:   "password_confirm",
	}
}

func EmailTaken() *AppError {
	return &AppError{
		Err:     ErrEmailTaken,
		Message: "email is already registered",
		Field:   "email",
	}
}

// InvalidCredentials never says which half of the pair was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "could not validate credentials",
	}
}

// Unauthenticated never says why a token was rejected.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "could not validate credentials",
	}
}

func UserNotFound() *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: "user not found",
	}
}
