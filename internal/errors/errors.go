// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrRecordPending   = errors.New("record is not confirmed yet")
	ErrSaveInFlight    = errors.New("a save is already in flight for this record")
	ErrRefreshInFlight = errors.New("refresh already in flight")
	ErrKeywordTooShort = errors.New("search keyword too short")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
)

// MutationOp names the data source call behind a MutationError.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// FetchError is returned when a snapshot fetch fails.
// Initial is set when the store held no records, which makes the failure blocking.
type FetchError struct {
	Initial bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Initial {
		return fmt.Sprintf("initial load failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(initial bool, err error) *FetchError {
	return &FetchError{Initial: initial, Err: err}
}

// MutationError represents a rejected or unreachable create, update or delete.
type MutationError struct {
	Op   MutationOp
	ID   string
	Code string
	Err  error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed [%s] %s: %v", e.Op, e.ID, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed %s: %v", e.Op, e.Code, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError creates a new MutationError.
func NewMutationError(op MutationOp, id, code string, err error) *MutationError {
	return &MutationError{
		Op:   op,
		ID:   id,
		Code: code,
		Err:  err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// APIError represents a non-2xx response from the watchlist backend.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error [%d] %s %s: %s", e.Status, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api error [%d] %s %s", e.Status, e.Method, e.Path)
}

// NewAPIError creates a new APIError.
func NewAPIError(method, path string, status int, message string) *APIError {
	return &APIError{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsInitialFetch reports whether err is a blocking first-load failure.
func IsInitialFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Initial
}
