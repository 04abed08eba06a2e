package contact

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes reconciliation errors.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates neither email nor phone was supplied,
	// or an administrative request carried an invalid field.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeNotFound indicates no live contact exists with the given id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeStoreUnavailable indicates a persistence failure. The whole unit
	// of work was rolled back and the request may be retried.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// Error is the error type surfaced by the reconciler and the stores.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ID is the contact id involved, if any.
	ID int64

	// Err is the underlying cause (store errors).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidRequest returns true if the error is an invalid request error.
// Uses errors.As to handle wrapped errors.
func IsInvalidRequest(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRequest
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsStoreUnavailable returns true if the error is a retriable store failure.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeStoreUnavailable
}

// NewInvalidRequestError creates an Error for a rejected request.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidRequest,
		Message: message,
	}
}

// NewNotFoundError creates an Error for a missing contact.
func NewNotFoundError(id int64) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("contact %d not found", id),
		ID:      id,
	}
}

// NewStoreUnavailableError wraps a persistence failure for operation op.
// Errors that already carry a code are returned unchanged.
func NewStoreUnavailableError(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return &Error{
		Code:    ErrCodeStoreUnavailable,
		Message: op + " failed",
		Err:     err,
	}
}
