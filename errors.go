package idemflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes
const (
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeUnexpected = "UNEXPECTED_ERROR"
	ErrCodeValidation = "VALIDATION_ERROR"
)

// Error represents a failure raised by the idempotency engine or a storage backend
type Error struct {
	Code      string    `json:"code" dynamodbav:"code"`
	Message   string    `json:"message" dynamodbav:"message"`
	Key       Key       `json:"key,omitempty" dynamodbav:"key,omitempty"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
	Cause     error     `json:"-" dynamodbav:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key: %s)", msg, e.Key)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithKey attaches the idempotency key the error relates to
func (e *Error) WithKey(key Key) *Error {
	e.Key = key
	return e
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewStorageError wraps a backend failure for the given operation
func NewStorageError(operation string, cause error) *Error {
	return newError(ErrCodeStorage, fmt.Sprintf("storage %s failed", operation), cause)
}

// NewConflictError reports a concurrent-caller policy violation
func NewConflictError(key Key, message string) *Error {
	return newError(ErrCodeConflict, message, nil).WithKey(key)
}

// NewTimeoutError reports that a waiter gave up on an in-flight execution.
// The result satisfies errors.Is(err, context.DeadlineExceeded).
func NewTimeoutError(key Key, timeout time.Duration) *Error {
	return newError(
		ErrCodeConflict,
		fmt.Sprintf("in-flight execution did not complete within %s", timeout),
		context.DeadlineExceeded,
	).WithKey(key)
}

// NewMismatchError reports a key reused with a different input
func NewMismatchError(key Key) *Error {
	return NewConflictError(key, "idempotency key reused with a different input")
}

// NewUnexpectedError wraps any failure not otherwise classified
func NewUnexpectedError(message string, cause error) *Error {
	return newError(ErrCodeUnexpected, message, cause)
}

// NewValidationError reports invalid arguments or a rejected checkpoint
func NewValidationError(message string) *Error {
	return newError(ErrCodeValidation, message, nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStorageError checks if an error is a storage backend failure
func IsStorageError(err error) bool {
	return CodeOf(err) == ErrCodeStorage
}

// IsConflictError checks if an error is a conflict (including wait timeouts and input mismatches)
func IsConflictError(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsTimeoutError checks if an error is a wait timeout
func IsTimeoutError(err error) bool {
	return IsConflictError(err) && errors.Is(err, context.DeadlineExceeded)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// AsStorageError returns err unchanged if it already carries a code, otherwise wraps it as a
// storage error for the given operation.
func AsStorageError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return NewStorageError(operation, err)
}
