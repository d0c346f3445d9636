// Package errors provides custom error types and error handling utilities.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	// Caller bugs (fatal).
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"

	// External-dependency failures (retryable or fatal depending on context).
	CodeRetrieval = "RETRIEVAL_ERROR"
	CodeIndex     = "INDEX_ERROR"
	CodeStorage   = "STORAGE_ERROR"
	CodeTimeout   = "TIMEOUT"

	// Everything else.
	CodeInternal = "INTERNAL_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// ValidationErrorf creates a validation error with a formatted message.
func ValidationErrorf(format string, args ...any) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// RetrievalError creates a retrieval error.
func RetrievalError(message string, err error) *AppError {
	return Wrap(CodeRetrieval, message, err)
}

// IndexError creates an entity-index error.
func IndexError(message string, err error) *AppError {
	return Wrap(CodeIndex, message, err)
}

// StorageError creates a storage error.
func StorageError(message string, err error) *AppError {
	return Wrap(CodeStorage, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsRetrieval checks if error is a retrieval error.
func IsRetrieval(err error) bool {
	return hasCode(err, CodeRetrieval)
}

// IsTimeout checks if error is a timeout error.
func IsTimeout(err error) bool {
	return hasCode(err, CodeTimeout)
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
