package errors

import (
	"fmt"
)

// KBError is the structured error type for kbindexd.
// It provides context for error handling, logging, and status reporting.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_301_STORE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Catalog, Dependency, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KBError.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new KBError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error.
// The error's message becomes the KBError message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CatalogError creates a catalog-related error.
func CatalogError(message string, cause error) *KBError {
	return New(ErrCodeCatalogQuery, message, cause)
}

// StoreError creates a vector-store write error. Store errors are retryable.
func StoreError(message string, cause error) *KBError {
	return New(ErrCodeStoreWrite, message, cause)
}

// EmbedderError creates an embedding request error.
func EmbedderError(message string, cause error) *KBError {
	return New(ErrCodeEmbedderRequest, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KBError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *KBError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a KBError with the Retryable flag set.
func IsRetryable(err error) bool {
	if kbErr, ok := err.(*KBError); ok {
		return kbErr.Retryable
	}
	return false
}

// IsFatal checks if an error carries fatal severity.
func IsFatal(err error) bool {
	if kbErr, ok := err.(*KBError); ok {
		return kbErr.Severity == SeverityFatal
	}
	return false
}
