// Package errors provides the structured error system for the boot cache
// with error codes, categories, and operation context.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Protocol errors.
	ErrCodeVersionMismatch ErrorCode = "VERSION_MISMATCH"
	ErrCodeInvalidOpcode   ErrorCode = "INVALID_OPCODE"

	// State machine errors.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Validation errors.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeTooManyEntries  ErrorCode = "TOO_MANY_ENTRIES"

	// Persistence errors, shared by the playlist and history stores.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeCorrupt  ErrorCode = "CORRUPT"

	// Device and internal errors.
	ErrCodeDeviceRead ErrorCode = "DEVICE_READ"
	ErrCodeInternal   ErrorCode = "INTERNAL"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryProtocol    ErrorCategory = "protocol"
	CategoryState       ErrorCategory = "state"
	CategoryValidation  ErrorCategory = "validation"
	CategoryPersistence ErrorCategory = "persistence"
	CategoryDevice      ErrorCategory = "device"
	CategoryInternal    ErrorCategory = "internal"
)

// CacheError represents a structured error with context.
type CacheError struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Operation string        `json:"operation,omitempty"`
	Cause     error         `json:"-"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Operation, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so callers can test with errors.Is against a
// bare New(code, "") sentinel.
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// WithOperation sets the operation for an error.
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// New creates a new cache error.
func New(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:     code,
		Category: GetCategory(code),
		Message:  message,
	}
}

// Newf creates a new cache error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new cache error wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *CacheError {
	err := New(code, message)
	err.Cause = cause
	return err
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "VERSION_") || strings.HasPrefix(codeStr, "INVALID_OPCODE"):
		return CategoryProtocol
	case codeStr == "INVALID_STATE":
		return CategoryState
	case strings.HasPrefix(codeStr, "INVALID_ARGUMENT") || strings.HasPrefix(codeStr, "TOO_MANY_"):
		return CategoryValidation
	case codeStr == "NOT_FOUND" || codeStr == "CORRUPT":
		return CategoryPersistence
	case strings.HasPrefix(codeStr, "DEVICE_"):
		return CategoryDevice
	default:
		return CategoryInternal
	}
}

// Code extracts the error code from err, walking the cause chain. Returns
// ErrCodeInternal for non-cache errors and "" for nil.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for err != nil {
		if cacheErr, ok := err.(*CacheError); ok {
			return cacheErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return Code(err) == code
}
