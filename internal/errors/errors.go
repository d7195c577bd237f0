// Package errors provides structured error types for the Recap system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation  ErrorCategory = "VALIDATION"
	ErrCategoryLifecycle   ErrorCategory = "LIFECYCLE"
	ErrCategoryPersistence ErrorCategory = "PERSISTENCE"
	ErrCategoryAggregation ErrorCategory = "AGGREGATION"
	ErrCategoryArchive     ErrorCategory = "ARCHIVE"
	ErrCategoryInternal    ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidEvent   = "INVALID_EVENT"
	CodeEmptyEventType = "EMPTY_EVENT_TYPE"

	// Lifecycle codes
	CodeActiveReportExists = "ACTIVE_REPORT_EXISTS"
	CodeNoActiveReport     = "NO_ACTIVE_REPORT"
	CodeAlreadyFrozen      = "ALREADY_FROZEN"
	CodeRolloverFailed     = "ROLLOVER_FAILED"

	// Persistence codes
	CodeAppendFailed   = "APPEND_FAILED"
	CodeClaimFailed    = "CLAIM_FAILED"
	CodeSealFailed     = "SEAL_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeReportNotFound = "REPORT_NOT_FOUND"

	// Archive codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeCorruptArchive = "CORRUPT_ARCHIVE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// RecapError is the structured error type used throughout the system.
type RecapError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *RecapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RecapError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RecapError) Is(target error) bool {
	var t *RecapError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RecapError.
func New(category ErrorCategory, code, message string) *RecapError {
	return &RecapError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new RecapError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RecapError {
	return &RecapError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RecapError) WithDetails(details map[string]interface{}) *RecapError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *RecapError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RecapError.
func GetCategory(err error) ErrorCategory {
	var re *RecapError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RecapError.
func GetCode(err error) string {
	var re *RecapError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// isRetryable determines whether an error code is retryable.
// Persistence failures may succeed on retry; a concurrent freeze is an
// idempotent no-op for the retrying caller. Invariant violations are
// caller bugs and never retried.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryPersistence:
		return code != CodeReportNotFound
	case category == ErrCategoryLifecycle && code == CodeAlreadyFrozen:
		return true
	case category == ErrCategoryArchive && code == CodeUploadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *RecapError {
	return New(ErrCategoryValidation, code, message)
}

// NewInvariantViolation reports an attempt to open a second active
// report. Callers must freeze the current period first.
func NewInvariantViolation(message string) *RecapError {
	return New(ErrCategoryLifecycle, CodeActiveReportExists, message)
}

// NewNoActiveReport reports a freeze attempt with no open period.
func NewNoActiveReport(message string) *RecapError {
	return New(ErrCategoryLifecycle, CodeNoActiveReport, message)
}

// NewAlreadyFrozen reports a concurrent double-freeze; retrying is safe.
func NewAlreadyFrozen(message string) *RecapError {
	return New(ErrCategoryLifecycle, CodeAlreadyFrozen, message)
}

func NewPersistenceError(code, message string, cause error) *RecapError {
	return Wrap(ErrCategoryPersistence, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *RecapError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewInternalError(message string, cause error) *RecapError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
