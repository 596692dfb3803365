package errors

import (
	"fmt"
)

// ClassifiedError is a structured error carrying a category, a severity and a
// retry strategy. Store code never returns bare fmt.Errorf errors across
// package boundaries; callers route on the classification instead of string
// matching.
type ClassifiedError struct {
	category Category
	severity Severity
	retry    RetryStrategy
	message  string
	cause    error
	context  Context
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

// Unwrap supports errors.Is/errors.As chains.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category.
func (e *ClassifiedError) Category() Category {
	return e.category
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() Severity {
	return e.severity
}

// RetryStrategy returns the recommended retry strategy.
func (e *ClassifiedError) RetryStrategy() RetryStrategy {
	return e.retry
}

// Message returns the message without classification prefix or cause.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Context returns the structured context attached to the error.
func (e *ClassifiedError) Context() Context {
	return e.context
}

// WithContext returns a copy of the error with an additional context value.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	cp := *e
	cp.context = e.context.clone().set(key, value)
	return &cp
}

// Is matches two classified errors on category and message. Sentinel errors
// declared with the builder therefore work with errors.Is even after
// WithContext copies.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.category == other.category && e.message == other.message
}

// CategoryOf extracts the category from an error chain, or CategoryInternal
// if no classified error is present.
func CategoryOf(err error) Category {
	var ce *ClassifiedError
	if As(err, &ce) {
		return ce.category
	}
	return CategoryInternal
}

// IsRetryable reports whether the error chain recommends a retry.
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if As(err, &ce) {
		return ce.retry == RetryImmediate || ce.retry == RetryBackoff
	}
	return false
}
