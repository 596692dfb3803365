package errors

import stderrors "errors"

// Category is the broad classification of an error, used for routing and
// for mapping store failures onto caller-visible behavior.
type Category string

const (
	// CategoryCid covers content identifier parse and encoding failures.
	CategoryCid Category = "cid"
	// CategoryIdentity covers correlation/causation invariant violations.
	CategoryIdentity Category = "identity"
	// CategoryEventStore covers append/read failures in either backend.
	CategoryEventStore Category = "eventstore"
	// CategoryConcurrency covers optimistic-concurrency version conflicts.
	CategoryConcurrency Category = "concurrency"
	// CategoryNats covers replicated-log connectivity and stream errors.
	CategoryNats Category = "nats"
	// CategoryStorage covers local disk (sqlite, badger) failures.
	CategoryStorage Category = "storage"

	CategoryConfig     Category = "config"
	CategoryValidation Category = "validation"
	CategoryInternal   Category = "internal"
)

// Severity indicates the impact level of an error.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // stops the operation completely
	SeverityError   Severity = "error"   // fails the current operation
	SeverityWarning Severity = "warning" // degraded but continuing
)

// RetryStrategy indicates how an error should be handled by callers.
type RetryStrategy string

const (
	RetryNever     RetryStrategy = "never"     // permanent, don't retry
	RetryImmediate RetryStrategy = "immediate" // re-read state and retry now
	RetryBackoff   RetryStrategy = "backoff"   // transient, retry with backoff
	RetryUser      RetryStrategy = "user"      // requires caller intervention
)

// Context is structured key/value context attached to an error.
type Context map[string]any

func (c Context) set(key string, value any) Context {
	if c == nil {
		c = make(Context)
	}
	c[key] = value
	return c
}

func (c Context) clone() Context {
	if c == nil {
		return nil
	}
	cp := make(Context, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// Get retrieves a context value.
func (c Context) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c[key]
	return v, ok
}

// As re-exports errors.As so callers of this package don't need both imports.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is re-exports errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }
