package errors

// Builder provides a fluent API for constructing ClassifiedError values.
type Builder struct {
	category Category
	severity Severity
	retry    RetryStrategy
	message  string
	cause    error
	context  Context
}

// New creates a Builder with the given category and message. Severity
// defaults to error, retry strategy to never.
func New(category Category, message string) *Builder {
	return &Builder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
	}
}

// WithCause attaches an underlying error.
func (b *Builder) WithCause(err error) *Builder {
	b.cause = err
	return b
}

// WithContext adds a context key/value pair.
func (b *Builder) WithContext(key string, value any) *Builder {
	b.context = b.context.set(key, value)
	return b
}

// WithSeverity overrides the severity.
func (b *Builder) WithSeverity(severity Severity) *Builder {
	b.severity = severity
	return b
}

// Fatal sets the severity to fatal.
func (b *Builder) Fatal() *Builder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *Builder) Warning() *Builder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable sets the retry strategy to backoff.
func (b *Builder) Retryable() *Builder {
	b.retry = RetryBackoff
	return b
}

// Immediate sets the retry strategy to immediate.
func (b *Builder) Immediate() *Builder {
	b.retry = RetryImmediate
	return b
}

// UserAction sets the retry strategy to require caller intervention.
func (b *Builder) UserAction() *Builder {
	b.retry = RetryUser
	return b
}

// Build creates the final ClassifiedError.
func (b *Builder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		context:  b.context,
	}
}

// Convenience constructors for chronicle's error taxonomy.

// CidError creates a content-identifier error (caller rejects the input).
func CidError(message string) *Builder {
	return New(CategoryCid, message)
}

// IdentityError creates a correlation/causation invariant error. These
// indicate a producer bug and are never retried.
func IdentityError(message string) *Builder {
	return New(CategoryIdentity, message)
}

// EventStoreError creates an event store operation error.
func EventStoreError(message string) *Builder {
	return New(CategoryEventStore, message)
}

// ConcurrencyError creates an optimistic-concurrency conflict. Recoverable:
// the caller re-reads the current version and retries.
func ConcurrencyError(message string) *Builder {
	return New(CategoryConcurrency, message).Immediate()
}

// NatsError creates a replicated-log error (typically transient).
func NatsError(message string) *Builder {
	return New(CategoryNats, message).Retryable()
}

// StorageError creates a local storage error.
func StorageError(message string) *Builder {
	return New(CategoryStorage, message).Retryable()
}

// ConfigError creates a configuration error.
func ConfigError(message string) *Builder {
	return New(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *Builder {
	return New(CategoryValidation, message).Fatal()
}

// InternalError creates an internal error.
func InternalError(message string) *Builder {
	return New(CategoryInternal, message).Fatal()
}
