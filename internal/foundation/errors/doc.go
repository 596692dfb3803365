// Package errors provides classified, retry-aware errors for chronicle.
//
// Every error that crosses a package boundary carries a Category (what
// subsystem failed), a Severity, and a RetryStrategy (what the caller should
// do about it). Concurrency conflicts are marked RetryImmediate so callers
// know to re-read and retry; log connectivity failures are RetryBackoff;
// identity invariant violations are RetryNever because they indicate a
// producer bug that retrying cannot fix.
//
// Sentinel errors are declared once per package with the Builder and matched
// with errors.Is; WithContext produces annotated copies that still match
// their sentinel.
package errors
