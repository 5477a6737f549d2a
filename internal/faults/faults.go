package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Callers branch with errors.Is.
var (
	// ErrConcurrentModification means the expected invoice version did not
	// match the stored version. The caller must re-read before retrying.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrIllegalTransition means the target status is not reachable from the
	// current status. This is an ordering bug, never swallowed.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrUpstreamUnavailable marks a transient backend failure (extraction,
	// PO lookup, ledger). Retryable with backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUnsupportedDocument means the extraction backend cannot process the
	// artifact. Not retryable.
	ErrUnsupportedDocument = errors.New("unsupported document")

	ErrNotFound = errors.New("not found")

	// Approval gateway boundary rejections. No state change.
	ErrAuthentication = errors.New("authentication failed")
	ErrStaleRequest   = errors.New("stale request")

	// Idempotent no-ops. Callers do not treat these as failures.
	ErrAlreadyDecided = errors.New("already decided")
	ErrAlreadyPosted  = errors.New("already posted")
	ErrPostInFlight   = errors.New("post in flight")
)

// ValidationError names the extracted field that is missing or unparseable.
// Never retryable; the document needs manual correction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Field, e.Reason)
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsRetryable reports whether the caller may retry the operation after
// re-reading state and backing off.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrConcurrentModification)
}
