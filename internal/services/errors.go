package services

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned before any other work when the session has
	// exceeded its request window.
	ErrRateLimited = errors.New("too many requests")
	// ErrQuotaExceeded is returned before a run record is created when the
	// shop's render quota for the current period is spent.
	ErrQuotaExceeded = errors.New("render quota exceeded")
	// ErrRunFailed is returned when a run finishes with zero successful
	// variants. The run record persists as failed for audit.
	ErrRunFailed = errors.New("render run produced no images")
)

// ExtractorOutputError marks a fail-closed extraction: the model returned
// output that does not satisfy the facts schema. Callers must surface it as a
// retryable "not ready" condition, never substitute defaults.
type ExtractorOutputError struct {
	Reason string
}

func (e *ExtractorOutputError) Error() string {
	return fmt.Sprintf("extractor output invalid: %s", e.Reason)
}

// ValidationError rejects a request before any state is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
