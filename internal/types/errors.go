package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrSchemaMismatch indicates an input store whose schema cannot be read.
// It is fatal: the whole run aborts rather than producing partial output.
var ErrSchemaMismatch = errors.New("input schema mismatch")

// ErrNotFound indicates a unit or record that could not be resolved.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates two contradictory records for one answer key.
// Conflicts are reported to the operator, never resolved silently.
var ErrConflict = errors.New("conflicting records for key")

// ErrTransientExternal marks an external-collaborator failure that is worth
// retrying (server hiccup, dropped connection) but carries no advised delay.
var ErrTransientExternal = errors.New("transient external failure")

// RateLimitError is returned when an enhancement collaborator rejects a
// call due to rate limiting. Callers can use errors.As to detect this error
// type and honor the advised delay before retrying.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// IsTransient reports whether an enhancement failure is worth retrying:
// rate limits, timeouts, and temporary network errors. Context cancellation
// is not transient; it means the operator interrupted the run.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return true
	}
	if errors.Is(err, ErrTransientExternal) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
