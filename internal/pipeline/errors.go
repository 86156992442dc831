package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthentication means the signature was missing or wrong.
	ErrAuthentication = errors.New("pipeline: authentication failed")
	// ErrDuplicateEvent means the event key was already admitted. Callers
	// treat it as success.
	ErrDuplicateEvent = errors.New("pipeline: duplicate event")
)

// ValidationError is a malformed webhook payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "pipeline: invalid payload: " + e.Reason
}

// RateLimitError means the caller exceeded its quota.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("pipeline: rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}
