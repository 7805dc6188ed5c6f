package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeTimeout    = "TIMEOUT"
	ErrCodeRateLimit  = "RATE_LIMIT"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeFeed       = "FEED_ERROR"
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrCacheMiss          = errors.New("cache miss")
	ErrRecordNotFound     = errors.New("record not found")
	ErrBuildingNotTracked = errors.New("building not tracked")
	ErrSchedulerStopped   = errors.New("scheduler stopped")
	ErrRetriesExhausted   = errors.New("max retries exceeded")
)

// NetworkError wraps a transport failure. Timeouts and server errors are
// retryable; the retry layer consults Retryable before rescheduling.
type NetworkError struct {
	Code      string
	Op        string
	URL       string
	Retryable bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Code, e.URL, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError marks malformed input. Never retried; surfaced to the
// caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// FeedError identifies which upstream feed failed during a refresh. The
// refresh scheduler catches these and substitutes empty data.
type FeedError struct {
	Agency     Agency
	BuildingID string
	Err        error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s: building %s: %v", e.Agency, e.BuildingID, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the retry layer may reschedule the failed
// operation. Validation errors are terminal; network errors carry their
// own classification; anything else defaults to retryable.
func IsRetryable(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return nerr.Retryable
	}
	return true
}
