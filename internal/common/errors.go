// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrInvalidTransition = errors.New("invalid batch status transition")
	ErrVersionConflict   = errors.New("concurrent modification")

	// Upstream completion service errors.
	ErrUpstreamRateLimited    = errors.New("upstream rate limited")
	ErrUpstreamQuotaExhausted = errors.New("upstream quota exhausted")
	ErrUpstreamTimeout        = errors.New("upstream timeout")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")

	// Import errors.
	ErrUnsupportedFormat = errors.New("unsupported statement format")
	ErrEmptyPayload      = errors.New("empty statement payload")

	// Classification errors.
	ErrNoTransactions       = errors.New("no transactions to classify")
	ErrClassificationFailed = errors.New("classification failed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// FormatError means a statement could not be recognized as its declared format.
type FormatError struct {
	Err    error
	Format string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s statement: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s statement: %s", e.Format, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a FormatError for the given format.
func NewFormatError(format, reason string, err error) error {
	return &FormatError{Format: format, Reason: reason, Err: err}
}

// SizeLimitError means a payload exceeded the configured ceiling.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// UpstreamError is a failure reported by the completion service.
// Err is one of the ErrUpstream* sentinels.
type UpstreamError struct {
	Err        error
	Provider   string
	Message    string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Err)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamThrottled reports whether err is a rate-limit or quota failure.
func IsUpstreamThrottled(err error) bool {
	return errors.Is(err, ErrUpstreamRateLimited) || errors.Is(err, ErrUpstreamQuotaExhausted)
}

// PersistenceError is a failure to store a single transaction.
type PersistenceError struct {
	Err           error
	TransactionID string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist transaction %s: %v", e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ClassificationFailure is a single stage failing on a single transaction.
type ClassificationFailure struct {
	Err           error
	TransactionID string
	Stage         string
}

func (e *ClassificationFailure) Error() string {
	return fmt.Sprintf("%s stage failed for transaction %s: %v", e.Stage, e.TransactionID, e.Err)
}

func (e *ClassificationFailure) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUpstreamQuotaExhausted) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
