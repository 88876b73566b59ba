package errors

import (
	"errors"
	"fmt"
	"time"
)

// DomainError is the structured error type for temario. It carries a stable
// code, a category derived from the code, and (for rate-limit errors) the
// wait duration announced by the provider.
type DomainError struct {
	// Code is the unique error code (e.g., "ERR_404_TOPIC_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Request, Delivery).
	Category Category

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// RetryAfter is the wait the provider asked for on a rate-limit error.
	// Zero for every other code.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works with DomainError sentinels.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new DomainError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DomainError from an existing error.
func Wrap(code string, err error) *DomainError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound creates a topic-resolution error. This is the only error a relay
// job surfaces to its caller.
func NotFound(topicID string) *DomainError {
	return New(ErrCodeTopicNotFound, fmt.Sprintf("topic %q not found", topicID), nil)
}

// AlreadyConfigured signals a repeated one-shot admin operation.
func AlreadyConfigured(topicID string) *DomainError {
	return New(ErrCodeCatalogExists, fmt.Sprintf("topic %q is already the media catalog", topicID), nil)
}

// NoCatalogConfigured signals a title search without a configured catalog.
func NoCatalogConfigured() *DomainError {
	return New(ErrCodeNoCatalog, "no media catalog topic configured", nil)
}

// RateLimited creates a rate-limit delivery error carrying the provider's
// announced wait duration.
func RateLimited(wait time.Duration) *DomainError {
	e := New(ErrCodeRateLimited, fmt.Sprintf("rate limited, retry after %s", wait), nil)
	e.RetryAfter = wait
	return e
}

// Transient creates a recoverable delivery error (timeout, network blip).
func Transient(cause error) *DomainError {
	return New(ErrCodeTransient, "transient delivery failure", cause)
}

// Permanent creates an unrecoverable per-item delivery error.
func Permanent(cause error) *DomainError {
	return New(ErrCodePermanent, "content no longer deliverable", cause)
}

// StoreError creates a persistence error.
func StoreError(message string, cause error) *DomainError {
	return New(ErrCodeStoreIO, message, cause)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *DomainError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsNotFound reports whether err resolves to a missing topic.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeTopicNotFound)
}

// IsRateLimited reports whether err is a rate-limit delivery error.
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimited)
}

// IsTransient reports whether err is a recoverable delivery error.
func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransient)
}

// IsPermanent reports whether err permanently resolves one item to skipped.
func IsPermanent(err error) bool {
	return hasCode(err, ErrCodePermanent)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// WaitDuration extracts the announced wait from a rate-limit error.
// Returns zero and false for any other error.
func WaitDuration(err error) (time.Duration, bool) {
	var de *DomainError
	if errors.As(err, &de) && de.Code == ErrCodeRateLimited {
		return de.RetryAfter, true
	}
	return 0, false
}

// UserMessage returns the human-readable message of a DomainError without
// its code, or a generic line for unknown errors. Suitable for chat-facing
// feedback.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "something went wrong, please try again"
}

// GetCode extracts the error code from a DomainError.
// Returns empty string for other error types.
func GetCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func hasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
