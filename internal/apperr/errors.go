package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Classification buckets every terminal pipeline failure into a category the
// caller can act on. Each category maps to one HTTP status via HTTPStatus.
type Classification string

const (
	ClassValidation          Classification = "validation"
	ClassUpstreamAuth        Classification = "upstream_auth"
	ClassUpstreamRateLimit   Classification = "upstream_rate_limit"
	ClassUpstreamQuota       Classification = "upstream_quota"
	ClassUpstreamUnavailable Classification = "upstream_unavailable"
	ClassSourceTooLong       Classification = "source_too_long"
	ClassSourceBlocked       Classification = "source_blocked"
	ClassPayloadTooLarge     Classification = "payload_too_large"
	ClassTimeout             Classification = "timeout"
	ClassDecodeFailure       Classification = "decode_failure"
	ClassInternal            Classification = "internal"
)

// Error is a classified error. Message is safe to show to the end user;
// Err (optional) carries the underlying cause for logs.
type Error struct {
	Class   Classification
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted user-facing message.
func New(class Classification, format string, args ...interface{}) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification and user-facing message to an underlying error.
func Wrap(class Classification, err error, format string, args ...interface{}) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...), Err: err}
}

// Classify returns the classification of err, walking the wrap chain.
// Context deadline errors become timeouts; anything unclassified is internal.
func Classify(err error) Classification {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassInternal
}

// UserMessage returns the user-facing message for err. Unclassified errors
// get a generic message so internal details never leak to the caller.
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Operation timed out. Please try again."
	}
	return "An unexpected error occurred"
}

// HTTPStatus maps a classification to an HTTP status code.
// Client-correctable conditions are 4xx; upstream and internal faults are 5xx.
func HTTPStatus(class Classification) int {
	switch class {
	case ClassValidation, ClassSourceTooLong:
		return http.StatusBadRequest
	case ClassUpstreamAuth:
		return http.StatusUnauthorized
	case ClassUpstreamQuota:
		return http.StatusPaymentRequired
	case ClassUpstreamRateLimit, ClassSourceBlocked:
		return http.StatusTooManyRequests
	case ClassPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ClassUpstreamUnavailable:
		return http.StatusBadGateway
	case ClassTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
