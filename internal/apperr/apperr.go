// Package apperr defines the error taxonomy shared across the orchestrator.
// Components return these instead of raw errors so callers can branch on
// Kind without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries from the error handling design.
type Kind string

const (
	Validation    Kind = "VALIDATION"
	NotFound      Kind = "NOT_FOUND"
	Unauthorized  Kind = "UNAUTHORIZED"
	Forbidden     Kind = "FORBIDDEN"
	Conflict      Kind = "CONFLICT"
	RateLimited   Kind = "RATE_LIMITED"
	ProviderError Kind = "PROVIDER_ERROR"
	LLMFailure    Kind = "LLM_ERROR"
	DatabaseError Kind = "DATABASE_ERROR"
	WebhookError  Kind = "WEBHOOK_ERROR"
	Internal      Kind = "INTERNAL"
)

// HTTPStatus maps a Kind to the status code the gateway/API surface returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, WebhookError:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case ProviderError:
		return http.StatusBadGateway
	case LLMFailure:
		return http.StatusServiceUnavailable
	case DatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the error handling design calls for a retry.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimited, ProviderError, LLMFailure, DatabaseError:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind, an operation label, and an
// optional request id for correlation, per the §7 user-visible failure
// contract ({code, message, requestId, details?}).
type Error struct {
	Kind      Kind
	Op        string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a tagged error for the given op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf constructs a tagged error from a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Internal
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
