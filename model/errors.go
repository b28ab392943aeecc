package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies every failure that crosses the adapter boundary.
type ErrorKind string

const (
	KindConfig              ErrorKind = "config_error"
	KindAuth                ErrorKind = "auth_error"
	KindRateLimit           ErrorKind = "rate_limit"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindTimeout             ErrorKind = "timeout"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindUnknownProvider     ErrorKind = "unknown_provider"
	KindNotConfigured       ErrorKind = "not_configured"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrConfig              = &Error{Kind: KindConfig}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrRateLimit           = &Error{Kind: KindRateLimit}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrUnknownProvider     = &Error{Kind: KindUnknownProvider}
	ErrNotConfigured       = &Error{Kind: KindNotConfigured}
)

// Error is the typed failure returned by adapters, the registry and the
// orchestration service.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	// StatusCode is the vendor HTTP status, when there was one.
	StatusCode int
	// RetryAfter is the vendor's suggested backoff for rate limits.
	RetryAfter time.Duration
	// Err is the underlying cause. The orchestration service drops it before
	// returning so vendor error types never reach callers.
	Err error
}

// NewError builds an Error without an underlying cause.
func NewError(kind ErrorKind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// WrapError builds an Error around cause.
func WrapError(kind ErrorKind, provider string, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
		Err:      cause,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Provider == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindProviderUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// AuthRequired reports whether the user must fix credentials rather than
// retry.
func (e *Error) AuthRequired() bool {
	return e.Kind == KindAuth
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
