package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	ModelUnavailable     ErrorKind = "ModelUnavailable"
	RateLimitExceeded    ErrorKind = "RateLimitExceeded"
	AuthenticationFailed ErrorKind = "AuthenticationFailed"
	TimeoutError         ErrorKind = "TimeoutError"
	ContextTooLarge      ErrorKind = "ContextTooLarge"
	NetworkError         ErrorKind = "NetworkError"
	ConfigurationError   ErrorKind = "ConfigurationError"
)

// Error is a classified gateway failure.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case RateLimitExceeded, NetworkError, ModelUnavailable:
		return true
	}
	return false
}

// KindOf returns the kind of a gateway error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// kindForStatus maps an HTTP status and response body to an error kind.
func kindForStatus(status int, body string) ErrorKind {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthenticationFailed
	case status == http.StatusTooManyRequests:
		return RateLimitExceeded
	case status == http.StatusRequestEntityTooLarge:
		return ContextTooLarge
	case status == http.StatusBadRequest && (strings.Contains(lower, "too long") ||
		strings.Contains(lower, "context length") || strings.Contains(lower, "context window")):
		return ContextTooLarge
	case status == http.StatusNotFound:
		return ModelUnavailable
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return TimeoutError
	case status >= 500:
		return ModelUnavailable
	}
	return ConfigurationError
}

// kindForTransport classifies an error raised before an HTTP status was received.
func kindForTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutError
	}
	return NetworkError
}
