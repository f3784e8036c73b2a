package connect

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (connection reset, unreachable, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates that no login candidate was accepted
	ErrTypeAuth
	// ErrTypeHTTP indicates a non-2xx response to a single request
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed or unexpected response body
	ErrTypeParse
	// ErrTypeUnsupportedAction indicates the action is not in the catalog for the device model
	ErrTypeUnsupportedAction
	// ErrTypePrediction indicates an optimistic patch could not be derived
	ErrTypePrediction
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the controller refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

var (
	// ErrDiscoveryExhausted records that no discovery strategy yielded devices.
	// It is never returned from ListDevices; see Directory.LastOutcome.
	ErrDiscoveryExhausted = errors.New("no discovery strategy yielded devices")

	// ErrSessionClosed is returned for requests issued after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotLoggedIn is returned when the watcher is started before Login.
	ErrNotLoggedIn = errors.New("not logged in")
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeUnsupportedAction:
		return "Unsupported Action"
	case ErrTypePrediction:
		return "Prediction Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error type returned by every controller operation.
type Error struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Path       string    // Request path (if applicable)
	Err        error     // Underlying error (if any)
	Retryable  bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport failure and returns a typed error.
func ClassifyNetworkError(err error) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Type: ErrTypeTimeout, Message: "request timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:    ErrTypeDNS,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{Type: ErrTypeConnectionRefused, Message: "controller refused connection", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{Type: ErrTypeNetwork, Message: "host unreachable", Err: err, Retryable: true}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{Type: ErrTypeNetwork, Message: "network unreachable", Err: err, Retryable: true}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err)
	}

	return &Error{Type: ErrTypeNetwork, Message: "network error occurred", Err: err, Retryable: true}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *Error {
	classified := ClassifyNetworkError(err)
	if classified == nil {
		return &Error{Type: ErrTypeNetwork, Message: message, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewAuthError creates an authentication error
func NewAuthError(message string, err error) *Error {
	return &Error{Type: ErrTypeAuth, Message: message, Err: err}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, path, message string) *Error {
	return &Error{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Path:       path,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Message: message, Err: err}
}

// NewUnsupportedActionError reports an action the model does not expose.
func NewUnsupportedActionError(model, action string) *Error {
	return &Error{
		Type:    ErrTypeUnsupportedAction,
		Message: fmt.Sprintf("unsupported action %q for model %q", action, model),
	}
}

// NewPredictionError reports an optimistic patch that could not be derived.
func NewPredictionError(action string, err error) *Error {
	return &Error{
		Type:    ErrTypePrediction,
		Message: fmt.Sprintf("cannot predict shadow for action %q", action),
		Err:     err,
	}
}

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsTransportError reports a failure of a single request: network or HTTP status.
func IsTransportError(err error) bool {
	return IsNetworkError(err) || IsHTTPError(err)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeAuth
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeParse
}

// IsUnsupportedActionError checks if the action is missing from the model's catalog entry
func IsUnsupportedActionError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeUnsupportedAction
}

// IsPredictionError checks if an error came from optimistic patch derivation
func IsPredictionError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypePrediction
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ShortMessage returns a concise, user-facing description of err.
func ShortMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeAuth:
		return "Login failed - check host and credentials"
	case ErrTypeUnsupportedAction:
		return e.Message
	case ErrTypeTimeout:
		return "Controller not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Controller refused connection"
	case ErrTypeDNS:
		return "Cannot resolve controller hostname"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeHTTP:
		return fmt.Sprintf("Controller error (HTTP %d)", e.StatusCode)
	case ErrTypeParse:
		return "Unexpected response from controller"
	default:
		return e.Message
	}
}
