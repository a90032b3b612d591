package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned by the client.
var (
	// ErrRetryBudgetExhausted wraps the last failure after all attempts are used.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	// KindAuth means the credential was rejected (401). Terminal.
	KindAuth ErrorKind = "auth"

	// KindNotFound means an unknown resource id or a page past the end (404). Terminal.
	KindNotFound ErrorKind = "not_found"

	// KindClient covers any other 4xx response. Terminal.
	KindClient ErrorKind = "client"

	// KindRateLimited means the server signalled throttling (429). Retryable.
	KindRateLimited ErrorKind = "rate_limited"

	// KindServer covers 5xx responses. Retryable.
	KindServer ErrorKind = "server"

	// KindTransport covers connection-level failures. Retryable.
	KindTransport ErrorKind = "transport"
)

// Retryable reports whether failures of this kind may improve on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServer, KindTransport:
		return true
	default:
		return false
	}
}

// APIError is a catalog API failure tagged with its classification.
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("catalog %s error (status %d) on %s: %s",
			e.Kind, e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("catalog %s error on %s: %s", e.Kind, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP error status to its kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// Retryable reports whether err is a retryable request failure. Context
// cancellation is never retried.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind.Retryable()
	}
	return false
}

// IsKind reports whether err carries an APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
