package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuthInvalid ErrorKind = "auth_invalid"
	KindBadRequest  ErrorKind = "bad_request"
	KindUnavailable ErrorKind = "unavailable"
	KindNetwork     ErrorKind = "network"
	KindUnknown     ErrorKind = "unknown"
)

// ProviderError is the only error type returned by providers and the Gateway.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Model      string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Provider, e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request could succeed against the same
// provider later. Credentials and request shape problems never will.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindAuthInvalid, KindBadRequest:
		return false
	default:
		return true
	}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusPaymentRequired:
		return KindAuthInvalid
	case status == http.StatusRequestTimeout:
		return KindNetwork
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

func newStatusError(provider, model string, status int, err error) *ProviderError {
	return &ProviderError{
		Kind:       kindForStatus(status),
		StatusCode: status,
		Provider:   provider,
		Model:      model,
		Err:        err,
	}
}

func malformed(provider, model, format string, args ...any) *ProviderError {
	return &ProviderError{
		Kind:     KindUnknown,
		Provider: provider,
		Model:    model,
		Err:      fmt.Errorf("malformed response: "+format, args...),
	}
}

// classifyTransport turns errors raised before a status code was seen.
func classifyTransport(provider, model string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	kind := KindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindNetwork
	case errors.Is(err, io.ErrUnexpectedEOF):
		// connection dropped mid-body
		kind = KindNetwork
	case errors.As(err, &netErr):
		kind = KindNetwork
	}
	return &ProviderError{Kind: kind, Provider: provider, Model: model, Err: err}
}
