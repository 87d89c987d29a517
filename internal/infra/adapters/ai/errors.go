package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorKind is the provider-neutral classification of an upstream failure.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindNotFound           ErrorKind = "not_found"
	KindTimeout            ErrorKind = "timeout"
	KindNetwork            ErrorKind = "network"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindCanceled           ErrorKind = "canceled" // caller gave up; says nothing about the provider
	KindUnknown            ErrorKind = "unknown"
)

var errEmptyCompletion = errors.New("empty completion")

// ProviderError is returned by every adapter. Err keeps the SDK error for
// debugging but is never logged or shown to clients.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt against the same provider can succeed.
// Quota and request-shape failures never are.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindUnknown:
		return true
	}
	return false
}

// KindOf extracts the classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func kindFromStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindInvalidCredentials
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindQuotaExceeded
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusBadGateway, code == http.StatusServiceUnavailable:
		return KindNetwork
	case code >= 400 && code < 500:
		return KindInvalidRequest
	}
	return KindUnknown
}

// kindFromTransport classifies errors raised below the HTTP layer.
func kindFromTransport(err error) (ErrorKind, bool) {
	if errors.Is(err, context.Canceled) {
		return KindCanceled, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout, true
	}
	var (
		ue  *url.Error
		oe  *net.OpError
		dns *net.DNSError
	)
	if errors.As(err, &ue) || errors.As(err, &oe) || errors.As(err, &dns) {
		return KindNetwork, true
	}
	return "", false
}

// normalize makes sure any error leaving an adapter is a *ProviderError.
func normalize(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if kind, ok := kindFromTransport(err); ok {
		return &ProviderError{Provider: provider, Kind: kind, Err: err}
	}
	return &ProviderError{Provider: provider, Kind: KindUnknown, Err: err}
}
