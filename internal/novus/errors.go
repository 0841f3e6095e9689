package novus

import (
	"errors"
	"fmt"
)

// ProviderError is implemented by every failure raised while talking to
// NOVUS, so callers can treat the whole taxonomy uniformly with
// errors.As while still branching on the concrete type when needed.
type ProviderError interface {
	error
	providerError()
}

// IsProviderError reports whether err (or anything it wraps) originated
// from the NOVUS integration.
func IsProviderError(err error) bool {
	var pe ProviderError
	return errors.As(err, &pe)
}

// ConnectionError is a network-level failure: the request never produced
// an HTTP response (connection refused, DNS failure, timeout).
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to reach NOVUS at %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
func (e *ConnectionError) providerError() {}

// AuthError means a bearer token could not be obtained: credentials are
// missing, were rejected, or the auth call itself failed.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }
func (e *AuthError) providerError() {}

// APIError is a non-2xx response from a NOVUS endpoint. Detail carries
// whatever structured error body the provider returned, best effort.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("NOVUS %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) providerError() {}

// ResponseError is a 2xx response that violates the provider contract:
// a body that is not valid JSON, or one missing an expected field.
// Preview holds at most the first 500 bytes of the raw body.
type ResponseError struct {
	Message    string
	StatusCode int
	Preview    string
	Detail     map[string]any
}

func (e *ResponseError) Error() string {
	if e.Preview != "" {
		return fmt.Sprintf("%s (status %d, body preview: %s)", e.Message, e.StatusCode, e.Preview)
	}
	return e.Message
}

func (e *ResponseError) providerError() {}
