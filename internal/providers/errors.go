// Package providers implements the LLM provider trait: chat, streaming
// chat, and the OpenAI-compatible and Anthropic wire parsers, plus the
// error taxonomy shared by every built-in provider.
package providers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a provider call failed. These are string-stable
// across the wire (used in log fields and in test assertions), not Go type
// names.
type ErrorKind string

const (
	Timeout         ErrorKind = "timeout"
	NetworkError    ErrorKind = "network_error"
	AuthError       ErrorKind = "auth_error"
	ModelNotFound   ErrorKind = "model_not_found"
	RateLimitError  ErrorKind = "rate_limit_error"
	ApiError        ErrorKind = "api_error"
	InvalidResponse ErrorKind = "invalid_response"
)

// ProviderError is the error type returned by every built-in provider.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	Status     int
	Message    string
	RetryAfter int // seconds, only meaningful for RateLimitError
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// New builds a ProviderError.
func New(kind ErrorKind, provider, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: message}
}

// WithStatus sets the originating HTTP status code.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	return e
}

// WithCause attaches an underlying error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithRetryAfter sets the Retry-After seconds value for rate-limit errors.
func (e *ProviderError) WithRetryAfter(seconds int) *ProviderError {
	e.RetryAfter = seconds
	return e
}

// ClassifyStatusCode maps an HTTP status code to a provider error kind,
// per the taxonomy: 401/403 -> AuthError, 404 -> ModelNotFound,
// 429 -> RateLimitError, other non-2xx -> ApiError.
func ClassifyStatusCode(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return AuthError
	case status == 404:
		return ModelNotFound
	case status == 429:
		return RateLimitError
	default:
		return ApiError
	}
}

// AsProviderError extracts a *ProviderError from err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether the reliable provider should retry the same
// provider for this error kind (Timeout, NetworkError, RateLimitError,
// ApiError retry; AuthError and ModelNotFound do not, by convention).
func IsRetryable(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	switch pe.Kind {
	case Timeout, NetworkError, RateLimitError, ApiError:
		return true
	default:
		return false
	}
}
