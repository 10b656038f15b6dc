package models

import (
	"fmt"
	"net/http"
)

// ValidationError rejects a malformed request before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// ProviderRequestError is an upstream call that failed at the transport or
// HTTP level. Retryable errors have already exhausted their retries by the
// time a caller sees them.
type ProviderRequestError struct {
	Provider   string
	Model      string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderRequestError) Error() string {
	msg := fmt.Sprintf("%s %s request failed", e.Provider, e.Model)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// ProviderParseError is an upstream response with an unexpected shape.
type ProviderParseError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderParseError) Error() string {
	return fmt.Sprintf("%s %s: parse response: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderParseError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a routing or provider setup that cannot serve
// every valid coordinate.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}
