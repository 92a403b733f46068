package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates provider credentials are missing.
	ErrConfiguration = errors.New("ai provider is not configured")
	// ErrUpstream indicates the provider call failed, timed out or reported an error.
	ErrUpstream = errors.New("ai provider request failed")
	// ErrMissingContent indicates the provider answered without any generated text.
	ErrMissingContent = errors.New("ai provider returned no content")
	// ErrInvalidFormat indicates no score could be extracted after the retry.
	ErrInvalidFormat = errors.New("ai provider response could not be parsed")
)

// UpstreamError describes a failed provider call.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports every UpstreamError as ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func newUpstreamError(provider string, status int, err error) error {
	return &UpstreamError{Provider: provider, StatusCode: status, Err: err}
}

// ErrorKind returns a short label for metrics and audit records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrMissingContent):
		return "missing_content"
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "unknown"
	}
}
