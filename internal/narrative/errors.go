package narrative

import (
	"errors"
	"fmt"
)

// ErrInvalidPhoto is returned when photo input is not a base64 image data URI.
var ErrInvalidPhoto = errors.New("narrative: photo must be a base64 image data URI")

// ConfigurationError means the generation service has no credentials. It is
// returned before any network call is attempted.
type ConfigurationError struct {
	Kind Kind
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("narrative %s: generation service not configured", e.Kind)
}

// UpstreamError wraps a failed call to the generation service: transport
// failure, non-2xx status, malformed body or empty completion.
type UpstreamError struct {
	Kind Kind
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("narrative %s: upstream call failed: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
