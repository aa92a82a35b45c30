package event

import (
	"errors"
	"fmt"
)

// ConfigError indicates invalid pipeline configuration.
// It is surfaced at construction time and is always fatal.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("events config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("events config: %s", e.Message)
}

// HTTPError represents a non-success response from the events endpoint.
type HTTPError struct {
	StatusCode int
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// ErrPipelineShutDown is returned once a fatal delivery error (invalid
// credential) has permanently stopped the pipeline.
var ErrPipelineShutDown = errors.New("event pipeline permanently shut down")

// errDeliveryFailed is logged when a batch is abandoned after its retry.
var errDeliveryFailed = errors.New("event batch delivery failed after retry")

// isRetryableStatus reports whether a delivery attempt with this status is
// worth one retry. Rate limiting and server errors are transient; everything
// else either succeeded or will fail the same way again.
func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}

// isAuthStatus reports whether the status means the credential is invalid.
// These are fatal: the pipeline stops sending entirely.
func isAuthStatus(status int) bool {
	return status == 401 || status == 403
}
