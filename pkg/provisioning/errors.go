package provisioning

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when a client is constructed without a
// control-plane credential. Raised before any remote call.
var ErrMissingAPIKey = errors.New("control plane API key is required")

// ErrMissingBaseURL is returned when a client is constructed without a
// control-plane endpoint.
var ErrMissingBaseURL = errors.New("control plane base URL is required")

// ErrResourceNotReady is returned when a created resource never reached a
// ready state within the readiness timeout.
var ErrResourceNotReady = errors.New("provisioned resource did not become ready")

// ProvisioningError reports a non-success response from the control plane.
// The upstream status and body are preserved so callers can distinguish
// quota errors, auth failures, and transient faults.
type ProvisioningError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("control plane %s failed: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ParseError reports a malformed control-plane response body.
type ParseError struct {
	Operation string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("control plane %s returned malformed body: %v", e.Operation, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
