// ABOUTME: Error taxonomy for the messaging protocol layer.
// ABOUTME: Validation and decode errors are local; timeout and staleness are recoverable.

package protocol

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateType indicates a message type tag was registered twice.
// Duplicate registration would silently shadow an existing type, so it is
// always rejected.
var ErrDuplicateType = errors.New("message type already registered")

// ValidationError reports a required field that is missing or malformed.
// It is raised before any network I/O and is never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: field %q %s", e.Field, e.Reason)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// UnknownTypeError reports a received message whose type tag is not
// registered. Fatal for that single message only; receive loops must log
// and continue.
type UnknownTypeError struct {
	Tag string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Tag)
}

// DispatchTimeoutError reports that no reply arrived within the configured
// window. Callers may retry with a fresh correlation id; repeated timeouts
// against the same target should be surfaced to operators.
type DispatchTimeoutError struct {
	Subject string
	Timeout time.Duration
}

func (e *DispatchTimeoutError) Error() string {
	return fmt.Sprintf("no reply on %q within %s", e.Subject, e.Timeout)
}

// StaleIdentityError reports a dispatch attempted against an identity with
// no fresh heartbeat. The caller should treat the target as unavailable and
// may attempt rediscovery.
type StaleIdentityError struct {
	IdentityID string
}

func (e *StaleIdentityError) Error() string {
	return fmt.Sprintf("identity %q has no fresh heartbeat", e.IdentityID)
}
