package client

import (
	"errors"
	"fmt"
)

// AuthenticationError indicates the client needs a full re-login:
// invalid credentials, an expired or revoked session, or a failed
// token refresh.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message != "" {
		return "authentication failed: " + e.Message
	}
	return "authentication failed"
}

// AuthorizationError indicates the authenticated user is not allowed
// to perform the requested operation.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message != "" {
		return "not authorized: " + e.Message
	}
	return "not authorized"
}

// APIError is returned when the service answers with an unexpected
// non-2xx status code.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
}

// ConnectionError is returned when a request fails before any byte of
// a response was received (DNS failure, refused connection, reset).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when a request did not complete within its
// deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// DeviceNotFoundError is returned when the requested device does not
// exist on the account.
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return "device not found: " + e.DeviceID
}

// CommandError is returned when the service rejects a device command.
type CommandError struct {
	Command  string
	DeviceID string
	Reason   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed for device %s", e.Command, e.DeviceID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// InvalidParameterError is returned synchronously, before any network
// call, when a caller-supplied parameter is out of range or malformed.
type InvalidParameterError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	msg := fmt.Sprintf("invalid parameter %q: %v", e.Parameter, e.Value)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// IsAuthError reports whether err requires the caller to re-login, as
// opposed to a network failure or a rejected request.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
