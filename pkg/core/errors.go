package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error shape surfaced by the assistant backend.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	// RetryAfter is a hint in seconds, set on quota errors when known.
	RetryAfter *int `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest covers malformed client input.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrAuthentication covers missing or bad credentials.
	ErrAuthentication ErrorType = "authentication_error"
	// ErrPermission covers authenticated-but-forbidden access.
	ErrPermission ErrorType = "permission_error"
	// ErrNotFound covers missing resources.
	ErrNotFound ErrorType = "not_found_error"

	// ErrDevice: an audio/video input device could not be acquired.
	// Reported to the user, never retried.
	ErrDevice ErrorType = "device_error"
	// ErrTransport: the upstream live stream failed to open, closed
	// unexpectedly, or returned a protocol-level error.
	ErrTransport ErrorType = "transport_error"
	// ErrQuota: the upstream signalled rate/quota exhaustion. Retried with
	// backoff before being surfaced.
	ErrQuota ErrorType = "quota_error"
	// ErrPersistence: a store write failed. Non-fatal for live sessions.
	ErrPersistence ErrorType = "persistence_error"
	// ErrDecode: a malformed audio payload. The offending chunk is dropped.
	ErrDecode ErrorType = "decode_error"

	// ErrAPI is the generic internal failure bucket.
	ErrAPI ErrorType = "api_error"
)

func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

func NewDeviceError(message string, cause error) *Error {
	return &Error{Type: ErrDevice, Message: message, cause: cause}
}

func NewTransportError(message string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: message, cause: cause}
}

func NewQuotaError(message string, cause error) *Error {
	return &Error{Type: ErrQuota, Message: message, cause: cause}
}

func NewPersistenceError(message string, cause error) *Error {
	return &Error{Type: ErrPersistence, Message: message, cause: cause}
}

func NewDecodeError(message string) *Error {
	return &Error{Type: ErrDecode, Message: message}
}

// IsType reports whether err is (or wraps) a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == t
}
