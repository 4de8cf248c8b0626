package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrUnavailable        = New("UNAVAILABLE", http.StatusServiceUnavailable, "remote store unavailable")
)

// Event and attendance domain errors.
var (
	ErrAlreadyRegistered = New("ALREADY_REGISTERED", http.StatusConflict, "user is already registered for this event")
	ErrEventFull         = New("EVENT_FULL", http.StatusConflict, "event has reached maximum capacity")
	ErrCannotUnregister  = New("CANNOT_UNREGISTER_AFTER_ATTENDANCE", http.StatusConflict, "cannot unregister after attendance has been confirmed")
	ErrInvalidToken      = New("INVALID_TOKEN_FORMAT", http.StatusBadRequest, "QR token format is invalid")
	ErrEventNotFound     = New("EVENT_NOT_FOUND", http.StatusNotFound, "event not found")
	ErrAttendeeNotFound  = New("ATTENDEE_NOT_FOUND", http.StatusNotFound, "no matching attendee for this QR code")
	ErrAlreadyAttended   = New("ALREADY_ATTENDED", http.StatusConflict, "attendance has already been confirmed")
	ErrNoConfirmed       = New("NO_CONFIRMED_ATTENDEES", http.StatusUnprocessableEntity, "no confirmed attendees to export")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
