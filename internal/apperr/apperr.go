package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes classify application errors so transports can map them to a retry
// policy without inspecting messages.
const (
	CodeValidation      = "VALIDATION"
	CodeConflict        = "CONFLICT"
	CodeStateTransition = "STATE_TRANSITION"
	CodeAuthentication  = "AUTHENTICATION"
	CodeTransient       = "TRANSIENT"
	CodeNotFound        = "NOT_FOUND"
)

// Error is an application error carrying a stable code and an HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation marks malformed input. Never retried.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// Conflict marks a reservation overlap. The caller should show "dates
// unavailable" rather than retry.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

// StateTransition marks an illegal lifecycle transition.
func StateTransition(from, to, reason string) *Error {
	return &Error{
		Code:    CodeStateTransition,
		Message: fmt.Sprintf("cannot transition %s -> %s: %s", from, to, reason),
		Status:  http.StatusUnprocessableEntity,
	}
}

// Authentication marks a signature/origin verification failure. Permanent
// rejection, logged as a potential security event.
func Authentication(message string) *Error {
	return &Error{Code: CodeAuthentication, Message: message, Status: http.StatusUnauthorized}
}

// Transient marks a retryable failure (lock contention, dependency down).
// The webhook transport maps it to a 5xx so the provider redelivers.
func Transient(message string, cause error) *Error {
	return &Error{Code: CodeTransient, Message: message, Status: http.StatusServiceUnavailable, Err: cause}
}

// NotFound marks a missing resource.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: resource + " not found", Status: http.StatusNotFound}
}

// Wrap attaches a cause to an existing classified error.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.Err = cause
	return &clone
}

// CodeOf extracts the classification code, or "" for unclassified errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// StatusOf maps an error to an HTTP status, defaulting to 500.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func IsValidation(err error) bool      { return CodeOf(err) == CodeValidation }
func IsConflict(err error) bool       { return CodeOf(err) == CodeConflict }
func IsStateTransition(err error) bool { return CodeOf(err) == CodeStateTransition }
func IsAuthentication(err error) bool { return CodeOf(err) == CodeAuthentication }
func IsTransient(err error) bool      { return CodeOf(err) == CodeTransient }
func IsNotFound(err error) bool       { return CodeOf(err) == CodeNotFound }
