package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeIOError         = "IO_ERROR"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnauthenticated = "UNAUTHENTICATED"

	// Transport-level codes produced outside the file tree itself.
	CodeInternal        = "INTERNAL_ERROR"
	CodeRequestTimeout  = "REQUEST_TIMEOUT"
	CodeCancelled       = "CANCELLED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeAuthUnavailable = "AUTH_UNAVAILABLE"
	CodeJobQueueFull    = "JOB_QUEUE_FULL"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	cause      error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Unauthorized is returned when a path lies outside the caller's root.
// It maps to 403 because the caller is authenticated but not allowed.
func Unauthorized(path string) *APIError {
	return New(CodeUnauthorized, "access denied", path, http.StatusForbidden)
}

// Unauthenticated is returned when no valid credential was presented.
func Unauthenticated(message string) *APIError {
	return New(CodeUnauthenticated, message, "", http.StatusUnauthorized)
}

func NotFound(message string, details string) *APIError {
	return New(CodeNotFound, message, details, http.StatusNotFound)
}

func AlreadyExists(message string, details string) *APIError {
	return New(CodeAlreadyExists, message, details, http.StatusConflict)
}

func InvalidArgument(message string, details string) *APIError {
	return New(CodeInvalidArgument, message, details, http.StatusBadRequest)
}

// IOError wraps an underlying storage failure. The cause stays reachable
// through errors.Is/As but is not exposed verbatim in the message.
func IOError(message string, cause error) *APIError {
	err := New(CodeIOError, message, "", http.StatusInternalServerError)
	err.cause = cause
	return err
}

// Is reports whether err carries an APIError with the given code.
func Is(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}
