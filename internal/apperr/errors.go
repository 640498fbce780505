package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API clients.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeNoResults      = "NO_RESULTS"
	CodeExportNotReady = "EXPORT_NOT_READY"
	CodeExportFailed   = "EXPORT_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// AppError is an operational error with a stable code and an HTTP status.
type AppError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError with an explicit status and code.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// Validation flags malformed request parameters, rejected before any provider call.
func Validation(message string) *AppError {
	return New(http.StatusBadRequest, CodeValidation, message)
}

// NotFound flags an absent search / job / place id.
func NotFound(message string) *AppError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// providerMessages maps known provider HTTP statuses to stable client messages.
var providerMessages = map[int]string{
	http.StatusBadRequest:          "Invalid request parameters",
	http.StatusUnauthorized:        "API authentication failed - check API key",
	http.StatusForbidden:           "Access forbidden - check API permissions",
	http.StatusTooManyRequests:     "Rate limit exceeded - please slow down",
	http.StatusInternalServerError: "Scraper API server error",
	http.StatusServiceUnavailable:  "Scraper API temporarily unavailable",
}

// Provider wraps a failed provider round trip. The code is derived from the
// upstream status (SCRAPER_429 and friends); unknown statuses get a generic
// message. Provider errors are never retried automatically.
func Provider(status int) *AppError {
	msg, ok := providerMessages[status]
	if !ok {
		msg = "API request failed"
	}
	return New(status, fmt.Sprintf("SCRAPER_%d", status), msg)
}

// From extracts the AppError from err's chain, or wraps err as an internal
// error. devMode keeps the real message; otherwise it is redacted.
func From(err error, devMode bool) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	msg := "An unexpected error occurred"
	if devMode {
		msg = err.Error()
	}
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: msg, Err: err}
}
