// Package errors categorizes failures so that every layer can report them
// with a stable code and the HTTP status the API should answer with.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents invalid caller input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents throttled requests
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryProvider represents directory API failures
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents store failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents everything else (5xx)
	CategorySystem ErrorCategory = "system"
)

// Error codes surfaced to API clients
const (
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeNotFound          = "NOT_FOUND"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeProviderRateLimit = "PROVIDER_RATE_LIMIT"
	CodeFetchError        = "FETCH_ERROR"
	CodeWriteError        = "WRITE_ERROR"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewMissingParameterError creates a validation error with a caller-facing message
func NewMissingParameterError(param string, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    message,
		Details: map[string]interface{}{
			"parameter": param,
		},
	}
}

// NewNotFoundError creates a not found error. id may be empty when the lookup
// was not by key.
func NewNotFoundError(resource string, id string) *CategorizedError {
	details := map[string]interface{}{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    details,
	}
}

// NewRateLimitError creates an inbound rate limit error
func NewRateLimitError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded, please try again later",
	}
}

// NewProviderError creates a directory API error. status is the upstream HTTP
// status, or 0 when no response was received.
func NewProviderError(provider string, status int, cause error) *CategorizedError {
	details := map[string]interface{}{"provider": provider}
	if status != 0 {
		details["upstreamStatus"] = status
	}
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeProviderError,
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Cause:      cause,
		Details:    details,
	}
}

// NewProviderRateLimitError creates a provider rate limit error
func NewProviderRateLimitError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeProviderRateLimit,
		Message:    fmt.Sprintf("data provider rate limit exceeded: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewFetchError is returned by the import when the directory lookup fails
func NewFetchError(botID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeFetchError,
		Message:    "Failed to fetch Discord data",
		Cause:      cause,
		Details: map[string]interface{}{
			"botId": botID,
		},
	}
}

// NewWriteError is returned by the import when the application row cannot be inserted
func NewWriteError(message string, cause error) *CategorizedError {
	if message == "" {
		message = "DB insert failed"
	}
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeWriteError,
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error. Wrapped categorized errors are found via errors.As.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 500
}
