package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure surfaced to callers.
type ErrorCode string

// Generation error codes
const (
	ErrMissingCredential   ErrorCode = "MISSING_CREDENTIAL"
	ErrMissingInput        ErrorCode = "MISSING_INPUT"
	ErrUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
)

// State and persistence error codes
const (
	ErrStorageError         ErrorCode = "STORAGE_ERROR"
	ErrGenerationInProgress ErrorCode = "GENERATION_IN_PROGRESS"
	ErrInvalidState         ErrorCode = "INVALID_STATE"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrRateLimited          ErrorCode = "RATE_LIMITED"
	ErrInternalError        ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts the error code from an error chain, or "" when untyped.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsValidation reports whether the code is raised before any I/O happens.
func (c ErrorCode) IsValidation() bool {
	switch c {
	case ErrMissingCredential, ErrMissingInput, ErrUnsupportedFormat, ErrUnsupportedProvider, ErrInvalidRequest:
		return true
	}
	return false
}

// HTTPStatusFor maps an error code to the status the HTTP layer answers with.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrMissingCredential, ErrMissingInput, ErrUnsupportedFormat, ErrUnsupportedProvider, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrGenerationInProgress, ErrInvalidState:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Shorthands for the generation taxonomy.

func MissingCredential(provider string) *Error {
	return NewError(ErrMissingCredential, "API key is required").WithProvider(provider)
}

func MissingInput(message string) *Error {
	return NewError(ErrMissingInput, message)
}

func UnsupportedFormat(message string) *Error {
	return NewError(ErrUnsupportedFormat, message)
}

func ProviderFailure(provider, message string, cause error) *Error {
	return NewError(ErrProviderError, message).WithProvider(provider).WithCause(cause)
}

func UnsupportedProvider(provider string) *Error {
	return NewError(ErrUnsupportedProvider, fmt.Sprintf("unsupported provider %q", provider)).WithProvider(provider)
}

func StorageFailure(message string, cause error) *Error {
	return NewError(ErrStorageError, message).WithCause(cause)
}
