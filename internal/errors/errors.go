package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Quota & rate limiting
	ErrCodeInsufficientQuota ErrorCode = "INSUFFICIENT_QUOTA"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Remote social-graph API, classified exactly once at the call site
	ErrCodeRemoteRateLimited   ErrorCode = "REMOTE_RATE_LIMITED"
	ErrCodeRemoteNotFound      ErrorCode = "REMOTE_NOT_FOUND"
	ErrCodeRemoteSuspended     ErrorCode = "REMOTE_SUSPENDED"
	ErrCodeRemoteAlreadyUndone ErrorCode = "REMOTE_ALREADY_UNDONE"
	ErrCodeRemoteTargetGone    ErrorCode = "REMOTE_TARGET_GONE"
	ErrCodeRemoteUnclassified  ErrorCode = "REMOTE_UNCLASSIFIED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidArgument(message string) *AppError {
	return New(ErrCodeInvalidArgument, message)
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func InsufficientQuota(message string) *AppError {
	return New(ErrCodeInsufficientQuota, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
