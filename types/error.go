package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a core failure.
type ErrorCode string

// Validation errors: caught before an executor runs.
const (
	ErrMissingInput  ErrorCode = "MISSING_INPUT"
	ErrBadInputShape ErrorCode = "BAD_INPUT_SHAPE"
)

// Executor errors: failures while running a recipe.
const (
	ErrExecutorFailed  ErrorCode = "EXECUTOR_FAILED"
	ErrResponseParse   ErrorCode = "RESPONSE_PARSE"
	ErrServiceFailed   ErrorCode = "SERVICE_FAILED"
	ErrUnknownExecutor ErrorCode = "UNKNOWN_EXECUTOR"
)

// Graph integrity errors: rejected synchronously at connection time.
const (
	ErrHandleOccupied     ErrorCode = "HANDLE_OCCUPIED"
	ErrWouldCreateCycle   ErrorCode = "WOULD_CREATE_CYCLE"
	ErrConnectionRefused  ErrorCode = "CONNECTION_REFUSED"
	ErrNodeNotFound       ErrorCode = "NODE_NOT_FOUND"
	ErrAssetNotFound      ErrorCode = "ASSET_NOT_FOUND"
	ErrRecipeNotFound     ErrorCode = "RECIPE_NOT_FOUND"
	ErrDuplicateID        ErrorCode = "DUPLICATE_ID"
	ErrInvalidParent      ErrorCode = "INVALID_PARENT"
	ErrExecutionConflict  ErrorCode = "EXECUTION_CONFLICT"
	ErrInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrProjectUnavailable ErrorCode = "PROJECT_UNAVAILABLE"
)

// Manifest errors: fatal only for the offending recipe.
const (
	ErrManifestInvalid ErrorCode = "MANIFEST_INVALID"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
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

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf extracts the error code from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
