package errors

import (
	"fmt"

	"gotrend/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeMissingCapability = "MISSING_CAPABILITY"
	CodeNumerical         = "NUMERICAL"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

// The argument, capability and numerical constructors carry the matching
// domain sentinel as their cause, so errors.Is classification keeps working
// across the adapter boundary.
func InvalidArgument(message string) *AppError {
	return &AppError{Code: CodeInvalidArgument, Message: message, Cause: core.ErrInvalidArgument}
}

func MissingCapability(capability string) *AppError {
	return &AppError{
		Code:    CodeMissingCapability,
		Message: fmt.Sprintf("%s is unavailable", capability),
		Cause:   core.ErrMissingCapability,
	}
}

func Numerical(message string) *AppError {
	return &AppError{Code: CodeNumerical, Message: message, Cause: core.ErrNumerical}
}
