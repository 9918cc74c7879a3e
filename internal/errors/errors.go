// Package errors carries the error categories the job engine reports to callers. Each category
// maps to one HTTP status and one admin CLI exit message; Message is safe to show to a requester.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode names an error category.
type ErrorCode string

const (
	// ErrCodeNotFound covers unknown jobs, unknown job types and jobs owned by someone else.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict covers rows that collide with existing data during an import.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation covers rejected request input: filters, ordering, formats, arguments.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInvalidState covers operations the job's current status does not allow.
	ErrCodeInvalidState ErrorCode = "invalid_state"
	ErrCodeInternal     ErrorCode = "internal"
	ErrCodeTimeout      ErrorCode = "timeout"
	ErrCodeCanceled     ErrorCode = "canceled"
)

// AppError is an error with a category and a requester-facing message. Field names the input
// that was rejected, if any.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

func NotFoundf(msg string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: format(msg, args)}
}

func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

func Validationf(msg string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: format(msg, args)}
}

// ValidationField rejects the input named field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

func InvalidStatef(msg string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidState, Message: format(msg, args)}
}

func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap attaches a category and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, msg string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(msg, args...), Cause: err}
}

func asAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// GetCode returns the category of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr := asAppError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}

// GetField returns the rejected field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	if appErr := asAppError(err); appErr != nil {
		return appErr.Field
	}
	return ""
}

func IsNotFound(err error) bool     { return GetCode(err) == ErrCodeNotFound }
func IsValidation(err error) bool   { return GetCode(err) == ErrCodeValidation }
func IsInvalidState(err error) bool { return GetCode(err) == ErrCodeInvalidState }
