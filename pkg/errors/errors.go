package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can test
// errors.Is(err, errors.ErrSlotUnavailable) without caring about the message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode maps the error code to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSlotUnavailable:
		return http.StatusConflict
	case CodeMalformedRecord:
		return http.StatusUnprocessableEntity
	case CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	CodeNotFound ErrorCode = iota + 1000
	CodeValidation
	CodeSlotUnavailable
	CodePersistence
	CodeMalformedRecord
	CodeInternal
)

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrValidation      = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrSlotUnavailable = &AppError{Code: CodeSlotUnavailable, Message: "slot unavailable"}
	ErrPersistence     = &AppError{Code: CodePersistence, Message: "persistence error"}
	ErrMalformedRecord = &AppError{Code: CodeMalformedRecord, Message: "malformed record"}
	ErrInternal        = &AppError{Code: CodeInternal, Message: "internal server error"}
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}

func SlotUnavailable(message string) *AppError {
	return &AppError{
		Code:    CodeSlotUnavailable,
		Message: message,
	}
}

func Persistence(message string, err error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Message: message,
		Err:     err,
	}
}

func Malformed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeMalformedRecord,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// CodeOf returns the code of the first AppError in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
