// Package apperr is the error taxonomy shared by every request path.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidTaskType  Code = "INVALID_TASK_TYPE"
	CodeAlreadyCompleted Code = "ALREADY_COMPLETED"
	CodeExpired          Code = "EXPIRED"
	CodeInternal         Code = "INTERNAL"
)

var statusByCode = map[Code]int{
	CodeValidation:       http.StatusBadRequest,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeNotFound:         http.StatusNotFound,
	CodeInvalidTaskType:  http.StatusBadRequest,
	CodeAlreadyCompleted: http.StatusConflict,
	CodeExpired:          http.StatusGone,
	CodeInternal:         http.StatusInternalServerError,
}

// Error is a classified failure. Err carries the underlying cause and is
// never rendered to clients.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the code onto a status; unknown codes are 500.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Validation(message string) *Error      { return New(CodeValidation, message) }
func Unauthorized(message string) *Error    { return New(CodeUnauthorized, message) }
func NotFound(message string) *Error        { return New(CodeNotFound, message) }
func InvalidTaskType(message string) *Error { return New(CodeInvalidTaskType, message) }
func AlreadyCompleted(message string) *Error {
	return New(CodeAlreadyCompleted, message)
}
func Expired(message string) *Error { return New(CodeExpired, message) }

// Internal wraps an unexpected failure. The message stays generic.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err; unclassified errors are INTERNAL.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
