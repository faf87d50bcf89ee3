// Package apperr defines the error taxonomy shared by services and handlers.
//
// Codes target automated handling (HTTP status mapping, client branching);
// Msg is the human readable part; Op and Err chain errors together so
// operators can see where a failure started.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	EUnauthorized        = "unauthorized"
	ENotFound            = "not_found"
	EValidation          = "validation_error"
	ELimitExceeded       = "limit_exceeded"
	EPlanRestricted      = "plan_restricted"
	EDuplicateEmail      = "duplicate_email"
	EDuplicateAssignment = "duplicate_assignment"
	EPersistence         = "persistence_failure"
	EInternal            = "internal_error"
)

// Error is the error type returned by every service operation.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error

	// Fields carries structured details for the response body,
	// e.g. current_count and limit for ELimitExceeded.
	Fields map[string]interface{}
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the code of the outermost *Error in err's chain,
// EInternal for any other non-nil error and "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		if e.Err != nil {
			return Code(e.Err)
		}
	}
	return EInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

// HTTPStatus maps an error code to a response status.
func HTTPStatus(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

var statusByCode = map[string]int{
	EUnauthorized:        http.StatusUnauthorized,
	ENotFound:            http.StatusNotFound,
	EValidation:          http.StatusBadRequest,
	ELimitExceeded:       http.StatusForbidden,
	EPlanRestricted:      http.StatusForbidden,
	EDuplicateEmail:      http.StatusConflict,
	EDuplicateAssignment: http.StatusConflict,
	EPersistence:         http.StatusInternalServerError,
	EInternal:            http.StatusInternalServerError,
}

func Unauthorized(op string) *Error {
	return &Error{Code: EUnauthorized, Op: op, Msg: "Unauthorized"}
}

func NotFound(op, what string) *Error {
	return &Error{Code: ENotFound, Op: op, Msg: what + " not found"}
}

func Validation(op, msg string) *Error {
	return &Error{Code: EValidation, Op: op, Msg: msg}
}

// Persistence wraps a failed store call. The cause is always attached.
func Persistence(op string, err error) *Error {
	return &Error{Code: EPersistence, Op: op, Msg: "persistence failure", Err: err}
}
