package services

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// AppError carries the HTTP status and client-facing message of a failure.
type AppError struct {
	Status  int
	Message string
	Err     error // internal cause, never sent to clients
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func ValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func AuthorizationError(msg string) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: msg}
}

func NotFoundError(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: msg}
}

func InternalError(err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: "Server error.", Err: err}
}

// storeError maps a lookup failure: record-not-found becomes a 404 with msg,
// anything else is internal.
func storeError(err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError(notFoundMsg)
	}
	return InternalError(err)
}

// StatusOf returns the HTTP status for err (500 for unknown errors).
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
