// Package errors defines the sentinel errors shared by the index, ranker,
// ingestion and HTTP layers, plus an AppError wrapper that carries an HTTP
// status for the API boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyCorpus      = errors.New("empty corpus")
	ErrNotFitted        = errors.New("index not fitted")
	ErrMismatchedLength = errors.New("texts and payloads differ in length")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrCorruptSnapshot  = errors.New("corrupt index snapshot")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnavailable      = errors.New("service unavailable")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap attaches a formatted message to a sentinel and lets HTTPStatusCode
// derive the status from the sentinel.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFitted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrEmptyCorpus), errors.Is(err, ErrMismatchedLength):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
