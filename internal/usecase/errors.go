package usecase

import (
	"errors"
	"fmt"

	"planning-poker/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorConditionFailed  ErrorCode = "CONDITION_FAILED"
	ErrorStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == ErrorStoreUnavailable
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// storeError maps a repository failure onto the error taxonomy. reason
// names the failing step, e.g. "dynamodb_get_room_error".
func storeError(reason string, err error) *Error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return newError(ErrorNotFound, reason, err)
	case errors.Is(err, domain.ErrConditionFailed):
		return newError(ErrorConditionFailed, reason, err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return newError(ErrorStoreUnavailable, reason, err)
	default:
		return newError(ErrorInternal, reason, err)
	}
}

// CodeOf returns the code carried by err, or ErrorInternal when err did not
// come from this package.
func CodeOf(err error) ErrorCode {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr.Code
	}
	return ErrorInternal
}
