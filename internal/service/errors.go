package service

import (
	"net/http"
)

// Error is the enumerated failure type returned by the reservation
// core. Code is stable API surface; Message is human-readable; Details
// carries the specific reason and may be redacted outside debug modes.
type Error struct {
	Code      string
	Message   string
	Details   string
	Status    int
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + ": " + e.Details
	}
	return e.Code + ": " + e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches two Errors by code, so errors.Is(err, ErrNotFound) holds
// for any derived instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// with derives a copy carrying the given details and cause.
func (e *Error) with(details string, cause error) *Error {
	dup := *e
	dup.Details = details
	dup.cause = cause
	return &dup
}

// The error taxonomy. Every failure the core surfaces is one of these.
var (
	ErrValidation = &Error{
		Code: "VALIDATION_ERROR", Message: "malformed input or business-rule violation",
		Status: http.StatusBadRequest,
	}
	ErrNotFound = &Error{
		Code: "NOT_FOUND", Message: "resource not found",
		Status: http.StatusNotFound,
	}
	ErrNoAvailability = &Error{
		Code: "NO_AVAILABILITY", Message: "no table satisfies the request",
		Status: http.StatusConflict,
	}
	ErrUserConflict = &Error{
		Code: "USER_CONFLICT", Message: "you already have a reservation near this time",
		Status: http.StatusConflict,
	}
	ErrCapacityExceeded = &Error{
		Code: "CAPACITY_EXCEEDED", Message: "party size outside table capacity",
		Status: http.StatusConflict,
	}
	ErrReservationConflict = &Error{
		Code: "RESERVATION_CONFLICT", Message: "reservation lost a concurrent race, please retry",
		Status: http.StatusConflict, Retryable: true,
	}
	ErrInvalidTransition = &Error{
		Code: "INVALID_TRANSITION", Message: "illegal reservation status change",
		Status: http.StatusConflict,
	}
	ErrLockUnavailable = &Error{
		Code: "LOCK_UNAVAILABLE", Message: "reservation slot is being processed, please retry",
		Status: http.StatusLocked, Retryable: true,
	}
	ErrTimeout = &Error{
		Code: "TIMEOUT", Message: "operation timed out, please retry",
		Status: http.StatusGatewayTimeout, Retryable: true,
	}
	ErrDatabase = &Error{
		Code: "DATABASE_ERROR", Message: "unexpected database failure",
		Status: http.StatusInternalServerError, Retryable: true,
	}
	ErrInternal = &Error{
		Code: "INTERNAL_ERROR", Message: "internal error",
		Status: http.StatusInternalServerError,
	}
)
