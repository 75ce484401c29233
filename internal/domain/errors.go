package domain

import "net/http"

type ErrorCode string

const (
	CodeInsufficientFunds      ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInvalidPayment         ErrorCode = "INVALID_PAYMENT"
	CodeIdempotencyConflict    ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyUnavailable ErrorCode = "IDEMPOTENCY_UNAVAILABLE"
	CodeDependencyUnavailable  ErrorCode = "DEPENDENCY_UNAVAILABLE"
	CodeInvariantViolation     ErrorCode = "INVARIANT_VIOLATION"
)

// Stable human messages exposed in error bodies. Clients may match on
// them, so they never change without a contract bump.
const (
	MsgSourceDestinationMustDiffer = "source and destination must differ"
	MsgIdempotencyConflict         = "idempotency key reused with different payload"
	MsgIdempotencyInProgress       = "idempotency key is being processed"
	MsgIdempotencyRace             = "idempotency persistence race"
	MsgDatabaseUnavailable         = "database unavailable"
	MsgAccountNotFound             = "account not found"
	MsgInsufficientFunds           = "insufficient funds"
)

// Error is a caller-visible domain failure carrying the wire error code
// and the HTTP status it maps to. Storage faults are re-labeled into one
// of these at the transaction boundary; nothing else crosses the handler.
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func ErrInvalidPayment(msg string) *Error {
	return &Error{Code: CodeInvalidPayment, Message: msg, HTTPStatus: http.StatusUnprocessableEntity}
}

func ErrInsufficientFunds() *Error {
	return &Error{Code: CodeInsufficientFunds, Message: MsgInsufficientFunds, HTTPStatus: http.StatusUnprocessableEntity}
}

func ErrIdempotencyConflict() *Error {
	return &Error{Code: CodeIdempotencyConflict, Message: MsgIdempotencyConflict, HTTPStatus: http.StatusConflict}
}

func ErrIdempotencyUnavailable(msg string) *Error {
	return &Error{Code: CodeIdempotencyUnavailable, Message: msg, HTTPStatus: http.StatusServiceUnavailable}
}

func ErrDependencyUnavailable() *Error {
	return &Error{Code: CodeDependencyUnavailable, Message: MsgDatabaseUnavailable, HTTPStatus: http.StatusServiceUnavailable}
}
