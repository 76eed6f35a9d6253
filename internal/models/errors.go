package models

import "errors"

// Code is a stable, machine-readable error code returned to callers.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNumberOutOfRange   Code = "NUMBER_OUT_OF_RANGE"
	CodeRoundClosed        Code = "ROUND_CLOSED"
	CodeTooEarly           Code = "TOO_EARLY"
	CodePaymentMismatch    Code = "PAYMENT_MISMATCH"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeAlreadySettled     Code = "ALREADY_SETTLED"
	CodeCommitmentMismatch Code = "COMMITMENT_MISMATCH"
	CodeInternal           Code = "INTERNAL"
)

// Error is the engine's error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates an error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error around a cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound           = NewError(CodeNotFound, "not found")
	ErrInvalidInput       = NewError(CodeInvalidInput, "invalid input")
	ErrNumberOutOfRange   = NewError(CodeNumberOutOfRange, "number out of range")
	ErrRoundClosed        = NewError(CodeRoundClosed, "round closed")
	ErrTooEarly           = NewError(CodeTooEarly, "too early")
	ErrPaymentMismatch    = NewError(CodePaymentMismatch, "payment mismatch")
	ErrUnauthorized       = NewError(CodeUnauthorized, "unauthorized")
	ErrAlreadySettled     = NewError(CodeAlreadySettled, "already settled")
	ErrCommitmentMismatch = NewError(CodeCommitmentMismatch, "commitment mismatch")
)

// CodeOf extracts the code from err. Errors without one are CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
