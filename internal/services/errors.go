package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeEmptyCart           ErrorCode = "EMPTY_CART"
	CodeProductNotFound     ErrorCode = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodePaymentGateway      ErrorCode = "PAYMENT_GATEWAY_ERROR"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is the coded error returned by every service operation. Message is
// safe to show to the caller; Err carries the underlying cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func internalError(err error) *Error {
	return newError(CodeInternal, "An unexpected error occurred", err)
}

// AsError returns err as a coded error. Uncoded errors become INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return internalError(err)
}

func (e *Error) withMeta(key, value string) *Error {
	if e.Meta == nil {
		e.Meta = map[string]string{}
	}
	e.Meta[key] = value
	return e
}
