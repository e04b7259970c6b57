package errors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for the error envelope. Every code exits the
// process with status 1; the value only distinguishes the failure class.
type Code int

const (
	CodeSuccess           Code = 0
	CodeInternal          Code = 1
	CodeUsage             Code = 2
	CodeConfig            Code = 3
	CodeValidation        Code = 4
	CodeInsufficientFunds Code = 5
	CodeAuth              Code = 10
	CodeRateLimited       Code = 11
	CodeUnavailable       Code = 12
	CodeUnsupported       Code = 13
	CodeStale             Code = 14
	CodeSigner            Code = 20
	CodeExecutionFailed   Code = 21
	CodeTimeout           Code = 22
)

// Type returns the stable machine-readable name rendered in error envelopes.
func (c Code) Type() string {
	switch c {
	case CodeUsage:
		return "usage_error"
	case CodeConfig:
		return "config_error"
	case CodeValidation:
		return "validation_error"
	case CodeInsufficientFunds:
		return "insufficient_balance"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeStale:
		return "stale_quote"
	case CodeSigner:
		return "signer_error"
	case CodeExecutionFailed:
		return "execution_failed"
	case CodeTimeout:
		return "timed_out"
	default:
		return "internal_error"
	}
}

// Error is a typed CLI error that carries a classification code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the classification of err, CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if cliErr, ok := As(err); ok {
		return cliErr.Code
	}
	return CodeInternal
}

// ExitCode is 0 for nil and 1 for every failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
