package model

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrDelegateFailure   ErrorCode = "DELEGATE_FAILURE"
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrInternal          ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code, a human message
// and the address/identity it concerns.
//
// Callers branch on Code; Message may change between versions.
type CodedError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Address  string    `json:"address,omitempty"`
	Identity string    `json:"identity,omitempty"`
	Cause    error     `json:"-"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Address != "" {
		msg += " (address " + e.Address + ")"
	}
	if e.Identity != "" {
		msg += " (identity " + e.Identity + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *CodedError by code, so errors.Is(err, &CodedError{Code: ErrNotFound}) works.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// WithAddress sets the offending address.
func (e *CodedError) WithAddress(addr fmt.Stringer) *CodedError {
	e.Address = addr.String()
	return e
}

// WithIdentity sets the offending identity.
func (e *CodedError) WithIdentity(id fmt.Stringer) *CodedError {
	e.Identity = id.String()
	return e
}

// WithCause attaches the underlying error verbatim.
func (e *CodedError) WithCause(err error) *CodedError {
	e.Cause = err
	return e
}

// CodeOf returns the code of the first *CodedError in err's chain, or
// ErrInternal when err carries none. It returns "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrInternal
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var ce *CodedError
	return errors.As(err, &ce) && ce.Code == code
}
