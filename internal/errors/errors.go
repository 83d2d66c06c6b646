// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for callers and tool responses
type Code string

// Error codes
const (
	CodeNotFound      Code = "not_found"
	CodeInvalidInput  Code = "invalid_input"
	CodeAlreadyExists Code = "already_exists"
	CodeStorage       Code = "storage"
	CodeInternal      Code = "internal"
)

// Error is the application error type
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NotFound creates an error for a missing entity
func NotFound(kind, id string) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", kind, id)}
}

// InvalidInput creates an error for bad caller input
func InvalidInput(msg string) error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

// AlreadyExists creates an error for a duplicate entity
func AlreadyExists(kind, id string) error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf("%s already exists: %s", kind, id)}
}

// Storage wraps a failure of the durable backend
func Storage(op string, err error) error {
	return &Error{Code: CodeStorage, Message: fmt.Sprintf("storage %s failed", op), Err: err}
}

// Internal wraps an unexpected failure
func Internal(err error) error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == CodeNotFound
}

// IsInvalidInput reports whether err is an invalid-input error
func IsInvalidInput(err error) bool {
	return err != nil && CodeOf(err) == CodeInvalidInput
}

// IsStorage reports whether err is a storage error
func IsStorage(err error) bool {
	return err != nil && CodeOf(err) == CodeStorage
}

// Is is errors.Is, re-exported so callers need a single import
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As, re-exported so callers need a single import
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
