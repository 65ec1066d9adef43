package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared by every caller of the engine.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeTransient    ErrorCode = "TRANSIENT"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error carrying the same code and message, so wrapped
// copies of the sentinels below still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrNotAuthenticated     = NewError(ErrCodeUnauthorized, "caller is not authenticated")
	ErrNotAuthorized        = NewError(ErrCodeForbidden, "caller is not authorized for this community")
	ErrTenantNotFound       = NewError(ErrCodeForbidden, "community not found")
	ErrParentNotFound       = NewError(ErrCodeNotFound, "parent not found")
	ErrMeterNotFound        = NewError(ErrCodeNotFound, "meter not found")
	ErrOperationNotFound    = NewError(ErrCodeNotFound, "sharing operation not found")
	ErrAllocationKeyMissing = NewError(ErrCodeNotFound, "allocation key not found")
	ErrAssociationNotFound  = NewError(ErrCodeNotFound, "key association not found")
	ErrAssociationNotOpen   = NewError(ErrCodeConflict, "key association is not pending")
	ErrPendingKeyExists     = NewError(ErrCodeConflict, "sharing operation already has a key awaiting approval")
	ErrConfigurationExists  = NewError(ErrCodeConflict, "a configuration already starts on this date")
	ErrInvalidPayload       = NewError(ErrCodeInvalid, "invalid payload")
	ErrInvalidChunkSize     = NewError(ErrCodeInvalid, "chunk size must be positive")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost domain error in the chain, or
// ErrCodeInternal when err carries no classification.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the whole unit of work may be retried.
func IsRetryable(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

// Invalidf builds a validation error with a formatted message.
func Invalidf(format string, args ...any) *Error {
	return NewError(ErrCodeInvalid, fmt.Sprintf(format, args...))
}
