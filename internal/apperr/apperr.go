// Package apperr holds the error taxonomy shared by the inventory engines,
// the service layer and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "RESOURCE_NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindForbidden:
		return "AUTH_FORBIDDEN"
	default:
		return "INTERNAL"
	}
}

// Code is the stable code clients can branch on.
func (k Kind) Code() string {
	switch k {
	case KindInvalidArgument:
		return "POS-4001"
	case KindNotFound:
		return "POS-4004"
	case KindConflict:
		return "POS-4009"
	case KindForbidden:
		return "POS-4030"
	default:
		return "POS-5000"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Code() string {
	return e.Kind.Code()
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) error {
	return newError(KindInvalidArgument, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
