// Package apperr defines the error kinds surfaced by the upload service.
// Every failure that reaches a handler is classified into one Kind so the
// caller can decide between retrying and aborting.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is an unclassified failure.
	KindInternal Kind = iota
	// KindAuth covers bad, expired or malformed tickets and missing internal credentials.
	KindAuth
	// KindValidation covers structural request violations.
	KindValidation
	// KindQuotaExceeded means an admission tier rejected the request.
	KindQuotaExceeded
	// KindNotFound means the upload or file does not exist.
	KindNotFound
	// KindStorageInconsistency means confirm found an object missing from storage.
	KindStorageInconsistency
	// KindConflict means the request cannot run in the current state.
	KindConflict
	// KindTransient is a retryable timeout from storage or the database.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindStorageInconsistency:
		return "storage_inconsistency"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a classified failure. Code is a stable machine-readable reason
// (e.g. "ticket_expired", "session_daily") and Subject names the offending
// field, file or identifier.
type Error struct {
	Kind    Kind
	Code    string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// New builds a classified error.
func New(kind Kind, code, subject string, err error) *Error {
	return &Error{Kind: kind, Code: code, Subject: subject, Err: err}
}

// Auth wraps err as an authentication failure.
func Auth(code string, err error) *Error {
	return New(KindAuth, code, "", err)
}

// Validation reports a client error naming the offending field.
func Validation(code, subject string, format string, args ...any) *Error {
	return New(KindValidation, code, subject, fmt.Errorf(format, args...))
}

// NotFound reports an unknown resource.
func NotFound(code, subject string) *Error {
	return New(KindNotFound, code, subject, nil)
}

// Transient wraps a retryable failure.
func Transient(code string, err error) *Error {
	return New(KindTransient, code, "", err)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
