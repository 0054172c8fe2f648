package storage

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies a failure so callers can tell a missing row from a broken engine.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindBadRequest          Kind = "bad_request"
	KindConstraintViolation Kind = "constraint_violation"
	KindStorageFailure      Kind = "storage_failure"
	KindForbidden           Kind = "forbidden"
	KindUnauthorized        Kind = "unauthorized"
)

const (
	// UniqueConstraintPrefix is the engine message prefix identifying a uniqueness violation.
	UniqueConstraintPrefix = "UNIQUE constraint failed"
	// ConstraintToken is the code reported to clients alongside a constraint violation.
	ConstraintToken = "SQLITE_CONSTRAINT"
)

// Error is the structured failure returned by every store in the module.
type Error struct {
	kind    Kind
	code    string
	message string
	token   string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		if e.message == "" {
			return e.code
		}
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code is the dotted "<operation>.<reason>" identifier.
func (e *Error) Code() string {
	return e.code
}

// Message returns the client-facing description, falling back to the cause.
func (e *Error) Message() string {
	if e.message != "" {
		return e.message
	}
	if e.err != nil {
		return e.err.Error()
	}
	return e.code
}

// ClientMessage returns only the message set through WithMessage.
func (e *Error) ClientMessage() string {
	return e.message
}

// Token is the constraint code token; empty for other kinds.
func (e *Error) Token() string {
	return e.token
}

// NewError builds an Error with a code derived from operation and reason.
func NewError(kind Kind, operation, reason string, cause error) *Error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

// WithMessage sets the client-facing message.
func (e *Error) WithMessage(message string) *Error {
	e.message = message
	return e
}

// NotFound reports a targeted lookup that matched zero rows.
func NotFound(operation, message string) *Error {
	return NewError(KindNotFound, operation, "not_found", nil).WithMessage(message)
}

// BadRequest reports a client value that failed a domain rule.
func BadRequest(operation, reason, message string) *Error {
	return NewError(KindBadRequest, operation, reason, nil).WithMessage(message)
}

// Forbidden reports an ownership check failure.
func Forbidden(operation, message string) *Error {
	return NewError(KindForbidden, operation, "forbidden", nil).WithMessage(message)
}

// Classify turns an engine or gorm error into an Error. Nil stays nil and an
// existing *Error passes through untouched.
func Classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewError(KindNotFound, operation, "not_found", err)
	}
	if message, ok := ParseConstraint(err); ok {
		constraintErr := NewError(KindConstraintViolation, operation, "constraint_violation", err).WithMessage(message)
		constraintErr.token = ConstraintToken
		return constraintErr
	}
	return NewError(KindStorageFailure, operation, "storage_failure", err)
}

// ParseConstraint extracts the offending detail from a uniqueness violation.
func ParseConstraint(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	text := err.Error()
	index := strings.Index(text, UniqueConstraintPrefix)
	if index < 0 {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return UniqueConstraintPrefix, true
		}
		return "", false
	}
	detail := text[index:]
	if end := strings.Index(detail, " ("); end > 0 {
		detail = detail[:end]
	}
	return strings.TrimSpace(detail), true
}

// KindOf reports the Kind of err, storage_failure for foreign errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return KindStorageFailure
}

// IsKind reports whether err carries the supplied kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
