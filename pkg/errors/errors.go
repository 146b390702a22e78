// Package errors is the typed error vocabulary shared by services and the HTTP
// layer. A Code decides the status, the public message, and whether details
// may leave the process.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeIdempotency    Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit      Code = "RATE_LIMIT_EXCEEDED"
	CodePaymentDecline Code = "PAYMENT_DECLINED"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeDependency     Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	hideDetails = false
	showDetails = true
	final       = false
	transient   = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, final, "validation failed", showDetails},
	CodeUnauthorized:   {http.StatusUnauthorized, final, "authentication required", hideDetails},
	CodeForbidden:      {http.StatusForbidden, final, "access denied", hideDetails},
	CodeNotFound:       {http.StatusNotFound, final, "resource not found", hideDetails},
	CodeConflict:       {http.StatusConflict, final, "conflict detected", hideDetails},
	CodeStateConflict:  {http.StatusUnprocessableEntity, final, "state transition disallowed", showDetails},
	CodeIdempotency:    {http.StatusConflict, final, "idempotency key reused", showDetails},
	CodeRateLimit:      {http.StatusTooManyRequests, final, "rate limit exceeded", hideDetails},
	CodePaymentDecline: {http.StatusBadRequest, final, "payment declined", showDetails},
	CodeInternal:       {http.StatusInternalServerError, transient, "internal server error", hideDetails},
	CodeDependency:     {http.StatusServiceUnavailable, transient, "dependency unavailable", showDetails},
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause; a nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether a client may retry the same request unchanged.
// Untyped errors count as internal and therefore retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
