// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Error is a classified error with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
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

// Validation reports bad input. Nothing has been mutated.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Unauthenticated reports a missing or invalid identity.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthentication, Code: "unauthorized", Message: message}
}

// Forbidden reports an authenticated caller acting outside its rights.
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: "forbidden", Message: message}
}

// NotFound reports a missing or invisible resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: resource + " not found"}
}

// Dependency wraps a store or transport failure.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Code: "internal", Message: op, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps err to a response status. Unclassified errors are 500.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
