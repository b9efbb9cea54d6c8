package shared

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Kind identifies a class of failure reported to API clients.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidField
	KindBusyUsername
	KindDatabase
	KindRateLimited
)

// String returns the name used in the "error" field of the envelope.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidField:
		return "InvalidField"
	case KindBusyUsername:
		return "BusyUsername"
	case KindDatabase:
		return "Database"
	case KindRateLimited:
		return "RateLimited"
	default:
		return "Internal"
	}
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidField, KindBusyUsername:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type surfaced by services. Only the fields that
// belong to Kind are populated.
type Error struct {
	Kind Kind

	Entity      string // NotFound
	Field       string // InvalidField
	Explanation string // InvalidField
	Username    string // BusyUsername
	Detail      string // Database, Internal

	Err error
}

// NotFound reports a missing entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity}
}

// InvalidField reports a parameter that violates a validation rule.
func InvalidField(field, explanation string) *Error {
	return &Error{Kind: KindInvalidField, Field: field, Explanation: explanation}
}

// BusyUsername reports a username held by another user.
func BusyUsername(username string) *Error {
	return &Error{Kind: KindBusyUsername, Username: username}
}

// RateLimited reports a client that exceeded its request budget.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited}
}

// Database wraps an unexpected persistence failure.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Detail: detail(err), Err: err}
}

// Internal wraps a failure that is neither a client nor a persistence error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Detail: detail(err), Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s was not found", e.Entity)
	case KindInvalidField:
		return fmt.Sprintf("Invalid field: `%s`, it should be %s", e.Field, e.Explanation)
	case KindBusyUsername:
		return fmt.Sprintf("Username `%s` is busy, try another", e.Username)
	case KindDatabase:
		return "Database Error " + e.Detail
	case KindRateLimited:
		return "Too many requests, try again later"
	default:
		if e.Detail == "" {
			return "Internal Error please try again later"
		}
		return "Internal Error " + e.Detail
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// Name returns the taxonomy name of the error.
func (e *Error) Name() string { return e.Kind.String() }

// AsError extracts an *Error from err, classifying anything else as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

var credentialsPattern = regexp.MustCompile(`(\w+://[^:/@\s]+):[^@\s]+@`)

// detail renders err for clients with any URL credentials masked.
func detail(err error) string {
	if err == nil {
		return ""
	}
	return RedactCredentials(err.Error())
}

// RedactCredentials masks the password part of URLs found in s.
func RedactCredentials(s string) string {
	return credentialsPattern.ReplaceAllString(s, "${1}:xxxxx@")
}
