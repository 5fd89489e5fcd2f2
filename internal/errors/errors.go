package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the boundary. Callers outside the core only ever see
// the kind, never which specific check failed.
type Kind int

const (
	KindInternal Kind = iota
	KindNotAuthenticated
	KindForbidden
	KindInvalidInput
	KindInvalidCredential
	KindRateLimited
	KindExpired
	KindCryptoFailure
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindRateLimited:
		return "rate_limited"
	case KindExpired:
		return "expired"
	case KindCryptoFailure:
		return "crypto_failure"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified error with a user-safe message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind so errors created with New compare equal
// to the sentinel of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel errors, one per kind. The message is what reaches the client.
var (
	ErrNotAuthenticated  = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Message: "invalid or missing fields"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "invalid data"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrExpired           = &Error{Kind: KindExpired, Message: "expired"}
	ErrCryptoFailure     = &Error{Kind: KindCryptoFailure, Message: "decryption failed"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "already exists"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
)

// New creates a classified error with a specific user-facing message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the message that may be shown to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindCryptoFailure {
		return e.Message
	}
	return ErrInternal.Message
}

// HTTPStatus maps err to the status code written at the HTTP boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotAuthenticated, KindExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidInput, KindInvalidCredential:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
