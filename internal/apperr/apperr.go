// Package apperr defines the error taxonomy shared by the session client and the
// data access layer, and the {message} shape errors take before reaching a view.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindRemote is any provider failure not covered by another kind.
	KindRemote Kind = iota
	// KindValidation is a client-side check that failed before any network call.
	KindValidation
	// KindNotAuthenticated means an operation needed a session and none was present.
	KindNotAuthenticated
	// KindAuth means the identity provider rejected the credentials.
	KindAuth
	// KindNotFound means a read that expected exactly one row found none.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return "remote"
	}
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrAuth             = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrRemote           = &Error{Kind: KindRemote, Message: "remote error"}
)

// Error is a classified error with a user presentable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Validation returns a client-side validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotAuthenticated returns an error for an operation that requires a session.
func NotAuthenticated(message string) *Error {
	if message == "" {
		message = "Not authenticated"
	}
	return &Error{Kind: KindNotAuthenticated, Message: message}
}

// Auth returns an error for rejected credentials, keeping the provider message.
func Auth(message string, err error) *Error {
	return &Error{Kind: KindAuth, Message: message, Err: err}
}

// NotFound returns an error for a zero-row single record read.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Remote wraps a provider failure, keeping the provider message.
func Remote(message string, err error) *Error {
	return &Error{Kind: KindRemote, Message: message, Err: err}
}

// From converts any error into an *Error. Classified errors pass through
// unchanged, anything else becomes a remote error carrying the original message.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Remote(err.Error(), err)
}

// KindOf returns the kind of err, KindRemote for unclassified errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

// Message is the normalized error shape handed to views and API clients.
type Message struct {
	Message string `json:"message"`
}

// Normalize reduces err to its {message} shape.
func Normalize(err error) Message {
	if err == nil {
		return Message{}
	}
	return Message{Message: From(err).Message}
}
