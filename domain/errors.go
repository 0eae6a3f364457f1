package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the gateway can pick a response without inspecting messages.
type Kind int

const (
	KindStorage Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "storage"
	}
}

const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeDuplicateUsername = "DUPLICATE_USERNAME"
	CodeDuplicateEmail    = "DUPLICATE_EMAIL"
	CodeDuplicateUser     = "DUPLICATE_USER"
	CodeNotFound          = "NOT_FOUND"
	CodeBadPassword       = "BAD_PASSWORD"
	CodeEmptyStock        = "EMPTY_STOCK"
	CodeMissingToken      = "MISSING"
	CodeInvalidToken      = "INVALID"
	CodeRateLimited       = "RATE_LIMITED"
	CodeStorage           = "STORAGE"
)

// Error is the error type shared by every component. Message is safe to show to clients;
// Err carries the underlying cause for logs.
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
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound   = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "medicine not found"}
	ErrEmptyStock = &Error{Kind: KindValidation, Code: CodeEmptyStock, Message: "out of stock"}
	// ErrBadCredentials is returned for both unknown email and wrong password.
	ErrBadCredentials = &Error{Kind: KindAuth, Code: CodeBadPassword, Message: "email or password is incorrect"}
	ErrMissingToken   = &Error{Kind: KindAuth, Code: CodeMissingToken, Message: "access token is required"}
	ErrInvalidToken   = &Error{Kind: KindAuth, Code: CodeInvalidToken, Message: "token is invalid"}
	ErrDuplicateEmail = &Error{Kind: KindConflict, Code: CodeDuplicateEmail,
		Message: "this email address is already registered, please try another one"}
	ErrDuplicateUsername = &Error{Kind: KindConflict, Code: CodeDuplicateUsername,
		Message: "this username is already taken, please try another one"}
	ErrDuplicateUser = &Error{Kind: KindConflict, Code: CodeDuplicateUser,
		Message: "username or email address is already in use"}
)

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: message}
}

// Storage wraps a store failure behind a generic client message.
func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Code: CodeStorage, Message: "a database error occurred", Err: err}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimit, Code: CodeRateLimited, Message: message}
}

// KindOf reports the Kind of err, treating anything unclassified as a storage failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
