package shared

import (
	"errors"
	"fmt"
)

// Kind classifies failures returned by the ledger core.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindInvalidState        Kind = "invalid_state"
	KindValidation          Kind = "validation_error"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrInsufficientStock indicates a product cannot cover the requested quantity.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	// ErrInsufficientBalance indicates a balance cannot cover the requested amount.
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	// ErrInvalidState indicates the operation is not allowed for the current state.
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	// ErrValidation indicates malformed or missing input.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
)

// Error carries a kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a kinded error for op.
func E(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(op, entity string, id any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Invalid reports malformed input.
func Invalid(op, format string, args ...any) error {
	return E(KindValidation, op, format, args...)
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
