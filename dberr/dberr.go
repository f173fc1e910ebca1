// Package dberr defines the error taxonomy shared by every tool operation.
// Each error carries a stable Kind tag so transports can map failures to
// their own protocol without parsing messages; the backend's original error
// stays attached as the cause.
package dberr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound                 Kind = "not_found"
	DuplicateIdentifier      Kind = "duplicate_identifier"
	InvalidParams            Kind = "invalid_params"
	ConnectionFailed         Kind = "connection_failed"
	TransactionAlreadyActive Kind = "transaction_already_active"
	NoActiveTransaction      Kind = "no_active_transaction"
	TransactionInProgress    Kind = "transaction_in_progress"
	StatementError           Kind = "statement_error"
	Timeout                  Kind = "timeout"
	Unsupported              Kind = "unsupported"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind carried by err, or "" if err is not from this
// taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
