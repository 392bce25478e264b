package action

import (
	"context"
	"errors"
)

// ErrorKind classifies why a run ended in error.
type ErrorKind string

const (
	ErrorValidation     ErrorKind = "validation"
	ErrorDecode         ErrorKind = "decode"
	ErrorRejected       ErrorKind = "rejected"
	ErrorWallet         ErrorKind = "wallet"
	ErrorReverted       ErrorKind = "reverted"
	ErrorReceiptTimeout ErrorKind = "receipt_timeout"
	ErrorBackend        ErrorKind = "backend"
	ErrorCancelled      ErrorKind = "cancelled"
	ErrorInternal       ErrorKind = "internal"
)

// UserMessager is implemented by errors that carry a message fit for the end user.
type UserMessager interface {
	UserMessage() string
}

// Kinded is implemented by errors that know their ErrorKind. The method returns a
// plain string so packages below action need not import it.
type Kinded interface {
	ErrorKind() string
}

// ValidationError rejects input before any backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) UserMessage() string { return e.Message }
func (e *ValidationError) ErrorKind() string   { return string(ErrorValidation) }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Describe converts err into the message and kind recorded on a failed run. Errors
// that implement UserMessager win; anything else falls back to fallback.
func Describe(err error, fallback string) (string, ErrorKind) {
	if err == nil {
		return "", ""
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Action was interrupted before it finished", ErrorCancelled
	}

	msg := ""
	var um UserMessager
	if errors.As(err, &um) {
		msg = um.UserMessage()
	}
	if msg == "" {
		msg = fallback
	}

	kind := ErrorInternal
	var k Kinded
	if errors.As(err, &k) && k.ErrorKind() != "" {
		kind = ErrorKind(k.ErrorKind())
	}
	return msg, kind
}
