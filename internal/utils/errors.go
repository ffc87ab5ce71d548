package utils

import (
	"errors"
	"fmt"
)

// FallbackMessage is shown to the operator when the service supplied
// no message of its own.
const FallbackMessage = "There was an error with the request. Please try again."

// Kind classifies a failed transaction.
type Kind string

const (
	KindConfigurationIncomplete Kind = "configuration_incomplete"
	KindTransportFailure        Kind = "transport_failure"
	KindServiceRejected         Kind = "service_rejected"
	KindMalformedResponse       Kind = "malformed_response"
)

// Error carries a Kind, the message meant for the operator (may be
// empty) and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// OperatorMessage is the text to surface to the operator. Transport
// failures and malformed responses never carry a service message.
func (e *Error) OperatorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return FallbackMessage
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// OperatorMessage returns the operator-facing text for any error.
func OperatorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.OperatorMessage()
	}
	return FallbackMessage
}
