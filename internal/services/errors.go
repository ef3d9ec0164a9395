package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by a service matches exactly one of
// them with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrAuth          = errors.New("authentication failed")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrEmailDelivery = errors.New("email delivery failed")
	ErrInternal      = errors.New("internal error")
)

// Error is a domain failure. Message is safe to show to the caller; Err holds
// the underlying cause, if any, for server-side logging.
type Error struct {
	Kind    error
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(message string, fields ...string) error {
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

func conflictError(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}

func authError(message string) error {
	return &Error{Kind: ErrAuth, Message: message}
}

func forbiddenError(message string) error {
	return &Error{Kind: ErrForbidden, Message: message}
}

func notFoundError(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func emailDeliveryError(err error) error {
	return &Error{Kind: ErrEmailDelivery, Message: "failed to send email", Err: err}
}

func internalError(op string, err error) error {
	return &Error{Kind: ErrInternal, Message: "internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// asServiceError passes domain errors through and wraps anything else as
// an internal failure of op.
func asServiceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return internalError(op, err)
}
