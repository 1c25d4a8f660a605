package service

import (
	"errors"
	"fmt"
)

// Failure kinds. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failure")
	ErrValidation     = errors.New("validation failure")
	ErrStorage        = errors.New("storage failure")
	ErrEventNotFound  = errors.New("raw event not found")
)

// IngestError carries the context needed to find and replay a failed delivery.
type IngestError struct {
	Kind     error
	Topic    string
	SourceID int64
	Err      error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("%v (topic=%s", e.Kind, e.Topic)
	if e.SourceID != 0 {
		msg += fmt.Sprintf(", source_id=%d", e.SourceID)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *IngestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short label for logs and counters.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrEventNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
