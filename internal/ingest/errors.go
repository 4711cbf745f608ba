package ingest

import (
	"errors"
	"fmt"
)

// ErrInvalidBody is returned when a submitted body is not a JSON object.
var ErrInvalidBody = errors.New("invalid request body")

// ValidationError reports a missing or wrong-typed field on a submitted event.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func missingOrInvalid(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "missing or invalid " + field}
}

// StorageError wraps a failed read or write against the event store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
