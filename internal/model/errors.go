package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent marks an event payload that cannot be decoded into a variant.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrRepositoryUnavailable marks a procedure repository that could not be queried.
	ErrRepositoryUnavailable = errors.New("procedure repository unavailable")
	// ErrMalformedProcedure marks a single procedure record that is skipped.
	ErrMalformedProcedure = errors.New("malformed procedure")
	// ErrCorrelationData marks a badge event source that could not be read.
	ErrCorrelationData = errors.New("correlation data unavailable")
)

// MalformedProcedureError describes why one procedure record was rejected.
type MalformedProcedureError struct {
	ID     string
	Reason string
}

func (e *MalformedProcedureError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed procedure: %s", e.Reason)
	}
	return fmt.Sprintf("malformed procedure %s: %s", e.ID, e.Reason)
}

func (e *MalformedProcedureError) Unwrap() error { return ErrMalformedProcedure }
