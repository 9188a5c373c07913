package appointments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("appointments: validation failed")
	ErrConflict        = errors.New("appointments: time slot conflict")
	ErrNotFound        = errors.New("appointments: not found")
	ErrUnauthorized    = errors.New("appointments: not authorized")
	ErrAlreadyTerminal = errors.New("appointments: already in a terminal state")

	// ErrConcurrentUpdate means a conditional update lost a race to another
	// writer and the row is still mutable; the caller may retry.
	ErrConcurrentUpdate = errors.New("appointments: concurrent update")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("appointments: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError carries the slot that collided with the requested one.
type ConflictError struct {
	Start            time.Time
	End              time.Time
	ConflictingID    uuid.UUID
	ConflictingTitle string
	ConflictingStart time.Time
	ConflictingEnd   time.Time
}

func (e *ConflictError) Error() string {
	if e.ConflictingID == uuid.Nil {
		return fmt.Sprintf("appointments: %s - %s overlaps an existing appointment",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("appointments: %s - %s overlaps appointment %s (%s - %s)",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.ConflictingID,
		e.ConflictingStart.Format(time.RFC3339), e.ConflictingEnd.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TerminalError reports an attempt to mutate a cancelled or completed appointment.
type TerminalError struct {
	Status Status
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("appointments: already %s", e.Status)
}

func (e *TerminalError) Is(target error) bool { return target == ErrAlreadyTerminal }

// Code is a stable identifier for API clients ("already_cancelled").
func (e *TerminalError) Code() string {
	return "already_" + string(e.Status)
}
