package formz

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is against the typed errors below.
var (
	ErrInvalidContext        = errors.New("invalid context")
	ErrMissingImplementation = errors.New("missing implementation")
	ErrMissingConfigSnapshot = errors.New("missing config snapshot")
	ErrValidation            = errors.New("validation failed")
	ErrAlreadyStarted        = errors.New("already started")
	ErrNotStarted            = errors.New("not started")
	ErrWatchUnsupported      = errors.New("store does not support watching")
	ErrNotFound              = errors.New("key not found")
)

// InvalidContextError reports use of the reserved context name.
type InvalidContextError struct {
	Context string
}

func (e *InvalidContextError) Error() string {
	return fmt.Sprintf("context %q is reserved", e.Context)
}

// Is matches ErrInvalidContext.
func (e *InvalidContextError) Is(target error) bool {
	return target == ErrInvalidContext
}

// MissingImplementationError reports a form definition method that was
// left to the embedded BaseDefinition.
type MissingImplementationError struct {
	Method string
}

func (e *MissingImplementationError) Error() string {
	return fmt.Sprintf("%s is not implemented", e.Method)
}

// Is matches ErrMissingImplementation.
func (e *MissingImplementationError) Is(target error) bool {
	return target == ErrMissingImplementation
}

// MissingConfigSnapshotError reports a logic phase that expects a
// materialized configuration running before one was computed.
type MissingConfigSnapshotError struct {
	Phase Phase
}

func (e *MissingConfigSnapshotError) Error() string {
	return fmt.Sprintf("%s logic ran without a materialized config", e.Phase)
}

// Is matches ErrMissingConfigSnapshot.
func (e *MissingConfigSnapshotError) Is(target error) bool {
	return target == ErrMissingConfigSnapshot
}

// ValidationError aggregates every message collected by ValidateObject.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "\n- " + strings.Join(e.Messages, "\n- ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
