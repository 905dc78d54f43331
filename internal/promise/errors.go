package promise

import (
	"errors"
	"fmt"
)

var (
	// ErrDoubleSettlement is matched by the panic value raised when a promise
	// is resolved or rejected more than once.
	ErrDoubleSettlement = errors.New("promise already settled")

	// ErrNilRejection replaces a nil error passed to Reject.
	ErrNilRejection = errors.New("promise rejected with nil error")
)

// SettlementError describes an attempt to settle an already settled promise.
type SettlementError struct {
	// Current is the state the promise was already in.
	Current State

	// Attempted is the state the caller tried to move to.
	Attempted State
}

// Error implements the error interface.
func (e *SettlementError) Error() string {
	return fmt.Sprintf("promise: cannot settle as %s, already %s", e.Attempted, e.Current)
}

// Is allows errors.Is to match SettlementError with ErrDoubleSettlement.
func (e *SettlementError) Is(target error) bool {
	return target == ErrDoubleSettlement
}
