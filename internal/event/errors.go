package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for event dispatch.
var (
	// ErrRecursionLimit is matched by errors raised when the nested dispatch
	// depth for an event type reaches its ceiling.
	ErrRecursionLimit = errors.New("recursive event call detected")

	// ErrHandlerPanic is matched by errors raised when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilEvent is returned when a nil event is dispatched.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrInvalidPriority is returned when a priority cannot be parsed.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrUnknownEventType is returned when an event name is not registered.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrDuplicateEventType is returned when an event name or type is
	// registered twice.
	ErrDuplicateEventType = errors.New("event type already registered")
)

// RecursionError reports a dispatch refused by the depth guard.
type RecursionError struct {
	// Event is the name of the event type.
	Event string

	// MaxDepth is the ceiling that was reached.
	MaxDepth int
}

// Error implements the error interface.
func (e *RecursionError) Error() string {
	return fmt.Sprintf("recursive event call detected for %s (reached max depth of %d calls)", e.Event, e.MaxDepth)
}

// Is allows errors.Is to match RecursionError with ErrRecursionLimit.
func (e *RecursionError) Is(target error) bool {
	return target == ErrRecursionLimit
}

// HandlerError wraps an error from a listener with additional context.
type HandlerError struct {
	// ListenerID is the ID of the listener whose handler failed.
	ListenerID string

	// Owner is the owner the listener was registered under, if any.
	Owner string

	// Event is the name of the event type being dispatched.
	Event string

	// Priority is the tier the listener ran in.
	Priority Priority

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	who := e.ListenerID
	if e.Owner != "" {
		who = e.Owner + "/" + e.ListenerID
	}
	return "handler error for listener " + who + " on " + e.Event + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// ListenerID is the ID of the listener whose handler panicked.
	ListenerID string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic for listener %s: %v", e.ListenerID, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
