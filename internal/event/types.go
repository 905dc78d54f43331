package event

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/asyncevent/internal/promise"
)

// Priority determines the tier a listener runs in.
// Lower values execute first; listeners sharing a value form one tier.
type Priority int

const (
	// PriorityLowest runs first, before any other listener has had a say.
	PriorityLowest Priority = 0

	// PriorityLow runs after lowest.
	PriorityLow Priority = 100

	// PriorityNormal is the default priority.
	PriorityNormal Priority = 200

	// PriorityHigh runs after normal.
	PriorityHigh Priority = 300

	// PriorityHighest runs after high and has the final say on the outcome.
	PriorityHighest Priority = 400

	// PriorityMonitor runs last. Monitor listeners observe the outcome and
	// should not modify the event.
	PriorityMonitor Priority = 500
)

var priorityNames = map[string]Priority{
	"lowest":  PriorityLowest,
	"low":     PriorityLow,
	"normal":  PriorityNormal,
	"high":    PriorityHigh,
	"highest": PriorityHighest,
	"monitor": PriorityMonitor,
}

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "highest"
	case PriorityMonitor:
		return "monitor"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePriority parses a priority name ("low", "Normal", ...) or a plain
// integer.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if p, ok := priorityNames[name]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return Priority(n), nil
}

// AsyncHandler is the interface for event handlers.
//
// A handler that finishes its work before returning returns a nil promise.
// A handler whose effect is still pending returns a promise; dispatch waits
// for it before the handler counts as done. A returned error or a panic is
// a synchronous failure of the handler.
type AsyncHandler interface {
	HandleAsync(ctx context.Context, event any) (*promise.Promise[struct{}], error)
}

// AsyncHandlerFunc is a function adapter for AsyncHandler.
type AsyncHandlerFunc func(ctx context.Context, event any) (*promise.Promise[struct{}], error)

// HandleAsync implements the AsyncHandler interface.
func (f AsyncHandlerFunc) HandleAsync(ctx context.Context, event any) (*promise.Promise[struct{}], error) {
	return f(ctx, event)
}

// SyncHandlerFunc adapts a plain function that always completes before
// returning.
type SyncHandlerFunc func(ctx context.Context, event any) error

// HandleAsync implements the AsyncHandler interface.
func (f SyncHandlerFunc) HandleAsync(ctx context.Context, event any) (*promise.Promise[struct{}], error) {
	return nil, f(ctx, event)
}

// Typed converts a handler for a concrete event type into an AsyncHandler.
// Events of other types are skipped.
func Typed[E any](fn func(ctx context.Context, event E) (*promise.Promise[struct{}], error)) AsyncHandler {
	return AsyncHandlerFunc(func(ctx context.Context, event any) (*promise.Promise[struct{}], error) {
		e, ok := event.(E)
		if !ok {
			return nil, nil
		}
		return fn(ctx, e)
	})
}

// TypedSync is the synchronous form of Typed.
func TypedSync[E any](fn func(ctx context.Context, event E) error) AsyncHandler {
	return AsyncHandlerFunc(func(ctx context.Context, event any) (*promise.Promise[struct{}], error) {
		e, ok := event.(E)
		if !ok {
			return nil, nil
		}
		return nil, fn(ctx, e)
	})
}

// Stats contains dispatcher statistics.
type Stats struct {
	// Dispatches is the total number of Dispatch calls.
	Dispatches uint64

	// Succeeded is the number of dispatches that resolved.
	Succeeded uint64

	// Failed is the number of dispatches that rejected, including
	// recursion-limit rejections.
	Failed uint64

	// RecursionRejected is the number of dispatches refused by the depth guard.
	RecursionRejected uint64

	// HandlersInvoked is the total number of listener invocations.
	HandlersInvoked uint64

	// HandlerPanics is the number of listeners that panicked.
	HandlerPanics uint64

	// InFlight is the number of dispatches that have not settled yet.
	InFlight int64
}
