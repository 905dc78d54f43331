package event

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/asyncevent/internal/promise"
)

// registrationSeq orders listeners registered with the same priority.
var registrationSeq atomic.Uint64

// Listener describes one registered handler: the callback, the tier it runs
// in and whether it may run concurrently with its siblings in that tier.
// A Listener is immutable once created.
type Listener struct {
	id              string
	owner           string
	handler         AsyncHandler
	priority        Priority
	concurrent      bool
	handleCancelled bool
	seq             uint64
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPriority sets the tier the listener runs in.
func WithPriority(p Priority) ListenerOption {
	return func(l *Listener) {
		l.priority = p
	}
}

// Concurrent marks the listener as eligible to run alongside other
// concurrent listeners of the same tier.
func Concurrent() ListenerOption {
	return func(l *Listener) {
		l.concurrent = true
	}
}

// WithOwner records who registered the listener, e.g. a plugin name.
// Listeners can be removed by owner.
func WithOwner(owner string) ListenerOption {
	return func(l *Listener) {
		l.owner = owner
	}
}

// HandleCancelled makes the listener receive events that were already
// cancelled by an earlier listener.
func HandleCancelled() ListenerOption {
	return func(l *Listener) {
		l.handleCancelled = true
	}
}

// WithID overrides the generated listener ID.
func WithID(id string) ListenerOption {
	return func(l *Listener) {
		if id != "" {
			l.id = id
		}
	}
}

// NewListener creates a listener for handler.
// The default priority is PriorityNormal and the listener is sequential.
func NewListener(handler AsyncHandler, opts ...ListenerOption) (*Listener, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	l := &Listener{
		id:       uuid.NewString(),
		handler:  handler,
		priority: PriorityNormal,
		seq:      registrationSeq.Add(1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ID returns the unique listener identifier.
func (l *Listener) ID() string { return l.id }

// Owner returns the owner the listener was registered under.
func (l *Listener) Owner() string { return l.owner }

// Priority returns the listener's tier.
func (l *Listener) Priority() Priority { return l.priority }

// Concurrent reports whether the listener may run concurrently with
// siblings of the same tier.
func (l *Listener) Concurrent() bool { return l.concurrent }

// HandlesCancelled reports whether the listener receives cancelled events.
func (l *Listener) HandlesCancelled() bool { return l.handleCancelled }

// Invoke calls the handler with the event.
//
// A nil promise means the handler finished synchronously. Panics are
// recovered and returned as *PanicError. Cancelled events are skipped for
// listeners that do not handle them.
func (l *Listener) Invoke(ctx context.Context, event any) (p *promise.Promise[struct{}], err error) {
	if c, ok := event.(Cancellable); ok && !l.handleCancelled && c.IsCancelled() {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &PanicError{
				ListenerID: l.id,
				Value:      r,
				Stack:      string(debug.Stack()),
			}
		}
	}()

	return l.handler.HandleAsync(ctx, event)
}
