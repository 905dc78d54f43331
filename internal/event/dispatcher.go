package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/asyncevent/internal/promise"
)

// Dispatcher runs the listeners of an event tier by tier.
//
// Listeners of one priority form a tier. Concurrent listeners of a tier are
// all started before any of them is awaited; a sequential listener waits for
// the concurrent listeners started before it and blocks everything after it
// until it completes. A tier starts only after the previous one has drained.
type Dispatcher struct {
	source Source
	config dispatcherConfig

	dispatches        atomic.Uint64
	succeeded         atomic.Uint64
	failed            atomic.Uint64
	recursionRejected atomic.Uint64
	handlersInvoked   atomic.Uint64
	handlerPanics     atomic.Uint64
	inFlight          atomic.Int64
}

// NewDispatcher creates a dispatcher reading listeners from source.
func NewDispatcher(source Source, opts ...Option) *Dispatcher {
	config := defaultDispatcherConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Dispatcher{
		source: source,
		config: config,
	}
}

// DepthGuard returns the recursion guard used by the dispatcher.
func (d *Dispatcher) DepthGuard() *DepthGuard {
	return d.config.depth
}

// Dispatch runs every listener registered for the event's type and returns
// a promise that resolves with the event once all of them have completed,
// or rejects with the first failure.
//
// Dispatch never blocks waiting on a handler. If every listener completes
// synchronously the returned promise is already settled.
//
// The outcome is only observable through the returned promise. A caller
// that drops it without attaching a failure continuation loses the error.
func (d *Dispatcher) Dispatch(ctx context.Context, event any) *promise.Promise[any] {
	d.dispatches.Add(1)

	if event == nil {
		d.failed.Add(1)
		return promise.Rejected[any](ErrNilEvent)
	}

	key := KeyOf(event)
	name := d.config.types.Name(key)

	release, err := d.config.depth.Enter(key, name)
	if err != nil {
		d.recursionRejected.Add(1)
		d.failed.Add(1)
		d.config.logger.Warn("dispatch refused", "event", name, "error", err)
		return promise.Rejected[any](err)
	}

	c := &call{
		d:        d,
		id:       uuid.NewString(),
		event:    event,
		name:     name,
		key:      key,
		release:  release,
		resolver: promise.NewResolver[any](),
	}
	c.logger = d.config.logger.With("dispatch", c.id, "event", name)
	c.ctx, c.span = d.startSpan(ctx, name)
	d.inFlight.Add(1)

	// Registered first so depth and span are released before any caller
	// continuation runs.
	c.resolver.Promise().OnCompletion(
		func(any) { c.exit(nil) },
		func(err error) { c.exit(err) },
	)

	c.remaining = d.source.HandlersFor(key)
	c.logger.Debug("dispatch started", "listeners", len(c.remaining))

	c.process()
	return c.resolver.Promise()
}

// Call dispatches event and returns a promise typed to the event.
func Call[E any](ctx context.Context, d *Dispatcher, event E) *promise.Promise[E] {
	r := promise.NewResolver[E]()
	d.Dispatch(ctx, event).OnCompletion(
		func(any) { r.Resolve(event) },
		r.Reject,
	)
	return r.Promise()
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatches:        d.dispatches.Load(),
		Succeeded:         d.succeeded.Load(),
		Failed:            d.failed.Load(),
		RecursionRejected: d.recursionRejected.Load(),
		HandlersInvoked:   d.handlersInvoked.Load(),
		HandlerPanics:     d.handlerPanics.Load(),
		InFlight:          d.inFlight.Load(),
	}
}

// startSpan starts the instrumentation span, ignoring a misbehaving hook.
func (d *Dispatcher) startSpan(ctx context.Context, name string) (spanCtx context.Context, span Span) {
	defer func() {
		if r := recover(); r != nil {
			d.config.logger.Warn("timings hook panicked on start", "event", name, "panic", r)
			spanCtx, span = ctx, nopSpan{}
		}
	}()

	spanCtx, span = d.config.timings.Start(ctx, name)
	if spanCtx == nil {
		spanCtx = ctx
	}
	if span == nil {
		span = nopSpan{}
	}
	return spanCtx, span
}

// call is the state of one dispatch.
type call struct {
	d      *Dispatcher
	ctx    context.Context
	id     string
	event  any
	name   string
	key    reflect.Type
	logger *slog.Logger
	span   Span

	// remaining is the cursor over listeners not yet invoked. Only the
	// pass currently running touches it; passes never overlap.
	remaining []*Listener

	release  func()
	resolver *promise.Resolver[any]
}

// process runs one scan pass, converting an unexpected panic into a
// rejection of the dispatch.
func (c *call) process() {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{ListenerID: "dispatcher", Value: r, Stack: string(debug.Stack())}
			if !c.resolver.TryReject(err) {
				panic(r)
			}
		}
	}()
	c.scan()
}

// scan walks the remaining listeners from the cursor.
//
// Concurrent listeners of the current tier are invoked back to back and
// their pending promises collected. The pass stops at a sequential listener
// or at a tier boundary if anything is pending, and resumes once the
// pending batch has drained. A sequential listener with nothing pending
// before it runs at once; if it returns a pending promise the pass ends and
// resumes when that promise settles.
func (c *call) scan() {
	var (
		pending  []*promise.Promise[struct{}]
		tier     Priority
		haveTier bool
	)

	for len(c.remaining) > 0 {
		l := c.remaining[0]

		if len(pending) > 0 && haveTier && l.Priority() != tier {
			// The next tier waits for this tier's concurrent batch.
			break
		}
		tier, haveTier = l.Priority(), true

		if l.Concurrent() {
			c.remaining = c.remaining[1:]
			p, err := c.invoke(l)
			if err != nil {
				c.resolver.Reject(err)
				return
			}
			if p != nil {
				pending = append(pending, c.track(l, p))
			}
			continue
		}

		if len(pending) > 0 {
			// Let the concurrent batch drain before the sequential listener.
			break
		}

		c.remaining = c.remaining[1:]
		p, err := c.invoke(l)
		if err != nil {
			c.resolver.Reject(err)
			return
		}
		if p != nil {
			p.OnCompletion(
				func(struct{}) { c.resume(c.process) },
				func(err error) {
					err = c.handlerError(l, err)
					c.resume(func() { c.resolver.Reject(err) })
				},
			)
			return
		}
	}

	if len(pending) > 0 {
		c.logger.Debug("awaiting concurrent batch", "tier", tier.String(), "pending", len(pending))
		promise.All(pending).OnCompletion(
			func(int) { c.resume(c.process) },
			func(err error) { c.resume(func() { c.resolver.Reject(err) }) },
		)
		return
	}

	c.resolver.Resolve(c.event)
}

// invoke calls one listener, wrapping a synchronous failure.
func (c *call) invoke(l *Listener) (*promise.Promise[struct{}], error) {
	c.d.handlersInvoked.Add(1)
	p, err := l.Invoke(c.ctx, c.event)
	if err != nil {
		return nil, c.handlerError(l, err)
	}
	return p, nil
}

// track wraps a concurrent listener's promise so a rejection carries the
// listener's identity.
func (c *call) track(l *Listener, p *promise.Promise[struct{}]) *promise.Promise[struct{}] {
	r := promise.NewResolver[struct{}]()
	p.OnCompletion(
		r.Resolve,
		func(err error) { r.Reject(c.handlerError(l, err)) },
	)
	return r.Promise()
}

func (c *call) handlerError(l *Listener, err error) error {
	var pe *PanicError
	if errors.As(err, &pe) && pe.ListenerID == l.ID() {
		c.d.handlerPanics.Add(1)
	}
	return &HandlerError{
		ListenerID: l.ID(),
		Owner:      l.Owner(),
		Event:      c.name,
		Priority:   l.Priority(),
		Err:        err,
	}
}

// resume continues the dispatch through the scheduler. A scheduler that
// refuses the task must not strand the dispatch, so the task then runs
// inline.
func (c *call) resume(task func()) {
	if err := c.d.config.scheduler.Schedule(task); err != nil {
		c.logger.Warn("scheduler refused continuation, resuming inline", "error", err)
		task()
	}
}

// exit runs exactly once, when the dispatch settles.
func (c *call) exit(err error) {
	c.release()
	c.endSpan(err)
	c.d.inFlight.Add(-1)

	if err != nil {
		c.d.failed.Add(1)
		c.logger.Debug("dispatch failed", "error", err)
		return
	}
	c.d.succeeded.Add(1)
	c.logger.Debug("dispatch completed")
}

func (c *call) endSpan(err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("timings hook panicked on end", "panic", fmt.Sprint(r))
		}
	}()
	c.span.End(err)
}
