// Package event provides tiered asynchronous event dispatch.
//
// Handlers are registered as Listeners against an event type (the dynamic Go
// type of the event value) with a Priority and a flag saying whether they may
// run concurrently with siblings of the same priority. A Dispatcher runs them
// in priority order and reports the outcome through a single promise.
//
// # Tiers
//
// Listeners sharing a priority form a tier. Tiers run strictly one after
// another, lowest value first:
//
//	PriorityLowest (0)    - runs first
//	PriorityLow (100)
//	PriorityNormal (200)  - default
//	PriorityHigh (300)
//	PriorityHighest (400)
//	PriorityMonitor (500) - observers, runs last
//
// Within a tier, listeners start in registration order. Concurrent listeners
// are started back to back and awaited together. A sequential listener is a
// barrier: it waits for the concurrent listeners started before it, and
// nothing after it starts until it, and anything it returned a promise for,
// has completed. Listeners are never reordered.
//
// # Handlers
//
// A handler returns a nil promise when it finished synchronously, or a
// pending promise when its effect completes later:
//
//	reg := event.NewRegistry()
//	l, _ := event.NewListener(event.Typed(func(ctx context.Context, e *PlayerJoinEvent) (*promise.Promise[struct{}], error) {
//	    return loadProfile(ctx, e.Player), nil
//	}), event.WithPriority(event.PriorityLow), event.Concurrent())
//	event.Subscribe[*PlayerJoinEvent](reg, l)
//
//	d := event.NewDispatcher(reg)
//	event.Call(ctx, d, &PlayerJoinEvent{Player: "steve"}).OnCompletion(
//	    func(e *PlayerJoinEvent) { ... },
//	    func(err error) { ... },
//	)
//
// # Failure
//
// The first failure of any listener, whether a returned error, a panic or a
// rejected promise, rejects the dispatch with a *HandlerError. Listeners not
// yet started are skipped; concurrent siblings already running are not
// stopped, their outcomes are ignored. Nothing is retried or rolled back.
//
// A dispatch whose promise is dropped without a failure continuation loses
// its error silently. Always attach one, or Wait on the promise.
//
// # Recursion
//
// Handlers may dispatch further events, including the same type. A DepthGuard
// counts in-flight dispatches per event type (process-wide by default) and
// rejects a dispatch with ErrRecursionLimit once DefaultMaxDepth are in
// flight. The rejection reaches the parent handler as an ordinary failed
// promise, so it can recover.
//
// # Threading
//
// Promises may be settled from any goroutine. Continuations resume on the
// dispatcher's Scheduler; the default runs them on the settling goroutine,
// while a single-goroutine loop scheduler keeps every resumption on one
// logical thread. There is no cancellation: to bound a dispatch, Wait on its
// promise with a context deadline and treat the dispatch as abandoned.
package event
