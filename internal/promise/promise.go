package promise

import (
	"context"
	"sync"
)

// State is the settlement state of a promise.
type State int32

const (
	// StatePending means the promise has not settled yet.
	StatePending State = iota

	// StateResolved means the promise settled with a value.
	StateResolved

	// StateRejected means the promise settled with an error.
	StateRejected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// continuation is one pair of callbacks registered with OnCompletion.
type continuation[T any] struct {
	onSuccess func(T)
	onFailure func(error)
}

// Promise is the read side of an eventual value of type T.
// It is safe for concurrent use.
type Promise[T any] struct {
	mu    sync.Mutex
	state State
	value T
	err   error
	conts []continuation[T]
	done  chan struct{}
}

func newPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a promise already resolved with v.
func Resolved[T any](v T) *Promise[T] {
	p := newPromise[T]()
	p.settle(StateResolved, v, nil)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	if err == nil {
		err = ErrNilRejection
	}
	p := newPromise[T]()
	var zero T
	p.settle(StateRejected, zero, err)
	return p
}

// State returns the current settlement state.
func (p *Promise[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsSettled returns true once the promise has resolved or rejected.
func (p *Promise[T]) IsSettled() bool {
	return p.State() != StatePending
}

// Done returns a channel that is closed when the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Result returns the settled outcome without blocking.
// The final return value is false while the promise is pending.
func (p *Promise[T]) Result() (T, error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err, p.state != StatePending
}

// Wait blocks until the promise settles or ctx is done.
// When ctx ends first, ctx.Err() is returned and the promise is left as is;
// whatever work backs it keeps running.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		v, err, _ := p.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnCompletion registers continuations for the promise's outcome.
// Exactly one of them is called, once. If the promise has already settled,
// the call happens before OnCompletion returns. Either callback may be nil.
func (p *Promise[T]) OnCompletion(onSuccess func(T), onFailure func(error)) {
	p.mu.Lock()
	if p.state == StatePending {
		p.conts = append(p.conts, continuation[T]{onSuccess: onSuccess, onFailure: onFailure})
		p.mu.Unlock()
		return
	}
	state, value, err := p.state, p.value, p.err
	p.mu.Unlock()

	fire(continuation[T]{onSuccess: onSuccess, onFailure: onFailure}, state, value, err)
}

// settle moves the promise out of pending and runs queued continuations
// outside the lock. It reports false, without changing anything, if the
// promise had already settled.
func (p *Promise[T]) settle(state State, value T, err error) (State, bool) {
	p.mu.Lock()
	if p.state != StatePending {
		current := p.state
		p.mu.Unlock()
		return current, false
	}
	p.state = state
	p.value = value
	p.err = err
	conts := p.conts
	p.conts = nil
	close(p.done)
	p.mu.Unlock()

	for _, c := range conts {
		fire(c, state, value, err)
	}
	return state, true
}

func fire[T any](c continuation[T], state State, value T, err error) {
	switch state {
	case StateResolved:
		if c.onSuccess != nil {
			c.onSuccess(value)
		}
	case StateRejected:
		if c.onFailure != nil {
			c.onFailure(err)
		}
	}
}

// Resolver is the write side of a promise.
type Resolver[T any] struct {
	p *Promise[T]
}

// NewResolver creates a resolver with a fresh pending promise.
func NewResolver[T any]() *Resolver[T] {
	return &Resolver[T]{p: newPromise[T]()}
}

// Promise returns the promise controlled by this resolver.
func (r *Resolver[T]) Promise() *Promise[T] {
	return r.p
}

// Resolve settles the promise with v.
// It panics with a *SettlementError if the promise has already settled.
func (r *Resolver[T]) Resolve(v T) {
	if current, ok := r.p.settle(StateResolved, v, nil); !ok {
		panic(&SettlementError{Current: current, Attempted: StateResolved})
	}
}

// Reject settles the promise with err. A nil err is replaced by
// ErrNilRejection. It panics with a *SettlementError if the promise has
// already settled.
func (r *Resolver[T]) Reject(err error) {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	if current, ok := r.p.settle(StateRejected, zero, err); !ok {
		panic(&SettlementError{Current: current, Attempted: StateRejected})
	}
}

// TryResolve is like Resolve but reports false instead of panicking when the
// promise has already settled. It is meant for combinators where several
// inputs race to settle one output.
func (r *Resolver[T]) TryResolve(v T) bool {
	_, ok := r.p.settle(StateResolved, v, nil)
	return ok
}

// TryReject is the non-panicking form of Reject.
func (r *Resolver[T]) TryReject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	_, ok := r.p.settle(StateRejected, zero, err)
	return ok
}
