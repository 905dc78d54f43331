package promise

import "sync/atomic"

// All returns a promise that resolves with len(ps) once every input has
// resolved, or rejects with the first rejection observed among the inputs.
// An empty input resolves immediately with 0.
//
// Inputs are not cancelled when one of them rejects; their eventual
// outcomes are ignored.
func All[T any](ps []*Promise[T]) *Promise[int] {
	r := NewResolver[int]()
	if len(ps) == 0 {
		r.Resolve(0)
		return r.Promise()
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(ps)))
	total := len(ps)

	for _, p := range ps {
		p.OnCompletion(
			func(T) {
				if remaining.Add(-1) == 0 {
					r.TryResolve(total)
				}
			},
			func(err error) {
				r.TryReject(err)
			},
		)
	}

	return r.Promise()
}

// Void adapts p to a promise that carries only its outcome.
// It lets a handler hand back the promise of a nested dispatch.
func Void[T any](p *Promise[T]) *Promise[struct{}] {
	r := NewResolver[struct{}]()
	p.OnCompletion(
		func(T) { r.Resolve(struct{}{}) },
		r.Reject,
	)
	return r.Promise()
}
