// Package promise provides a single-settlement completion primitive.
//
// A Promise is the read side and a Resolver the write side of one eventual
// outcome. A promise settles exactly once, either resolved with a value or
// rejected with an error. Continuations attached with OnCompletion run at most
// once each, synchronously if the promise has already settled, otherwise on
// the goroutine that settles it.
//
// Settling a promise twice is a programming error and panics with a
// *SettlementError. The stored outcome is never overwritten.
//
//	r := promise.NewResolver[int]()
//	r.Promise().OnCompletion(
//	    func(v int) { fmt.Println("done", v) },
//	    func(err error) { fmt.Println("failed", err) },
//	)
//	r.Resolve(42)
//
// All combines promises into one that resolves once every input has resolved
// and rejects with the first rejection it observes. Inputs are never
// cancelled; their later outcomes are simply ignored.
package promise
