package event

// Scheduler runs dispatch continuations.
//
// When a handler's promise settles, possibly on another goroutine, the
// dispatcher resumes the tier scan through the scheduler. A single-goroutine
// scheduler funnels all resumptions onto one logical thread.
type Scheduler interface {
	Schedule(task func()) error
}

// SchedulerFunc is a function adapter for Scheduler.
type SchedulerFunc func(task func()) error

// Schedule implements the Scheduler interface.
func (f SchedulerFunc) Schedule(task func()) error {
	return f(task)
}

// Inline is a Scheduler that runs each task immediately on the calling
// goroutine, which is the goroutine that settled the awaited promise.
var Inline Scheduler = SchedulerFunc(func(task func()) error {
	task()
	return nil
})
