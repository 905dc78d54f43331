// Package loop provides a single-goroutine task loop.
//
// A Loop runs queued tasks one at a time, in submission order, on one
// goroutine. It implements event.Scheduler, so a dispatcher created with
// event.WithScheduler(loop) resumes every continuation on the loop no matter
// which goroutine settled the promise it was waiting on.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Loop errors.
var (
	// ErrNotRunning is returned when scheduling on a loop that is not running.
	ErrNotRunning = errors.New("loop is not running")

	// ErrAlreadyRunning is returned when starting a running loop.
	ErrAlreadyRunning = errors.New("loop is already running")

	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("loop queue is full")
)

// DefaultQueueSize is the default task queue capacity.
const DefaultQueueSize = 1024

// Loop serializes tasks onto a single goroutine.
type Loop struct {
	queueSize int
	logger    *slog.Logger

	mu      sync.RWMutex // guards queue against close while sending
	queue   chan func()
	running atomic.Bool
	done    chan struct{}

	scheduled atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the task queue capacity.
func WithQueueSize(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.queueSize = size
		}
	}
}

// WithLogger sets the logger used to report task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a stopped loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		queueSize: DefaultQueueSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return ErrAlreadyRunning
	}

	l.queue = make(chan func(), l.queueSize)
	l.done = make(chan struct{})
	l.running.Store(true)

	go l.run(l.queue, l.done)
	return nil
}

// Stop stops accepting tasks and waits for the queued ones to finish or
// for ctx to be done.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.running.Store(false)
	close(l.queue)
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop accepts tasks.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Schedule queues task without blocking.
// It returns ErrQueueFull rather than wait for room, so it is safe to call
// from a task running on the loop itself.
func (l *Loop) Schedule(task func()) error {
	if task == nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.running.Load() {
		return ErrNotRunning
	}

	select {
	case l.queue <- task:
		l.scheduled.Add(1)
		return nil
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// Do runs fn on the loop and waits for it to return.
// It must not be called from a task running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Schedule(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats contains loop statistics.
type Stats struct {
	Scheduled uint64
	Executed  uint64
	Panicked  uint64
	Dropped   uint64
	Pending   int
}

// Stats returns loop statistics.
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	pending := len(l.queue)
	l.mu.RUnlock()

	return Stats{
		Scheduled: l.scheduled.Load(),
		Executed:  l.executed.Load(),
		Panicked:  l.panicked.Load(),
		Dropped:   l.dropped.Load(),
		Pending:   pending,
	}
}

func (l *Loop) run(queue <-chan func(), done chan<- struct{}) {
	defer close(done)

	for task := range queue {
		l.execute(task)
	}
}

// execute runs one task; a panicking task does not take the loop down.
func (l *Loop) execute(task func()) {
	defer func() {
		l.executed.Add(1)
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.logger.Error("loop task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
