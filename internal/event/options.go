package event

import "log/slog"

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

// dispatcherConfig contains configuration for a dispatcher.
type dispatcherConfig struct {
	// depth is the recursion guard; nil means the process-wide guard.
	depth *DepthGuard

	// timings is the instrumentation hook.
	timings Timings

	// scheduler runs continuations after suspension points.
	scheduler Scheduler

	// logger receives dispatch diagnostics.
	logger *slog.Logger

	// types names event types in logs, spans and errors.
	types *Types
}

// defaultDispatcherConfig returns sensible default configuration.
func defaultDispatcherConfig() dispatcherConfig {
	return dispatcherConfig{
		depth:     globalDepth,
		timings:   NopTimings{},
		scheduler: Inline,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// WithDepthGuard uses g instead of the process-wide depth guard.
func WithDepthGuard(g *DepthGuard) Option {
	return func(c *dispatcherConfig) {
		if g != nil {
			c.depth = g
		}
	}
}

// WithMaxDepth gives the dispatcher a private depth guard with the given
// ceiling.
func WithMaxDepth(maxDepth int) Option {
	return func(c *dispatcherConfig) {
		c.depth = NewDepthGuard(maxDepth)
	}
}

// WithTimings sets the instrumentation hook.
func WithTimings(t Timings) Option {
	return func(c *dispatcherConfig) {
		if t != nil {
			c.timings = t
		}
	}
}

// WithScheduler sets the scheduler continuations are resumed on.
func WithScheduler(s Scheduler) Option {
	return func(c *dispatcherConfig) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *dispatcherConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTypes sets the catalogue used to name event types.
func WithTypes(t *Types) Option {
	return func(c *dispatcherConfig) {
		c.types = t
	}
}
