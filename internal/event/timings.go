package event

import "context"

// Timings is the instrumentation hook started and stopped around each
// dispatch. It is purely observational.
type Timings interface {
	// Start begins a span for one dispatch of the named event type.
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span is one in-progress dispatch measurement.
type Span interface {
	// End stops the span. err is the dispatch outcome, nil on success.
	End(err error)
}

// NopTimings is a Timings that records nothing.
type NopTimings struct{}

// Start implements Timings.
func (NopTimings) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) End(error) {}
