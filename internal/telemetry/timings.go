package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/asyncevent/internal/event"
)

// Attribute keys recorded on dispatch spans and metrics.
const (
	EventTypeKey = attribute.Key("event.type")
	OutcomeKey   = attribute.Key("outcome")
)

// Dispatch outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeRecursion = "recursion_limit"
	OutcomePanic     = "panic"
)

// Timings implements event.Timings with one span per dispatch and a pair of
// instruments measuring dispatch count and duration.
type Timings struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	count    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

var _ event.Timings = (*Timings)(nil)

// NewTimings creates the dispatch instruments on meter.
func NewTimings(tracer trace.Tracer, meter metric.Meter) (*Timings, error) {
	duration, err := meter.Float64Histogram(
		"dispatch.duration",
		metric.WithDescription("Time from dispatch until the event settles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	count, err := meter.Int64Counter(
		"dispatch.count",
		metric.WithDescription("Number of settled dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"dispatch.in_flight",
		metric.WithDescription("Dispatches started but not yet settled"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	return &Timings{
		tracer:   tracer,
		duration: duration,
		count:    count,
		inFlight: inFlight,
	}, nil
}

// Start implements event.Timings.
func (t *Timings) Start(ctx context.Context, name string) (context.Context, event.Span) {
	ctx, span := t.tracer.Start(ctx, "dispatch "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(EventTypeKey.String(name)),
	)
	t.inFlight.Add(ctx, 1, metric.WithAttributes(EventTypeKey.String(name)))

	return ctx, &dispatchSpan{
		t:     t,
		ctx:   ctx,
		span:  span,
		name:  name,
		start: time.Now(),
	}
}

type dispatchSpan struct {
	t     *Timings
	ctx   context.Context
	span  trace.Span
	name  string
	start time.Time
}

// End implements event.Span.
func (s *dispatchSpan) End(err error) {
	outcome := Outcome(err)
	attrs := metric.WithAttributes(EventTypeKey.String(s.name), OutcomeKey.String(outcome))

	s.t.duration.Record(s.ctx, time.Since(s.start).Seconds(), attrs)
	s.t.count.Add(s.ctx, 1, attrs)
	s.t.inFlight.Add(s.ctx, -1, metric.WithAttributes(EventTypeKey.String(s.name)))

	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.SetAttributes(OutcomeKey.String(outcome))
	s.span.End()
}

// Outcome classifies a dispatch result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, event.ErrRecursionLimit):
		return OutcomeRecursion
	case errors.Is(err, event.ErrHandlerPanic):
		return OutcomePanic
	default:
		return OutcomeError
	}
}
