// Package telemetry wires OpenTelemetry tracing and metrics into dispatch.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "github.com/dshills/asyncevent"

// Config defines the information needed to init telemetry.
type Config struct {
	// Enabled turns on export. When false Init returns no-op providers.
	Enabled bool

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string

	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// SampleRatio is the fraction of dispatches traced. Zero means all.
	SampleRatio float64

	// ResourceAttributes are extra resource attributes.
	ResourceAttributes map[string]string
}

// Provider holds the tracer and meter used by the process.
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdown []func(context.Context) error
	log      *slog.Logger
}

// Shutdown flushes and stops the exporters. Errors are logged.
func (p *Provider) Shutdown(ctx context.Context) {
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			p.log.Error("shutting down telemetry provider", "error", err)
		}
	}
}

// Init configures OpenTelemetry for the service.
func Init(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if !cfg.Enabled {
		return &Provider{
			Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
			Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
			log:    log,
		}, nil
	}

	if cfg.Endpoint == "" {
		return nil, errors.New("telemetry endpoint is required when enabled")
	}

	attrs := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes)+1)
	attrs = append(attrs, semconv.ServiceName(cfg.ServiceName))
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, attrs...)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithMaxQueueSize(2048),
		),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("telemetry enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)

	return &Provider{
		Tracer:   tp.Tracer(InstrumentationName),
		Meter:    mp.Meter(InstrumentationName),
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
		log:      log,
	}, nil
}
