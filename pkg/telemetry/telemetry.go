// Package telemetry wires OpenTelemetry tracing from the standard OTEL_*
// environment variables. When OTEL_ENABLED is not true the global no-op
// provider stays in place and spans cost nothing.
//
//	shutdown, err := telemetry.Init(ctx)
//	defer shutdown(ctx)
//	ctx, span := telemetry.StartSpan(ctx, "aggregate")
//	defer span.End()
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used by StartSpan.
const InstrumentationName = "github.com/callpath-core"

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global TracerProvider exporting over OTLP. It returns a
// no-op shutdown when tracing is disabled or setup fails.
func Init(ctx context.Context) (ShutdownFunc, error) {
	cfg := loadConfig()
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(newSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Enabled reports whether tracing is enabled.
func Enabled() bool {
	return loadConfig().Enabled
}

// GetConfig returns the configuration read at first use.
func GetConfig() *Config {
	return loadConfig()
}

// StartSpan starts a span on the module's tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func loadConfig() *Config {
	configOnce.Do(func() {
		globalConfig = LoadFromEnv()
	})
	return globalConfig
}
