// Package telemetry configures OpenTelemetry tracing for provider calls and
// inbound HTTP requests.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/orris-inc/paygate/internal/shared/config"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const defaultServiceName = "paygate"

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(ctx context.Context) error

// Init installs the global tracer provider and W3C propagators. With tracing
// disabled only the propagators are installed and spans are no-ops.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string, log logger.Interface) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.TracingEnabled {
		log.Infow("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	log.Infow("tracing initialized",
		"service", serviceName,
		"endpoint", cfg.OTLPEndpoint,
		"sample_ratio", cfg.SampleRatio,
	)
	return tp.Shutdown, nil
}

// sampler follows the parent decision and samples root spans at ratio.
// A ratio outside (0, 1) samples everything.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
