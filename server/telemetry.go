package server

import (
	"context"
	"errors"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"google.golang.org/grpc"
)

type ShutdownFn func(context.Context) error

// StartTelemetry installs the global meter provider, exported through reg for
// the /metrics endpoint, and a tracer provider when otlpEndpoint is set. The
// returned function flushes and stops both.
func StartTelemetry(ctx context.Context, name string, reg promclient.Registerer, otlpEndpoint string) (ShutdownFn, error) {
	res, err := telemetryResource(ctx, name)
	if err != nil {
		return nil, err
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	shutdownFns := []ShutdownFn{meterProvider.Shutdown}

	if otlpEndpoint != "" {
		log.Info().Str("endpoint", otlpEndpoint).Msg("exporting traces over otlp")
		spanExporter, err := newOTLPTraceExporter(ctx, name, otlpEndpoint)
		if err != nil {
			return nil, errors.Join(err, meterProvider.Shutdown(ctx))
		}
		tracerProvider := trace.NewTracerProvider(
			trace.WithSampler(trace.TraceIDRatioBased(1)),
			trace.WithResource(res),
			trace.WithBatcher(spanExporter),
		)
		otel.SetTracerProvider(tracerProvider)
		shutdownFns = append(shutdownFns, tracerProvider.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func telemetryResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize telemetry resource: %w", err)
	}
	return res, nil
}

// newOTLPTraceExporter connects lazily; an unreachable collector only shows
// up as failed exports.
func newOTLPTraceExporter(ctx context.Context, name, endpoint string) (*otlptrace.Exporter, error) {
	traceClient := otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(name)))
	traceExp, err := otlptrace.New(ctx, traceClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create the collector trace exporter: %w", err)
	}
	return traceExp, nil
}
