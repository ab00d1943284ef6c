package shared

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/ssherwood/coworkingservice/internal/config"
)

var traceDialer = collectorDialer[otlptracegrpc.Option]{
	endpoint:   otlptracegrpc.WithEndpoint,
	compressor: otlptracegrpc.WithCompressor,
	insecure:   otlptracegrpc.WithInsecure,
	tls:        otlptracegrpc.WithTLSCredentials,
}

// traceSampler follows the parent's decision and samples root spans at
// OTEL_TRACES_SAMPLER_ARG (1 samples everything).
func traceSampler() trace.Sampler {
	return trace.ParentBased(trace.TraceIDRatioBased(config.OTELTraceSampleRatio))
}

// InitTracerProvider
// https://opentelemetry.io/docs/languages/go/instrumentation/#traces
func InitTracerProvider(ctx context.Context) (*trace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx, traceDialer.options()...)
	if err != nil {
		slog.Warn("Unable to initialize OTEL trace exporter", config.ErrAttr(err))
		return nil, err
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithSampler(traceSampler()),
		trace.WithResource(serviceResource()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	slog.Info("OTEL tracing enabled", slog.String("collector", config.OTELCollectorURL),
		slog.Float64("sampleRatio", config.OTELTraceSampleRatio))

	return provider, nil
}
