package shared

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/ssherwood/coworkingservice/internal/config"
)

var metricDialer = collectorDialer[otlpmetricgrpc.Option]{
	endpoint:   otlpmetricgrpc.WithEndpoint,
	compressor: otlpmetricgrpc.WithCompressor,
	insecure:   otlpmetricgrpc.WithInsecure,
	tls:        otlpmetricgrpc.WithTLSCredentials,
}

// InitializeMetricProvider
// https://opentelemetry.io/docs/languages/go/instrumentation/#metrics
func InitializeMetricProvider(ctx context.Context) (*metric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx, metricDialer.options()...)
	if err != nil {
		slog.Warn("Unable to initialize OTEL metric exporter", config.ErrAttr(err))
		return nil, err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(config.OTELMeterInterval))),
		metric.WithResource(serviceResource()),
	)

	// instruments created earlier through otel.Meter are delegated to this provider
	otel.SetMeterProvider(provider)
	slog.Info("OTEL metrics enabled", slog.String("collector", config.OTELCollectorURL),
		slog.Duration("interval", config.OTELMeterInterval))

	return provider, nil
}
