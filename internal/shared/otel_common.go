package shared

import (
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"google.golang.org/grpc/credentials"

	"github.com/ssherwood/coworkingservice/internal/config"
)

// serviceResource describes this process to every OTEL signal provider.
func serviceResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.TelemetrySDKLanguageGo,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.HostNameKey.String(config.Hostname),
		semconv.ProcessPIDKey.Int64(int64(os.Getpid())),
	)
}

// collectorDialer is the option set every otlp*grpc exporter package offers under the
// same names; O is that package's Option type.
type collectorDialer[O any] struct {
	endpoint   func(string) O
	compressor func(string) O
	insecure   func() O
	tls        func(credentials.TransportCredentials) O
}

// options points an exporter at the configured collector, over plaintext or system-root TLS.
func (d collectorDialer[O]) options() []O {
	options := []O{
		d.endpoint(config.OTELCollectorURL),
		d.compressor(config.OTELCompressor),
	}
	if config.OTELExporterInsecure {
		return append(options, d.insecure())
	}
	return append(options, d.tls(credentials.NewClientTLSFromCert(nil, "")))
}
