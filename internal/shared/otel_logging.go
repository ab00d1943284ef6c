package shared

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/ssherwood/coworkingservice/internal/config"
)

const loggerName = "github.com/ssherwood/coworkingservice"

var logDialer = collectorDialer[otlploggrpc.Option]{
	endpoint:   otlploggrpc.WithEndpoint,
	compressor: otlploggrpc.WithCompressor,
	insecure:   otlploggrpc.WithInsecure,
	tls:        otlploggrpc.WithTLSCredentials,
}

// logProcessor picks the OTEL log pipeline named by OTEL_LOGS_EXPORTER: "stdout" writes
// records synchronously to w, anything else batches them to the OTLP collector.
func logProcessor(ctx context.Context, w io.Writer) (sdklog.Processor, error) {
	if config.OTELLogsExporter == "stdout" {
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, err
		}
		return sdklog.NewSimpleProcessor(exporter), nil
	}

	exporter, err := otlploggrpc.New(ctx, logDialer.options()...)
	if err != nil {
		return nil, err
	}
	return sdklog.NewBatchProcessor(exporter), nil
}

func InitializeLoggingProvider(ctx context.Context, w io.Writer) (*sdklog.LoggerProvider, error) {
	processor, err := logProcessor(ctx, w)
	if err != nil {
		slog.Error("Unable to initialize OTEL log exporter", config.ErrAttr(err))
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(serviceResource()),
	)

	global.SetLoggerProvider(provider)

	return provider, nil
}

// InitializeLogger installs the default slog logger: a text handler on w at LOG_LEVEL,
// also forwarding every record to the OTEL logger provider when one is given.
func InitializeLogger(w io.Writer, provider otellog.LoggerProvider) *slog.Logger {
	var handler slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.SlogLevel()})
	if provider != nil {
		handler = NewOTLPLogHandler(handler, provider)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// OTLPLogHandler tees records to a console handler and to the otelslog bridge. The
// console handler's level decides what reaches both.
type OTLPLogHandler struct {
	consoleHandler slog.Handler
	otelHandler    slog.Handler
}

func NewOTLPLogHandler(consoleHandler slog.Handler, provider otellog.LoggerProvider) *OTLPLogHandler {
	return &OTLPLogHandler{
		consoleHandler: consoleHandler,
		otelHandler:    otelslog.NewHandler(loggerName, otelslog.WithLoggerProvider(provider)),
	}
}

func (h *OTLPLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.consoleHandler.Enabled(ctx, level)
}

func (h *OTLPLogHandler) Handle(ctx context.Context, rec slog.Record) error {
	return errors.Join(
		h.consoleHandler.Handle(ctx, rec.Clone()),
		h.otelHandler.Handle(ctx, rec),
	)
}

func (h *OTLPLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &OTLPLogHandler{
		consoleHandler: h.consoleHandler.WithAttrs(attrs),
		otelHandler:    h.otelHandler.WithAttrs(attrs),
	}
}

func (h *OTLPLogHandler) WithGroup(name string) slog.Handler {
	return &OTLPLogHandler{
		consoleHandler: h.consoleHandler.WithGroup(name),
		otelHandler:    h.otelHandler.WithGroup(name),
	}
}
