package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssherwood/coworkingservice/internal/config"
)

const (
	tracerName          = "github.com/ssherwood/coworkingservice/internal/shared"
	sqlOperationUnknown = "UNKNOWN"
)

const (
	// RowsAffectedKey represents the number of rows affected.
	RowsAffectedKey = attribute.Key("pgx.rows_affected")
	// QueryParametersKey represents the query parameters.
	QueryParametersKey = attribute.Key("pgx.query.parameters")
	// CopyFromTableKey represents the target table of a COPY FROM.
	CopyFromTableKey = attribute.Key("pgx.copy_from.table")
	// CopyFromColumnsKey represents the target columns of a COPY FROM.
	CopyFromColumnsKey = attribute.Key("pgx.copy_from.columns")
	// SQLStateKey represents PostgreSQL error code,
	// see https://www.postgresql.org/docs/current/errcodes-appendix.html.
	SQLStateKey = attribute.Key("pgx.sql_state")
)

type SpanNameFunc func(stmt string) string

// PgxQueryTracer creates a client span per query and per COPY FROM. It only records
// when the caller already has a recording span, so pool health checks stay untraced.
type PgxQueryTracer struct {
	tracer              trace.Tracer
	attrs               []attribute.KeyValue
	trimQuerySpanName   bool
	spanNameFunc        SpanNameFunc
	prefixQuerySpanName bool
	logSQLStatement     bool
	includeParams       bool
}

var (
	_ pgx.QueryTracer    = (*PgxQueryTracer)(nil)
	_ pgx.CopyFromTracer = (*PgxQueryTracer)(nil)
	_ pgx.ConnectTracer  = (*PgxQueryTracer)(nil)
)

func NewQueryTracer(globalAttrs []attribute.KeyValue) *PgxQueryTracer {
	provider := otel.GetTracerProvider()
	return &PgxQueryTracer{
		tracer:              provider.Tracer(tracerName, trace.WithInstrumentationVersion(findOwnImportedVersion())),
		attrs:               globalAttrs,
		trimQuerySpanName:   true,
		prefixQuerySpanName: config.OTELPrefixQuerySpanName,
		logSQLStatement:     config.OTELTracerLogSQLStatement,
		includeParams:       config.OTELTracerIncludeParams,
	}
}

func (t *PgxQueryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	slog.DebugContext(ctx, "Query start", "sql", data.SQL)

	if !trace.SpanFromContext(ctx).IsRecording() {
		return ctx
	}

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.attrs...),
	}

	if conn != nil {
		opts = append(opts, connectionAttributesFromConfig(conn.Config())...)
	}

	if t.logSQLStatement {
		opts = append(opts, trace.WithAttributes(semconv.DBStatement(data.SQL)))
		if t.includeParams {
			opts = append(opts, trace.WithAttributes(makeParamsAttribute(data.Args)))
		}
	}

	spanName := data.SQL
	if t.trimQuerySpanName {
		spanName = t.sqlOperationName(data.SQL)
	}
	if t.prefixQuerySpanName {
		spanName = "query " + spanName
	}

	ctx, _ = t.tracer.Start(ctx, spanName, opts...)
	return ctx
}

func (t *PgxQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	slog.DebugContext(ctx, "Query end", "tag", data.CommandTag.String())

	span := trace.SpanFromContext(ctx)
	if data.Err == nil {
		span.SetAttributes(RowsAffectedKey.Int64(data.CommandTag.RowsAffected()))
	} else {
		recordSQLError(span, data.Err)
	}
	span.End()
}

func (t *PgxQueryTracer) TraceCopyFromStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceCopyFromStartData) context.Context {
	table := data.TableName.Sanitize()
	slog.DebugContext(ctx, "Copy from start", "table", table)

	if !trace.SpanFromContext(ctx).IsRecording() {
		return ctx
	}

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.attrs...),
		trace.WithAttributes(
			CopyFromTableKey.String(table),
			CopyFromColumnsKey.StringSlice(data.ColumnNames),
		),
	}
	if conn != nil {
		opts = append(opts, connectionAttributesFromConfig(conn.Config())...)
	}

	spanName := "COPY " + table
	if t.prefixQuerySpanName {
		spanName = "query " + spanName
	}

	ctx, _ = t.tracer.Start(ctx, spanName, opts...)
	return ctx
}

func (t *PgxQueryTracer) TraceCopyFromEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceCopyFromEndData) {
	slog.DebugContext(ctx, "Copy from end", "rows", data.CommandTag.RowsAffected())

	span := trace.SpanFromContext(ctx)
	if data.Err == nil {
		span.SetAttributes(RowsAffectedKey.Int64(data.CommandTag.RowsAffected()))
	} else {
		recordSQLError(span, data.Err)
	}
	span.End()
}

func (t *PgxQueryTracer) TraceConnectStart(ctx context.Context, data pgx.TraceConnectStartData) context.Context {
	slog.DebugContext(ctx, "Connection start", "connString", maskPostgresPassword(data.ConnConfig.ConnString()))
	return ctx
}

func (t *PgxQueryTracer) TraceConnectEnd(ctx context.Context, data pgx.TraceConnectEndData) {
	if data.Err != nil {
		slog.WarnContext(ctx, "Connection failed", config.ErrAttr(data.Err))
	}
}

// sqlOperationName attempts to get the first 'word' from a given SQL query, which usually
// is the operation name (e.g. 'SELECT').
func (t *PgxQueryTracer) sqlOperationName(stmt string) string {
	if t.spanNameFunc != nil {
		return t.spanNameFunc(stmt)
	}

	parts := strings.Fields(stmt)
	if len(parts) == 0 {
		// a fixed name keeps whitespace-only statements from creating distinct operations
		return sqlOperationUnknown
	}
	return strings.ToUpper(parts[0])
}

// connectionAttributesFromConfig returns a slice of SpanStartOptions that contain attributes from the given connection
// config.
func connectionAttributesFromConfig(config *pgx.ConnConfig) []trace.SpanStartOption {
	if config != nil {
		return []trace.SpanStartOption{
			trace.WithAttributes(
				semconv.ClientAddress(config.Host),
				semconv.ClientPort(int(config.Port)),
				semconv.DBUser(config.User),
			),
		}
	}
	return nil
}

func makeParamsAttribute(args []any) attribute.KeyValue {
	ss := make([]string, len(args))
	for i := range args {
		ss[i] = fmt.Sprintf("%+v", args[i])
	}
	return QueryParametersKey.StringSlice(ss)
}

// recordSQLError marks the span failed; a missing row is an expected outcome, not an error.
func recordSQLError(span trace.Span, err error) {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		span.SetAttributes(SQLStateKey.String(pgErr.Code))
	}
}

func findOwnImportedVersion() string {
	if buildInfo, ok := debug.ReadBuildInfo(); ok && buildInfo.Main.Version != "" {
		return buildInfo.Main.Version
	}
	return "unknown"
}
