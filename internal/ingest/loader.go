// Package ingest replaces the coworking catalog from a CSV snapshot.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssherwood/coworkingservice/internal/config"
	"github.com/ssherwood/coworkingservice/internal/space"
)

const instrumentationName = "github.com/ssherwood/coworkingservice/internal/ingest"

// source column headers
const (
	ColumnName             = "Name"
	ColumnOpeningTime      = "Opening Time"
	ColumnClosingTime      = "Closing Time"
	ColumnPrice            = "Price"
	ColumnFoodAvailability = "Food Availability"
	ColumnLatitude         = "Latitude"
	ColumnLongitude        = "Longitude"
	ColumnAddress          = "Address"
)

var Columns = []string{
	ColumnName, ColumnOpeningTime, ColumnClosingTime, ColumnPrice,
	ColumnFoodAvailability, ColumnLatitude, ColumnLongitude, ColumnAddress,
}

var (
	errMissingHeader = errors.New("missing header row")
	errMissingColumn = errors.New("missing column")
)

// Replacer is the part of the catalog store the loader needs.
type Replacer interface {
	ReplaceAll(ctx context.Context, spaces []space.CoworkingSpace) error
}

// Report describes one successful ingestion run.
type Report struct {
	RunID    uuid.UUID
	Source   string
	Rows     int
	Duration time.Duration
}

type Loader struct {
	store  Replacer
	tracer trace.Tracer
	runs   metric.Int64Counter
	rows   metric.Int64Counter
}

func NewLoader(store Replacer) *Loader {
	meter := otel.Meter(instrumentationName)
	return &Loader{
		store:  store,
		tracer: otel.Tracer(instrumentationName),
		runs:   int64Counter(meter, "coworking.ingest.runs", "Catalog ingestion runs by outcome", "{run}"),
		rows:   int64Counter(meter, "coworking.ingest.rows", "Rows installed by successful catalog ingestion runs", "{row}"),
	}
}

// int64Counter falls back to a no-op counter when the meter rejects the instrument.
func int64Counter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Unable to create ingestion counter", slog.String("counter", name), config.ErrAttr(err))
		return noop.Int64Counter{}
	}
	return counter
}

// LoadFromTabularSource parses the CSV file at path and, only if every row is valid,
// replaces the catalog with its contents in a single call.
func (l *Loader) LoadFromTabularSource(ctx context.Context, path string) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open catalog source: %w", err)
	}
	defer file.Close()

	return l.Load(ctx, path, file)
}

func (l *Loader) Load(ctx context.Context, source string, r io.Reader) (report Report, err error) {
	report = Report{RunID: uuid.New(), Source: source}
	begin := time.Now()

	ctx, span := l.tracer.Start(ctx, "ingest.Load", trace.WithAttributes(
		attribute.String("ingest.run_id", report.RunID.String()),
		attribute.String("ingest.source", source),
	))
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		l.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	logger := slog.With(slog.String("run_id", report.RunID.String()), slog.String("source", source))
	logger.Info("Catalog ingestion started")

	spaces, err := Parse(r)
	if err != nil {
		logger.Error("Catalog ingestion rejected source; previous catalog kept", config.ErrAttr(err))
		return report, err
	}

	if err = l.store.ReplaceAll(ctx, spaces); err != nil {
		logger.Error("Catalog replace failed; previous catalog kept", config.ErrAttr(err))
		return report, err
	}

	report.Rows = len(spaces)
	report.Duration = time.Since(begin)
	l.rows.Add(ctx, int64(report.Rows))
	span.SetAttributes(attribute.Int("ingest.rows", report.Rows))
	logger.Info("Catalog ingestion finished", slog.Int("rows", report.Rows), slog.Duration("duration", report.Duration))

	return report, nil
}

// Parse reads the whole CSV source and returns one record per data row. Columns are
// located by header name. The first malformed row aborts parsing.
func Parse(r io.Reader) ([]space.CoworkingSpace, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &space.ValidationError{Line: 1, Err: errMissingHeader}
		}
		return nil, csvError(0, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.TrimSpace(name)] = i
	}
	for _, column := range Columns {
		if _, ok := index[column]; !ok {
			return nil, &space.ValidationError{Line: 1, Column: column, Err: errMissingColumn}
		}
	}

	var spaces []space.CoworkingSpace
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(row, err)
		}

		line, _ := reader.FieldPos(0)
		parsed, err := parseRecord(record, index)
		if err != nil {
			var vErr *space.ValidationError
			if errors.As(err, &vErr) {
				vErr.Row, vErr.Line = row, line
			}
			return nil, err
		}
		spaces = append(spaces, parsed)
	}

	return spaces, nil
}

func parseRecord(record []string, index map[string]int) (space.CoworkingSpace, error) {
	field := func(column string) string { return record[index[column]] }

	var (
		s   space.CoworkingSpace
		err error
	)
	s.Name = field(ColumnName)
	s.Address = field(ColumnAddress)
	s.FoodAvailability = parseFoodAvailability(field(ColumnFoodAvailability))

	if s.OpeningTime, err = space.ParseTimeOfDay(field(ColumnOpeningTime)); err != nil {
		return s, fieldError(ColumnOpeningTime, field(ColumnOpeningTime), err)
	}
	if s.ClosingTime, err = space.ParseTimeOfDay(field(ColumnClosingTime)); err != nil {
		return s, fieldError(ColumnClosingTime, field(ColumnClosingTime), err)
	}
	if s.Price, err = parseFloat(field(ColumnPrice)); err != nil {
		return s, fieldError(ColumnPrice, field(ColumnPrice), err)
	}
	if s.Latitude, err = parseFloat(field(ColumnLatitude)); err != nil {
		return s, fieldError(ColumnLatitude, field(ColumnLatitude), err)
	}
	if s.Longitude, err = parseFloat(field(ColumnLongitude)); err != nil {
		return s, fieldError(ColumnLongitude, field(ColumnLongitude), err)
	}

	return s, nil
}

// parseFoodAvailability is deliberately permissive: "yes" in any case is true and every
// other value, including typos and blanks, is false.
func parseFoodAvailability(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "yes")
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

func fieldError(column, value string, err error) error {
	return &space.ValidationError{Column: column, Value: value, Err: err}
}

// csvError turns malformed CSV into a ValidationError; read failures pass through.
func csvError(row int, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &space.ValidationError{Row: row, Line: parseErr.Line, Err: parseErr.Err}
	}
	return fmt.Errorf("read source: %w", err)
}
