package space

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ssherwood/coworkingservice/internal/geodist"
)

const instrumentationName = "github.com/ssherwood/coworkingservice/internal/space"

const geohashPrecision = 9

// View is the plain field set returned to callers. Distance is set only by NearestTo,
// and stays nil there for venues whose stored coordinates are out of range.
type View struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Price            float64  `json:"price"`
	OpeningTime      string   `json:"opening_time"`
	ClosingTime      string   `json:"closing_time"`
	FoodAvailability bool     `json:"food_availability"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Address          string   `json:"address"`
	Geohash          string   `json:"geohash,omitempty"`
	Distance         *float64 `json:"distance,omitempty"`
}

func NewView(s CoworkingSpace) View {
	v := View{
		ID:               s.ID,
		Name:             s.Name,
		Price:            s.Price,
		OpeningTime:      s.OpeningTime.String(),
		ClosingTime:      s.ClosingTime.String(),
		FoodAvailability: s.FoodAvailability,
		Latitude:         s.Latitude,
		Longitude:        s.Longitude,
		Address:          s.Address,
	}
	if s.Point().Valid() {
		v.Geohash = geohash.EncodeWithPrecision(s.Latitude, s.Longitude, geohashPrecision)
	}
	return v
}

type Service struct {
	repo          Repository
	tracer        trace.Tracer
	queryDuration metric.Float64Histogram
}

func NewService(repo Repository) *Service {
	queryDuration, err := otel.Meter(instrumentationName).Float64Histogram("coworking.query.duration",
		metric.WithDescription("Duration of catalog queries"),
		metric.WithUnit("ms"))
	if err != nil {
		slog.Warn("Unable to create query duration histogram", slog.Any("error", err))
		queryDuration = noop.Float64Histogram{}
	}

	return &Service{
		repo:          repo,
		tracer:        otel.Tracer(instrumentationName),
		queryDuration: queryDuration,
	}
}

// List returns every catalogued venue.
func (s *Service) List(ctx context.Context) (views []View, err error) {
	ctx, finish := s.start(ctx, "space.List")
	defer func() { finish(err) }()

	spaces, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	views = make([]View, 0, len(spaces))
	for _, sp := range spaces {
		views = append(views, NewView(sp))
	}
	return views, nil
}

// Search returns venues whose name contains text, compared with Unicode case folding.
// Empty text matches every venue. Wildcard characters in text are matched literally.
func (s *Service) Search(ctx context.Context, text string) (views []View, err error) {
	ctx, finish := s.start(ctx, "space.Search", attribute.String("search.text", text))
	defer func() { finish(err) }()

	spaces, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(text)

	views = make([]View, 0)
	for _, sp := range spaces {
		if strings.Contains(fold.String(sp.Name), needle) {
			views = append(views, NewView(sp))
		}
	}
	return views, nil
}

// NearestTo ranks every venue by geodesic distance from the given point, nearest first.
// Ties keep the store's enumeration order. Venues with out-of-range coordinates are
// appended after the ranked ones without a distance.
func (s *Service) NearestTo(ctx context.Context, lat, lon float64) (views []View, err error) {
	ctx, finish := s.start(ctx, "space.NearestTo",
		attribute.Float64("user.latitude", lat), attribute.Float64("user.longitude", lon))
	defer func() { finish(err) }()

	user := geodist.Point{Lat: lat, Lon: lon}
	if !user.Valid() {
		return nil, &InputError{Param: "coordinates", Value: user.String(), Err: geodist.ErrInvalidPoint}
	}

	spaces, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	views = make([]View, 0, len(spaces))
	var unranked []View
	for _, sp := range spaces {
		v := NewView(sp)
		d, distErr := geodist.Distance(user, sp.Point())
		if distErr != nil {
			slog.Debug("Skipping distance for venue", slog.Int64("id", sp.ID), slog.Any("error", distErr))
			unranked = append(unranked, v)
			continue
		}
		v.Distance = &d
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return *views[i].Distance < *views[j].Distance
	})

	return append(views, unranked...), nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (view View, err error) {
	ctx, finish := s.start(ctx, "space.GetByID", attribute.Int64("space.id", id))
	defer func() { finish(err) }()

	sp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(*sp), nil
}

// ParseCoordinates converts raw latitude/longitude parameters, rejecting missing,
// non-numeric and non-finite values with an InputError.
func ParseCoordinates(latRaw, lonRaw string) (float64, float64, error) {
	lat, err := parseCoordinate("latitude", latRaw)
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseCoordinate("longitude", lonRaw)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

var errMissing = errors.New("value is required")

func parseCoordinate(param, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &InputError{Param: param, Value: raw, Err: errMissing}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &InputError{Param: param, Value: raw, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InputError{Param: param, Value: raw, Err: geodist.ErrInvalidPoint}
	}
	return v, nil
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	begin := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.queryDuration.Record(ctx, float64(time.Since(begin).Microseconds())/1000,
			metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", outcome)))
		span.End()
	}
}
