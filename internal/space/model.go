package space

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ssherwood/coworkingservice/internal/geodist"
)

const (
	MaxNameLength    = 100
	MaxAddressLength = 200
)

const timeOfDayLayout = "15:04:05"

// TimeOfDay is a wall-clock time with second precision and no date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// TimeOfDayFromSeconds builds a TimeOfDay from seconds since midnight.
func TimeOfDayFromSeconds(seconds int64) TimeOfDay {
	seconds %= 24 * 60 * 60
	return TimeOfDay{Hour: int(seconds / 3600), Minute: int(seconds % 3600 / 60), Second: int(seconds % 60)}
}

func (t TimeOfDay) Seconds() int64 {
	return int64(t.Hour)*3600 + int64(t.Minute)*60 + int64(t.Second)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// CoworkingSpace is one catalogued venue. ID is assigned by the catalog store.
// ClosingTime may be earlier than OpeningTime for venues open overnight.
type CoworkingSpace struct {
	ID               int64
	Name             string
	OpeningTime      TimeOfDay
	ClosingTime      TimeOfDay
	Price            float64
	FoodAvailability bool
	Latitude         float64
	Longitude        float64
	Address          string
}

func (s CoworkingSpace) Point() geodist.Point {
	return geodist.Point{Lat: s.Latitude, Lon: s.Longitude}
}

// Validate enforces the stored column limits. Coordinates are not range checked; an
// out-of-range venue is stored and simply cannot be ranked by distance.
func (s CoworkingSpace) Validate() error {
	if n := utf8.RuneCountInString(s.Name); n > MaxNameLength {
		return &ValidationError{Column: "Name", Value: s.Name, Err: fmt.Errorf("%d characters exceeds limit of %d", n, MaxNameLength)}
	}
	if n := utf8.RuneCountInString(s.Address); n > MaxAddressLength {
		return &ValidationError{Column: "Address", Value: s.Address, Err: fmt.Errorf("%d characters exceeds limit of %d", n, MaxAddressLength)}
	}
	for _, f := range []struct {
		column string
		value  float64
	}{
		{"Price", s.Price},
		{"Latitude", s.Latitude},
		{"Longitude", s.Longitude},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Column: f.column, Value: fmt.Sprint(f.value), Err: fmt.Errorf("not a finite number")}
		}
	}
	for _, t := range []struct {
		column string
		value  TimeOfDay
	}{
		{"Opening Time", s.OpeningTime},
		{"Closing Time", s.ClosingTime},
	} {
		if t.value.Hour < 0 || t.value.Hour > 23 || t.value.Minute < 0 || t.value.Minute > 59 || t.value.Second < 0 || t.value.Second > 59 {
			return &ValidationError{Column: t.column, Value: t.value.String(), Err: fmt.Errorf("not a valid time of day")}
		}
	}
	return nil
}

// validateAll checks every record before a replace touches storage.
func validateAll(spaces []CoworkingSpace) error {
	for i, s := range spaces {
		if err := s.Validate(); err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				vErr.Row = i + 1
			}
			return err
		}
	}
	return nil
}
