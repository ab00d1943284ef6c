// Package geodist computes geodesic distances on the WGS84 ellipsoid.
package geodist

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/tidwall/geodesic"
)

var ErrInvalidPoint = errors.New("coordinates out of range")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies within [-90, 90] x [-180, 180]. NaN is never valid.
func (p Point) Valid() bool {
	return s2.LatLngFromDegrees(p.Lat, p.Lon).IsValid()
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.Lat, p.Lon)
}

// Distance returns the geodesic distance between a and b in kilometers, solved with
// Karney's algorithm on the WGS84 ellipsoid. Nearly antipodal points converge as well.
func Distance(a, b Point) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPoint, a)
	}
	if !b.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPoint, b)
	}
	if a == b {
		return 0, nil
	}

	// solve in a fixed argument order so that Distance(a, b) == Distance(b, a) bit for bit
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lon < a.Lon) {
		a, b = b, a
	}

	var meters float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &meters, nil, nil)
	return meters / 1000, nil
}
