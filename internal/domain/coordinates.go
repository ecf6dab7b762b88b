package domain

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

const earthRadiusKm = 6371.0

// Immutable geographic coordinate in decimal degrees (latitude, longitude).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects NaN/Inf and out-of-range latitude or longitude.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinate) CoordsToList() []float64 { return []float64{c.Lng, c.Lat} }

// Key renders the coordinate rounded to 5 decimals (about 1 m), for cache keys.
func (c Coordinate) Key() string { return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng) }

// FromLonLat builds a Coordinate from a wire-order [lon, lat] pair.
func FromLonLat(pair []float64) (Coordinate, error) {
	if len(pair) < 2 {
		return Coordinate{}, fmt.Errorf("%w: expected [lon, lat], got %d values", ErrInvalidCoordinate, len(pair))
	}
	c := Coordinate{Lat: pair[1], Lng: pair[0]}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b Coordinate) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
