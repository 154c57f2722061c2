package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusKm = 6371.0

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LngLat returns the point in GeoJSON axis order.
func (p GeoPoint) LngLat() []float64 {
	return []float64{p.Lng, p.Lat}
}

func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.5f, %.5f", p.Lat, p.Lng)
}

func FromPoint(pt orb.Point) GeoPoint {
	return GeoPoint{Lat: pt.Lat(), Lng: pt.Lon()}
}

// FromLngLat parses a [lng, lat] pair.
func FromLngLat(pair []float64) (GeoPoint, error) {
	if len(pair) < 2 {
		return GeoPoint{}, fmt.Errorf("expected [lng, lat], got %d values", len(pair))
	}
	p := GeoPoint{Lat: pair[1], Lng: pair[0]}
	if !p.Valid() {
		return GeoPoint{}, ErrInvalidCoordinate
	}
	return p, nil
}

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func DistanceMeters(a, b GeoPoint) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
