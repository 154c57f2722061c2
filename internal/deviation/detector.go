// Package deviation decides whether a traveller has left the corridor around
// the planned route.
package deviation

import (
	"errors"
	"fmt"
	"log"
	"math"

	"backend-tripalarm/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrNoCorridor = errors.New("corridor missing")

// GeometryError reports corridor data the detector cannot evaluate.
type GeometryError struct {
	Reason string
	Err    error
}

func (e *GeometryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deviation: %s: %v", e.Reason, e.Err)
	}
	return "deviation: " + e.Reason
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// IsDeviated reports whether position lies outside the corridor. Corridor data
// that cannot be evaluated fails open: the result is false and the problem is
// logged.
func IsDeviated(position geo.GeoPoint, corridor orb.Geometry) bool {
	deviated, err := Check(position, corridor)
	if err != nil {
		log.Printf("deviation check skipped: %v", err)
		return false
	}
	return deviated
}

// Check is IsDeviated without the fail-open policy.
func Check(position geo.GeoPoint, corridor orb.Geometry) (bool, error) {
	if !position.Valid() {
		return false, &GeometryError{Reason: "position out of range"}
	}
	pt := position.Point()

	switch c := corridor.(type) {
	case nil:
		return false, &GeometryError{Reason: "no corridor", Err: ErrNoCorridor}
	case orb.Polygon:
		if err := validatePolygon(c); err != nil {
			return false, err
		}
		return !planar.PolygonContains(c, pt), nil
	case orb.MultiPolygon:
		if len(c) == 0 {
			return false, &GeometryError{Reason: "empty multipolygon", Err: ErrNoCorridor}
		}
		for _, poly := range c {
			if err := validatePolygon(poly); err != nil {
				return false, err
			}
		}
		for _, poly := range c {
			if planar.PolygonContains(poly, pt) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, &GeometryError{Reason: fmt.Sprintf("unsupported corridor type %s", corridor.GeoJSONType())}
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return &GeometryError{Reason: "polygon without rings"}
	}
	for _, ring := range p {
		if len(ring) < 4 {
			return &GeometryError{Reason: fmt.Sprintf("ring with %d points", len(ring))}
		}
		for _, pt := range ring {
			if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
				return &GeometryError{Reason: "non-finite coordinate"}
			}
		}
	}
	return nil
}
