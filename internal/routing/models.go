package routing

import "backend-tripalarm/internal/shared/geo"

// Leg is the result of a single directions lookup.
type Leg struct {
	Geometry        []geo.GeoPoint `json:"geometry"`
	DistanceMeters  float64        `json:"distance_m"`
	DurationSeconds float64        `json:"duration_s"`
}

type directionsRequest struct {
	From      []float64   `json:"from"`
	To        []float64   `json:"to"`
	Waypoints [][]float64 `json:"waypoints"`
}

type directionsRoute struct {
	Geometry rawGeometry `json:"geometry"`
	Distance *float64    `json:"distance"`
	Duration *float64    `json:"duration"`
}

type directionsResponse struct {
	directionsRoute
	Routes []directionsRoute `json:"routes"`
}
