package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const metersPerDegree = 111320.0

// capSides is the number of vertices used to approximate the round joint
// placed on every route vertex.
const capSides = 12

// Corridor buffers a route polyline into a MultiPolygon: one quad per segment
// plus a polygonal cap on every vertex so bends stay covered. halfWidthM is the
// distance from the centreline to the corridor edge.
func Corridor(line []GeoPoint, halfWidthM float64) orb.MultiPolygon {
	if len(line) == 0 || halfWidthM <= 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for i, p := range line {
		mp = append(mp, vertexCap(p, halfWidthM))
		if i == 0 {
			continue
		}
		if quad, ok := segmentQuad(line[i-1], p, halfWidthM); ok {
			mp = append(mp, quad)
		}
	}
	return mp
}

func segmentQuad(a, b GeoPoint, halfWidthM float64) (orb.Polygon, bool) {
	midLat := (a.Lat + b.Lat) / 2
	mx, my := lngScale(midLat), metersPerDegree

	dx := (b.Lng - a.Lng) * mx
	dy := (b.Lat - a.Lat) * my
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil, false
	}

	// unit normal scaled back to degrees
	nx := -dy / length * halfWidthM / mx
	ny := dx / length * halfWidthM / my

	ring := orb.Ring{
		{a.Lng + nx, a.Lat + ny},
		{b.Lng + nx, b.Lat + ny},
		{b.Lng - nx, b.Lat - ny},
		{a.Lng - nx, a.Lat - ny},
		{a.Lng + nx, a.Lat + ny},
	}
	return orb.Polygon{ring}, true
}

func vertexCap(p GeoPoint, radiusM float64) orb.Polygon {
	rx := radiusM / lngScale(p.Lat)
	ry := radiusM / metersPerDegree

	ring := make(orb.Ring, 0, capSides+1)
	for i := 0; i < capSides; i++ {
		theta := 2 * math.Pi * float64(i) / capSides
		ring = append(ring, orb.Point{p.Lng + rx*math.Cos(theta), p.Lat + ry*math.Sin(theta)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

func lngScale(lat float64) float64 {
	s := metersPerDegree * math.Cos(toRad(lat))
	if s < 1 {
		// poles
		return 1
	}
	return s
}
