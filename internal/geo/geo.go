// Package geo provides the coordinate types and distance math used by proximity queries.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS 84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point lies within latitude [-90, 90] and longitude [-180, 180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b Point) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Within reports whether b lies at most radiusKm from a.
func Within(a, b Point, radiusKm float64) bool {
	return HaversineKm(a, b) <= radiusKm
}

// Offset returns the point reached by moving north by dNorthKm and east by dEastKm.
// It uses a flat-earth approximation that is accurate for short distances.
func Offset(p Point, dNorthKm, dEastKm float64) Point {
	dLat := dNorthKm / earthRadiusKm
	dLon := dEastKm / (earthRadiusKm * math.Cos(toRad(p.Latitude)))
	return Point{
		Latitude:  p.Latitude + dLat*180/math.Pi,
		Longitude: p.Longitude + dLon*180/math.Pi,
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
