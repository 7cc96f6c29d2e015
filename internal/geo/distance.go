// Package geo implements coordinate math and the fulfillment locator.
package geo

import "math"

// EarthRadiusKm is Earth's radius in kilometers for the Haversine calculation.
const EarthRadiusKm = 6371.0

// Coordinate is a (latitude, longitude) pair in decimal degrees.
// It is always constructed as a whole value; partial coordinates never
// enter distance computation.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineKm calculates the great-circle distance between two points in kilometers.
func HaversineKm(a, b Coordinate) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// DistanceKm returns the great-circle distance rounded to one decimal kilometer.
func DistanceKm(a, b Coordinate) float64 {
	return math.Round(HaversineKm(a, b)*10) / 10
}
