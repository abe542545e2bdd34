// Package proximity implements distance math and the alarm state machine.
package proximity

import (
	"math"

	"arrivo/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two
// points using the haversine formula. Coordinates are not validated: NaN or
// out-of-range degrees produce a meaningless result rather than an error.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// EtaMinutes converts a distance into travel minutes at a constant speed.
// speedKmh must be positive; Config.Validate guarantees that for configured speeds.
func EtaMinutes(distanceKm, speedKmh float64) float64 {
	return distanceKm / speedKmh * 60
}

// Measure computes the distance between a and b and the naive ETA at speedKmh.
func Measure(a, b types.Point, speedKmh float64) DistanceResult {
	km := DistanceKm(a, b)
	return DistanceResult{Kilometers: km, EtaMinutes: EtaMinutes(km, speedKmh)}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
