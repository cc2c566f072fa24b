// Package geo holds the coordinate math and PostGIS point decoding shared by
// the validator, the coherence checker and the storage layer.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceKm returns the great-circle distance between two WGS84 points
// using the Haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := ToRadians(lat2 - lat1)
	dLng := ToRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(ToRadians(lat1))*math.Cos(ToRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
