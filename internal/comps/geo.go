package comps

import (
	"math"

	"comppulse/internal/records"
)

const (
	earthRadiusMiles = 3958.8

	// DefaultAssumedDistanceMiles is used when either record lacks
	// coordinates: the pair is treated as "assumed nearby", never as an
	// error, so geocoding gaps don't empty the comparable pool.
	DefaultAssumedDistanceMiles = 0.5
)

// MilesBetween returns the haversine distance in miles between two
// records, or DefaultAssumedDistanceMiles when either lacks coordinates.
func MilesBetween(a, b *records.CleanRecord) float64 {
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return DefaultAssumedDistanceMiles
	}

	lat1 := *a.Lat * math.Pi / 180
	lat2 := *b.Lat * math.Pi / 180
	dLat := (*b.Lat - *a.Lat) * math.Pi / 180
	dLng := (*b.Lng - *a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
