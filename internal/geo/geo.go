// README: Pure geographic and time-window computation helpers.
package geo

import (
	"math"

	"biddrop/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// TravelETAMin converts a distance into minutes at a constant speed.
// A non-positive speed means the trip can never complete.
func TravelETAMin(distKm, avgKmh float64) float64 {
	if avgKmh <= 0 {
		return math.Inf(1)
	}
	return 60.0 * distKm / avgKmh
}

// WindowsOverlap reports whether an offer window can serve a request window,
// allowing tolMin minutes of slack on each side. A request without a window
// accepts any offer window.
func WindowsOverlap(reqStart, reqEnd, offStart, offEnd *float64, tolMin float64) bool {
	if reqStart == nil || reqEnd == nil {
		return true
	}
	if offStart == nil || offEnd == nil {
		return true
	}
	return *offStart <= *reqEnd+tolMin && *offEnd+tolMin >= *reqStart
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
