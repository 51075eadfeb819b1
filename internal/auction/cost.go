// README: Per-pair feasibility checks and the weighted penalty cost model.
package auction

import (
	"biddrop/internal/geo"
)

// Feasible applies the hard constraints for assigning ask a to driver d:
// enough capacity, and an optimistic straight-line arrival (driver to pickup
// to dropoff at avgKmh) that still makes the ask's deadline. It is necessary
// but not sufficient, so it serves both the pre-filter and expansion.
func Feasible(d DriverState, a Ask, avgKmh float64) bool {
	if d.CapacityLeft < a.Size {
		return false
	}
	leg1 := geo.TravelETAMin(geo.HaversineKm(d.Pos, a.Pickup), avgKmh)
	leg2 := geo.TravelETAMin(geo.HaversineKm(a.Pickup, a.Dropoff), avgKmh)
	if a.WindowEnd != nil && d.TimeMin+leg1+leg2 > *a.WindowEnd {
		return false
	}
	return true
}

// StepCost is the weighted penalty of assigning ask a to driver d at the
// given revealed price. Every term is clamped non-negative, which the search
// core requires for its optimality guarantee.
func StepCost(d DriverState, a Ask, w Weights, avgKmh, revealedPrice, ratingMax float64) float64 {
	distKm, etaMin := assignLegs(d, a, avgKmh)
	return penalty(w, distKm, etaMin, revealedPrice, ratingPenalty(d, ratingMax))
}

// assignLegs returns the combined driver->pickup->dropoff distance and its
// travel time at avgKmh.
func assignLegs(d DriverState, a Ask, avgKmh float64) (distKm, etaMin float64) {
	distKm = geo.HaversineKm(d.Pos, a.Pickup) + geo.HaversineKm(a.Pickup, a.Dropoff)
	etaMin = geo.TravelETAMin(distKm, avgKmh)
	return distKm, etaMin
}

func ratingPenalty(d DriverState, ratingMax float64) float64 {
	p := ratingMax - d.Rating
	if p < 0 {
		return 0
	}
	return p
}

func penalty(w Weights, distKm, etaMin, price, ratingPen float64) float64 {
	if price < 0 {
		price = 0
	}
	return w.Dist*distKm + w.ETA*etaMin + w.Price*price + w.RatingPenalty*ratingPen
}
