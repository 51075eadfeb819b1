// README: Clearing-engine domain model: asks, driver states, weights, plans.
package auction

import (
	"biddrop/internal/types"
)

// Kind classifies what an ask wants moved. Ride and passenger requests are
// interchangeable on the driver side.
type Kind string

const (
	KindPassenger Kind = "passenger"
	KindPackage   Kind = "package"
)

// NormalizeKind folds the legacy "ride" spelling into passenger and treats
// everything else as a package.
func NormalizeKind(raw string) Kind {
	switch raw {
	case "ride", "passenger":
		return KindPassenger
	}
	return KindPackage
}

// Matches reports whether a driver who serves kinds can take an ask of kind k.
func (k Kind) Matches(kinds []string) bool {
	for _, raw := range kinds {
		if NormalizeKind(raw) == k {
			return true
		}
	}
	return false
}

// Ask is one open transport request entering a clearing cycle. It is an
// immutable snapshot of a persisted request row and lives only for the cycle.
type Ask struct {
	ID       types.ID
	Kind     Kind
	Pickup   types.Point
	Dropoff  types.Point
	Size     float64 // capacity units consumed (passengers or package size)
	MaxPrice float64 // price ceiling; <= 0 means uncapped

	// Optional delivery window in monotonic minutes.
	WindowStart *float64
	WindowEnd   *float64
}

// DriverState is a driver's simulated position in time during the search.
// Assigning an ask produces a fresh value; nothing is mutated in place.
type DriverState struct {
	DriverID     types.ID
	Pos          types.Point
	TimeMin      float64
	CapacityLeft float64
	Rating       float64 // 0..rating max
}

// OfferTerms is one driver offer as seen by the pre-filter: who could serve,
// at what floor price, in which window, for which kinds.
type OfferTerms struct {
	Driver      int // index into the cycle's driver list
	MinPrice    float64
	Kinds       []string
	WindowStart *float64
	WindowEnd   *float64
}

// Weights are the non-negative penalty weights of the cost model. The engine
// minimizes their weighted sum.
type Weights struct {
	Dist          float64
	ETA           float64
	Price         float64
	RatingPenalty float64
}

// DefaultWeights mirror the production clearing tick defaults.
func DefaultWeights() Weights {
	return Weights{Dist: 1.0, ETA: 0.2, Price: 1.0, RatingPenalty: 0.3}
}

// PairKey addresses one (ask index, driver index) cell of the revealed-price
// table.
type PairKey struct {
	Ask    int
	Driver int
}

// Pair is one line of a clearing plan: ask i is fulfilled by driver j.
type Pair struct {
	Ask    int
	Driver int
}

// Plan is the ordered assignment list produced by a successful search.
// Skipped asks do not appear.
type Plan []Pair

// Debug carries observability counters alongside a plan.
type Debug struct {
	Matched int
	Skipped int
}
