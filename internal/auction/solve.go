// README: Solve glues validation, the state-space adapter, the search core
// and plan reconstruction into the clearing engine's public entry point.
package auction

import (
	"fmt"
	"math"

	"biddrop/internal/search"
)

// Problem is one immutable clearing instance. A Problem is built once per
// cycle from persisted rows and discarded afterwards; Solve never mutates it,
// so distinct instances may be solved concurrently.
type Problem struct {
	Asks        []Ask
	Drivers     []DriverState
	Weights     Weights
	AvgSpeedKmh float64
	RatingMax   float64

	// AllowedDrivers restricts, per ask, which driver indices may serve it
	// (the pre-filter's candidate sets). nil means every driver is allowed
	// for every ask.
	AllowedDrivers [][]int

	// RevealedPrices holds the agreed price per (ask, driver) pair, typically
	// the driver's cheapest compatible offer. Missing pairs price at zero.
	RevealedPrices map[PairKey]float64

	// PriceLowerBounds is the per-ask minimum revealed price, used only by
	// the heuristic. nil means a zero lower bound everywhere.
	PriceLowerBounds []float64

	// AllowSkips enables partial matching: an ask may stay unmatched at
	// SkipPenalty cost instead of forcing the whole search to fail.
	AllowSkips  bool
	SkipPenalty float64
}

// Solve finds the minimum-penalty assignment of asks to drivers.
//
// A nil plan with +Inf cost means no complete decision exists (only possible
// with partial matching off); that is the quiet "nothing to clear" outcome.
// An error always means malformed input and is raised before any search.
func Solve(p Problem) (Plan, float64, Debug, error) {
	if err := p.validate(); err != nil {
		return nil, 0, Debug{}, err
	}

	ad := newAdapter(&p)
	start := ad.start()
	goal, cost, found, err := search.Search(start, ad.heuristic, ad.expand, ad.isGoal, ad.key)
	if err != nil {
		return nil, 0, Debug{}, err
	}
	if !found {
		return nil, math.Inf(1), Debug{}, nil
	}

	plan, dbg := ad.reconstruct(goal)
	return plan, cost, dbg, nil
}

func (p *Problem) validate() error {
	if len(p.Asks) > 64 {
		return fmt.Errorf("auction: %d asks exceed the 64-ask decision mask", len(p.Asks))
	}
	if len(p.Drivers) > 64 {
		return fmt.Errorf("auction: %d drivers exceed the 64-driver usage mask", len(p.Drivers))
	}
	if p.AllowedDrivers != nil && len(p.AllowedDrivers) != len(p.Asks) {
		return fmt.Errorf("auction: allowed-driver lists cover %d asks, want %d", len(p.AllowedDrivers), len(p.Asks))
	}
	if p.PriceLowerBounds != nil && len(p.PriceLowerBounds) != len(p.Asks) {
		return fmt.Errorf("auction: price lower bounds cover %d asks, want %d", len(p.PriceLowerBounds), len(p.Asks))
	}
	for i, cands := range p.AllowedDrivers {
		for _, j := range cands {
			if j < 0 || j >= len(p.Drivers) {
				return fmt.Errorf("auction: ask %d references driver index %d outside 0..%d", i, j, len(p.Drivers)-1)
			}
		}
	}
	for i, a := range p.Asks {
		if a.Size < 0 {
			return fmt.Errorf("auction: ask %d has negative size %v", i, a.Size)
		}
	}
	if p.Weights.Dist < 0 || p.Weights.ETA < 0 || p.Weights.Price < 0 || p.Weights.RatingPenalty < 0 {
		return fmt.Errorf("auction: weights must be non-negative, got %+v", p.Weights)
	}
	return nil
}
