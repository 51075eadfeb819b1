// README: Pre-search pruning: candidate driver sets per ask, revealed price
// table, and the ask cap that bounds the search space.
package auction

import (
	"math"
	"sort"

	"biddrop/internal/geo"
)

// DefaultWindowToleranceMin is the slack applied to time-window overlap
// checks during pre-filtering.
const DefaultWindowToleranceMin = 20.0

// FilterCounts explains why pairs were rejected, for the "why no matches"
// diagnosis that operators inevitably ask for.
type FilterCounts struct {
	PairsChecked    int
	FilteredByType  int
	FilteredByTime  int
	FilteredByPrice int
}

// PrefilterResult is the pruned problem slice handed to Solve. KeptAsks maps
// each surviving ask back to its index in the caller's original slice so the
// plan can be translated into row identities afterwards.
type PrefilterResult struct {
	Asks             []Ask
	KeptAsks         []int
	AllowedDrivers   [][]int
	RevealedPrices   map[PairKey]float64
	PriceLowerBounds []float64
	Counts           FilterCounts
}

// Prefilter intersects type, time-window and price compatibility for every
// (ask, offer) pair, drops asks no driver can serve, and caps the surviving
// asks at numDrivers, keeping the cheapest/most urgent ones. A price ceiling
// of zero or less never filters on price. tolMin <= 0 falls back to the
// default tolerance.
func Prefilter(asks []Ask, offers []OfferTerms, numDrivers int, tolMin float64) PrefilterResult {
	if tolMin <= 0 {
		tolMin = DefaultWindowToleranceMin
	}

	res := PrefilterResult{RevealedPrices: make(map[PairKey]float64)}

	allowed := make([][]int, len(asks))
	priceLB := make([]float64, len(asks))
	bestPrice := make([]map[int]float64, len(asks))
	for i := range asks {
		priceLB[i] = math.Inf(1)
		bestPrice[i] = make(map[int]float64)
	}

	for i, a := range asks {
		for _, off := range offers {
			res.Counts.PairsChecked++

			if !a.Kind.Matches(off.Kinds) {
				res.Counts.FilteredByType++
				continue
			}
			if !geo.WindowsOverlap(a.WindowStart, a.WindowEnd, off.WindowStart, off.WindowEnd, tolMin) {
				res.Counts.FilteredByTime++
				continue
			}
			if a.MaxPrice > 0 && off.MinPrice > a.MaxPrice {
				res.Counts.FilteredByPrice++
				continue
			}

			// A driver may hold several compatible offers; the cheapest one
			// is the price this pair would clear at.
			prev, seen := bestPrice[i][off.Driver]
			if !seen {
				allowed[i] = append(allowed[i], off.Driver)
			}
			if !seen || off.MinPrice < prev {
				bestPrice[i][off.Driver] = off.MinPrice
			}
			if off.MinPrice < priceLB[i] {
				priceLB[i] = off.MinPrice
			}
		}
	}

	// Drop asks with no candidates; they cannot be matched this cycle and
	// stay open for the next one.
	for i := range asks {
		if len(allowed[i]) == 0 {
			continue
		}
		res.Asks = append(res.Asks, asks[i])
		res.KeptAsks = append(res.KeptAsks, i)
		res.AllowedDrivers = append(res.AllowedDrivers, allowed[i])
		lb := priceLB[i]
		if math.IsInf(lb, 1) {
			lb = 0
		}
		res.PriceLowerBounds = append(res.PriceLowerBounds, lb)
	}

	// Surplus asks beyond the driver count cannot all be matched anyway;
	// keep the cheapest and most urgent to bound the search space.
	if numDrivers > 0 && len(res.Asks) > numDrivers {
		order := make([]int, len(res.Asks))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(x, y int) bool {
			if res.PriceLowerBounds[order[x]] != res.PriceLowerBounds[order[y]] {
				return res.PriceLowerBounds[order[x]] < res.PriceLowerBounds[order[y]]
			}
			return windowStartOrZero(res.Asks[order[x]]) < windowStartOrZero(res.Asks[order[y]])
		})
		order = order[:numDrivers]
		sort.Ints(order) // keep the original ask order stable

		sel := PrefilterResult{RevealedPrices: res.RevealedPrices, Counts: res.Counts}
		for _, idx := range order {
			sel.Asks = append(sel.Asks, res.Asks[idx])
			sel.KeptAsks = append(sel.KeptAsks, res.KeptAsks[idx])
			sel.AllowedDrivers = append(sel.AllowedDrivers, res.AllowedDrivers[idx])
			sel.PriceLowerBounds = append(sel.PriceLowerBounds, res.PriceLowerBounds[idx])
		}
		res = sel
	}

	// Re-key the revealed price table to the pruned ask indices.
	for newIdx, origIdx := range res.KeptAsks {
		for drv, price := range bestPrice[origIdx] {
			res.RevealedPrices[PairKey{Ask: newIdx, Driver: drv}] = price
		}
	}

	return res
}

func windowStartOrZero(a Ask) float64 {
	if a.WindowStart == nil {
		return 0
	}
	return *a.WindowStart
}
