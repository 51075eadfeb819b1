// README: State-space adapter translating the assignment problem into the
// generic search contract, plus plan reconstruction.
package auction

import (
	"math"
	"strconv"
	"strings"

	"biddrop/internal/search"
)

const skippedDriver = -1

// assignNode is one search state: which asks are decided, which drivers are
// already committed in this plan, and a full driver snapshot. Nodes are
// allocated fresh on every expansion, so pointer identity doubles as path
// identity and the parent map stays private to one run, keeping Solve
// re-entrant.
type assignNode struct {
	mask    uint64 // decided asks
	used    uint64 // drivers holding an assignment; one ask per driver per plan
	drivers []DriverState
}

type parentEdge struct {
	prev *assignNode
	pair Pair // Driver == skippedDriver for a skip move
	cost float64
}

type adapter struct {
	p      *Problem
	all    uint64
	parent map[*assignNode]parentEdge
}

func newAdapter(p *Problem) *adapter {
	return &adapter{
		p:      p,
		all:    (uint64(1) << uint(len(p.Asks))) - 1,
		parent: make(map[*assignNode]parentEdge),
	}
}

func (ad *adapter) start() *assignNode {
	drivers := make([]DriverState, len(ad.p.Drivers))
	copy(drivers, ad.p.Drivers)
	return &assignNode{drivers: drivers}
}

func (ad *adapter) isGoal(n *assignNode) bool {
	return n.mask == ad.all
}

// candidates returns the driver indices allowed to serve ask i.
func (ad *adapter) candidates(i int) []int {
	if ad.p.AllowedDrivers != nil {
		return ad.p.AllowedDrivers[i]
	}
	all := make([]int, len(ad.p.Drivers))
	for j := range all {
		all[j] = j
	}
	return all
}

func (ad *adapter) revealedPrice(i, j int) float64 {
	if ad.p.RevealedPrices == nil {
		return 0
	}
	return ad.p.RevealedPrices[PairKey{Ask: i, Driver: j}]
}

func (ad *adapter) priceLowerBound(i int) float64 {
	if ad.p.PriceLowerBounds == nil {
		return 0
	}
	return ad.p.PriceLowerBounds[i]
}

func (ad *adapter) skipCost() float64 {
	if ad.p.SkipPenalty < 0 {
		return 0
	}
	return ad.p.SkipPenalty
}

// expand decides the lowest-index undecided ask: one successor per feasible
// candidate driver, plus a skip successor when partial matching is on. The
// mask strictly grows along every edge, so the state graph is a DAG and the
// search always terminates.
func (ad *adapter) expand(n *assignNode) ([]search.Successor[*assignNode], error) {
	i := lowestUnsetBit(n.mask, len(ad.p.Asks))
	if i < 0 {
		return nil, nil
	}
	a := ad.p.Asks[i]

	var succs []search.Successor[*assignNode]
	for _, j := range ad.candidates(i) {
		// One ask per driver per plan; bundling is a deliberate non-feature.
		if n.used&(1<<uint(j)) != 0 {
			continue
		}
		d := n.drivers[j]
		if !Feasible(d, a, ad.p.AvgSpeedKmh) {
			continue
		}

		distKm, etaMin := assignLegs(d, a, ad.p.AvgSpeedKmh)
		cost := penalty(ad.p.Weights, distKm, etaMin, ad.revealedPrice(i, j), ratingPenalty(d, ad.p.RatingMax))

		drivers := make([]DriverState, len(n.drivers))
		copy(drivers, n.drivers)
		left := d.CapacityLeft - a.Size
		if left < 0 {
			left = 0
		}
		drivers[j] = DriverState{
			DriverID:     d.DriverID,
			Pos:          a.Dropoff,
			TimeMin:      d.TimeMin + etaMin,
			CapacityLeft: left,
			Rating:       d.Rating,
		}

		next := &assignNode{mask: n.mask | 1<<uint(i), used: n.used | 1<<uint(j), drivers: drivers}
		ad.parent[next] = parentEdge{prev: n, pair: Pair{Ask: i, Driver: j}, cost: cost}
		succs = append(succs, search.Successor[*assignNode]{State: next, Cost: cost})
	}

	if ad.p.AllowSkips {
		// Skips leave every driver untouched, so the snapshot can be shared.
		next := &assignNode{mask: n.mask | 1<<uint(i), used: n.used, drivers: n.drivers}
		cost := ad.skipCost()
		ad.parent[next] = parentEdge{prev: n, pair: Pair{Ask: i, Driver: skippedDriver}, cost: cost}
		succs = append(succs, search.Successor[*assignNode]{State: next, Cost: cost})
	}

	return succs, nil
}

// heuristic sums, over still-undecided asks, the best-case single-driver
// penalty with the per-ask price lower bound standing in for the unknown
// revealed price. Driver contention is deliberately ignored; each ask is
// bounded in isolation, which keeps the estimate admissible. With partial
// matching on, skipping caps each term, so the bound stays valid there too.
func (ad *adapter) heuristic(n *assignNode) float64 {
	total := 0.0
	for i, a := range ad.p.Asks {
		if n.mask&(1<<uint(i)) != 0 {
			continue
		}
		best := math.Inf(1)
		for _, j := range ad.candidates(i) {
			if n.used&(1<<uint(j)) != 0 {
				continue
			}
			d := n.drivers[j]
			distKm, etaMin := assignLegs(d, a, ad.p.AvgSpeedKmh)
			lb := penalty(ad.p.Weights, distKm, etaMin, ad.priceLowerBound(i), ratingPenalty(d, ad.p.RatingMax))
			if lb < best {
				best = lb
			}
		}
		if ad.p.AllowSkips && ad.skipCost() < best {
			best = ad.skipCost()
		}
		total += best
	}
	return total
}

// key projects a state onto its duplicate-detection identity: the decision
// mask plus a quantized driver snapshot. The coarsening collapses drivers
// that are close enough in position, time and capacity; it only trades a
// little pruning precision for speed and never changes the final answer.
func (ad *adapter) key(n *assignNode) string {
	var b strings.Builder
	b.Grow(24 + len(n.drivers)*24)
	b.WriteString(strconv.FormatUint(n.mask, 16))
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(n.used, 16))
	for _, d := range n.drivers {
		q := QuantizeDriver(d)
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(q.LatMilli, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(q.LngMilli, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(q.TimeBin, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(q.CapDeci, 10))
	}
	return b.String()
}

// QuantizedDriver is the coarse projection of a DriverState used for
// duplicate pruning: position to 3 decimal degrees (~110m), time in 5-minute
// bins, capacity to one decimal.
type QuantizedDriver struct {
	LatMilli int64
	LngMilli int64
	TimeBin  int64
	CapDeci  int64
}

func QuantizeDriver(d DriverState) QuantizedDriver {
	return QuantizedDriver{
		LatMilli: int64(math.Round(d.Pos.Lat * 1000)),
		LngMilli: int64(math.Round(d.Pos.Lng * 1000)),
		TimeBin:  int64(math.Floor(d.TimeMin / 5)),
		CapDeci:  int64(math.Round(d.CapacityLeft * 10)),
	}
}

// reconstruct walks the parent chain from goal back to the initial state and
// restores ask-index order. Skip moves are counted but dropped from the plan.
func (ad *adapter) reconstruct(goal *assignNode) (Plan, Debug) {
	plan := Plan{}
	var dbg Debug
	for cur := goal; ; {
		edge, ok := ad.parent[cur]
		if !ok {
			break
		}
		if edge.pair.Driver == skippedDriver {
			dbg.Skipped++
		} else {
			plan = append(plan, edge.pair)
			dbg.Matched++
		}
		cur = edge.prev
	}
	for l, r := 0, len(plan)-1; l < r; l, r = l+1, r-1 {
		plan[l], plan[r] = plan[r], plan[l]
	}
	return plan, dbg
}

func lowestUnsetBit(mask uint64, n int) int {
	for i := 0; i < n; i++ {
		if mask&(1<<uint(i)) == 0 {
			return i
		}
	}
	return -1
}
