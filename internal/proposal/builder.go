// README: Price/distance-driven proposal builder for the consensus layer.
// Second consumer of the generic search core: it pairs open market requests
// with active offers to maximize a score, and hands the resulting match list
// to whoever submits proposals on-chain.
package proposal

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"biddrop/internal/geo"
	"biddrop/internal/search"
	"biddrop/internal/types"
)

// Request is an open market request in wire form: integer micro-degrees and
// cents, as the consensus layer encodes them.
type Request struct {
	ID            uuid.UUID
	FromLatE6     int64
	FromLngE6     int64
	ToLatE6       int64
	ToLngE6       int64
	MaxPriceCents int64 // 0 means uncapped
	Kind          int   // 0 = package, 1 = passenger
}

// Offer is an active courier offer in wire form.
type Offer struct {
	ID            uuid.UUID
	MinPriceCents int64
	FromLatE6     int64
	FromLngE6     int64
	ToLatE6       int64
	ToLngE6       int64
	WindowStartMs int64
	WindowEndMs   int64
	TypesMask     uint32
}

// Match is one proposed pairing with its agreed price and score share.
type Match struct {
	RequestID        uuid.UUID
	OfferID          uuid.UUID
	AgreedPriceCents int64
	PartialScore     int64
}

// Proposal is the builder's output for one consensus slot.
type Proposal struct {
	Slot       uint64
	TotalScore int64
	Matches    []Match
}

// Limits optionally reject pairings whose pickup, dropoff or combined
// distance exceeds a cap. Zero values disable the corresponding cap.
type Limits struct {
	MaxStartKm float64
	MaxEndKm   float64
	MaxTotalKm float64
}

// minAgreedPriceCents floors the agreed price so every pairing carries a
// strictly positive cost, which keeps the search's step costs positive.
const minAgreedPriceCents = 100

// Build computes the best proposal for a slot: exactly min(|requests|,
// |offers|) pairings, each offer used at most once, maximizing the summed
// score -(startKm + endKm) - price. Internally the score is negated into a
// positive cost and minimized by the search core. An empty proposal (score
// zero, no matches) means no complete pairing exists; that is a normal
// outcome, not an error.
func Build(slot uint64, requests []Request, offers []Offer, limits Limits) (Proposal, error) {
	if len(offers) > 64 {
		return Proposal{}, fmt.Errorf("proposal: %d offers exceed the 64-offer usage mask", len(offers))
	}

	n := len(requests)
	if len(offers) < n {
		n = len(offers)
	}
	out := Proposal{Slot: slot}
	if n == 0 {
		return out, nil
	}

	cost, score, price := pairTables(requests, offers, limits)

	b := &builder{
		n:      n,
		offers: len(offers),
		cost:   cost,
		parent: make(map[*node]edge),
	}

	start := &node{}
	goal, _, found, err := search.Search(start, b.heuristic, b.expand, b.isGoal, b.key)
	if err != nil {
		return Proposal{}, err
	}
	if !found {
		return out, nil
	}

	for cur := goal; ; {
		e, ok := b.parent[cur]
		if !ok {
			break
		}
		out.Matches = append(out.Matches, Match{
			RequestID:        requests[e.req].ID,
			OfferID:          offers[e.off].ID,
			AgreedPriceCents: price[e.req][e.off],
			PartialScore:     score[e.req][e.off],
		})
		out.TotalScore += score[e.req][e.off]
		cur = e.prev
	}
	// The parent walk yields matches goal-first; restore request order.
	for l, r := 0, len(out.Matches)-1; l < r; l, r = l+1, r-1 {
		out.Matches[l], out.Matches[r] = out.Matches[r], out.Matches[l]
	}
	return out, nil
}

// pairTables precomputes cost, score and agreed price for every
// (request, offer) pair; +Inf cost marks an infeasible pairing.
func pairTables(requests []Request, offers []Offer, limits Limits) (cost [][]float64, score, price [][]int64) {
	cost = make([][]float64, len(requests))
	score = make([][]int64, len(requests))
	price = make([][]int64, len(requests))

	for i, r := range requests {
		cost[i] = make([]float64, len(offers))
		score[i] = make([]int64, len(offers))
		price[i] = make([]int64, len(offers))

		for j, o := range offers {
			cost[i][j] = math.Inf(1)

			if r.MaxPriceCents != 0 && o.MinPriceCents > r.MaxPriceCents {
				continue
			}
			startKm := geo.HaversineKm(pointE6(r.FromLatE6, r.FromLngE6), pointE6(o.FromLatE6, o.FromLngE6))
			endKm := geo.HaversineKm(pointE6(r.ToLatE6, r.ToLngE6), pointE6(o.ToLatE6, o.ToLngE6))
			if limits.MaxStartKm > 0 && startKm > limits.MaxStartKm {
				continue
			}
			if limits.MaxEndKm > 0 && endKm > limits.MaxEndKm {
				continue
			}
			if limits.MaxTotalKm > 0 && startKm+endKm > limits.MaxTotalKm {
				continue
			}

			p := o.MinPriceCents
			if p < minAgreedPriceCents {
				p = minAgreedPriceCents
			}
			sc := int64(math.Floor(-(startKm + endKm) - float64(p)/100.0))
			score[i][j] = sc
			price[i][j] = p
			cost[i][j] = float64(-sc)
		}
	}
	return cost, score, price
}

// node is one search state: the next request index to pair and the mask of
// consumed offers. Fresh nodes per expansion keep the parent map a faithful
// record of the generating path.
type node struct {
	next int
	used uint64
}

type edge struct {
	prev *node
	req  int
	off  int
}

type builder struct {
	n      int
	offers int
	cost   [][]float64
	parent map[*node]edge
}

func (b *builder) isGoal(n *node) bool { return n.next == b.n }

// heuristic is zero: safe at MVP sizes, at the cost of weaker pruning.
func (b *builder) heuristic(*node) float64 { return 0 }

func (b *builder) expand(cur *node) ([]search.Successor[*node], error) {
	if cur.next >= b.n {
		return nil, nil
	}
	var succs []search.Successor[*node]
	for j := 0; j < b.offers; j++ {
		if cur.used&(1<<uint(j)) != 0 {
			continue
		}
		c := b.cost[cur.next][j]
		if math.IsInf(c, 1) {
			continue
		}
		next := &node{next: cur.next + 1, used: cur.used | 1<<uint(j)}
		b.parent[next] = edge{prev: cur, req: cur.next, off: j}
		succs = append(succs, search.Successor[*node]{State: next, Cost: c})
	}
	return succs, nil
}

func (b *builder) key(cur *node) node { return *cur }

func pointE6(latE6, lngE6 int64) types.Point {
	return types.Point{Lat: float64(latE6) / 1e6, Lng: float64(lngE6) / 1e6}
}
