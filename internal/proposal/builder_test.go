package proposal

import (
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func req(lat, lng float64, maxCents int64) Request {
	return Request{
		ID:            uuid.New(),
		FromLatE6:     int64(lat * 1e6),
		FromLngE6:     int64(lng * 1e6),
		ToLatE6:       int64((lat + 0.1) * 1e6),
		ToLngE6:       int64((lng + 0.1) * 1e6),
		MaxPriceCents: maxCents,
		Kind:          1,
	}
}

func off(lat, lng float64, minCents int64) Offer {
	return Offer{
		ID:            uuid.New(),
		MinPriceCents: minCents,
		FromLatE6:     int64(lat * 1e6),
		FromLngE6:     int64(lng * 1e6),
		ToLatE6:       int64((lat + 0.1) * 1e6),
		ToLngE6:       int64((lng + 0.1) * 1e6),
	}
}

// bruteForceScore enumerates every complete request->offer injection and
// returns the maximum total score, or false if none exists.
func bruteForceScore(requests []Request, offers []Offer, limits Limits) (int64, bool) {
	cost, score, _ := pairTables(requests, offers, limits)

	n := len(requests)
	if len(offers) < n {
		n = len(offers)
	}
	best := int64(math.MinInt64)
	found := false

	var rec func(i int, used uint64, acc int64)
	rec = func(i int, used uint64, acc int64) {
		if i == n {
			found = true
			if acc > best {
				best = acc
			}
			return
		}
		for j := range offers {
			if used&(1<<uint(j)) != 0 {
				continue
			}
			if math.IsInf(cost[i][j], 1) {
				continue
			}
			rec(i+1, used|1<<uint(j), acc+score[i][j])
		}
	}
	rec(0, 0, 0)
	return best, found
}

func TestBuild_PairsExactlyMinCount(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 0), req(32.2, 34.9, 0)}
	offers := []Offer{off(32.0, 34.8, 500), off(32.2, 34.9, 700), off(32.4, 35.0, 900)}

	p, err := Build(3, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Slot != 3 {
		t.Errorf("slot = %d, want 3", p.Slot)
	}
	if len(p.Matches) != 2 {
		t.Fatalf("matches = %d, want min(2 requests, 3 offers) = 2", len(p.Matches))
	}
	if p.Matches[0].OfferID == p.Matches[1].OfferID {
		t.Error("an offer must be used at most once")
	}
	if p.Matches[0].RequestID != requests[0].ID || p.Matches[1].RequestID != requests[1].ID {
		t.Error("matches must come back in request order")
	}
}

func TestBuild_MaximizesScore(t *testing.T) {
	// Offers sit crossed relative to the requests; the optimal pairing is the
	// crossed one, and the builder's total must equal the brute-force best.
	requests := []Request{req(32.0, 34.8, 0), req(32.5, 35.1, 0)}
	offers := []Offer{off(32.5, 35.1, 500), off(32.0, 34.8, 500)}

	p, err := Build(1, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, ok := bruteForceScore(requests, offers, Limits{})
	if !ok {
		t.Fatal("brute force found no pairing")
	}
	if p.TotalScore != want {
		t.Errorf("total score = %d, brute force best %d", p.TotalScore, want)
	}
	if p.Matches[0].OfferID != offers[1].ID || p.Matches[1].OfferID != offers[0].ID {
		t.Errorf("expected the crossed pairing, got %+v", p.Matches)
	}
}

func TestBuild_PriceConstraint(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 600)}
	offers := []Offer{off(32.0, 34.8, 900), off(32.0, 34.8, 500)}

	p, err := Build(1, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches) != 1 || p.Matches[0].OfferID != offers[1].ID {
		t.Errorf("want only the affordable offer, got %+v", p.Matches)
	}
}

func TestBuild_ZeroMaxPriceIsUncapped(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 0)}
	offers := []Offer{off(32.0, 34.8, 10_000_000)}

	p, err := Build(1, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches) != 1 {
		t.Fatalf("uncapped request must accept any price, got %+v", p.Matches)
	}
	if p.Matches[0].AgreedPriceCents != 10_000_000 {
		t.Errorf("agreed price = %d, want the offer floor", p.Matches[0].AgreedPriceCents)
	}
}

func TestBuild_AgreedPriceFloor(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 0)}
	offers := []Offer{off(32.0, 34.8, 0)} // free offer still clears at the floor

	p, err := Build(1, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Matches[0].AgreedPriceCents != minAgreedPriceCents {
		t.Errorf("agreed price = %d, want floor %d", p.Matches[0].AgreedPriceCents, minAgreedPriceCents)
	}
}

func TestBuild_NoCompletePairingGivesEmptyProposal(t *testing.T) {
	// Request 0 is affordable, request 1 is not; exactly-n semantics mean no
	// complete pairing exists, so the proposal is empty rather than partial.
	requests := []Request{req(32.0, 34.8, 0), req(32.1, 34.9, 100)}
	offers := []Offer{off(32.0, 34.8, 500), off(32.1, 34.9, 500)}

	p, err := Build(1, requests, offers, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches) != 0 || p.TotalScore != 0 {
		t.Errorf("want empty proposal, got %+v", p)
	}
}

func TestBuild_DistanceLimits(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 0)}
	offers := []Offer{off(33.5, 36.0, 500)} // ~200km away

	p, err := Build(1, requests, offers, Limits{MaxStartKm: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches) != 0 {
		t.Errorf("distant offer should be filtered by the start cap, got %+v", p.Matches)
	}
}

func TestBuild_EmptyInputs(t *testing.T) {
	p, err := Build(9, nil, nil, Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Matches) != 0 || p.TotalScore != 0 || p.Slot != 9 {
		t.Errorf("want empty slot-9 proposal, got %+v", p)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	requests := []Request{req(32.0, 34.8, 0), req(32.3, 35.0, 0)}
	offers := []Offer{off(32.1, 34.9, 400), off(32.2, 34.7, 600)}

	p1, err1 := Build(5, requests, offers, Limits{})
	p2, err2 := Build(5, requests, offers, Limits{})
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v / %v", err1, err2)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Errorf("two builds disagree: %+v vs %+v", p1, p2)
	}
}

func TestBuild_TooManyOffers(t *testing.T) {
	offers := make([]Offer, 65)
	if _, err := Build(1, []Request{req(32, 34.8, 0)}, offers, Limits{}); err == nil {
		t.Fatal("expected an error for more offers than the usage mask holds")
	}
}
