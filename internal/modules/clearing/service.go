// README: Clearing service: loads the open market, runs the auction engine
// and persists the resulting plan on a background tick.
package clearing

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"biddrop/internal/auction"
	"biddrop/internal/config"
	"biddrop/internal/modules/market"
	"biddrop/internal/notify"
	"biddrop/internal/types"
)

// Seats assumed per car when the driver never declared a capacity.
const defaultDriverCapacity = 4

const lockTTL = 2 * time.Minute

// MarketStore is the slice of the market module the clearing cycle needs.
type MarketStore interface {
	ListOpenRequests(ctx context.Context) ([]market.Request, error)
	ListActiveOffers(ctx context.Context) ([]market.Offer, error)
	ListDriversByIDs(ctx context.Context, ids []uuid.UUID) ([]market.Driver, error)
	OwnerPushTarget(ctx context.Context, requestID uuid.UUID) (uuid.UUID, string, error)
	PersistPlan(ctx context.Context, entries []market.PlanEntry, windowTolMin float64) error
}

// PositionSource yields last-known driver positions, if any.
type PositionSource interface {
	Positions(ctx context.Context, driverIDs []uuid.UUID) (map[uuid.UUID]types.Point, error)
}

// Locker serializes cycles across instances.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// Notifier delivers push notifications for fresh matches.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Result summarizes one clearing cycle.
type Result struct {
	Skipped     bool // another instance held the run lock
	Requests    int
	Offers      int
	Matched     int
	Unmatched   int
	Cost        float64
	FilterStats auction.FilterCounts
	Plan        []MatchOutcome
}

// MatchOutcome is one request-to-driver match of a cycle.
type MatchOutcome struct {
	RequestID    uuid.UUID
	DriverUserID uuid.UUID
	AgreedPrice  float64
}

type Service struct {
	store       MarketStore
	positions   PositionSource
	lock        Locker
	push        Notifier
	cfg         config.ClearingConfig
	pushEnabled bool
}

func NewService(store MarketStore, positions PositionSource, lock Locker, push Notifier, cfg config.ClearingConfig, pushEnabled bool) *Service {
	return &Service{
		store:       store,
		positions:   positions,
		lock:        lock,
		push:        push,
		cfg:         cfg,
		pushEnabled: pushEnabled,
	}
}

// RunTick executes one clearing cycle: take the run lock, snapshot the open
// market, pre-filter, solve and persist. A held lock or an empty market is a
// normal no-op, not an error.
func (s *Service) RunTick(ctx context.Context) (Result, error) {
	return s.RunTickWeights(ctx, s.Weights())
}

// RunTickWeights runs one cycle with caller-supplied weights, for manually
// triggered runs that want to probe a different cost trade-off.
func (s *Service) RunTickWeights(ctx context.Context, w auction.Weights) (Result, error) {
	ok, err := s.lock.Acquire(ctx, lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return Result{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("clearing: release run lock: %v", err)
		}
	}()

	return s.runLocked(ctx, time.Now(), w)
}

func (s *Service) runLocked(ctx context.Context, now time.Time, w auction.Weights) (Result, error) {
	requests, err := s.store.ListOpenRequests(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load requests: %w", err)
	}
	offers, err := s.store.ListActiveOffers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load offers: %w", err)
	}

	res := Result{Requests: len(requests), Offers: len(offers)}
	if len(requests) == 0 || len(offers) == 0 {
		return res, nil
	}

	driverIDs, driverIdx := collectDrivers(offers)
	if len(driverIDs) > 64 {
		// The engine tracks driver commitments in a 64-bit mask; the rest
		// of the fleet waits for the next cycle.
		log.Printf("clearing: %d drivers active, capping this cycle at 64", len(driverIDs))
		driverIDs = driverIDs[:64]
		kept := make([]market.Offer, 0, len(offers))
		for _, o := range offers {
			if driverIdx[o.DriverUserID] < 64 {
				kept = append(kept, o)
			}
		}
		offers = kept
	}
	drivers, err := s.store.ListDriversByIDs(ctx, driverIDs)
	if err != nil {
		return Result{}, fmt.Errorf("load drivers: %w", err)
	}
	driverRows := make(map[uuid.UUID]market.Driver, len(drivers))
	for _, d := range drivers {
		driverRows[d.ID] = d
	}
	if len(driverRows) < len(driverIDs) {
		// Offers from accounts without a driver row would enter the search as
		// zero-value drivers and then fail the assignment insert.
		log.Printf("clearing: ignoring offers from %d accounts without a driver profile", len(driverIDs)-len(driverRows))
		kept := make([]market.Offer, 0, len(offers))
		for _, o := range offers {
			if _, ok := driverRows[o.DriverUserID]; ok {
				kept = append(kept, o)
			}
		}
		offers = kept
		if len(offers) == 0 {
			return res, nil
		}
		driverIDs, driverIdx = collectDrivers(offers)
	}

	positions := map[uuid.UUID]types.Point{}
	if s.positions != nil {
		positions, err = s.positions.Positions(ctx, driverIDs)
		if err != nil {
			// A cold position cache only degrades the anchor, not the cycle.
			log.Printf("clearing: driver positions unavailable: %v", err)
			positions = map[uuid.UUID]types.Point{}
		}
	}

	asks := buildAsks(requests, now)
	terms := buildOfferTerms(offers, driverIdx, now)
	states := buildDriverStates(driverIDs, driverRows, positions, *requests[0].From)

	pf := auction.Prefilter(asks, terms, len(states), s.cfg.WindowToleranceMin)
	res.FilterStats = pf.Counts
	if len(pf.Asks) == 0 {
		return res, nil
	}

	plan, cost, dbg, err := auction.Solve(auction.Problem{
		Asks:        pf.Asks,
		Drivers:     states,
		Weights:     w,
		AvgSpeedKmh: s.cfg.AvgSpeedKmh,
		RatingMax:   s.cfg.RatingMax,

		AllowedDrivers:   pf.AllowedDrivers,
		RevealedPrices:   pf.RevealedPrices,
		PriceLowerBounds: pf.PriceLowerBounds,

		AllowSkips:  s.cfg.AllowSkips,
		SkipPenalty: s.cfg.SkipPenalty,
	})
	if err != nil {
		return Result{}, fmt.Errorf("solve clearing problem: %w", err)
	}
	if plan == nil {
		log.Printf("clearing: no complete assignment for %d asks over %d drivers", len(pf.Asks), len(states))
		return res, nil
	}

	res.Cost = cost
	res.Matched = dbg.Matched
	res.Unmatched = dbg.Skipped + (len(asks) - len(pf.Asks))

	entries := make([]market.PlanEntry, 0, len(plan))
	for _, pair := range plan {
		req := requests[pf.KeptAsks[pair.Ask]]
		driverID := driverIDs[pair.Driver]
		price := pf.RevealedPrices[auction.PairKey{Ask: pair.Ask, Driver: pair.Driver}]

		entries = append(entries, market.PlanEntry{
			RequestID:    req.ID,
			DriverUserID: driverID,
			AgreedPrice:  types.Money{Amount: int64(math.Round(price * 100)), Currency: "TWD"},
			MarkOffer:    s.cfg.MarkOfferAssigned,
		})
		res.Plan = append(res.Plan, MatchOutcome{
			RequestID:    req.ID,
			DriverUserID: driverID,
			AgreedPrice:  price,
		})
	}

	if err := s.store.PersistPlan(ctx, entries, s.cfg.WindowToleranceMin); err != nil {
		return Result{}, fmt.Errorf("persist plan: %w", err)
	}

	for _, m := range res.Plan {
		log.Printf("clearing: matched request=%s driver=%s price=%.2f", m.RequestID, m.DriverUserID, m.AgreedPrice)
	}
	log.Printf("clearing: cycle done matched=%d unmatched=%d cost=%.3f checked=%d filtered_type=%d filtered_time=%d filtered_price=%d",
		res.Matched, res.Unmatched, res.Cost,
		pf.Counts.PairsChecked, pf.Counts.FilteredByType, pf.Counts.FilteredByTime, pf.Counts.FilteredByPrice)

	s.notifyMatches(ctx, res.Plan, requests, pf.KeptAsks, plan, driverRows, now)
	return res, nil
}

// notifyMatches fires push notifications for each match. Failures are logged
// and never fail the cycle; the plan is already persisted.
func (s *Service) notifyMatches(ctx context.Context, outcomes []MatchOutcome, requests []market.Request, keptAsks []int, plan auction.Plan, driverRows map[uuid.UUID]market.Driver, now time.Time) {
	if !s.pushEnabled || s.push == nil {
		return
	}
	for i, m := range outcomes {
		req := requests[keptAsks[plan[i].Ask]]

		if pushAllowed(req.PushDeferUntil, now) {
			_, token, err := s.store.OwnerPushTarget(ctx, m.RequestID)
			if err != nil {
				log.Printf("clearing: owner push target for %s: %v", m.RequestID, err)
			} else if err := s.push.Send(ctx, notify.Message{
				To:    token,
				Title: "Driver found",
				Body:  fmt.Sprintf("A driver accepted your request at %.0f.", m.AgreedPrice),
				Data:  map[string]string{"request_id": m.RequestID.String()},
			}); err != nil {
				log.Printf("clearing: push owner of %s: %v", m.RequestID, err)
			}
		}

		drv := driverRows[m.DriverUserID]
		if pushAllowed(drv.PushDeferUntil, now) {
			if err := s.push.Send(ctx, notify.Message{
				To:    drv.ExpoPushToken,
				Title: "New assignment",
				Body:  fmt.Sprintf("Pickup at %s.", req.FromAddress),
				Data:  map[string]string{"request_id": m.RequestID.String()},
			}); err != nil {
				log.Printf("clearing: push driver %s: %v", m.DriverUserID, err)
			}
		}
	}
}

// RunScheduler runs clearing cycles until ctx is cancelled.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunTick(ctx); err != nil {
				log.Printf("clearing: tick failed: %v", err)
			}
		}
	}
}

// Weights are the configured cost weights of the scheduled ticks.
func (s *Service) Weights() auction.Weights {
	return auction.Weights{
		Dist:          s.cfg.WeightDist,
		ETA:           s.cfg.WeightETA,
		Price:         s.cfg.WeightPrice,
		RatingPenalty: s.cfg.WeightRating,
	}
}

// collectDrivers returns the distinct driver ids behind the offers in
// first-seen order, plus the index each id maps to.
func collectDrivers(offers []market.Offer) ([]uuid.UUID, map[uuid.UUID]int) {
	idx := make(map[uuid.UUID]int)
	var ids []uuid.UUID
	for _, o := range offers {
		if _, seen := idx[o.DriverUserID]; !seen {
			idx[o.DriverUserID] = len(ids)
			ids = append(ids, o.DriverUserID)
		}
	}
	return ids, idx
}

func buildAsks(requests []market.Request, now time.Time) []auction.Ask {
	asks := make([]auction.Ask, len(requests))
	for i, r := range requests {
		size := 1.0
		kind := auction.NormalizeKind(r.Kind)
		if kind == auction.KindPassenger && r.Passengers > 0 {
			size = float64(r.Passengers)
		}
		asks[i] = auction.Ask{
			ID:          types.ID(r.ID.String()),
			Kind:        kind,
			Pickup:      *r.From,
			Dropoff:     *r.To,
			Size:        size,
			MaxPrice:    r.MaxPrice,
			WindowStart: minutesFrom(now, r.WindowStart),
			WindowEnd:   minutesFrom(now, r.WindowEnd),
		}
	}
	return asks
}

func buildOfferTerms(offers []market.Offer, driverIdx map[uuid.UUID]int, now time.Time) []auction.OfferTerms {
	terms := make([]auction.OfferTerms, len(offers))
	for i, o := range offers {
		terms[i] = auction.OfferTerms{
			Driver:      driverIdx[o.DriverUserID],
			MinPrice:    o.MinPrice,
			Kinds:       o.Kinds,
			WindowStart: minutesFrom(now, o.WindowStart),
			WindowEnd:   minutesFrom(now, o.WindowEnd),
		}
	}
	return terms
}

// buildDriverStates anchors each driver at their last reported position, or
// at the first request's pickup when they never reported one.
func buildDriverStates(ids []uuid.UUID, rows map[uuid.UUID]market.Driver, positions map[uuid.UUID]types.Point, anchor types.Point) []auction.DriverState {
	states := make([]auction.DriverState, len(ids))
	for i, id := range ids {
		pos := anchor
		if p, ok := positions[id]; ok {
			pos = p
		}
		states[i] = auction.DriverState{
			DriverID:     types.ID(id.String()),
			Pos:          pos,
			TimeMin:      0,
			CapacityLeft: defaultDriverCapacity,
			Rating:       rows[id].Rating,
		}
	}
	return states
}

// minutesFrom converts an absolute timestamp to minutes relative to the
// cycle start, the time base the engine works in.
func minutesFrom(base time.Time, t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	m := t.Sub(base).Minutes()
	return &m
}

func pushAllowed(deferUntil *time.Time, now time.Time) bool {
	return deferUntil == nil || !now.Before(*deferUntil)
}
