// README: Market store backed by PostgreSQL.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"biddrop/internal/auction"
	"biddrop/internal/types"
)

var ErrNotFound = errors.New("market: row not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateRequest inserts a new open request. Coordinates may be nil when the
// address has not been geocoded yet; such rows sit out clearing cycles until
// they are.
func (s *Store) CreateRequest(ctx context.Context, r Request) error {
	if r.Status == "" {
		r.Status = RequestOpen
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO requests (id, owner_user_id, type, from_address, from_lat, from_lon,
		                      to_address, to_lat, to_lon, passengers, max_price,
		                      window_start, window_end, status, push_defer_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.OwnerUserID, r.Kind, r.FromAddress, latPtr(r.From), lngPtr(r.From),
		r.ToAddress, latPtr(r.To), lngPtr(r.To), r.Passengers, r.MaxPrice,
		r.WindowStart, r.WindowEnd, string(r.Status), r.PushDeferUntil, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// CreateOffer inserts a new active courier offer.
func (s *Store) CreateOffer(ctx context.Context, o Offer) error {
	if o.Status == "" {
		o.Status = OfferActive
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO courier_offers (id, driver_user_id, min_price, types, window_start, window_end,
		                            from_lat, from_lon, to_lat, to_lon, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.DriverUserID, o.MinPrice, o.Kinds, o.WindowStart, o.WindowEnd,
		latPtr(o.From), lngPtr(o.From), latPtr(o.To), lngPtr(o.To), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

// ListOpenRequests returns open requests that carry both coordinates,
// oldest first, ready to become asks.
func (s *Store) ListOpenRequests(ctx context.Context) ([]Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_user_id, type, from_address, from_lat, from_lon,
		       to_address, to_lat, to_lon, passengers, max_price,
		       window_start, window_end, status, push_defer_until, created_at
		FROM requests
		WHERE status = $1
		  AND from_lat IS NOT NULL AND from_lon IS NOT NULL
		  AND to_lat IS NOT NULL AND to_lon IS NOT NULL
		ORDER BY created_at ASC`, string(RequestOpen))
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		var fromLat, fromLng, toLat, toLng, maxPrice *float64
		var passengers *int
		err := rows.Scan(
			&r.ID, &r.OwnerUserID, &r.Kind, &r.FromAddress, &fromLat, &fromLng,
			&r.ToAddress, &toLat, &toLng, &passengers, &maxPrice,
			&r.WindowStart, &r.WindowEnd, &r.Status, &r.PushDeferUntil, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.From = pointPtr(fromLat, fromLng)
		r.To = pointPtr(toLat, toLng)
		r.Passengers = 1
		if passengers != nil && *passengers > 0 {
			r.Passengers = *passengers
		}
		if maxPrice != nil {
			r.MaxPrice = *maxPrice
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveOffers returns active courier offers, oldest first.
func (s *Store) ListActiveOffers(ctx context.Context) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_user_id, min_price, types, window_start, window_end,
		       from_lat, from_lon, to_lat, to_lon, status, created_at
		FROM courier_offers
		WHERE status = $1
		ORDER BY created_at ASC`, string(OfferActive))
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		var minPrice *float64
		var fromLat, fromLng, toLat, toLng *float64
		err := rows.Scan(
			&o.ID, &o.DriverUserID, &minPrice, &o.Kinds, &o.WindowStart, &o.WindowEnd,
			&fromLat, &fromLng, &toLat, &toLng, &o.Status, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		if minPrice != nil {
			o.MinPrice = *minPrice
		}
		o.From = pointPtr(fromLat, fromLng)
		o.To = pointPtr(toLat, toLng)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListDriversByIDs loads driver users with their push token and the latest
// push-defer timestamp across their active offers.
func (s *Store) ListDriversByIDs(ctx context.Context, ids []uuid.UUID) ([]Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT u.id, COALESCE(u.rating, 0), COALESCE(u.expo_push_token, ''),
		       (SELECT MAX(o.push_defer_until)
		        FROM courier_offers o
		        WHERE o.driver_user_id = u.id AND o.status = $2)
		FROM users u
		WHERE u.id = ANY($1) AND u.role = 'driver'
		ORDER BY u.id`, ids, string(OfferActive))
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Rating, &d.ExpoPushToken, &d.PushDeferUntil); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// OwnerPushTarget returns the owner's id and push token for a request.
func (s *Store) OwnerPushTarget(ctx context.Context, requestID uuid.UUID) (uuid.UUID, string, error) {
	var ownerID uuid.UUID
	var token *string
	err := s.db.QueryRow(ctx, `
		SELECT u.id, u.expo_push_token
		FROM requests r
		JOIN users u ON u.id = r.owner_user_id
		WHERE r.id = $1`, requestID,
	).Scan(&ownerID, &token)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", ErrNotFound
	}
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("owner push target: %w", err)
	}
	if token == nil {
		return ownerID, "", nil
	}
	return ownerID, *token, nil
}

// PlanEntry is one persisted match: which request goes to which driver at
// which agreed price.
type PlanEntry struct {
	RequestID    uuid.UUID
	DriverUserID uuid.UUID
	AgreedPrice  types.Money
	MarkOffer    bool // also retire the driver's cheapest compatible offer
}

// PersistPlan writes a clearing plan in one transaction: an assignment row
// per match, the request flipped to assigned, and optionally the driver's
// cheapest compatible active offer retired. windowTolMin is the same overlap
// slack the pre-filter used to admit the pairing.
func (s *Store) PersistPlan(ctx context.Context, entries []PlanEntry, windowTolMin float64) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin persist plan: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, e := range entries {
		asg := Assignment{
			ID:           uuid.New(),
			RequestID:    e.RequestID,
			DriverUserID: e.DriverUserID,
			Status:       AssignmentCreated,
			AgreedPrice:  e.AgreedPrice,
			AssignedAt:   now,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO assignments (id, request_id, driver_user_id, status, agreed_price, assigned_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			asg.ID, asg.RequestID, asg.DriverUserID, string(asg.Status), asg.AgreedPrice.Amount, asg.AssignedAt,
		)
		if err != nil {
			return fmt.Errorf("insert assignment for request %s: %w", e.RequestID, err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE requests SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4`,
			e.RequestID, string(RequestAssigned), now, string(RequestOpen))
		if err != nil {
			return fmt.Errorf("mark request %s assigned: %w", e.RequestID, err)
		}

		if e.MarkOffer {
			if err := s.retireOffer(ctx, tx, e, windowTolMin, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// retireOffer marks the driver's cheapest active offer that could have
// served the request as assigned. A driver with no compatible offer left
// keeps their book untouched; only supply that matched the request's kind,
// window and ceiling is consumed.
func (s *Store) retireOffer(ctx context.Context, tx pgx.Tx, e PlanEntry, windowTolMin float64, now time.Time) error {
	var req Request
	var maxPrice *float64
	err := tx.QueryRow(ctx, `
		SELECT type, max_price, window_start, window_end
		FROM requests WHERE id = $1`, e.RequestID,
	).Scan(&req.Kind, &maxPrice, &req.WindowStart, &req.WindowEnd)
	if err != nil {
		return fmt.Errorf("load request %s for offer retirement: %w", e.RequestID, err)
	}
	if maxPrice != nil {
		req.MaxPrice = *maxPrice
	}

	rows, err := tx.Query(ctx, `
		SELECT id, min_price, types, window_start, window_end
		FROM courier_offers
		WHERE driver_user_id = $1 AND status = $2`,
		e.DriverUserID, string(OfferActive))
	if err != nil {
		return fmt.Errorf("load offers for driver %s: %w", e.DriverUserID, err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		var o Offer
		var minPrice *float64
		if err := rows.Scan(&o.ID, &minPrice, &o.Kinds, &o.WindowStart, &o.WindowEnd); err != nil {
			return fmt.Errorf("scan offer for driver %s: %w", e.DriverUserID, err)
		}
		if minPrice != nil {
			o.MinPrice = *minPrice
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load offers for driver %s: %w", e.DriverUserID, err)
	}

	pick := cheapestCompatibleOffer(req, offers, windowTolMin)
	if pick == nil {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE courier_offers SET status = $2, updated_at = $3
		WHERE id = $1`, pick.ID, string(OfferAssigned), now)
	if err != nil {
		return fmt.Errorf("mark offer %s assigned: %w", pick.ID, err)
	}
	return nil
}

// cheapestCompatibleOffer returns the lowest-priced offer able to serve the
// request, or nil when none can.
func cheapestCompatibleOffer(r Request, offers []Offer, tolMin float64) *Offer {
	var pick *Offer
	for i := range offers {
		o := &offers[i]
		if !offerServesRequest(r, *o, tolMin) {
			continue
		}
		if pick == nil || o.MinPrice < pick.MinPrice {
			pick = o
		}
	}
	return pick
}

// offerServesRequest mirrors the clearing pre-filter on persisted rows:
// kind coverage (ride and passenger are the same side), window overlap with
// the same slack, and the price ceiling (zero or unset means uncapped).
func offerServesRequest(r Request, o Offer, tolMin float64) bool {
	if !auction.NormalizeKind(r.Kind).Matches(o.Kinds) {
		return false
	}
	if !timeWindowsOverlap(r.WindowStart, r.WindowEnd, o.WindowStart, o.WindowEnd, tolMin) {
		return false
	}
	if r.MaxPrice > 0 && o.MinPrice > r.MaxPrice {
		return false
	}
	return true
}

// timeWindowsOverlap applies the pre-filter's overlap rule to wall-clock
// rows: a missing window on either side always overlaps.
func timeWindowsOverlap(reqStart, reqEnd, offStart, offEnd *time.Time, tolMin float64) bool {
	if reqStart == nil || reqEnd == nil {
		return true
	}
	if offStart == nil || offEnd == nil {
		return true
	}
	tol := time.Duration(tolMin * float64(time.Minute))
	return !offStart.After(reqEnd.Add(tol)) && !offEnd.Add(tol).Before(*reqStart)
}

func latPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	return &p.Lat
}

func lngPtr(p *types.Point) *float64 {
	if p == nil {
		return nil
	}
	return &p.Lng
}

func pointPtr(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}
