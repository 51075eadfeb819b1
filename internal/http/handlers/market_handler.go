// README: Read-only market snapshots for the consensus/proposal layer.
package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"biddrop/internal/modules/market"
)

// MarketReader lists the open side of the book.
type MarketReader interface {
	ListOpenRequests(ctx context.Context) ([]market.Request, error)
	ListActiveOffers(ctx context.Context) ([]market.Offer, error)
}

type MarketHandler struct {
	market MarketReader
}

func NewMarketHandler(store MarketReader) *MarketHandler {
	return &MarketHandler{market: store}
}

// RequestsOpen returns open requests in consensus wire form: micro-degree
// coordinates and price cents of every row a proposal builder may pair.
func (h *MarketHandler) RequestsOpen(c *gin.Context) {
	requests, err := h.market.ListOpenRequests(c.Request.Context())
	if err != nil {
		writeMarketError(c, err)
		return
	}

	out := make([]map[string]any, 0, len(requests))
	for _, r := range requests {
		if !r.HasCoordinates() {
			continue
		}
		kind := 0
		if r.Kind == "passenger" || r.Kind == "ride" {
			kind = 1
		}
		out = append(out, map[string]any{
			"id":              r.ID,
			"from_lat_e6":     toE6(r.From.Lat),
			"from_lng_e6":     toE6(r.From.Lng),
			"to_lat_e6":       toE6(r.To.Lat),
			"to_lng_e6":       toE6(r.To.Lng),
			"max_price_cents": toCents(r.MaxPrice),
			"kind":            kind,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"requests": out})
}

// OffersOpen returns active offers in consensus wire form.
func (h *MarketHandler) OffersOpen(c *gin.Context) {
	offers, err := h.market.ListActiveOffers(c.Request.Context())
	if err != nil {
		writeMarketError(c, err)
		return
	}

	out := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		row := map[string]any{
			"id":              o.ID,
			"driver_id":       o.DriverUserID,
			"min_price_cents": toCents(o.MinPrice),
			"types_mask":      kindsMask(o.Kinds),
			"window_start_ms": toMillis(o.WindowStart),
			"window_end_ms":   toMillis(o.WindowEnd),
		}
		if o.From != nil {
			row["from_lat_e6"] = toE6(o.From.Lat)
			row["from_lng_e6"] = toE6(o.From.Lng)
		}
		if o.To != nil {
			row["to_lat_e6"] = toE6(o.To.Lat)
			row["to_lng_e6"] = toE6(o.To.Lng)
		}
		out = append(out, row)
	}
	writeJSON(c, http.StatusOK, map[string]any{"offers": out})
}

func toE6(deg float64) int64 { return int64(math.Round(deg * 1e6)) }

func toCents(price float64) int64 { return int64(math.Round(price * 100)) }

func toMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// kindsMask folds kind strings into the wire bitmask: bit 0 packages,
// bit 1 passengers.
func kindsMask(kinds []string) uint32 {
	var mask uint32
	for _, k := range kinds {
		switch k {
		case "package":
			mask |= 1
		case "passenger", "ride":
			mask |= 2
		}
	}
	return mask
}
