// README: Intake handlers: create requests and offers, geocoding addresses
// that arrive without coordinates.
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"biddrop/internal/modules/market"
	"biddrop/internal/types"
)

// MarketWriter inserts new market rows.
type MarketWriter interface {
	CreateRequest(ctx context.Context, r market.Request) error
	CreateOffer(ctx context.Context, o market.Offer) error
}

// Geocoder resolves an address to a coordinate. A nil Geocoder leaves
// address-only rows without coordinates; they join clearing once geocoded.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

type IntakeHandler struct {
	market   MarketWriter
	geocoder Geocoder
}

func NewIntakeHandler(store MarketWriter, geocoder Geocoder) *IntakeHandler {
	return &IntakeHandler{market: store, geocoder: geocoder}
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type createRequestReq struct {
	OwnerID        uuid.UUID  `json:"owner_id"`
	Kind           string     `json:"kind"`
	FromAddress    string     `json:"from_address"`
	From           *pointReq  `json:"from"`
	ToAddress      string     `json:"to_address"`
	To             *pointReq  `json:"to"`
	Passengers     int        `json:"passengers"`
	MaxPrice       float64    `json:"max_price"`
	WindowStart    *time.Time `json:"window_start"`
	WindowEnd      *time.Time `json:"window_end"`
	PushDeferUntil *time.Time `json:"push_defer_until"`
}

func (h *IntakeHandler) CreateRequest(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == uuid.Nil || req.Kind == "" {
		writeError(c, http.StatusBadRequest, "missing owner_id or kind")
		return
	}
	if req.From == nil && req.FromAddress == "" || req.To == nil && req.ToAddress == "" {
		writeError(c, http.StatusBadRequest, "missing endpoints")
		return
	}

	row := market.Request{
		ID:             uuid.New(),
		OwnerUserID:    req.OwnerID,
		Kind:           req.Kind,
		FromAddress:    req.FromAddress,
		From:           h.resolve(c.Request.Context(), req.From, req.FromAddress),
		ToAddress:      req.ToAddress,
		To:             h.resolve(c.Request.Context(), req.To, req.ToAddress),
		Passengers:     req.Passengers,
		MaxPrice:       req.MaxPrice,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		Status:         market.RequestOpen,
		PushDeferUntil: req.PushDeferUntil,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.market.CreateRequest(c.Request.Context(), row); err != nil {
		writeMarketError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"request_id": row.ID, "status": row.Status})
}

type createOfferReq struct {
	DriverID    uuid.UUID  `json:"driver_id"`
	MinPrice    float64    `json:"min_price"`
	Kinds       []string   `json:"kinds"`
	From        *pointReq  `json:"from"`
	To          *pointReq  `json:"to"`
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
}

func (h *IntakeHandler) CreateOffer(c *gin.Context) {
	var req createOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DriverID == uuid.Nil {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	if len(req.Kinds) == 0 {
		req.Kinds = []string{"package", "passenger"}
	}

	row := market.Offer{
		ID:           uuid.New(),
		DriverUserID: req.DriverID,
		MinPrice:     req.MinPrice,
		Kinds:        req.Kinds,
		From:         pointOrNil(req.From),
		To:           pointOrNil(req.To),
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
		Status:       market.OfferActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.market.CreateOffer(c.Request.Context(), row); err != nil {
		writeMarketError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"offer_id": row.ID, "status": row.Status})
}

// resolve prefers explicit coordinates, then a geocoded address, then nil.
func (h *IntakeHandler) resolve(ctx context.Context, p *pointReq, address string) *types.Point {
	if p != nil {
		return &types.Point{Lat: p.Lat, Lng: p.Lng}
	}
	if address == "" || h.geocoder == nil {
		return nil
	}
	pt, err := h.geocoder.Geocode(ctx, address)
	if err != nil {
		log.Printf("geocode %q: %v", address, err)
		return nil
	}
	return &pt
}

func pointOrNil(p *pointReq) *types.Point {
	if p == nil {
		return nil
	}
	return &types.Point{Lat: p.Lat, Lng: p.Lng}
}
