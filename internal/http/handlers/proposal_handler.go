// README: Build-proposal endpoint for the consensus layer.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"biddrop/internal/proposal"
)

type ProposalHandler struct{}

func NewProposalHandler() *ProposalHandler {
	return &ProposalHandler{}
}

type buildProposalReq struct {
	Slot     uint64 `json:"slot"`
	Requests []struct {
		ID            uuid.UUID `json:"id"`
		FromLatE6     int64     `json:"from_lat_e6"`
		FromLngE6     int64     `json:"from_lng_e6"`
		ToLatE6       int64     `json:"to_lat_e6"`
		ToLngE6       int64     `json:"to_lng_e6"`
		MaxPriceCents int64     `json:"max_price_cents"`
		Kind          int       `json:"kind"`
	} `json:"requests"`
	Offers []struct {
		ID            uuid.UUID `json:"id"`
		MinPriceCents int64     `json:"min_price_cents"`
		FromLatE6     int64     `json:"from_lat_e6"`
		FromLngE6     int64     `json:"from_lng_e6"`
		ToLatE6       int64     `json:"to_lat_e6"`
		ToLngE6       int64     `json:"to_lng_e6"`
		WindowStartMs int64     `json:"window_start_ms"`
		WindowEndMs   int64     `json:"window_end_ms"`
		TypesMask     uint32    `json:"types_mask"`
	} `json:"offers"`
	Limits struct {
		MaxStartKm float64 `json:"max_start_km"`
		MaxEndKm   float64 `json:"max_end_km"`
		MaxTotalKm float64 `json:"max_total_km"`
	} `json:"limits"`
}

// Build pairs the posted requests and offers into the best proposal for the
// slot. The market is taken from the request body, not the database, so
// every consensus node scores the same snapshot.
func (h *ProposalHandler) Build(c *gin.Context) {
	var req buildProposalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	requests := make([]proposal.Request, len(req.Requests))
	for i, r := range req.Requests {
		requests[i] = proposal.Request(r)
	}
	offers := make([]proposal.Offer, len(req.Offers))
	for i, o := range req.Offers {
		offers[i] = proposal.Offer(o)
	}

	p, err := proposal.Build(req.Slot, requests, offers, proposal.Limits(req.Limits))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	matches := make([]map[string]any, 0, len(p.Matches))
	for _, m := range p.Matches {
		matches = append(matches, map[string]any{
			"request_id":         m.RequestID,
			"offer_id":           m.OfferID,
			"agreed_price_cents": m.AgreedPriceCents,
			"partial_score":      m.PartialScore,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"slot":        p.Slot,
		"total_score": p.TotalScore,
		"matches":     matches,
	})
}
