// README: Manual clearing trigger with optional weight overrides.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"biddrop/internal/auction"
	"biddrop/internal/modules/clearing"
)

// ClearingRunner is the slice of the clearing service the trigger needs.
type ClearingRunner interface {
	Weights() auction.Weights
	RunTickWeights(ctx context.Context, w auction.Weights) (clearing.Result, error)
}

type ClearingHandler struct {
	clearing ClearingRunner
}

func NewClearingHandler(svc ClearingRunner) *ClearingHandler {
	return &ClearingHandler{clearing: svc}
}

// Run triggers one clearing cycle now. Query params w_dist, w_eta, w_price
// and w_rating override the configured weights for this run only.
func (h *ClearingHandler) Run(c *gin.Context) {
	w := h.clearing.Weights()
	var bad string
	w.Dist = queryFloat(c, "w_dist", w.Dist, &bad)
	w.ETA = queryFloat(c, "w_eta", w.ETA, &bad)
	w.Price = queryFloat(c, "w_price", w.Price, &bad)
	w.RatingPenalty = queryFloat(c, "w_rating", w.RatingPenalty, &bad)
	if bad != "" {
		writeError(c, http.StatusBadRequest, "invalid weight "+bad)
		return
	}

	res, err := h.clearing.RunTickWeights(c.Request.Context(), w)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "clearing failed")
		return
	}
	if res.Skipped {
		writeJSON(c, http.StatusConflict, map[string]any{"status": "already_running"})
		return
	}

	matches := make([]map[string]any, 0, len(res.Plan))
	for _, m := range res.Plan {
		matches = append(matches, map[string]any{
			"request_id":   m.RequestID,
			"driver_id":    m.DriverUserID,
			"agreed_price": m.AgreedPrice,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"requests":  res.Requests,
		"offers":    res.Offers,
		"matched":   res.Matched,
		"unmatched": res.Unmatched,
		"cost":      res.Cost,
		"matches":   matches,
		"filter": map[string]any{
			"pairs_checked":     res.FilterStats.PairsChecked,
			"filtered_by_type":  res.FilterStats.FilteredByType,
			"filtered_by_time":  res.FilterStats.FilteredByTime,
			"filtered_by_price": res.FilterStats.FilteredByPrice,
		},
	})
}

func queryFloat(c *gin.Context, name string, def float64, bad *string) float64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		*bad = name
		return def
	}
	return v
}
