// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"biddrop/internal/http/handlers"
	"biddrop/internal/http/middleware"
)

type Deps struct {
	Clearing handlers.ClearingRunner
	Market   interface {
		handlers.MarketReader
		handlers.MarketWriter
	}
	Geocoder handlers.Geocoder // optional
}

func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	clearingHandler := handlers.NewClearingHandler(deps.Clearing)
	r.POST("/auction/clear", clearingHandler.Run)

	intakeHandler := handlers.NewIntakeHandler(deps.Market, deps.Geocoder)
	r.POST("/requests", intakeHandler.CreateRequest)
	r.POST("/offers", intakeHandler.CreateOffer)

	marketHandler := handlers.NewMarketHandler(deps.Market)
	r.GET("/poba/requests-open", marketHandler.RequestsOpen)
	r.GET("/poba/offers-open", marketHandler.OffersOpen)

	proposalHandler := handlers.NewProposalHandler()
	r.POST("/poba/build-proposal", proposalHandler.Build)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
