// README: Entry point; loads config, wires services, starts HTTP server and
// the clearing scheduler.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"biddrop/internal/config"
	"biddrop/internal/geocode"
	httptransport "biddrop/internal/http"
	"biddrop/internal/http/handlers"
	"biddrop/internal/infra"
	"biddrop/internal/modules/clearing"
	"biddrop/internal/modules/market"
	"biddrop/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var geocoder handlers.Geocoder
	if cfg.Geocode.MapsAPIKey != "" {
		svc, err := geocode.NewService(cfg.Geocode.MapsAPIKey)
		if err != nil {
			log.Fatalf("geocode init: %v", err)
		}
		geocoder = svc
	}

	marketStore := market.NewStore(dbPool)
	geoStore := market.NewGeoStore(redisClient)

	clearingSvc := clearing.NewService(
		marketStore,
		geoStore,
		clearing.NewRunLock(redisClient),
		notify.NewExpoClient(),
		cfg.Clearing,
		cfg.Push.Enabled,
	)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(httptransport.Deps{
			Clearing: clearingSvc,
			Market:   marketStore,
			Geocoder: geocoder,
		}),
	}

	go clearingSvc.RunScheduler(ctx)

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
