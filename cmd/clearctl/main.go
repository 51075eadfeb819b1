// README: Offline clearing tool: solve a problem file or build a proposal
// from a market snapshot, for tuning weights without a running API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"biddrop/internal/auction"
	"biddrop/internal/proposal"
	"biddrop/internal/types"
)

func main() {
	app := &cli.App{
		Name:  "clearctl",
		Usage: "Offline clearing and proposal tooling",
		Commands: []*cli.Command{
			solveCmd,
			proposeCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}
}

type problemFile struct {
	AvgSpeedKmh        float64 `json:"avg_speed_kmh"`
	RatingMax          float64 `json:"rating_max"`
	WindowToleranceMin float64 `json:"window_tolerance_min"`
	AllowSkips         bool    `json:"allow_skips"`
	SkipPenalty        float64 `json:"skip_penalty"`

	Weights *struct {
		Dist   float64 `json:"dist"`
		ETA    float64 `json:"eta"`
		Price  float64 `json:"price"`
		Rating float64 `json:"rating"`
	} `json:"weights"`

	Asks []struct {
		ID          string      `json:"id"`
		Kind        string      `json:"kind"`
		Pickup      types.Point `json:"pickup"`
		Dropoff     types.Point `json:"dropoff"`
		Size        float64     `json:"size"`
		MaxPrice    float64     `json:"max_price"`
		WindowStart *float64    `json:"window_start"`
		WindowEnd   *float64    `json:"window_end"`
	} `json:"asks"`

	Drivers []struct {
		ID       string      `json:"id"`
		Pos      types.Point `json:"pos"`
		Capacity float64     `json:"capacity"`
		Rating   float64     `json:"rating"`
	} `json:"drivers"`

	Offers []struct {
		Driver      int      `json:"driver"`
		MinPrice    float64  `json:"min_price"`
		Kinds       []string `json:"kinds"`
		WindowStart *float64 `json:"window_start"`
		WindowEnd   *float64 `json:"window_end"`
	} `json:"offers"`
}

var solveCmd = &cli.Command{
	Name:    "solve",
	Usage:   "Solve a clearing problem file and print the plan",
	Aliases: []string{"s"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "problem",
			Required: true,
			Usage:    "specify the input problem.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		var pf problemFile
		if err := readJSONFile(ctx.String("problem"), &pf); err != nil {
			return err
		}

		asks := make([]auction.Ask, len(pf.Asks))
		for i, a := range pf.Asks {
			asks[i] = auction.Ask{
				ID:          types.ID(a.ID),
				Kind:        auction.NormalizeKind(a.Kind),
				Pickup:      a.Pickup,
				Dropoff:     a.Dropoff,
				Size:        a.Size,
				MaxPrice:    a.MaxPrice,
				WindowStart: a.WindowStart,
				WindowEnd:   a.WindowEnd,
			}
			if asks[i].Size == 0 {
				asks[i].Size = 1
			}
		}

		drivers := make([]auction.DriverState, len(pf.Drivers))
		for i, d := range pf.Drivers {
			capacity := d.Capacity
			if capacity == 0 {
				capacity = 4
			}
			drivers[i] = auction.DriverState{
				DriverID:     types.ID(d.ID),
				Pos:          d.Pos,
				CapacityLeft: capacity,
				Rating:       d.Rating,
			}
		}

		terms := make([]auction.OfferTerms, len(pf.Offers))
		for i, o := range pf.Offers {
			terms[i] = auction.OfferTerms{
				Driver:      o.Driver,
				MinPrice:    o.MinPrice,
				Kinds:       o.Kinds,
				WindowStart: o.WindowStart,
				WindowEnd:   o.WindowEnd,
			}
		}

		res := auction.Prefilter(asks, terms, len(drivers), pf.WindowToleranceMin)

		weights := auction.DefaultWeights()
		if pf.Weights != nil {
			weights = auction.Weights{
				Dist:          pf.Weights.Dist,
				ETA:           pf.Weights.ETA,
				Price:         pf.Weights.Price,
				RatingPenalty: pf.Weights.Rating,
			}
		}
		speed := pf.AvgSpeedKmh
		if speed == 0 {
			speed = 40
		}
		ratingMax := pf.RatingMax
		if ratingMax == 0 {
			ratingMax = 5
		}

		plan, cost, dbg, err := auction.Solve(auction.Problem{
			Asks:             res.Asks,
			Drivers:          drivers,
			Weights:          weights,
			AvgSpeedKmh:      speed,
			RatingMax:        ratingMax,
			AllowedDrivers:   res.AllowedDrivers,
			RevealedPrices:   res.RevealedPrices,
			PriceLowerBounds: res.PriceLowerBounds,
			AllowSkips:       pf.AllowSkips,
			SkipPenalty:      pf.SkipPenalty,
		})
		if err != nil {
			return err
		}
		if plan == nil {
			fmt.Println("no complete assignment")
			return nil
		}

		type matchOut struct {
			AskID    string  `json:"ask_id"`
			DriverID string  `json:"driver_id"`
			Price    float64 `json:"price"`
		}
		out := struct {
			Cost    float64    `json:"cost"`
			Matched int        `json:"matched"`
			Skipped int        `json:"skipped"`
			Matches []matchOut `json:"matches"`
		}{Cost: cost, Matched: dbg.Matched, Skipped: dbg.Skipped, Matches: []matchOut{}}

		for _, pair := range plan {
			out.Matches = append(out.Matches, matchOut{
				AskID:    string(res.Asks[pair.Ask].ID),
				DriverID: string(drivers[pair.Driver].DriverID),
				Price:    res.RevealedPrices[auction.PairKey{Ask: pair.Ask, Driver: pair.Driver}],
			})
		}
		return printJSON(out)
	},
}

type snapshotFile struct {
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

var proposeCmd = &cli.Command{
	Name:    "propose",
	Usage:   "Build a proposal from a market snapshot file",
	Aliases: []string{"p"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "snapshot",
			Required: true,
			Usage:    "specify the input snapshot.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		var sf snapshotFile
		if err := readJSONFile(ctx.String("snapshot"), &sf); err != nil {
			return err
		}

		requests := make([]proposal.Request, len(sf.Requests))
		for i, r := range sf.Requests {
			requests[i] = proposal.Request(r)
		}
		offers := make([]proposal.Offer, len(sf.Offers))
		for i, o := range sf.Offers {
			offers[i] = proposal.Offer(o)
		}

		p, err := proposal.Build(sf.Slot, requests, offers, proposal.Limits(sf.Limits))
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
