// README: Google Maps geocoding used to resolve request and offer
// addresses to coordinates before clearing.
package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"biddrop/internal/types"
)

// Service resolves free-form addresses to coordinates.
type Service struct {
	client *maps.Client
}

// NewService creates a Service with the given API key.
func NewService(apiKey string) (*Service, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Service{client: client}, nil
}

// Geocode returns the coordinate of the best match for address.
func (s *Service) Geocode(ctx context.Context, address string) (types.Point, error) {
	r := &maps.GeocodingRequest{Address: address}

	results, err := s.client.Geocode(ctx, r)
	if err != nil {
		return types.Point{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, fmt.Errorf("no geocoding result for %q", address)
	}

	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
