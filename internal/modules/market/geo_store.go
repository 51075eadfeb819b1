// README: Live driver positions backed by Redis GEO.
package market

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"biddrop/internal/types"
)

const driverGeoKey = "market:driver_positions"

// GeoStore tracks last-known driver positions. Clearing anchors drivers on
// these when available instead of the first pickup point.
type GeoStore struct {
	redis *redis.Client
}

func NewGeoStore(redis *redis.Client) *GeoStore {
	return &GeoStore{redis: redis}
}

func (s *GeoStore) UpdatePosition(ctx context.Context, driverID uuid.UUID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      driverID.String(),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *GeoStore) RemoveDriver(ctx context.Context, driverID uuid.UUID) error {
	return s.redis.ZRem(ctx, driverGeoKey, driverID.String()).Err()
}

// Positions returns the last-known position per driver; drivers that never
// reported one are absent from the map.
func (s *GeoStore) Positions(ctx context.Context, driverIDs []uuid.UUID) (map[uuid.UUID]types.Point, error) {
	if len(driverIDs) == 0 {
		return nil, nil
	}
	members := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		members[i] = id.String()
	}
	locs, err := s.redis.GeoPos(ctx, driverGeoKey, members...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]types.Point, len(driverIDs))
	for i, loc := range locs {
		if loc == nil {
			continue
		}
		out[driverIDs[i]] = types.Point{Lat: loc.Latitude, Lng: loc.Longitude}
	}
	return out, nil
}
