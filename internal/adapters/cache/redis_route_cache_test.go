package cache

import (
	"artisan-delivery/internal/domain"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	seller = domain.Coordinate{Lat: 28.6139, Lng: 77.2090}
	buyer  = domain.Coordinate{Lat: 28.7041, Lng: 77.1025}
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleRoute() domain.RouteResult {
	return domain.RouteResult{
		Geometry:    []domain.Coordinate{seller, {Lat: 28.65, Lng: 77.18}, buyer},
		DistanceKm:  17.85,
		DurationMin: 41,
		Steps: []domain.NavigationStep{
			{Instruction: "Head north on Janpath", DistanceMeters: 1200, DurationSec: 180},
			{Instruction: "Arrive at your destination", DistanceMeters: 16650, DurationSec: 2280},
		},
	}
}

func TestRedisRouteCacheRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	c := NewRedisRouteCache(client, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, seller, buyer)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, seller, buyer, sampleRoute()))

	got, ok, err := c.Get(ctx, seller, buyer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleRoute(), got)

	// Direction matters.
	_, ok, err = c.Get(ctx, buyer, seller)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, seller, buyer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRouteCacheKeyRoundsCoordinates(t *testing.T) {
	_, client := newRedis(t)
	c := NewRedisRouteCache(client, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, seller, buyer, sampleRoute()))

	nearby := domain.Coordinate{Lat: seller.Lat + 0.000001, Lng: seller.Lng}
	_, ok, err := c.Get(ctx, nearby, buyer)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRouteCacheSkipsDegradedRoutes(t *testing.T) {
	mr, client := newRedis(t)
	c := NewRedisRouteCache(client, time.Hour)

	require.NoError(t, c.Put(context.Background(), seller, buyer, domain.StraightLineRoute(seller, buyer, 30)))
	assert.Empty(t, mr.Keys())
}

func TestRedisRouteCacheReportsBackendErrors(t *testing.T) {
	mr, client := newRedis(t)
	c := NewRedisRouteCache(client, time.Hour)
	mr.SetError("LOADING")

	_, _, err := c.Get(context.Background(), seller, buyer)
	assert.Error(t, err)
}
