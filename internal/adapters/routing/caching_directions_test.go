package routing

import (
	"artisan-delivery/internal/domain"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memoryCache struct {
	mu     sync.Mutex
	m      map[string]domain.RouteResult
	getErr error
	puts   int
}

func (c *memoryCache) Get(ctx context.Context, from, to domain.Coordinate) (domain.RouteResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.RouteResult{}, false, c.getErr
	}
	r, ok := c.m[pairKey(from, to)]
	return r, ok, nil
}

func (c *memoryCache) Put(ctx context.Context, from, to domain.Coordinate, route domain.RouteResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]domain.RouteResult{}
	}
	c.m[pairKey(from, to)] = route
	c.puts++
	return nil
}

func roadRoute() domain.RouteResult {
	return domain.RouteResult{
		Geometry:    []domain.Coordinate{connaughtPlace, modelTown},
		DistanceKm:  17.85,
		DurationMin: 41,
		Steps:       []domain.NavigationStep{{Instruction: "Head north", DistanceMeters: 17850, DurationSec: 2460}},
	}
}

func TestCachingDirectionsServesRepeatLookupsFromCache(t *testing.T) {
	backend := NewMockDirections([]MockRoute{{From: connaughtPlace, To: modelTown, Route: roadRoute()}})
	cache := &memoryCache{}
	d := NewCachingDirections(backend, cache, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		r, err := d.Directions(context.Background(), connaughtPlace, modelTown)
		require.NoError(t, err)
		assert.Equal(t, 17.85, r.DistanceKm)
	}

	assert.Equal(t, int64(1), backend.Calls())
	assert.Equal(t, 1, cache.puts)
}

func TestCachingDirectionsDoesNotCacheFailures(t *testing.T) {
	backend := NewMockDirections(nil)
	cache := &memoryCache{}
	d := NewCachingDirections(backend, cache, nil)

	_, err := d.Directions(context.Background(), connaughtPlace, modelTown)
	require.Error(t, err)
	assert.Equal(t, 0, cache.puts)
}

func TestCachingDirectionsIgnoresCacheReadErrors(t *testing.T) {
	backend := NewMockDirections([]MockRoute{{From: connaughtPlace, To: modelTown, Route: roadRoute()}})
	cache := &memoryCache{getErr: errors.New("redis down")}
	d := NewCachingDirections(backend, cache, zaptest.NewLogger(t))

	r, err := d.Directions(context.Background(), connaughtPlace, modelTown)
	require.NoError(t, err)
	assert.False(t, r.Degraded)
	assert.Equal(t, int64(1), backend.Calls())
}
