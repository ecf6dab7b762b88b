package cache

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRouteTTL = 24 * time.Hour

	routeCachePrefix = "cache:route:"
)

// RedisRouteCache stores road routes as JSON with a TTL.
type RedisRouteCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRouteCache(client *redis.Client, ttl time.Duration) *RedisRouteCache {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &RedisRouteCache{client: client, ttl: ttl}
}

func routeKey(from, to domain.Coordinate) string {
	return routeCachePrefix + from.Key() + ":" + to.Key()
}

func (s *RedisRouteCache) Get(ctx context.Context, from, to domain.Coordinate) (_ domain.RouteResult, _ bool, err error) {
	defer obs.Time(ctx, "route.cache.redis.Get")(&err)

	data, err := s.client.Get(ctx, routeKey(from, to)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RouteResult{}, false, nil
		}
		return domain.RouteResult{}, false, fmt.Errorf("get route cache: %w", err)
	}

	var route domain.RouteResult
	if err := json.Unmarshal(data, &route); err != nil {
		return domain.RouteResult{}, false, fmt.Errorf("get route cache: decode route: %w", err)
	}
	return route, true, nil
}

// Put stores a route. Degraded routes are ignored.
func (s *RedisRouteCache) Put(ctx context.Context, from, to domain.Coordinate, route domain.RouteResult) error {
	if route.Degraded {
		return nil
	}

	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("put route cache: encode route: %w", err)
	}
	return s.client.Set(ctx, routeKey(from, to), data, s.ttl).Err()
}
