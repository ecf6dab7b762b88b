package routing

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"

	"go.uber.org/zap"
)

// CachingDirections checks a RouteCache before calling the wrapped backend
// and stores successful results. Cache failures are logged and never fail the lookup.
type CachingDirections struct {
	next  ports.Directions
	cache ports.RouteCache
	log   *zap.Logger
}

func NewCachingDirections(next ports.Directions, cache ports.RouteCache, log *zap.Logger) *CachingDirections {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachingDirections{next: next, cache: cache, log: log}
}

func (c *CachingDirections) Directions(ctx context.Context, from, to domain.Coordinate) (domain.RouteResult, error) {
	cached, ok, err := c.cache.Get(ctx, from, to)
	if err != nil {
		c.log.Warn("route cache read failed", zap.String("from", from.Key()), zap.String("to", to.Key()), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	route, err := c.next.Directions(ctx, from, to)
	if err != nil {
		return domain.RouteResult{}, err
	}

	if !route.Degraded {
		if err := c.cache.Put(ctx, from, to, route); err != nil {
			c.log.Warn("route cache write failed", zap.String("from", from.Key()), zap.String("to", to.Key()), zap.Error(err))
		}
	}

	return route, nil
}
