package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

// RouteCache stores non-degraded routes keyed by coordinate pair.
// Get returns ok=false on a miss.
type RouteCache interface {
	Get(ctx context.Context, from, to domain.Coordinate) (domain.RouteResult, bool, error)
	Put(ctx context.Context, from, to domain.Coordinate, route domain.RouteResult) error
}
