package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

// RouteProvider returns a route between two coordinates.
// It never fails: any backend failure resolves to a degraded straight-line route.
type RouteProvider interface {
	GetRoute(ctx context.Context, from, to domain.Coordinate) domain.RouteResult
}
