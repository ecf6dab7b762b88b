package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

// Directions is a road-routing backend. Unlike RouteProvider it reports failures.
type Directions interface {
	Directions(ctx context.Context, from, to domain.Coordinate) (domain.RouteResult, error)
}
