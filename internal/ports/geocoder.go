package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinate, error)
}
