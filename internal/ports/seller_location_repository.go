package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

// SellerLocationRepository resolves seller pickup coordinates.
// Sellers without a stored location are absent from the returned map.
type SellerLocationRepository interface {
	GetLocations(ctx context.Context, sellerIDs []string) (map[string]domain.Coordinate, error)
}
