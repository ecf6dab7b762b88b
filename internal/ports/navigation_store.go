package ports

import (
	"artisan-delivery/internal/domain"
	"context"
)

// NavigationStore persists the latest snapshot per user.
// Get returns ok=false when the user has no stored snapshot.
type NavigationStore interface {
	Save(ctx context.Context, snap domain.NavigationSnapshot) error
	Get(ctx context.Context, userID string) (domain.NavigationSnapshot, bool, error)
	Delete(ctx context.Context, userID string) error
}
