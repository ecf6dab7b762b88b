package ports

import (
	"artisan-delivery/internal/domain"
	"context"
	"time"
)

// WatchOptions configures a continuous position stream.
type WatchOptions struct {
	// Timeout is the longest gap between two fixes before a timeout error is emitted. Zero disables it.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix that may be replayed when the watch opens.
	MaximumAge time.Duration
	// MaxAccuracyMeters drops fixes whose accuracy radius is larger. Zero accepts all.
	MaxAccuracyMeters float64
}

// PositionSubscription is a cancellable stream of position updates.
// After Cancel returns no further update is delivered and Updates is closed.
type PositionSubscription interface {
	Updates() <-chan domain.PositionUpdate
	Cancel()
}

// GeoLocationSource wraps a device positioning capability.
// CurrentPosition returns a *domain.PositionError for categorised failures.
type GeoLocationSource interface {
	CurrentPosition(ctx context.Context, timeout time.Duration) (domain.PositionFix, error)
	Watch(ctx context.Context, opts WatchOptions) (PositionSubscription, error)
}
