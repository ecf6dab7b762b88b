package routing

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/ports"
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRouteTimeout     = 8 * time.Second
	DefaultFallbackSpeedKmh = 30.0
)

// FallbackProvider is the RouteProvider used by the services. It bounds each
// backend call with a timeout and resolves every failure (network error, non-2xx,
// malformed payload, no route, timeout) to a degraded straight-line route.
type FallbackProvider struct {
	backend  ports.Directions
	timeout  time.Duration
	speedKmh float64
	log      *zap.Logger
}

func NewFallbackProvider(backend ports.Directions, timeout time.Duration, speedKmh float64, log *zap.Logger) *FallbackProvider {
	if timeout <= 0 {
		timeout = DefaultRouteTimeout
	}
	if speedKmh <= 0 {
		speedKmh = DefaultFallbackSpeedKmh
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackProvider{backend: backend, timeout: timeout, speedKmh: speedKmh, log: log}
}

func (p *FallbackProvider) GetRoute(ctx context.Context, from, to domain.Coordinate) (route domain.RouteResult) {
	if p.backend == nil {
		return domain.StraightLineRoute(from, to, p.speedKmh)
	}

	// A panicking backend still degrades.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("route backend panicked, using straight line", zap.Any("panic", r))
			route = domain.StraightLineRoute(from, to, p.speedKmh)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	route, err := p.backend.Directions(callCtx, from, to)
	if err != nil {
		p.log.Warn("route lookup failed, using straight line",
			zap.String("from", from.Key()),
			zap.String("to", to.Key()),
			zap.Error(err),
		)
		return domain.StraightLineRoute(from, to, p.speedKmh)
	}

	return route
}
