package services

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"artisan-delivery/internal/ports"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DeliveryService exposes delivery pricing to the API layer.
type DeliveryService struct {
	routes     ports.RouteProvider
	fares      *FareCalculator
	aggregator *DeliveryAggregator
	sellers    ports.SellerLocationRepository
	log        *zap.Logger
}

// NewDeliveryService wires pricing. sellers may be nil when every request
// carries its own seller locations.
func NewDeliveryService(
	routes ports.RouteProvider,
	fares *FareCalculator,
	sellers ports.SellerLocationRepository,
	log *zap.Logger,
) *DeliveryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliveryService{
		routes:     routes,
		fares:      fares,
		aggregator: NewDeliveryAggregator(routes, fares, log),
		sellers:    sellers,
		log:        log,
	}
}

// CalculateDeliveryCharge prices the delivery between a seller and a buyer.
// Only invalid coordinates produce an error; routing failures yield a degraded fare.
func (s *DeliveryService) CalculateDeliveryCharge(
	ctx context.Context,
	seller domain.Coordinate,
	buyer domain.Coordinate,
) (_ domain.FareBreakdown, err error) {
	defer obs.Time(ctx, "delivery.CalculateDeliveryCharge")(&err)

	if err := seller.Validate(); err != nil {
		return domain.FareBreakdown{}, fmt.Errorf("calculate delivery charge: seller: %w", err)
	}
	if err := buyer.Validate(); err != nil {
		return domain.FareBreakdown{}, fmt.Errorf("calculate delivery charge: buyer: %w", err)
	}

	route := s.routes.GetRoute(ctx, seller, buyer)
	return s.fares.ComputeFare(route), nil
}

// ComputeDeliverySummary prices a cart. Sellers missing from sellerLocations
// are looked up in the seller repository when one is configured; a failed
// lookup only results in missing-location warnings.
func (s *DeliveryService) ComputeDeliverySummary(
	ctx context.Context,
	items []domain.CartItem,
	sellerLocations map[string]domain.Coordinate,
	buyer domain.Coordinate,
) (domain.OrderDeliverySummary, error) {
	locations := make(map[string]domain.Coordinate, len(sellerLocations))
	for id, c := range sellerLocations {
		locations[id] = c
	}

	if s.sellers != nil {
		missing := make([]string, 0)
		seen := make(map[string]struct{})
		for _, it := range items {
			if _, ok := locations[it.SellerID]; ok {
				continue
			}
			if _, ok := seen[it.SellerID]; ok {
				continue
			}
			seen[it.SellerID] = struct{}{}
			missing = append(missing, it.SellerID)
		}

		if len(missing) > 0 {
			found, err := s.sellers.GetLocations(ctx, missing)
			if err != nil {
				s.log.Warn("seller location lookup failed",
					zap.String("req_id", obs.RequestID(ctx)),
					zap.Strings("seller_ids", missing),
					zap.Error(err),
				)
			}
			for id, c := range found {
				locations[id] = c
			}
		}
	}

	return s.aggregator.Aggregate(ctx, items, locations, buyer)
}

func (s *DeliveryService) Fares() *FareCalculator { return s.fares }
