package services

import (
	"artisan-delivery/internal/domain"
	"artisan-delivery/internal/platform/obs"
	"artisan-delivery/internal/ports"
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DeliveryAggregator prices a multi-seller cart: one delivery group per seller
// with a usable location, with route lookups for all sellers issued concurrently.
type DeliveryAggregator struct {
	routes ports.RouteProvider
	fares  *FareCalculator
	log    *zap.Logger
	// MaxParallel caps concurrent route lookups; 0 means one goroutine per seller.
	MaxParallel int
}

func NewDeliveryAggregator(routes ports.RouteProvider, fares *FareCalculator, log *zap.Logger) *DeliveryAggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliveryAggregator{routes: routes, fares: fares, log: log}
}

type sellerPartition struct {
	sellerID string
	subtotal domain.Money
}

// Aggregate fails only on caller errors (invalid buyer coordinate or cart item).
// Sellers without a valid location are reported in Warnings and still count
// towards Subtotal.
func (a *DeliveryAggregator) Aggregate(
	ctx context.Context,
	items []domain.CartItem,
	sellerLocations map[string]domain.Coordinate,
	buyer domain.Coordinate,
) (_ domain.OrderDeliverySummary, err error) {
	defer obs.Time(ctx, "delivery.Aggregate")(&err)

	if err := buyer.Validate(); err != nil {
		return domain.OrderDeliverySummary{}, fmt.Errorf("aggregate delivery: buyer: %w", err)
	}

	partitions, subtotal, err := partitionBySeller(items)
	if err != nil {
		return domain.OrderDeliverySummary{}, fmt.Errorf("aggregate delivery: %w", err)
	}

	type lookup struct {
		partition sellerPartition
		from      domain.Coordinate
	}

	lookups := make([]lookup, 0, len(partitions))
	warnings := make([]domain.DeliveryWarning, 0)
	for _, p := range partitions {
		loc, ok := sellerLocations[p.sellerID]
		if !ok {
			warnings = append(warnings, domain.DeliveryWarning{
				SellerID:     p.sellerID,
				Reason:       domain.WarningMissingLocation,
				ItemSubtotal: p.subtotal,
			})
			continue
		}
		if err := loc.Validate(); err != nil {
			warnings = append(warnings, domain.DeliveryWarning{
				SellerID:     p.sellerID,
				Reason:       domain.WarningInvalidLocation,
				ItemSubtotal: p.subtotal,
			})
			continue
		}
		lookups = append(lookups, lookup{partition: p, from: loc})
	}

	for _, w := range warnings {
		a.log.Warn("seller excluded from delivery pricing",
			zap.String("req_id", obs.RequestID(ctx)),
			zap.String("seller_id", w.SellerID),
			zap.String("reason", string(w.Reason)),
		)
	}

	// Each goroutine writes only its own slot.
	groups := make([]domain.DeliveryGroup, len(lookups))

	g, gctx := errgroup.WithContext(ctx)
	if a.MaxParallel > 0 {
		g.SetLimit(a.MaxParallel)
	}
	for i, l := range lookups {
		g.Go(func() error {
			route := a.routes.GetRoute(gctx, l.from, buyer)
			groups[i] = domain.DeliveryGroup{
				SellerID:     l.partition.sellerID,
				ItemSubtotal: l.partition.subtotal,
				Fare:         a.fares.ComputeFare(route),
			}
			return nil
		})
	}
	_ = g.Wait()

	var totalFare domain.Money
	for _, grp := range groups {
		if totalFare, err = totalFare.Add(grp.Fare.Total); err != nil {
			return domain.OrderDeliverySummary{}, fmt.Errorf("aggregate delivery: total fare: %w", err)
		}
	}

	grandTotal, err := subtotal.Add(totalFare)
	if err != nil {
		return domain.OrderDeliverySummary{}, fmt.Errorf("aggregate delivery: %w: grand total: %w", domain.ErrInvalidCartItem, err)
	}

	return domain.OrderDeliverySummary{
		Groups:     groups,
		Subtotal:   subtotal,
		TotalFare:  totalFare,
		GrandTotal: grandTotal,
		Currency:   a.fares.Currency(),
		Warnings:   warnings,
	}, nil
}

// partitionBySeller groups items by seller in order of first appearance.
func partitionBySeller(items []domain.CartItem) ([]sellerPartition, domain.Money, error) {
	index := make(map[string]int)
	partitions := make([]sellerPartition, 0)
	var subtotal domain.Money

	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, 0, fmt.Errorf("item #%d: %w", i+1, err)
		}

		line, err := it.LineTotal()
		if err != nil {
			return nil, 0, fmt.Errorf("item #%d: %w: %w", i+1, domain.ErrInvalidCartItem, err)
		}
		if subtotal, err = subtotal.Add(line); err != nil {
			return nil, 0, fmt.Errorf("item #%d: %w: subtotal: %w", i+1, domain.ErrInvalidCartItem, err)
		}

		idx, ok := index[it.SellerID]
		if !ok {
			idx = len(partitions)
			index[it.SellerID] = idx
			partitions = append(partitions, sellerPartition{sellerID: it.SellerID})
		}
		// Bounded by subtotal, which already passed the overflow check.
		partitions[idx].subtotal += line
	}

	return partitions, subtotal, nil
}
