package dto

import (
	"artisan-delivery/internal/domain"
	"errors"
)

// ChargeRequest uses pointers so a missing field can be told apart from 0.
type ChargeRequest struct {
	SellerLat *float64 `json:"seller_lat"`
	SellerLng *float64 `json:"seller_lng"`
	BuyerLat  *float64 `json:"buyer_lat"`
	BuyerLng  *float64 `json:"buyer_lng"`
}

// Coordinates returns the seller and buyer points, or an error naming the first missing field.
func (r ChargeRequest) Coordinates() (seller, buyer domain.Coordinate, err error) {
	switch {
	case r.SellerLat == nil:
		return seller, buyer, errors.New("seller_lat is required")
	case r.SellerLng == nil:
		return seller, buyer, errors.New("seller_lng is required")
	case r.BuyerLat == nil:
		return seller, buyer, errors.New("buyer_lat is required")
	case r.BuyerLng == nil:
		return seller, buyer, errors.New("buyer_lng is required")
	}
	seller = domain.Coordinate{Lat: *r.SellerLat, Lng: *r.SellerLng}
	buyer = domain.Coordinate{Lat: *r.BuyerLat, Lng: *r.BuyerLng}
	return seller, buyer, nil
}

type PointRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (p *PointRequest) Coordinate(field string) (domain.Coordinate, error) {
	if p == nil || p.Lat == nil || p.Lng == nil {
		return domain.Coordinate{}, errors.New(field + ".lat and " + field + ".lng are required")
	}
	return domain.Coordinate{Lat: *p.Lat, Lng: *p.Lng}, nil
}

type SummaryRequest struct {
	Items           []domain.CartItem        `json:"items"`
	SellerLocations map[string]*PointRequest `json:"seller_locations"`
	Buyer           *PointRequest            `json:"buyer"`
}

// Locations converts seller_locations, rejecting entries with a missing lat or lng.
// Out-of-range values pass through; the aggregator reports those as warnings.
func (r SummaryRequest) Locations() (map[string]domain.Coordinate, error) {
	out := make(map[string]domain.Coordinate, len(r.SellerLocations))
	for sellerID, p := range r.SellerLocations {
		c, err := p.Coordinate("seller_locations[" + sellerID + "]")
		if err != nil {
			return nil, err
		}
		out[sellerID] = c
	}
	return out, nil
}
