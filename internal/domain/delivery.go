package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCartItem = errors.New("invalid cart item")

// A single cart line as handed over by the cart collaborator.
type CartItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	UnitPrice Money  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func (i CartItem) Validate() error {
	if strings.TrimSpace(i.SellerID) == "" {
		return fmt.Errorf("%w: product %q has no seller_id", ErrInvalidCartItem, i.ProductID)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: product %q quantity must be positive, got %d", ErrInvalidCartItem, i.ProductID, i.Quantity)
	}
	if i.UnitPrice < 0 {
		return fmt.Errorf("%w: product %q unit_price must not be negative", ErrInvalidCartItem, i.ProductID)
	}
	if _, err := i.LineTotal(); err != nil {
		return fmt.Errorf("%w: product %q line total: %w", ErrInvalidCartItem, i.ProductID, err)
	}
	return nil
}

// LineTotal is UnitPrice x Quantity.
func (i CartItem) LineTotal() (Money, error) { return i.UnitPrice.Times(i.Quantity) }

// Per-seller partition of a multi-seller cart with its own delivery fare.
type DeliveryGroup struct {
	SellerID     string        `json:"seller_id"`
	ItemSubtotal Money         `json:"item_subtotal"`
	Fare         FareBreakdown `json:"fare"`
}

type WarningReason string

const (
	WarningMissingLocation WarningReason = "missing_location"
	WarningInvalidLocation WarningReason = "invalid_location"
)

// Reports a seller whose shipment could not be priced.
type DeliveryWarning struct {
	SellerID     string        `json:"seller_id"`
	Reason       WarningReason `json:"reason"`
	ItemSubtotal Money         `json:"item_subtotal"`
}

// Order-level fare summary.
// TotalFare == sum(Groups[i].Fare.Total) and GrandTotal == Subtotal + TotalFare.
type OrderDeliverySummary struct {
	Groups     []DeliveryGroup   `json:"groups"`
	Subtotal   Money             `json:"subtotal"`
	TotalFare  Money             `json:"total_fare"`
	GrandTotal Money             `json:"grand_total"`
	Currency   string            `json:"currency"`
	Warnings   []DeliveryWarning `json:"warnings"`
}
