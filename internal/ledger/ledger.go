// Package ledger holds the arithmetic shared by quotes, payments and closings.
// Every function is pure and works in float64 without intermediate rounding.
package ledger

import (
	"errors"
	"fmt"
)

// LineItem is a priced quantity on a quote.
type LineItem struct {
	Quantity  float64
	UnitPrice float64
}

// LineTotal returns quantity × unit price.
func LineTotal(item LineItem) float64 {
	return item.Quantity * item.UnitPrice
}

// Subtotal sums the line totals of services and materials.
func Subtotal(services, materials []LineItem) float64 {
	var sum float64
	for _, item := range services {
		sum += LineTotal(item)
	}
	for _, item := range materials {
		sum += LineTotal(item)
	}
	return sum
}

// Total returns subtotal − discount. The result may be negative.
func Total(subtotal, discount float64) float64 {
	return subtotal - discount
}

// ClampedTotal returns subtotal − discount floored at zero.
func ClampedTotal(subtotal, discount float64) float64 {
	return max(0, Total(subtotal, discount))
}

// TotalPaid sums payment amounts.
func TotalPaid(amounts []float64) float64 {
	var sum float64
	for _, a := range amounts {
		sum += a
	}
	return sum
}

// Remaining returns what is still owed on a total.
func Remaining(total, paid float64) float64 {
	return total - paid
}

// IsFullyPaid reports whether nothing remains owed.
func IsFullyPaid(total, paid float64) bool {
	return Remaining(total, paid) <= 0
}

// DiscountKind selects how a renegotiated discount is expressed.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Discount is a renegotiated discount supplied when a service starts.
type Discount struct {
	Kind  DiscountKind `json:"type"`
	Value float64      `json:"value"`
}

// ErrInvalidDiscount reports a discount that cannot be applied.
var ErrInvalidDiscount = errors.New("invalid discount")

// Amount converts the discount into a currency amount against subtotal.
func (d Discount) Amount(subtotal float64) (float64, error) {
	switch d.Kind {
	case DiscountPercentage:
		if d.Value < 0 || d.Value > 100 {
			return 0, fmt.Errorf("%w: percentage must be between 0 and 100, got %v", ErrInvalidDiscount, d.Value)
		}
		return subtotal * d.Value / 100, nil
	case DiscountFixed:
		if d.Value < 0 {
			return 0, fmt.Errorf("%w: fixed amount must not be negative, got %v", ErrInvalidDiscount, d.Value)
		}
		return d.Value, nil
	default:
		return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidDiscount, d.Kind)
	}
}

// Renegotiate applies d to subtotal and returns the new discount and clamped total.
func Renegotiate(subtotal float64, d Discount) (discount, total float64, err error) {
	discount, err = d.Amount(subtotal)
	if err != nil {
		return 0, 0, err
	}
	return discount, ClampedTotal(subtotal, discount), nil
}
