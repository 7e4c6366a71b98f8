package quotes

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

// LineItem is a service or material copied onto a quote.
type LineItem struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
}

// Total returns quantity × unit price.
func (l LineItem) Total() float64 {
	return ledger.LineTotal(ledger.LineItem{Quantity: l.Quantity, UnitPrice: l.UnitPrice})
}

// Quote is a cost estimate with its copied line items.
type Quote struct {
	ID                 uuid.UUID  `json:"id"`
	Number             int64      `json:"number"`
	OwnerID            int64      `json:"ownerId"`
	ClientID           uuid.UUID  `json:"clientId"`
	ClientName         string     `json:"clientName,omitempty"`
	ClientPhone        string     `json:"clientPhone,omitempty"`
	Services           []LineItem `json:"services"`
	Materials          []LineItem `json:"materials"`
	Subtotal           float64    `json:"subtotal"`
	Discount           float64    `json:"discount"`
	Total              float64    `json:"total"`
	TotalPaid          float64    `json:"totalPaid"`
	Observations       *string    `json:"observations,omitempty"`
	Status             Status     `json:"status"`
	ServiceStartedAt   *time.Time `json:"serviceStartedAt,omitempty"`
	ServiceCompletedAt *time.Time `json:"serviceCompletedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Remaining returns the amount still owed.
func (q Quote) Remaining() float64 {
	return ledger.Remaining(q.Total, q.TotalPaid)
}

// FullyPaid reports whether nothing remains owed.
func (q Quote) FullyPaid() bool {
	return ledger.IsFullyPaid(q.Total, q.TotalPaid)
}

// Recompute refreshes subtotal and total from line items and discount.
func (q *Quote) Recompute() error {
	q.Subtotal = ledger.Subtotal(ledgerItems(q.Services), ledgerItems(q.Materials))
	if q.Discount < 0 || q.Discount > q.Subtotal {
		return fmt.Errorf("%w: discount must be between 0 and the subtotal %.2f", httpx.ErrValidation, q.Subtotal)
	}
	q.Total = ledger.Total(q.Subtotal, q.Discount)
	return nil
}

// BelowPaidError reports an edit that would leave the quote total under the
// amount already paid.
type BelowPaidError struct {
	Total float64
	Paid  float64
}

func (e *BelowPaidError) Error() string {
	return fmt.Sprintf("quote total %.2f is below the %.2f already paid", e.Total, e.Paid)
}

func (e *BelowPaidError) Unwrap() error {
	return httpx.ErrValidation
}

// coversPaid fails when the payments already recorded exceed the total.
func (q Quote) coversPaid() error {
	if q.TotalPaid > q.Total {
		return &BelowPaidError{Total: q.Total, Paid: q.TotalPaid}
	}
	return nil
}

func ledgerItems(items []LineItem) []ledger.LineItem {
	out := make([]ledger.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, ledger.LineItem{Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return out
}

// Summary is a quote row in listings.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	Number     int64     `json:"number"`
	ClientID   uuid.UUID `json:"clientId"`
	ClientName string    `json:"clientName"`
	Total      float64   `json:"total"`
	TotalPaid  float64   `json:"totalPaid"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListFilter narrows quote listings.
type ListFilter struct {
	Status   Status
	ClientID uuid.UUID
	Search   string
}
