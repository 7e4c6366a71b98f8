package quotes

import (
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
)

type LineItemRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
}

// CreateQuoteRequest is the create payload. Client supplied subtotal and
// total are accepted for compatibility and ignored.
type CreateQuoteRequest struct {
	ClientID     uuid.UUID         `json:"clientId" validate:"required"`
	Services     []LineItemRequest `json:"services" validate:"dive"`
	Materials    []LineItemRequest `json:"materials" validate:"dive"`
	Discount     float64           `json:"discount" validate:"gte=0"`
	Observations *string           `json:"observations,omitempty" validate:"omitempty,max=4000"`
	Subtotal     *float64          `json:"subtotal,omitempty"`
	Total        *float64          `json:"total,omitempty"`
}

// UpdateQuoteRequest only touches fields present in the payload.
type UpdateQuoteRequest struct {
	ClientID     *uuid.UUID         `json:"clientId,omitempty"`
	Services     *[]LineItemRequest `json:"services,omitempty" validate:"omitempty,dive"`
	Materials    *[]LineItemRequest `json:"materials,omitempty" validate:"omitempty,dive"`
	Discount     *float64           `json:"discount,omitempty" validate:"omitempty,gte=0"`
	Observations *string            `json:"observations,omitempty" validate:"omitempty,max=4000"`
}

// StartServiceRequest optionally renegotiates the discount.
type StartServiceRequest struct {
	Discount *ledger.Discount `json:"discount,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func toLineItems(in []LineItemRequest) []LineItem {
	out := make([]LineItem, 0, len(in))
	for _, item := range in {
		out = append(out, LineItem{
			ID:        uuid.New(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return out
}
