package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

// Kind separates labour services from materials.
type Kind string

const (
	KindService  Kind = "service"
	KindMaterial Kind = "material"
)

// Item is a priced template copied into quote line items.
type Item struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	UnitPrice   float64   `json:"unitPrice"`
	Unit        string    `json:"unit"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ItemForm is the create/update payload. Active defaults to true on create.
type ItemForm struct {
	Kind        Kind    `json:"kind" validate:"omitempty,oneof=service material"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	Unit        string  `json:"unit" validate:"max=20"`
	Active      *bool   `json:"active,omitempty"`
}

// ErrNotFound indicates the catalog entry does not exist within the firm.
var ErrNotFound = fmt.Errorf("catalog item not found: %w", httpx.ErrNotFound)
