package clients

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

// Client is a customer of the firm, shared by every partner.
type Client struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClientForm is the create/update payload.
type ClientForm struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Phone   string  `json:"phone" validate:"max=40"`
	Address string  `json:"address" validate:"max=500"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=200"`
}

// ErrNotFound indicates the client does not exist within the firm.
var ErrNotFound = fmt.Errorf("client not found: %w", httpx.ErrNotFound)
