package employees

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Employee is a member of the field team.
type Employee struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      int64        `json:"ownerId"`
	Name         string       `json:"name"`
	CPF          *string      `json:"cpf,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Email        *string      `json:"email,omitempty"`
	Position     *string      `json:"position,omitempty"`
	HireDate     *shared.Date `json:"hireDate,omitempty"`
	Observations *string      `json:"observations,omitempty"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// EmployeeForm is the create/update payload.
type EmployeeForm struct {
	Name         string       `json:"name" validate:"required,max=200"`
	CPF          *string      `json:"cpf,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Email        *string      `json:"email,omitempty" validate:"omitempty,email"`
	Position     *string      `json:"position,omitempty" validate:"omitempty,max=100"`
	HireDate     *shared.Date `json:"hireDate,omitempty"`
	Observations *string      `json:"observations,omitempty" validate:"omitempty,max=2000"`
	Active       *bool        `json:"active,omitempty"`
}

// ErrNotFound indicates the employee does not exist within the firm.
var ErrNotFound = fmt.Errorf("employee not found: %w", httpx.ErrNotFound)
