package expenses

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Operating categories reduce the period profit before the split.
var OperatingCategories = []string{
	"material",
	"combustivel",
	"alimentacao",
	"ferramentas",
	"aluguel",
	"impostos",
	"manutencao",
	"marketing",
	"outros",
}

// EmployeeCategories are operating costs tied to a team member.
var EmployeeCategories = []string{
	"salario",
	"diaria",
	"adiantamento_funcionario",
	"comissao",
}

// Expense is money spent by the firm or drawn by a partner.
type Expense struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      int64       `json:"ownerId"`
	Category     string      `json:"category"`
	Description  string      `json:"description"`
	Amount       float64     `json:"amount"`
	Date         shared.Date `json:"date"`
	EmployeeID   *uuid.UUID  `json:"employeeId,omitempty"`
	EmployeeName *string     `json:"employeeName,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// ExpenseForm is the create/update payload.
type ExpenseForm struct {
	Category    string      `json:"category" validate:"required"`
	Description string      `json:"description" validate:"max=500"`
	Amount      float64     `json:"amount" validate:"gt=0"`
	Date        shared.Date `json:"date" validate:"required"`
	EmployeeID  *uuid.UUID  `json:"employeeId,omitempty"`
}

// ListFilter narrows expense listings. Zero values are ignored.
type ListFilter struct {
	Category   string
	EmployeeID uuid.UUID
	From       shared.Date
	To         shared.Date
}

// CategoryTotal sums one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Draw     bool    `json:"draw"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Summary totals expenses over a range, separating partner draws.
type Summary struct {
	From       shared.Date     `json:"from"`
	To         shared.Date     `json:"to"`
	Operating  float64         `json:"operating"`
	Draws      float64         `json:"draws"`
	Categories []CategoryTotal `json:"categories"`
}

var (
	// ErrNotFound indicates the expense does not exist within the firm.
	ErrNotFound = fmt.Errorf("expense not found: %w", httpx.ErrNotFound)
	// ErrUnknownEmployee indicates the referenced employee does not exist.
	ErrUnknownEmployee = fmt.Errorf("%w: employeeId: unknown employee", httpx.ErrValidation)
)

// Categories lists every accepted category for the group: operating,
// employee-related, then one draw category per partner.
func Categories(group shared.OwnershipGroup) []string {
	out := slices.Concat(OperatingCategories, EmployeeCategories)
	return append(out, group.DrawCategories()...)
}
