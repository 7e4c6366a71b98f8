package closing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// PeriodType enumerates closing cadences.
type PeriodType string

const (
	PeriodWeekly   PeriodType = "semanal"
	PeriodBiweekly PeriodType = "quinzenal"
	PeriodMonthly  PeriodType = "mensal"
)

// Valid reports whether the period type is known.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodBiweekly, PeriodMonthly:
		return true
	}
	return false
}

// PartnerProfit is a partner's finalized profit for a closing.
type PartnerProfit struct {
	PartnerID int64   `json:"partnerId"`
	Profit    float64 `json:"profit"`
}

// CashClosing is an immutable snapshot of a finalized period.
type CashClosing struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        int64           `json:"ownerId"`
	PeriodType     PeriodType      `json:"periodType"`
	StartDate      shared.Date     `json:"startDate"`
	EndDate        shared.Date     `json:"endDate"`
	TotalProfit    float64         `json:"totalProfit"`
	CompanyCash    float64         `json:"companyCash"`
	TotalRevenue   float64         `json:"totalRevenue"`
	TotalExpenses  float64         `json:"totalExpenses"`
	PartnerProfits []PartnerProfit `json:"partnerProfits"`
	Observations   *string         `json:"observations,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ProfitFor returns the stored profit of a partner.
func (c CashClosing) ProfitFor(partnerID int64) float64 {
	for _, p := range c.PartnerProfits {
		if p.PartnerID == partnerID {
			return p.Profit
		}
	}
	return 0
}

// CreateInput carries figures computed by the caller with the split engine.
type CreateInput struct {
	PeriodType     PeriodType      `json:"periodType" validate:"required,oneof=semanal quinzenal mensal"`
	StartDate      shared.Date     `json:"startDate" validate:"required"`
	EndDate        shared.Date     `json:"endDate" validate:"required"`
	TotalProfit    float64         `json:"totalProfit"`
	CompanyCash    float64         `json:"companyCash"`
	TotalRevenue   float64         `json:"totalRevenue" validate:"gte=0"`
	TotalExpenses  float64         `json:"totalExpenses" validate:"gte=0"`
	PartnerProfits []PartnerProfit `json:"partnerProfits" validate:"required,min=1"`
	Observations   *string         `json:"observations,omitempty" validate:"omitempty,max=2000"`
}

// Validate checks coherence that struct tags cannot express.
func (in CreateInput) Validate(group shared.OwnershipGroup) error {
	if !in.PeriodType.Valid() {
		return fmt.Errorf("%w: unknown period type %q", httpx.ErrValidation, in.PeriodType)
	}
	if in.StartDate.After(in.EndDate.Time) {
		return fmt.Errorf("%w: start date cannot be after end date", httpx.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(in.PartnerProfits))
	for _, p := range in.PartnerProfits {
		if !group.Contains(p.PartnerID) {
			return fmt.Errorf("%w: partner %d is not part of the firm", httpx.ErrValidation, p.PartnerID)
		}
		if _, dup := seen[p.PartnerID]; dup {
			return fmt.Errorf("%w: partner %d listed twice", httpx.ErrValidation, p.PartnerID)
		}
		seen[p.PartnerID] = struct{}{}
	}
	var missing []string
	for _, id := range group.IDs() {
		if _, ok := seen[id]; !ok {
			missing = append(missing, fmt.Sprint(id))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing profit for partners %s", httpx.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Preview is a live profit split over a window.
type Preview struct {
	Window       Window       `json:"window"`
	LastClosing  *CashClosing `json:"lastClosing,omitempty"`
	QuotesCount  int          `json:"quotesCount"`
	PendingCount int          `json:"pendingQuotesCount"`
	Split        Split        `json:"split"`
}

var (
	// ErrNotFound indicates a closing does not exist within the firm.
	ErrNotFound = fmt.Errorf("cash closing not found: %w", httpx.ErrNotFound)
	// ErrOverlap indicates the new period starts on or before the last closing's end.
	ErrOverlap = fmt.Errorf("cash closing overlaps the previous period: %w", httpx.ErrConflict)
	// ErrInvalidRange indicates an explicit preview range is malformed.
	ErrInvalidRange = errors.New("closing: invalid range")
)
