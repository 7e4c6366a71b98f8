package closing

import (
	"math"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// MaxCompanyCashPercentage caps the reserve taken before the partner split.
const MaxCompanyCashPercentage = 50

// Expense is the slice of an expense record the split engine needs.
type Expense struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// RevenueQuote is a completed quote with the amount paid against it.
type RevenueQuote struct {
	Total float64 `json:"total"`
	Paid  float64 `json:"paid"`
}

// SplitInput feeds ComputeSplit.
type SplitInput struct {
	Revenue               float64
	Expenses              []Expense
	CompanyCashPercentage float64
}

// PartnerShare is one partner's slice of the period's profit.
type PartnerShare struct {
	PartnerID    int64   `json:"partnerId"`
	DrawCategory string  `json:"drawCategory"`
	BaseShare    float64 `json:"baseShare"`
	Draws        float64 `json:"draws"`
	Profit       float64 `json:"profit"`
}

// Split is the outcome of a profit split. Partner profits may be negative
// when draws exceed the share.
type Split struct {
	Revenue               float64        `json:"revenue"`
	OperatingExpenses     float64        `json:"operatingExpenses"`
	Draws                 float64        `json:"draws"`
	Profit                float64        `json:"profit"`
	CompanyCashPercentage float64        `json:"companyCashPercentage"`
	CompanyCash           float64        `json:"companyCash"`
	RemainingProfit       float64        `json:"remainingProfit"`
	Shares                []PartnerShare `json:"shares"`
}

// Share returns the share for a partner.
func (s Split) Share(partnerID int64) (PartnerShare, bool) {
	for _, share := range s.Shares {
		if share.PartnerID == partnerID {
			return share, true
		}
	}
	return PartnerShare{}, false
}

// ClampCompanyCashPercentage bounds a stored percentage to [0, 50].
func ClampCompanyCashPercentage(pct float64) float64 {
	if math.IsNaN(pct) || pct < 0 {
		return 0
	}
	if pct > MaxCompanyCashPercentage {
		return MaxCompanyCashPercentage
	}
	return pct
}

// RecognizedRevenue sums totals of quotes that are fully paid. Partially paid
// quotes contribute nothing.
func RecognizedRevenue(quotes []RevenueQuote) float64 {
	var revenue float64
	for _, q := range quotes {
		if ledger.IsFullyPaid(q.Total, q.Paid) {
			revenue += q.Total
		}
	}
	return revenue
}

// ComputeSplit partitions profit between the company reserve and the
// partners, weighting base shares and charging each partner's draws to their
// own share.
func ComputeSplit(group shared.OwnershipGroup, in SplitInput) Split {
	draws := make(map[int64]float64, group.Len())
	var operating, totalDraws float64
	for _, e := range in.Expenses {
		if partner, ok := group.PartnerForDraw(e.Category); ok {
			draws[partner.UserID] += e.Amount
			totalDraws += e.Amount
			continue
		}
		operating += e.Amount
	}

	profit := in.Revenue - operating
	pct := ClampCompanyCashPercentage(in.CompanyCashPercentage)
	companyCash := profit * (pct / 100)
	remaining := profit - companyCash

	partners := group.Partners()
	var totalWeight float64
	for _, p := range partners {
		totalWeight += p.Weight
	}

	shares := make([]PartnerShare, 0, len(partners))
	for _, p := range partners {
		base := 0.0
		if totalWeight > 0 {
			base = remaining * p.Weight / totalWeight
		}
		shares = append(shares, PartnerShare{
			PartnerID:    p.UserID,
			DrawCategory: p.DrawCategory,
			BaseShare:    base,
			Draws:        draws[p.UserID],
			Profit:       base - draws[p.UserID],
		})
	}

	return Split{
		Revenue:               in.Revenue,
		OperatingExpenses:     operating,
		Draws:                 totalDraws,
		Profit:                profit,
		CompanyCashPercentage: pct,
		CompanyCash:           companyCash,
		RemainingProfit:       remaining,
		Shares:                shares,
	}
}
