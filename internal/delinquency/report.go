// Package delinquency derives outstanding balances per client from quotes
// and payments.
package delinquency

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
)

// Severity is a display classification of a debt.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SortKey orders clients in a report.
type SortKey string

const (
	SortByDebt   SortKey = "debt"
	SortByCount  SortKey = "count"
	SortByOldest SortKey = "oldest"
)

// ParseSortKey maps a query value to a SortKey; empty means SortByDebt.
func ParseSortKey(raw string) (SortKey, error) {
	switch SortKey(raw) {
	case "", SortByDebt:
		return SortByDebt, nil
	case SortByCount, SortByOldest:
		return SortKey(raw), nil
	}
	return "", fmt.Errorf("%w: sort must be debt, count or oldest", httpx.ErrValidation)
}

// DebtRow is a quote with its paid sum as read from the store.
type DebtRow struct {
	QuoteID            uuid.UUID
	Number             int64
	ClientID           uuid.UUID
	ClientName         string
	ClientPhone        string
	Status             quotes.Status
	Total              float64
	Paid               float64
	CreatedAt          time.Time
	ServiceCompletedAt *time.Time
}

// QuoteDebt is one quote's outstanding balance.
type QuoteDebt struct {
	QuoteID            uuid.UUID     `json:"quoteId"`
	Number             int64         `json:"number"`
	Status             quotes.Status `json:"status"`
	Total              float64       `json:"total"`
	Paid               float64       `json:"paid"`
	Debt               float64       `json:"debt"`
	CreatedAt          time.Time     `json:"createdAt"`
	ServiceCompletedAt *time.Time    `json:"serviceCompletedAt,omitempty"`
	DaysOverdue        *int          `json:"daysOverdue,omitempty"`
	Severity           Severity      `json:"severity"`
}

// ClientDebt aggregates a client's delinquent quotes.
type ClientDebt struct {
	ClientID       uuid.UUID   `json:"clientId"`
	ClientName     string      `json:"clientName"`
	ClientPhone    string      `json:"clientPhone,omitempty"`
	TotalDebt      float64     `json:"totalDebt"`
	QuotesWithDebt []QuoteDebt `json:"quotesWithDebt"`
	OldestDebtDate time.Time   `json:"oldestDebtDate"`
	MaxDaysOverdue *int        `json:"maxDaysOverdue,omitempty"`
	Severity       Severity    `json:"severity"`
}

// Report is the full delinquency view. Degraded marks an empty fallback
// served while the store was unavailable.
type Report struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Sort        SortKey          `json:"sort"`
	TotalDebt   float64          `json:"totalDebt"`
	QuoteCount  int              `json:"quoteCount"`
	BySeverity  map[Severity]int `json:"bySeverity"`
	Clients     []ClientDebt     `json:"clients"`
	Degraded    bool             `json:"degraded,omitempty"`
}

// Classify assigns a severity from the days overdue and the debt amount.
func Classify(daysOverdue *int, debt float64) Severity {
	switch {
	case daysOverdue != nil && *daysOverdue > 90:
		return SeverityCritical
	case daysOverdue != nil && *daysOverdue > 30, debt > 5000:
		return SeverityHigh
	case debt > 1000:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DaysOverdue counts whole days since completion. Quotes never completed
// have no overdue count.
func DaysOverdue(completedAt *time.Time, now time.Time) *int {
	if completedAt == nil {
		return nil
	}
	days := int(math.Floor(now.Sub(*completedAt).Hours() / 24))
	days = max(days, 0)
	return &days
}

// Build derives the report from quote rows. Rows whose status is not
// receivable or whose balance is settled are skipped.
func Build(rows []DebtRow, now time.Time) Report {
	byClient := map[uuid.UUID]*ClientDebt{}
	var order []uuid.UUID
	report := Report{GeneratedAt: now.UTC(), Sort: SortByDebt, BySeverity: map[Severity]int{}}

	for _, row := range rows {
		if !row.Status.Receivable() {
			continue
		}
		debt := ledger.Remaining(row.Total, row.Paid)
		if debt <= 0 {
			continue
		}
		days := DaysOverdue(row.ServiceCompletedAt, now)
		qd := QuoteDebt{
			QuoteID:            row.QuoteID,
			Number:             row.Number,
			Status:             row.Status,
			Total:              row.Total,
			Paid:               row.Paid,
			Debt:               debt,
			CreatedAt:          row.CreatedAt,
			ServiceCompletedAt: row.ServiceCompletedAt,
			DaysOverdue:        days,
			Severity:           Classify(days, debt),
		}

		client, ok := byClient[row.ClientID]
		if !ok {
			client = &ClientDebt{ClientID: row.ClientID, ClientName: row.ClientName, ClientPhone: row.ClientPhone}
			byClient[row.ClientID] = client
			order = append(order, row.ClientID)
		}
		client.TotalDebt += debt
		client.QuotesWithDebt = append(client.QuotesWithDebt, qd)
		since := row.CreatedAt
		if row.ServiceCompletedAt != nil {
			since = *row.ServiceCompletedAt
		}
		if client.OldestDebtDate.IsZero() || since.Before(client.OldestDebtDate) {
			client.OldestDebtDate = since
		}
		if days != nil && (client.MaxDaysOverdue == nil || *days > *client.MaxDaysOverdue) {
			d := *days
			client.MaxDaysOverdue = &d
		}
		report.TotalDebt += debt
		report.QuoteCount++
	}

	report.Clients = make([]ClientDebt, 0, len(order))
	for _, id := range order {
		client := byClient[id]
		client.Severity = Classify(client.MaxDaysOverdue, client.TotalDebt)
		for _, q := range client.QuotesWithDebt {
			if severityRank[q.Severity] > severityRank[client.Severity] {
				client.Severity = q.Severity
			}
		}
		report.BySeverity[client.Severity]++
		report.Clients = append(report.Clients, *client)
	}
	report.SortBy(SortByDebt)
	return report
}

// SortBy reorders the clients in place. Ties break by client name.
func (r *Report) SortBy(key SortKey) {
	r.Sort = key
	less := func(a, b ClientDebt) bool { return a.TotalDebt > b.TotalDebt }
	switch key {
	case SortByCount:
		less = func(a, b ClientDebt) bool { return len(a.QuotesWithDebt) > len(b.QuotesWithDebt) }
	case SortByOldest:
		less = func(a, b ClientDebt) bool { return a.OldestDebtDate.Before(b.OldestDebtDate) }
	}
	sort.SliceStable(r.Clients, func(i, j int) bool {
		a, b := r.Clients[i], r.Clients[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ClientName < b.ClientName
	})
}
