package backup

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/closing"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/catalog"
	"github.com/ampere-erp/ampere-erp/internal/payments"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// prepare returns a copy of doc ready for insertion. Rows owned by users
// outside the firm are reassigned to the restoring partner.
func (s *Service) prepare(actor shared.Actor, doc Document) (Document, error) {
	fallback := actor.UserID
	if !s.group.Contains(fallback) {
		fallback = s.group.IDs()[0]
	}
	owner := func(id int64) int64 {
		if s.group.Contains(id) {
			return id
		}
		return fallback
	}
	ensureID := func(id uuid.UUID) uuid.UUID {
		if id == uuid.Nil {
			return uuid.New()
		}
		return id
	}

	out := Document{ExportedAt: doc.ExportedAt}

	out.Clients = make([]Client, 0, len(doc.Clients))
	for _, c := range doc.Clients {
		if c.ID == uuid.Nil {
			return Document{}, fmt.Errorf("%w: client %q has no id", httpx.ErrValidation, c.Name)
		}
		c.OwnerID = owner(c.OwnerID)
		out.Clients = append(out.Clients, c)
	}

	var maxNumber int64
	for _, q := range doc.Quotes {
		maxNumber = max(maxNumber, q.Number)
	}
	out.Quotes = make([]Quote, 0, len(doc.Quotes))
	for _, q := range doc.Quotes {
		if q.ID == uuid.Nil || q.ClientID == uuid.Nil {
			return Document{}, fmt.Errorf("%w: quote %d needs an id and a client id", httpx.ErrValidation, q.Number)
		}
		q.OwnerID = owner(q.OwnerID)
		if q.Number <= 0 {
			maxNumber++
			q.Number = maxNumber
		}
		status, err := quotes.ParseStatus(q.Status)
		if err != nil {
			s.logger.Warn("backup quote with unknown status restored as draft",
				slog.String("quote_id", q.ID.String()), slog.String("status", q.Status))
			status = quotes.StatusDraft
		}
		q.Status = string(status)
		q.Services = withIDs(q.Services, ensureID)
		q.Materials = withIDs(q.Materials, ensureID)
		out.Quotes = append(out.Quotes, q)
	}

	out.Payments = make([]Payment, 0, len(doc.Payments))
	for _, p := range doc.Payments {
		p.ID = ensureID(p.ID)
		p.OwnerID = owner(p.OwnerID)
		if !payments.Method(p.PaymentMethod).Valid() {
			return Document{}, fmt.Errorf("%w: payment %s has unknown method %q", httpx.ErrValidation, p.ID, p.PaymentMethod)
		}
		if p.Amount <= 0 {
			return Document{}, fmt.Errorf("%w: payment %s amount must be positive", httpx.ErrValidation, p.ID)
		}
		out.Payments = append(out.Payments, p)
	}

	out.Expenses = make([]Expense, 0, len(doc.Expenses))
	for _, e := range doc.Expenses {
		e.ID = ensureID(e.ID)
		e.OwnerID = owner(e.OwnerID)
		out.Expenses = append(out.Expenses, e)
	}

	out.Employees = make([]Employee, 0, len(doc.Employees))
	for _, e := range doc.Employees {
		e.ID = ensureID(e.ID)
		e.OwnerID = owner(e.OwnerID)
		out.Employees = append(out.Employees, e)
	}

	out.Services = make([]CatalogItem, 0, len(doc.Services))
	for _, item := range doc.Services {
		item.ID = ensureID(item.ID)
		item.OwnerID = owner(item.OwnerID)
		switch catalog.Kind(strings.TrimSpace(item.Kind)) {
		case catalog.KindMaterial:
			item.Kind = string(catalog.KindMaterial)
		default:
			item.Kind = string(catalog.KindService)
		}
		if strings.TrimSpace(item.Unit) == "" {
			item.Unit = "un"
		}
		out.Services = append(out.Services, item)
	}

	out.CompanySettings = make([]CompanySettings, 0, len(doc.CompanySettings))
	for _, cs := range doc.CompanySettings {
		cs.OwnerID = owner(cs.OwnerID)
		out.CompanySettings = append(out.CompanySettings, cs)
	}

	out.CashClosings = make([]CashClosing, 0, len(doc.CashClosings))
	for _, c := range doc.CashClosings {
		c.ID = ensureID(c.ID)
		c.OwnerID = owner(c.OwnerID)
		if !closing.PeriodType(c.PeriodType).Valid() {
			return Document{}, fmt.Errorf("%w: cash closing %s has unknown period type %q", httpx.ErrValidation, c.ID, c.PeriodType)
		}
		if c.StartDate.IsZero() || c.EndDate.IsZero() || c.EndDate.Before(c.StartDate.Time) {
			return Document{}, fmt.Errorf("%w: cash closing %s has an invalid date range", httpx.ErrValidation, c.ID)
		}
		c.PartnerProfits = s.partnerProfits(c)
		out.CashClosings = append(out.CashClosings, c)
	}
	return out, nil
}

// partnerProfits maps legacy per-name profit fields onto the first two
// partners when the closing carries no per-partner shares.
func (s *Service) partnerProfits(c CashClosing) []PartnerProfit {
	if len(c.PartnerProfits) > 0 {
		return c.PartnerProfits
	}
	partners := s.group.Partners()
	var out []PartnerProfit
	for i, legacy := range []*FlexFloat{c.GustavoProfit, c.GiovanniProfit} {
		if legacy == nil || i >= len(partners) {
			continue
		}
		out = append(out, PartnerProfit{PartnerID: partners[i].UserID, Profit: *legacy})
	}
	return out
}

func withIDs(items []LineItem, ensure func(uuid.UUID) uuid.UUID) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.ID = ensure(item.ID)
		out[i] = item
	}
	return out
}
