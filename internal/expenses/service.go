package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Repository persists expenses.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Expense, error)
	List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Expense, int, error)
	ListRange(ctx context.Context, ownerIDs []int64, from, to shared.Date) ([]Expense, error)
	Insert(ctx context.Context, e Expense) error
	Update(ctx context.Context, e Expense) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EmployeeChecker confirms an employee belongs to the firm.
type EmployeeChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service manages expenses and partner draws.
type Service struct {
	repo      Repository
	employees EmployeeChecker
	group     shared.OwnershipGroup
	audit     shared.AuditSink
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, employees EmployeeChecker, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		employees: employees,
		group:     group,
		audit:     audit,
		logger:    logger,
		validate:  httpx.NewValidator(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Categories lists accepted categories.
func (s *Service) Categories() []string {
	return Categories(s.group)
}

// Create records an expense owned by the acting partner.
func (s *Service) Create(ctx context.Context, actor shared.Actor, form ExpenseForm) (Expense, error) {
	form, err := s.check(ctx, form)
	if err != nil {
		return Expense{}, err
	}
	now := s.now().UTC()
	e := Expense{ID: uuid.New(), OwnerID: actor.UserID, CreatedAt: now}
	apply(&e, form, now)
	if err := s.repo.Insert(ctx, e); err != nil {
		return Expense{}, err
	}
	entry := shared.NewAuditEntry(actor, "expense.created", "expense", e.ID.String(), s.describe("Despesa registrada", e))
	entry.NewValue = snapshot(e)
	s.audit.Record(ctx, entry)
	return e, nil
}

// Update replaces an expense's fields. Ownership stays with the creator.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form ExpenseForm) (Expense, error) {
	form, err := s.check(ctx, form)
	if err != nil {
		return Expense{}, err
	}
	before, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return Expense{}, err
	}
	after := before
	apply(&after, form, s.now().UTC())
	if err := s.repo.Update(ctx, after); err != nil {
		return Expense{}, err
	}
	entry := shared.NewAuditEntry(actor, "expense.updated", "expense", id.String(), s.describe("Despesa alterada", after))
	entry.OldValue = snapshot(before)
	entry.NewValue = snapshot(after)
	s.audit.Record(ctx, entry)
	return after, nil
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	e, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "expense.deleted", "expense", id.String(), s.describe("Despesa excluída", e))
	entry.OldValue = snapshot(e)
	s.audit.Record(ctx, entry)
	return nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

// List returns expenses newest first.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Expense, shared.Pagination, error) {
	if filter.Category != "" && !slices.Contains(s.Categories(), filter.Category) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown category %q", httpx.ErrValidation, filter.Category)
	}
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, s.group.IDs(), filter, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Summarize totals expenses in [from, to], splitting operating costs from draws.
func (s *Service) Summarize(ctx context.Context, from, to shared.Date) (Summary, error) {
	if from.IsZero() || to.IsZero() || to.Before(from.Time) {
		return Summary{}, fmt.Errorf("%w: from and to must form a valid range", httpx.ErrValidation)
	}
	items, err := s.repo.ListRange(ctx, s.group.IDs(), from, to)
	if err != nil {
		return Summary{}, err
	}
	byCategory := map[string]*CategoryTotal{}
	sum := Summary{From: from, To: to}
	for _, e := range items {
		draw := s.group.IsDrawCategory(e.Category)
		if draw {
			sum.Draws += e.Amount
		} else {
			sum.Operating += e.Amount
		}
		ct, ok := byCategory[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category, Draw: draw}
			byCategory[e.Category] = ct
		}
		ct.Total += e.Amount
		ct.Count++
	}
	for _, ct := range byCategory {
		sum.Categories = append(sum.Categories, *ct)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		if sum.Categories[i].Total != sum.Categories[j].Total {
			return sum.Categories[i].Total > sum.Categories[j].Total
		}
		return sum.Categories[i].Category < sum.Categories[j].Category
	})
	return sum, nil
}

func (s *Service) check(ctx context.Context, form ExpenseForm) (ExpenseForm, error) {
	form.Category = strings.TrimSpace(form.Category)
	form.Description = strings.TrimSpace(form.Description)
	if err := httpx.Validate(s.validate, form); err != nil {
		return ExpenseForm{}, err
	}
	if !slices.Contains(s.Categories(), form.Category) {
		return ExpenseForm{}, fmt.Errorf("%w: category: unknown category %q", httpx.ErrValidation, form.Category)
	}
	if form.EmployeeID != nil && *form.EmployeeID == uuid.Nil {
		form.EmployeeID = nil
	}
	if form.EmployeeID != nil {
		if s.group.IsDrawCategory(form.Category) {
			return ExpenseForm{}, fmt.Errorf("%w: employeeId: partner draws cannot reference an employee", httpx.ErrValidation)
		}
		if s.employees != nil {
			ok, err := s.employees.Exists(ctx, *form.EmployeeID)
			if err != nil {
				return ExpenseForm{}, err
			}
			if !ok {
				return ExpenseForm{}, ErrUnknownEmployee
			}
		}
	}
	return form, nil
}

func (s *Service) describe(prefix string, e Expense) string {
	if p, ok := s.group.PartnerForDraw(e.Category); ok {
		return fmt.Sprintf("%s: vale de %.2f do sócio %d em %s", prefix, e.Amount, p.UserID, e.Date)
	}
	return fmt.Sprintf("%s: %s %.2f em %s", prefix, e.Category, e.Amount, e.Date)
}

func apply(e *Expense, form ExpenseForm, now time.Time) {
	e.Category = form.Category
	e.Description = form.Description
	e.Amount = form.Amount
	e.Date = form.Date
	e.EmployeeID = form.EmployeeID
	e.UpdatedAt = now
}

func snapshot(e Expense) map[string]any {
	out := map[string]any{
		"category": e.Category,
		"amount":   e.Amount,
		"date":     e.Date.String(),
	}
	if e.EmployeeID != nil {
		out["employeeId"] = e.EmployeeID.String()
	}
	return out
}
