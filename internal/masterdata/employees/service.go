package employees

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	mdshared "github.com/ampere-erp/ampere-erp/internal/masterdata/shared"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type Service struct {
	repo     Repository
	group    shared.OwnershipGroup
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
	region   string
	now      func() time.Time
}

func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger, region string) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		group:    group,
		audit:    audit,
		logger:   logger,
		validate: httpx.NewValidator(),
		region:   region,
		now:      time.Now,
	}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Employee, int, error) {
	return s.repo.List(ctx, s.group.IDs(), filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Employee, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

// Exists reports whether the employee belongs to the firm.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.Get(ctx, id, s.group.IDs())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, form EmployeeForm) (Employee, error) {
	form, err := s.normalise(form)
	if err != nil {
		return Employee{}, err
	}
	now := s.now().UTC()
	e := Employee{ID: uuid.New(), OwnerID: actor.UserID, Active: true, CreatedAt: now}
	apply(&e, form, now)
	if err := s.repo.Create(ctx, e); err != nil {
		return Employee{}, err
	}
	entry := shared.NewAuditEntry(actor, "employee.created", "employee", e.ID.String(), "Funcionário "+e.Name+" cadastrado")
	entry.NewValue = snapshot(e)
	s.audit.Record(ctx, entry)
	return e, nil
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form EmployeeForm) (Employee, error) {
	form, err := s.normalise(form)
	if err != nil {
		return Employee{}, err
	}
	before, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return Employee{}, err
	}
	after := before
	apply(&after, form, s.now().UTC())
	if err := s.repo.Update(ctx, after); err != nil {
		return Employee{}, err
	}
	entry := shared.NewAuditEntry(actor, "employee.updated", "employee", id.String(), "Funcionário "+after.Name+" atualizado")
	entry.OldValue = snapshot(before)
	entry.NewValue = snapshot(after)
	s.audit.Record(ctx, entry)
	return after, nil
}

// Delete removes an employee; expenses keep their amounts and lose the link.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	e, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "employee.deleted", "employee", id.String(), "Funcionário "+e.Name+" excluído")
	entry.OldValue = snapshot(e)
	s.audit.Record(ctx, entry)
	return nil
}

func apply(e *Employee, form EmployeeForm, now time.Time) {
	e.Name = form.Name
	e.CPF = form.CPF
	e.Phone = form.Phone
	e.Email = form.Email
	e.Position = form.Position
	e.HireDate = form.HireDate
	e.Observations = form.Observations
	if form.Active != nil {
		e.Active = *form.Active
	}
	e.UpdatedAt = now
}

func snapshot(e Employee) map[string]any {
	out := map[string]any{"name": e.Name, "active": e.Active}
	if e.Position != nil {
		out["position"] = *e.Position
	}
	return out
}
