package clients

import (
	"context"
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

// NewService constructs the client service. region is the default phone region.
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

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Client, int, error) {
	return s.repo.List(ctx, s.group.IDs(), filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, form ClientForm) (Client, error) {
	form, err := s.normalise(form)
	if err != nil {
		return Client{}, err
	}
	now := s.now().UTC()
	c := Client{
		ID:        uuid.New(),
		OwnerID:   actor.UserID,
		Name:      form.Name,
		Phone:     form.Phone,
		Address:   form.Address,
		Email:     form.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Client{}, err
	}
	entry := shared.NewAuditEntry(actor, "client.created", "client", c.ID.String(), "Cliente "+c.Name+" cadastrado")
	entry.NewValue = snapshot(c)
	s.audit.Record(ctx, entry)
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form ClientForm) (Client, error) {
	form, err := s.normalise(form)
	if err != nil {
		return Client{}, err
	}
	before, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return Client{}, err
	}
	after := before
	after.Name, after.Phone, after.Address, after.Email = form.Name, form.Phone, form.Address, form.Email
	after.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, after); err != nil {
		return Client{}, err
	}
	entry := shared.NewAuditEntry(actor, "client.updated", "client", id.String(), "Cliente "+after.Name+" atualizado")
	entry.OldValue = snapshot(before)
	entry.NewValue = snapshot(after)
	s.audit.Record(ctx, entry)
	return after, nil
}

// Delete removes a client. Clients referenced by quotes cannot be removed.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	c, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "client.deleted", "client", id.String(), "Cliente "+c.Name+" excluído")
	entry.OldValue = snapshot(c)
	s.audit.Record(ctx, entry)
	return nil
}

func snapshot(c Client) map[string]any {
	out := map[string]any{"name": c.Name, "phone": c.Phone, "address": c.Address}
	if c.Email != nil {
		out["email"] = *c.Email
	}
	return out
}
