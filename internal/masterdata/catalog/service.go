package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	mdshared "github.com/ampere-erp/ampere-erp/internal/masterdata/shared"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const defaultUnit = "un"

type Service struct {
	repo     Repository
	group    shared.OwnershipGroup
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, group: group, audit: audit, logger: logger, validate: httpx.NewValidator(), now: time.Now}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Item, int, error) {
	if filters.Kind != "" && filters.Kind != string(KindService) && filters.Kind != string(KindMaterial) {
		return nil, 0, fmt.Errorf("%w: kind must be service or material", httpx.ErrValidation)
	}
	return s.repo.List(ctx, s.group.IDs(), filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

func (s *Service) Create(ctx context.Context, actor shared.Actor, form ItemForm) (Item, error) {
	if err := s.check(form); err != nil {
		return Item{}, err
	}
	now := s.now().UTC()
	item := Item{ID: uuid.New(), OwnerID: actor.UserID, Active: true, CreatedAt: now}
	apply(&item, form, now)
	if err := s.repo.Create(ctx, item); err != nil {
		return Item{}, err
	}
	entry := shared.NewAuditEntry(actor, "catalog.created", "catalog_item", item.ID.String(), "Item de catálogo "+item.Name+" criado")
	entry.NewValue = snapshot(item)
	s.audit.Record(ctx, entry)
	return item, nil
}

// Update edits a catalog entry. Existing quote lines keep their copied values.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form ItemForm) (Item, error) {
	if err := s.check(form); err != nil {
		return Item{}, err
	}
	before, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return Item{}, err
	}
	after := before
	apply(&after, form, s.now().UTC())
	if err := s.repo.Update(ctx, after); err != nil {
		return Item{}, err
	}
	entry := shared.NewAuditEntry(actor, "catalog.updated", "catalog_item", id.String(), "Item de catálogo "+after.Name+" atualizado")
	entry.OldValue = snapshot(before)
	entry.NewValue = snapshot(after)
	s.audit.Record(ctx, entry)
	return after, nil
}

func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	item, err := s.repo.Get(ctx, id, s.group.IDs())
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "catalog.deleted", "catalog_item", id.String(), "Item de catálogo "+item.Name+" excluído")
	entry.OldValue = snapshot(item)
	s.audit.Record(ctx, entry)
	return nil
}

func (s *Service) check(form ItemForm) error {
	if err := httpx.Validate(s.validate, form); err != nil {
		return err
	}
	if strings.TrimSpace(form.Name) == "" {
		return fmt.Errorf("%w: name: required", httpx.ErrValidation)
	}
	return nil
}

func apply(item *Item, form ItemForm, now time.Time) {
	item.Kind = form.Kind
	if item.Kind == "" {
		item.Kind = KindService
	}
	item.Name = strings.TrimSpace(form.Name)
	item.Description = form.Description
	item.UnitPrice = form.UnitPrice
	item.Unit = strings.TrimSpace(form.Unit)
	if item.Unit == "" {
		item.Unit = defaultUnit
	}
	if form.Active != nil {
		item.Active = *form.Active
	}
	item.UpdatedAt = now
}

func snapshot(item Item) map[string]any {
	return map[string]any{
		"kind":      item.Kind,
		"name":      item.Name,
		"unitPrice": item.UnitPrice,
		"unit":      item.Unit,
		"active":    item.Active,
	}
}
