// Package settings manages the firm's company profile and the company cash
// percentage read by every profit split.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ampere-erp/ampere-erp/internal/closing"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// DefaultCompanyCashPercentage applies until settings are saved.
const DefaultCompanyCashPercentage = 10

// CompanySettings is the single profile row of the firm.
type CompanySettings struct {
	OwnerID               int64     `json:"ownerId"`
	Name                  string    `json:"name"`
	Logo                  *string   `json:"logo,omitempty"`
	Phone                 string    `json:"phone"`
	Email                 string    `json:"email"`
	Address               string    `json:"address"`
	CNPJ                  *string   `json:"cnpj,omitempty"`
	Website               *string   `json:"website,omitempty"`
	AdditionalInfo        *string   `json:"additionalInfo,omitempty"`
	CompanyCashPercentage float64   `json:"companyCashPercentage"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// UpdateRequest is the settings payload.
type UpdateRequest struct {
	Name                  string   `json:"name" validate:"required,max=200"`
	Logo                  *string  `json:"logo,omitempty"`
	Phone                 string   `json:"phone" validate:"max=40"`
	Email                 string   `json:"email" validate:"omitempty,email"`
	Address               string   `json:"address" validate:"max=400"`
	CNPJ                  *string  `json:"cnpj,omitempty" validate:"omitempty,max=20"`
	Website               *string  `json:"website,omitempty" validate:"omitempty,max=200"`
	AdditionalInfo        *string  `json:"additionalInfo,omitempty" validate:"omitempty,max=2000"`
	CompanyCashPercentage *float64 `json:"companyCashPercentage,omitempty" validate:"omitempty,gte=0,lte=50"`
}

// Repository persists settings rows keyed by owner.
type Repository interface {
	// Get returns the most recently updated row among ownerIDs.
	Get(ctx context.Context, ownerIDs []int64) (CompanySettings, error)
	Upsert(ctx context.Context, s CompanySettings) error
}

// ErrNotFound is returned by repositories when no row exists.
var ErrNotFound = fmt.Errorf("company settings not found: %w", httpx.ErrNotFound)

// Service reads and updates the firm profile.
type Service struct {
	repo     Repository
	group    shared.OwnershipGroup
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
	region   string
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger, phoneRegion string) *Service {
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
		region:   phoneRegion,
		now:      time.Now,
	}
}

// Get returns the firm settings, or defaults when none were saved.
func (s *Service) Get(ctx context.Context) (CompanySettings, error) {
	current, err := s.repo.Get(ctx, s.group.IDs())
	if errors.Is(err, ErrNotFound) {
		return s.defaults(), nil
	}
	if err != nil {
		return CompanySettings{}, err
	}
	return current, nil
}

func (s *Service) defaults() CompanySettings {
	owner := int64(0)
	if ids := s.group.IDs(); len(ids) > 0 {
		owner = ids[0]
	}
	return CompanySettings{OwnerID: owner, CompanyCashPercentage: DefaultCompanyCashPercentage}
}

// CompanyCashPercentage returns the stored percentage clamped to [0, 50].
func (s *Service) CompanyCashPercentage(ctx context.Context) (float64, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return closing.ClampCompanyCashPercentage(current.CompanyCashPercentage), nil
}

// Update saves the firm profile. The logo is normalised to a PNG data URL.
func (s *Service) Update(ctx context.Context, actor shared.Actor, req UpdateRequest) (CompanySettings, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return CompanySettings{}, err
	}
	current, err := s.Get(ctx)
	if err != nil {
		return CompanySettings{}, err
	}

	next := current
	next.Name = req.Name
	next.Email = req.Email
	next.Address = req.Address
	next.CNPJ = req.CNPJ
	next.Website = req.Website
	next.AdditionalInfo = req.AdditionalInfo
	next.UpdatedAt = s.now().UTC()
	if req.CompanyCashPercentage != nil {
		next.CompanyCashPercentage = *req.CompanyCashPercentage
	}
	phone, err := shared.NormalizePhone(req.Phone, s.region)
	if err != nil {
		return CompanySettings{}, fmt.Errorf("%w: phone: %v", httpx.ErrValidation, err)
	}
	next.Phone = phone
	if req.Logo != nil {
		if *req.Logo == "" {
			next.Logo = nil
		} else {
			logo, err := NormalizeLogo(*req.Logo)
			if err != nil {
				return CompanySettings{}, err
			}
			next.Logo = &logo
		}
	}

	if err := s.repo.Upsert(ctx, next); err != nil {
		return CompanySettings{}, err
	}

	entry := shared.NewAuditEntry(actor, "settings.updated", "company_settings", fmt.Sprint(next.OwnerID), "Configurações da empresa atualizadas")
	if current.CompanyCashPercentage != next.CompanyCashPercentage {
		entry.OldValue = map[string]any{"companyCashPercentage": current.CompanyCashPercentage}
		entry.NewValue = map[string]any{"companyCashPercentage": next.CompanyCashPercentage}
	}
	s.audit.Record(ctx, entry)
	return next, nil
}
