package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const idempotencyScope = "payments.create"

// Repository persists payments. LockQuote must hold a row lock on the quote
// until the surrounding transaction ends.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	LockQuote(ctx context.Context, quoteID uuid.UUID, ownerIDs []int64) (QuoteBalance, error)
	// SumPayments totals the quote's payments, skipping exclude when set.
	SumPayments(ctx context.Context, quoteID, exclude uuid.UUID) (float64, error)
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Payment, error)
	List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Payment, int, error)
	Insert(ctx context.Context, p Payment) error
	Update(ctx context.Context, p Payment) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// KeyClaimer records idempotency keys.
type KeyClaimer interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// RejectionRecorder counts rejected payments.
type RejectionRecorder interface {
	PaymentRejected(reason string)
}

// Invalidator drops cached reports derived from payments.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service enforces that payments never exceed their quote total.
type Service struct {
	repo       Repository
	group      shared.OwnershipGroup
	audit      shared.AuditSink
	keys       KeyClaimer
	rejections RejectionRecorder
	invalidate Invalidator
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithIdempotency enables Idempotency-Key handling on create.
func WithIdempotency(keys KeyClaimer) Option {
	return func(s *Service) { s.keys = keys }
}

// WithRejectionRecorder reports rejected payments to metrics.
func WithRejectionRecorder(r RejectionRecorder) Option {
	return func(s *Service) { s.rejections = r }
}

// WithInvalidator registers a cache invalidation hook.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidate = inv }
}

// NewService constructs a Service instance.
func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger, opts ...Option) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		group:    group,
		audit:    audit,
		logger:   logger,
		validate: httpx.NewValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create records a payment when it fits inside the quote's remaining balance.
func (s *Service) Create(ctx context.Context, actor shared.Actor, idempotencyKey string, req CreateRequest) (Payment, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		s.rejected("validation")
		return Payment{}, err
	}
	if s.keys != nil {
		if err := s.keys.Claim(ctx, idempotencyScope, idempotencyKey); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Payment{}, ErrDuplicateRequest
			}
			return Payment{}, err
		}
	}

	now := s.now().UTC()
	p := Payment{
		ID:            uuid.New(),
		QuoteID:       req.QuoteID,
		OwnerID:       actor.UserID,
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		PaymentMethod: req.PaymentMethod,
		Observations:  req.Observations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		quote, err := repo.LockQuote(ctx, p.QuoteID, s.group.IDs())
		if err != nil {
			return err
		}
		paid, err := repo.SumPayments(ctx, quote.ID, uuid.Nil)
		if err != nil {
			return err
		}
		if err := checkFits(quote.Total, paid, p.Amount); err != nil {
			return err
		}
		p.QuoteNumber = quote.Number
		return repo.Insert(ctx, p)
	})
	if err != nil {
		if s.keys != nil {
			if relErr := s.keys.Release(ctx, idempotencyScope, idempotencyKey); relErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		s.noteRejection(err)
		return Payment{}, err
	}

	entry := shared.NewAuditEntry(actor, "payment.created", "payment", p.ID.String(),
		fmt.Sprintf("Pagamento de %.2f (%s) no orçamento nº %d", p.Amount, p.PaymentMethod, p.QuoteNumber))
	entry.NewValue = snapshot(p)
	s.audit.Record(ctx, entry)
	s.changed(ctx)
	return p, nil
}

// Update edits a payment. The balance check excludes the payment itself.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateRequest) (Payment, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		s.rejected("validation")
		return Payment{}, err
	}
	var before, after Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id, s.group.IDs())
		if err != nil {
			return err
		}
		quote, err := repo.LockQuote(ctx, current.QuoteID, s.group.IDs())
		if err != nil {
			return err
		}
		others, err := repo.SumPayments(ctx, quote.ID, current.ID)
		if err != nil {
			return err
		}
		if err := checkFits(quote.Total, others, req.Amount); err != nil {
			return err
		}
		before = current
		after = current
		after.Amount = req.Amount
		after.PaymentDate = req.PaymentDate
		after.PaymentMethod = req.PaymentMethod
		after.Observations = req.Observations
		after.UpdatedAt = s.now().UTC()
		return repo.Update(ctx, after)
	})
	if err != nil {
		s.noteRejection(err)
		return Payment{}, err
	}

	entry := shared.NewAuditEntry(actor, "payment.updated", "payment", after.ID.String(),
		fmt.Sprintf("Pagamento do orçamento nº %d alterado", after.QuoteNumber))
	entry.OldValue = snapshot(before)
	entry.NewValue = snapshot(after)
	s.audit.Record(ctx, entry)
	s.changed(ctx)
	return after, nil
}

// Delete removes a payment unconditionally.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	var removed Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id, s.group.IDs())
		if err != nil {
			return err
		}
		removed = current
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "payment.deleted", "payment", removed.ID.String(),
		fmt.Sprintf("Pagamento de %.2f do orçamento nº %d excluído", removed.Amount, removed.QuoteNumber))
	entry.OldValue = snapshot(removed)
	s.audit.Record(ctx, entry)
	s.changed(ctx)
	return nil
}

// Get returns a payment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Payment, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

// List returns payments newest first.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Payment, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, s.group.IDs(), filter, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

func checkFits(total, paid, amount float64) error {
	if paid+amount > total {
		return &OverpaymentError{
			Total:     total,
			Paid:      paid,
			Remaining: ledger.Remaining(total, paid),
			Amount:    amount,
		}
	}
	return nil
}

func (s *Service) noteRejection(err error) {
	var over *OverpaymentError
	switch {
	case errors.As(err, &over):
		s.rejected("overpayment")
	case errors.Is(err, httpx.ErrNotFound):
		s.rejected("not_found")
	}
}

func (s *Service) rejected(reason string) {
	if s.rejections != nil {
		s.rejections.PaymentRejected(reason)
	}
}

func (s *Service) changed(ctx context.Context) {
	if s.invalidate != nil {
		s.invalidate.Invalidate(ctx)
	}
}

func snapshot(p Payment) map[string]any {
	return map[string]any{
		"amount":        p.Amount,
		"paymentMethod": p.PaymentMethod,
		"paymentDate":   p.PaymentDate.String(),
	}
}
