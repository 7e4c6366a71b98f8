package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

var (
	// ErrNotFound indicates the quote does not exist within the firm.
	ErrNotFound = fmt.Errorf("quote not found: %w", httpx.ErrNotFound)
	// ErrClientNotFound indicates the referenced client does not exist.
	ErrClientNotFound = fmt.Errorf("client not found: %w", httpx.ErrValidation)
	// ErrLocked indicates a completed or cancelled quote cannot be changed.
	ErrLocked = fmt.Errorf("quote is locked for changes: %w", httpx.ErrConflict)
	// ErrEmptyQuote indicates a quote without any line item.
	ErrEmptyQuote = fmt.Errorf("quote requires at least one service or material: %w", httpx.ErrValidation)
)

// Repository persists quotes and their line items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	NextNumber(ctx context.Context) (int64, error)
	ClientExists(ctx context.Context, clientID uuid.UUID, ownerIDs []int64) (bool, error)
	Insert(ctx context.Context, q Quote) error
	Get(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Quote, error)
	// GetForUpdate loads the quote and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID, ownerIDs []int64) (Quote, error)
	List(ctx context.Context, ownerIDs []int64, filter ListFilter, limit, offset int) ([]Summary, int, error)
	UpdateHeader(ctx context.Context, q Quote) error
	ReplaceLines(ctx context.Context, quoteID uuid.UUID, services, materials []LineItem) error
	// Delete removes the quote, its lines and its payments, returning the
	// number of payments removed.
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// Invalidator drops cached reports derived from quotes and payments.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service implements quote editing and the lifecycle state machine.
type Service struct {
	repo       Repository
	group      shared.OwnershipGroup
	audit      shared.AuditSink
	invalidate Invalidator
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, invalidate Invalidator, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		group:      group,
		audit:      audit,
		invalidate: invalidate,
		logger:     logger,
		validate:   httpx.NewValidator(),
		now:        time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) changed(ctx context.Context) {
	if s.invalidate != nil {
		s.invalidate.Invalidate(ctx)
	}
}

// Create stores a new draft quote. Subtotal and total are recomputed from the lines.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (Quote, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return Quote{}, err
	}
	if len(req.Services)+len(req.Materials) == 0 {
		return Quote{}, ErrEmptyQuote
	}
	now := s.now().UTC()
	q := Quote{
		ID:           uuid.New(),
		OwnerID:      actor.UserID,
		ClientID:     req.ClientID,
		Services:     toLineItems(req.Services),
		Materials:    toLineItems(req.Materials),
		Discount:     req.Discount,
		Observations: trimmed(req.Observations),
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.Recompute(); err != nil {
		return Quote{}, err
	}
	if req.Total != nil && *req.Total != q.Total {
		s.logger.Debug("ignoring client supplied quote total", slog.Float64("sent", *req.Total), slog.Float64("computed", q.Total))
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ok, err := repo.ClientExists(ctx, q.ClientID, s.group.IDs())
		if err != nil {
			return err
		}
		if !ok {
			return ErrClientNotFound
		}
		if q.Number, err = repo.NextNumber(ctx); err != nil {
			return err
		}
		return repo.Insert(ctx, q)
	})
	if err != nil {
		return Quote{}, err
	}

	entry := shared.NewAuditEntry(actor, "quote.created", "quote", q.ID.String(), fmt.Sprintf("Orçamento nº %d criado", q.Number))
	entry.NewValue = map[string]any{"total": q.Total, "status": q.Status}
	s.audit.Record(ctx, entry)
	s.changed(ctx)
	return q, nil
}

// Get returns a quote with its lines and payment total.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	return s.repo.Get(ctx, id, s.group.IDs())
}

// List returns quote summaries.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Summary, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, s.group.IDs(), filter, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Update applies a partial edit. Completed and cancelled quotes are locked.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateQuoteRequest) (Quote, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return Quote{}, err
	}
	var before, after Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id, s.group.IDs())
		if err != nil {
			return err
		}
		if !current.Status.Mutable() {
			return ErrLocked
		}
		before = current
		next := current
		linesChanged := false
		if req.ClientID != nil && *req.ClientID != current.ClientID {
			ok, err := repo.ClientExists(ctx, *req.ClientID, s.group.IDs())
			if err != nil {
				return err
			}
			if !ok {
				return ErrClientNotFound
			}
			next.ClientID = *req.ClientID
		}
		if req.Services != nil {
			next.Services = toLineItems(*req.Services)
			linesChanged = true
		}
		if req.Materials != nil {
			next.Materials = toLineItems(*req.Materials)
			linesChanged = true
		}
		if len(next.Services)+len(next.Materials) == 0 {
			return ErrEmptyQuote
		}
		if req.Discount != nil {
			next.Discount = *req.Discount
		}
		if req.Observations != nil {
			next.Observations = trimmed(req.Observations)
		}
		if err := next.Recompute(); err != nil {
			return err
		}
		if next.Total != current.Total {
			if err := next.coversPaid(); err != nil {
				return err
			}
		}
		next.UpdatedAt = s.now().UTC()
		if linesChanged {
			if err := repo.ReplaceLines(ctx, next.ID, next.Services, next.Materials); err != nil {
				return err
			}
		}
		if err := repo.UpdateHeader(ctx, next); err != nil {
			return err
		}
		after = next
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordChanges(ctx, actor, before, after)
	s.changed(ctx)
	return after, nil
}

// Delete removes a quote. Cancelled quotes are kept; deleting a completed
// quote is allowed but recorded as a critical action first.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	var (
		removedQuote Quote
		removed      int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id, s.group.IDs())
		if err != nil {
			return err
		}
		if !current.Status.Deletable() {
			return ErrLocked
		}
		if current.Status == StatusCompleted {
			entry := shared.NewAuditEntry(actor, "quote.critical_delete", "quote", current.ID.String(),
				fmt.Sprintf("CRÍTICO: exclusão do orçamento concluído nº %d", current.Number))
			entry.OldValue = map[string]any{"status": current.Status, "total": current.Total, "totalPaid": current.TotalPaid}
			s.audit.Record(ctx, entry)
			s.logger.Warn("deleting completed quote", slog.String("quote", current.ID.String()), slog.Int64("actor", actor.UserID))
		}
		if removed, err = repo.Delete(ctx, current.ID); err != nil {
			return err
		}
		removedQuote = current
		return nil
	})
	if err != nil {
		return err
	}
	entry := shared.NewAuditEntry(actor, "quote.deleted", "quote", removedQuote.ID.String(),
		fmt.Sprintf("Orçamento nº %d excluído", removedQuote.Number))
	entry.OldValue = map[string]any{"status": removedQuote.Status, "total": removedQuote.Total, "paymentsRemoved": removed}
	s.audit.Record(ctx, entry)
	s.changed(ctx)
	return nil
}

// Approve marks a draft or sent quote as approved.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id uuid.UUID) (Quote, error) {
	return s.apply(ctx, actor, id, ActionApprove, nil)
}

// Reject marks a draft or sent quote as rejected.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id uuid.UUID) (Quote, error) {
	return s.apply(ctx, actor, id, ActionReject, nil)
}

// MarkSent moves a draft to sent after it was shared with the client.
// Quotes past draft are returned unchanged.
func (s *Service) MarkSent(ctx context.Context, actor shared.Actor, id uuid.UUID) (Quote, error) {
	q, err := s.apply(ctx, actor, id, ActionSend, nil)
	var te *TransitionError
	if errors.As(err, &te) {
		return s.Get(ctx, id)
	}
	return q, err
}

// StartService moves an approved quote to in_progress, optionally
// renegotiating the discount against the subtotal.
func (s *Service) StartService(ctx context.Context, actor shared.Actor, id uuid.UUID, discount *ledger.Discount) (Quote, error) {
	return s.apply(ctx, actor, id, ActionStart, func(q *Quote) error {
		now := s.now().UTC()
		q.ServiceStartedAt = &now
		if discount == nil {
			return nil
		}
		amount, total, err := ledger.Renegotiate(q.Subtotal, *discount)
		if err != nil {
			return fmt.Errorf("%w: %w", httpx.ErrValidation, err)
		}
		q.Discount = amount
		q.Total = total
		return nil
	})
}

// CancelService cancels an approved quote. Cancellation is terminal.
func (s *Service) CancelService(ctx context.Context, actor shared.Actor, id uuid.UUID) (Quote, error) {
	return s.apply(ctx, actor, id, ActionCancel, nil)
}

// FinishService completes an in-progress quote.
func (s *Service) FinishService(ctx context.Context, actor shared.Actor, id uuid.UUID) (Quote, error) {
	return s.apply(ctx, actor, id, ActionFinish, func(q *Quote) error {
		now := s.now().UTC()
		q.ServiceCompletedAt = &now
		return nil
	})
}

// ChangeStatus maps a requested target status to its lifecycle action.
func (s *Service) ChangeStatus(ctx context.Context, actor shared.Actor, id uuid.UUID, target Status) (Quote, error) {
	switch target {
	case StatusSent:
		return s.apply(ctx, actor, id, ActionSend, nil)
	case StatusApproved:
		return s.Approve(ctx, actor, id)
	case StatusRejected:
		return s.Reject(ctx, actor, id)
	case StatusInProgress:
		return s.StartService(ctx, actor, id, nil)
	case StatusCancelled:
		return s.CancelService(ctx, actor, id)
	case StatusCompleted:
		return s.FinishService(ctx, actor, id)
	default:
		return Quote{}, fmt.Errorf("%w: quotes cannot return to %s", httpx.ErrConflict, target)
	}
}

func (s *Service) apply(ctx context.Context, actor shared.Actor, id uuid.UUID, action Action, mutate func(*Quote) error) (Quote, error) {
	var before, after Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id, s.group.IDs())
		if err != nil {
			return err
		}
		to, err := Next(current.Status, action)
		if err != nil {
			return err
		}
		before = current
		next := current
		next.Status = to
		next.UpdatedAt = s.now().UTC()
		if mutate != nil {
			if err := mutate(&next); err != nil {
				return err
			}
		}
		if next.Total != current.Total {
			if err := next.coversPaid(); err != nil {
				return err
			}
		}
		if err := repo.UpdateHeader(ctx, next); err != nil {
			return err
		}
		after = next
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordChanges(ctx, actor, before, after)
	s.changed(ctx)
	return after, nil
}

// recordChanges writes one audit entry per tracked field that changed.
func (s *Service) recordChanges(ctx context.Context, actor shared.Actor, before, after Quote) {
	id := after.ID.String()
	if before.Status != after.Status {
		entry := shared.NewAuditEntry(actor, "quote.status_changed", "quote", id,
			fmt.Sprintf("Orçamento nº %d: %s → %s", after.Number, before.Status, after.Status))
		entry.OldValue = map[string]any{"status": before.Status}
		entry.NewValue = map[string]any{"status": after.Status}
		s.audit.Record(ctx, entry)
	}
	if before.Discount != after.Discount {
		entry := shared.NewAuditEntry(actor, "quote.discount_changed", "quote", id,
			fmt.Sprintf("Orçamento nº %d: desconto alterado", after.Number))
		entry.OldValue = map[string]any{"discount": before.Discount}
		entry.NewValue = map[string]any{"discount": after.Discount}
		s.audit.Record(ctx, entry)
	}
	if before.Total != after.Total {
		entry := shared.NewAuditEntry(actor, "quote.total_changed", "quote", id,
			fmt.Sprintf("Orçamento nº %d: total alterado", after.Number))
		entry.OldValue = map[string]any{"total": before.Total}
		entry.NewValue = map[string]any{"total": after.Total}
		s.audit.Record(ctx, entry)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
