package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// ErrRestoreInProgress is returned while another restore holds the lock.
var ErrRestoreInProgress = fmt.Errorf("backup: another restore is running: %w", httpx.ErrConflict)

// Table names a relational table touched by the restore.
type Table string

const (
	TablePayments      Table = "payments"
	TableServiceItems  Table = "quote_service_items"
	TableMaterialItems Table = "quote_material_items"
	TableQuotes        Table = "quotes"
	TableClients       Table = "clients"
	TableExpenses      Table = "expenses"
	TableClosings      Table = "cash_closings"
	TableEmployees     Table = "employees"
	TableCatalog       Table = "catalog_items"
	TableSettings      Table = "company_settings"
)

// LineRow is a quote line item flattened for bulk insert.
type LineRow struct {
	QuoteID  uuid.UUID
	Position int
	Item     LineItem
}

// Repository is the persistence surface of export and restore. Insert
// methods skip rows whose id already exists and return the inserted count.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Snapshot(ctx context.Context, ownerIDs []int64) (Document, error)
	Purge(ctx context.Context, table Table, ownerIDs []int64, clientIDs []uuid.UUID) error
	InsertClients(ctx context.Context, rows []Client) (int64, error)
	InsertQuote(ctx context.Context, q Quote) (int64, error)
	InsertLineItems(ctx context.Context, table Table, rows []LineRow) (int64, error)
	InsertPayments(ctx context.Context, rows []Payment) (int64, error)
	InsertEmployees(ctx context.Context, rows []Employee) (int64, error)
	InsertCatalog(ctx context.Context, rows []CatalogItem) (int64, error)
	UpsertSettings(ctx context.Context, s CompanySettings) error
	InsertExpenses(ctx context.Context, rows []Expense) (int64, error)
	InsertClosings(ctx context.Context, rows []CashClosing) (int64, error)
	SyncQuoteSequence(ctx context.Context) error
}

// RestoreRecorder counts restore outcomes.
type RestoreRecorder interface {
	BackupRestored(result string)
}

// Invalidator drops caches derived from restored data.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service exports and restores backups.
type Service struct {
	repo        Repository
	group       shared.OwnershipGroup
	audit       shared.AuditSink
	logger      *slog.Logger
	locker      *redislock.Client
	lockTTL     time.Duration
	recorder    RestoreRecorder
	invalidates []Invalidator
	now         func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLocker serialises restores through a redis lock.
func WithLocker(locker *redislock.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithRestoreRecorder reports restore outcomes to metrics.
func WithRestoreRecorder(r RestoreRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithInvalidator registers a cache invalidation hook run after a restore.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidates = append(s.invalidates, inv) }
}

// NewService constructs a backup service.
func NewService(repo Repository, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger, opts ...Option) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:    repo,
		group:   group,
		audit:   audit,
		logger:  logger,
		lockTTL: 2 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Export snapshots the firm's dataset.
func (s *Service) Export(ctx context.Context) (Document, error) {
	doc, err := s.repo.Snapshot(ctx, s.group.IDs())
	if err != nil {
		return Document{}, fmt.Errorf("backup: export: %w", err)
	}
	doc.ExportedAt = Timestamp{s.now().UTC()}
	return doc, nil
}

// RestoreJSON parses raw and restores it.
func (s *Service) RestoreJSON(ctx context.Context, actor shared.Actor, raw []byte) (Counts, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		s.record("rejected")
		return Counts{}, err
	}
	return s.Restore(ctx, actor, doc)
}

// Restore replaces the firm's data with the document inside one transaction.
// A failing step rolls everything back and is reported as a StepError.
func (s *Service) Restore(ctx context.Context, actor shared.Actor, doc Document) (Counts, error) {
	if err := doc.CheckNotEmpty(); err != nil {
		s.record("rejected")
		return Counts{}, err
	}
	doc, err := s.prepare(actor, doc)
	if err != nil {
		s.record("rejected")
		return Counts{}, err
	}

	release, err := s.lock(ctx)
	if err != nil {
		return Counts{}, err
	}
	defer release()

	var counts Counts
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		counts = Counts{}
		for _, st := range s.plan(doc, &counts) {
			if err := st.run(ctx, repo); err != nil {
				return &StepError{Step: st.name, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		s.record("failed")
		s.logger.Error("backup restore failed", slog.Any("error", err), slog.Int64("actor_id", actor.UserID))
		return Counts{}, err
	}

	s.record("success")
	s.logger.Info("backup restored",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("clients", counts.Clients),
		slog.Int64("quotes", counts.Quotes),
		slog.Int64("payments", counts.Payments))
	entry := shared.NewAuditEntry(actor, "backup.restored", "backup", s.now().UTC().Format(time.RFC3339),
		fmt.Sprintf("restored %d clients, %d quotes and %d payments", counts.Clients, counts.Quotes, counts.Payments))
	entry.NewValue = countsSnapshot(counts)
	s.audit.Record(ctx, entry)
	for _, inv := range s.invalidates {
		inv.Invalidate(ctx)
	}
	return counts, nil
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Obtain(ctx, shared.RestoreLockKey, s.lockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		s.record("locked")
		return nil, ErrRestoreInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("backup: obtain restore lock: %w", err)
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("release restore lock", slog.Any("error", err))
		}
	}, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.BackupRestored(result)
	}
}

func countsSnapshot(c Counts) map[string]any {
	return map[string]any{
		"clients":         c.Clients,
		"quotes":          c.Quotes,
		"serviceItems":    c.ServiceItems,
		"materialItems":   c.MaterialItems,
		"payments":        c.Payments,
		"employees":       c.Employees,
		"services":        c.Services,
		"companySettings": c.CompanySettings,
		"expenses":        c.Expenses,
		"cashClosings":    c.CashClosings,
	}
}
