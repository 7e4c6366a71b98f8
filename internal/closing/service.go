package closing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Repository persists closings and reads the figures a preview needs.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// LockClosings serialises concurrent closing creation for the firm.
	LockClosings(ctx context.Context) error
	LastClosing(ctx context.Context, ownerIDs []int64) (*CashClosing, error)
	GetClosing(ctx context.Context, id uuid.UUID, ownerIDs []int64) (CashClosing, error)
	ListClosings(ctx context.Context, ownerIDs []int64, limit, offset int) ([]CashClosing, int, error)
	InsertClosing(ctx context.Context, c CashClosing) error
	ListRevenueQuotes(ctx context.Context, ownerIDs []int64, from, to time.Time) ([]RevenueQuote, error)
	ListExpenses(ctx context.Context, ownerIDs []int64, w Window) ([]Expense, error)
}

// SettingsReader supplies the configured company cash percentage.
type SettingsReader interface {
	CompanyCashPercentage(ctx context.Context) (float64, error)
}

// Service orchestrates profit previews and immutable cash closings.
type Service struct {
	repo     Repository
	settings SettingsReader
	group    shared.OwnershipGroup
	audit    shared.AuditSink
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

// NewService constructs a Service instance.
func NewService(repo Repository, settings SettingsReader, group shared.OwnershipGroup, audit shared.AuditSink, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		settings: settings,
		group:    group,
		audit:    audit,
		logger:   logger,
		validate: httpx.NewValidator(),
		now:      time.Now,
		loc:      time.Local,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the business zone used to decide what "today" is and where
// a window's days begin and end.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) today() shared.Date {
	return shared.Today(s.now(), s.loc)
}

// Preview splits the profit accumulated since the last closing.
func (s *Service) Preview(ctx context.Context) (Preview, error) {
	last, err := s.repo.LastClosing(ctx, s.group.IDs())
	if err != nil {
		return Preview{}, err
	}
	return s.preview(ctx, LiveWindow(last, s.today()), last)
}

// PreviewRange splits the profit of an explicit period. Zero dates fall back
// to the default range of the period type.
func (s *Service) PreviewRange(ctx context.Context, periodType PeriodType, start, end shared.Date) (Preview, error) {
	if periodType != "" && !periodType.Valid() {
		return Preview{}, fmt.Errorf("%w: unknown period type %q", httpx.ErrValidation, periodType)
	}
	last, err := s.repo.LastClosing(ctx, s.group.IDs())
	if err != nil {
		return Preview{}, err
	}
	window := DefaultRange(periodType, last, s.today())
	if !start.IsZero() {
		window.Start = start
	}
	if !end.IsZero() {
		window.End = end
	}
	if window.Start.After(window.End.Time) {
		return Preview{}, fmt.Errorf("%w: %w: start %s is after end %s", httpx.ErrValidation, ErrInvalidRange, window.Start, window.End)
	}
	return s.preview(ctx, window, last)
}

// DefaultRange proposes the next period of the given type.
func (s *Service) DefaultRange(ctx context.Context, periodType PeriodType) (Window, error) {
	if !periodType.Valid() {
		return Window{}, fmt.Errorf("%w: unknown period type %q", httpx.ErrValidation, periodType)
	}
	last, err := s.repo.LastClosing(ctx, s.group.IDs())
	if err != nil {
		return Window{}, err
	}
	return DefaultRange(periodType, last, s.today()), nil
}

func (s *Service) preview(ctx context.Context, window Window, last *CashClosing) (Preview, error) {
	var (
		quotes   []RevenueQuote
		expenses []Expense
		pct      float64
	)
	ids := s.group.IDs()
	from, to := window.Bounds(s.loc)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quotes, err = s.repo.ListRevenueQuotes(gctx, ids, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx, ids, window)
		return err
	})
	g.Go(func() error {
		var err error
		pct, err = s.settings.CompanyCashPercentage(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Preview{}, err
	}

	pending := 0
	for _, q := range quotes {
		if !ledger.IsFullyPaid(q.Total, q.Paid) {
			pending++
		}
	}
	split := ComputeSplit(s.group, SplitInput{
		Revenue:               RecognizedRevenue(quotes),
		Expenses:              expenses,
		CompanyCashPercentage: pct,
	})
	return Preview{
		Window:       window,
		LastClosing:  last,
		QuotesCount:  len(quotes),
		PendingCount: pending,
		Split:        split,
	}, nil
}

// Create stores a finalized closing. Figures are kept as submitted.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (CashClosing, error) {
	if err := httpx.Validate(s.validate, in); err != nil {
		return CashClosing{}, err
	}
	if err := in.Validate(s.group); err != nil {
		return CashClosing{}, err
	}

	closing := CashClosing{
		ID:             uuid.New(),
		OwnerID:        actor.UserID,
		PeriodType:     in.PeriodType,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		TotalProfit:    in.TotalProfit,
		CompanyCash:    in.CompanyCash,
		TotalRevenue:   in.TotalRevenue,
		TotalExpenses:  in.TotalExpenses,
		PartnerProfits: orderProfits(s.group, in.PartnerProfits),
		Observations:   in.Observations,
		CreatedAt:      s.now().UTC(),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockClosings(ctx); err != nil {
			return err
		}
		last, err := repo.LastClosing(ctx, s.group.IDs())
		if err != nil {
			return err
		}
		if last != nil && !closing.StartDate.After(last.EndDate.Time) {
			return fmt.Errorf("%w: last closing ends %s", ErrOverlap, last.EndDate)
		}
		return repo.InsertClosing(ctx, closing)
	})
	if err != nil {
		return CashClosing{}, err
	}

	entry := shared.NewAuditEntry(actor, "cash_closing.created", "cash_closing", closing.ID.String(),
		fmt.Sprintf("Fechamento %s de %s a %s", closing.PeriodType, closing.StartDate, closing.EndDate))
	entry.NewValue = map[string]any{
		"totalRevenue":   closing.TotalRevenue,
		"totalExpenses":  closing.TotalExpenses,
		"totalProfit":    closing.TotalProfit,
		"companyCash":    closing.CompanyCash,
		"partnerProfits": closing.PartnerProfits,
	}
	s.audit.Record(ctx, entry)
	s.logger.Info("cash closing created", slog.String("id", closing.ID.String()), slog.Int64("actor", actor.UserID))
	return closing, nil
}

// Get returns a single closing.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (CashClosing, error) {
	return s.repo.GetClosing(ctx, id, s.group.IDs())
}

// List returns closings newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]CashClosing, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListClosings(ctx, s.group.IDs(), p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Partners exposes the ownership group for presentation layers.
func (s *Service) Partners() []shared.Partner {
	return s.group.Partners()
}

func orderProfits(group shared.OwnershipGroup, in []PartnerProfit) []PartnerProfit {
	byID := make(map[int64]float64, len(in))
	for _, p := range in {
		byID[p.PartnerID] = p.Profit
	}
	out := make([]PartnerProfit, 0, len(in))
	for _, id := range group.IDs() {
		out = append(out, PartnerProfit{PartnerID: id, Profit: byID[id]})
	}
	return out
}
