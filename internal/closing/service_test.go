package closing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type memoryClosingRepo struct {
	mu       sync.Mutex
	closings []CashClosing
	quotes   []RevenueQuote
	expenses []Expense
	ranges   [][2]time.Time
	locked   int
}

func (r *memoryClosingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryClosingRepo) LockClosings(context.Context) error {
	r.locked++
	return nil
}

func (r *memoryClosingRepo) LastClosing(context.Context, []int64) (*CashClosing, error) {
	if len(r.closings) == 0 {
		return nil, nil
	}
	sorted := append([]CashClosing(nil), r.closings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EndDate.After(sorted[j].EndDate.Time) })
	return &sorted[0], nil
}

func (r *memoryClosingRepo) GetClosing(_ context.Context, id uuid.UUID, _ []int64) (CashClosing, error) {
	for _, c := range r.closings {
		if c.ID == id {
			return c, nil
		}
	}
	return CashClosing{}, ErrNotFound
}

func (r *memoryClosingRepo) ListClosings(_ context.Context, _ []int64, limit, offset int) ([]CashClosing, int, error) {
	if offset >= len(r.closings) {
		return nil, len(r.closings), nil
	}
	end := min(offset+limit, len(r.closings))
	return r.closings[offset:end], len(r.closings), nil
}

func (r *memoryClosingRepo) InsertClosing(_ context.Context, c CashClosing) error {
	r.closings = append(r.closings, c)
	return nil
}

func (r *memoryClosingRepo) ListRevenueQuotes(_ context.Context, _ []int64, from, to time.Time) ([]RevenueQuote, error) {
	r.mu.Lock()
	r.ranges = append(r.ranges, [2]time.Time{from, to})
	r.mu.Unlock()
	return r.quotes, nil
}

func (r *memoryClosingRepo) ListExpenses(context.Context, []int64, Window) ([]Expense, error) {
	return r.expenses, nil
}

type fixedPercentage float64

func (p fixedPercentage) CompanyCashPercentage(context.Context) (float64, error) {
	return float64(p), nil
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) {
	a.entries = append(a.entries, log)
}

func newTestService(repo *memoryClosingRepo, audit shared.AuditSink) *Service {
	svc := NewService(repo, fixedPercentage(10), shared.DefaultOwnershipGroup(), audit, nil)
	svc.WithLocation(time.UTC)
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 17, 15, 0, 0, 0, time.UTC) })
	return svc
}

func TestPreviewUsesLiveWindowAndFullyPaidRevenue(t *testing.T) {
	repo := &memoryClosingRepo{
		closings: []CashClosing{{ID: uuid.New(), EndDate: day(t, "2024-03-05")}},
		quotes: []RevenueQuote{
			{Total: 10000, Paid: 10000},
			{Total: 900, Paid: 400},
		},
		expenses: []Expense{
			{Category: "aluguel", Amount: 2000},
			{Category: "vale_gustavo", Amount: 500},
		},
	}
	svc := newTestService(repo, nil)

	preview, err := svc.Preview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-03-06", preview.Window.Start.String())
	assert.Equal(t, "2024-03-17", preview.Window.End.String())
	assert.Equal(t, 2, preview.QuotesCount)
	assert.Equal(t, 1, preview.PendingCount)
	assert.Equal(t, 10000.0, preview.Split.Revenue)
	share, _ := preview.Split.Share(1)
	assert.Equal(t, 3100.0, share.Profit)
	require.NotNil(t, preview.LastClosing)
}

func TestPreviewQueriesRevenueInBusinessZone(t *testing.T) {
	repo := &memoryClosingRepo{}
	svc := newTestService(repo, nil)
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	svc.WithLocation(saoPaulo)

	_, err := svc.PreviewRange(context.Background(), PeriodMonthly, day(t, "2024-03-01"), day(t, "2024-03-31"))
	require.NoError(t, err)
	require.Len(t, repo.ranges, 1)
	from, to := repo.ranges[0][0], repo.ranges[0][1]
	assert.True(t, from.Equal(time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)))
	assert.True(t, to.Equal(time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC)))

	completed := time.Date(2024, 3, 31, 22, 0, 0, 0, saoPaulo)
	assert.True(t, !completed.Before(from) && completed.Before(to))
}

func TestPreviewRangeRejectsInvertedDates(t *testing.T) {
	svc := newTestService(&memoryClosingRepo{}, nil)
	_, err := svc.PreviewRange(context.Background(), PeriodMonthly, day(t, "2024-03-10"), day(t, "2024-03-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestPreviewRangeDefaultsFromPeriodType(t *testing.T) {
	repo := &memoryClosingRepo{}
	svc := newTestService(repo, nil)
	preview, err := svc.PreviewRange(context.Background(), PeriodWeekly, shared.Date{}, shared.Date{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", preview.Window.Start.String())
	assert.Equal(t, "2024-03-07", preview.Window.End.String())
}

func validInput(t *testing.T, start, end string) CreateInput {
	return CreateInput{
		PeriodType:     PeriodMonthly,
		StartDate:      day(t, start),
		EndDate:        day(t, end),
		TotalProfit:    8000,
		CompanyCash:    800,
		TotalRevenue:   10000,
		TotalExpenses:  2000,
		PartnerProfits: []PartnerProfit{{PartnerID: 2, Profit: 3600}, {PartnerID: 1, Profit: 3100}},
	}
}

func TestCreateStoresFiguresAsSubmitted(t *testing.T) {
	repo := &memoryClosingRepo{}
	audit := &recordingAudit{}
	svc := newTestService(repo, audit)

	closing, err := svc.Create(context.Background(), shared.Actor{UserID: 1}, validInput(t, "2024-02-01", "2024-02-29"))
	require.NoError(t, err)

	require.Len(t, repo.closings, 1)
	assert.Equal(t, 1, repo.locked)
	assert.Equal(t, []PartnerProfit{{PartnerID: 1, Profit: 3100}, {PartnerID: 2, Profit: 3600}}, closing.PartnerProfits)
	assert.Equal(t, 800.0, repo.closings[0].CompanyCash)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "cash_closing", audit.entries[0].Entity)
}

func TestCreateRejectsOverlap(t *testing.T) {
	repo := &memoryClosingRepo{closings: []CashClosing{{ID: uuid.New(), EndDate: day(t, "2024-02-29")}}}
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), shared.Actor{UserID: 1}, validInput(t, "2024-02-29", "2024-03-15"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlap))
	assert.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.Create(context.Background(), shared.Actor{UserID: 1}, validInput(t, "2024-03-01", "2024-03-15"))
	require.NoError(t, err)
}

func TestCreateRequiresEveryPartner(t *testing.T) {
	svc := newTestService(&memoryClosingRepo{}, nil)
	in := validInput(t, "2024-02-01", "2024-02-29")
	in.PartnerProfits = in.PartnerProfits[:1]

	_, err := svc.Create(context.Background(), shared.Actor{UserID: 1}, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "missing profit")
}

func TestCreateRejectsUnknownPeriodType(t *testing.T) {
	svc := newTestService(&memoryClosingRepo{}, nil)
	in := validInput(t, "2024-02-01", "2024-02-29")
	in.PeriodType = "anual"

	_, err := svc.Create(context.Background(), shared.Actor{UserID: 1}, in)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListPaginates(t *testing.T) {
	repo := &memoryClosingRepo{}
	for i := 0; i < 3; i++ {
		repo.closings = append(repo.closings, CashClosing{ID: uuid.New()})
	}
	svc := newTestService(repo, nil)

	items, page, err := svc.List(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}
