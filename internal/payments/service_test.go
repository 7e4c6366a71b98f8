package payments

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

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type memoryPaymentRepo struct {
	mu       sync.Mutex
	quotes   map[uuid.UUID]QuoteBalance
	payments map[uuid.UUID]Payment
}

func newMemoryPaymentRepo() *memoryPaymentRepo {
	return &memoryPaymentRepo{
		quotes:   map[uuid.UUID]QuoteBalance{},
		payments: map[uuid.UUID]Payment{},
	}
}

func (r *memoryPaymentRepo) addQuote(total float64) uuid.UUID {
	id := uuid.New()
	r.quotes[id] = QuoteBalance{ID: id, Number: int64(len(r.quotes) + 1), Total: total}
	return id
}

// WithTx holds the mutex for the whole callback, mirroring the row lock.
func (r *memoryPaymentRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[uuid.UUID]Payment, len(r.payments))
	for k, v := range r.payments {
		snapshot[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.payments = snapshot
		return err
	}
	return nil
}

func (r *memoryPaymentRepo) LockQuote(_ context.Context, id uuid.UUID, _ []int64) (QuoteBalance, error) {
	q, ok := r.quotes[id]
	if !ok {
		return QuoteBalance{}, ErrQuoteNotFound
	}
	return q, nil
}

func (r *memoryPaymentRepo) SumPayments(_ context.Context, quoteID, exclude uuid.UUID) (float64, error) {
	var amounts []float64
	for _, p := range r.payments {
		if p.QuoteID == quoteID && p.ID != exclude {
			amounts = append(amounts, p.Amount)
		}
	}
	return ledger.TotalPaid(amounts), nil
}

func (r *memoryPaymentRepo) Get(_ context.Context, id uuid.UUID, _ []int64) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryPaymentRepo) List(_ context.Context, _ []int64, filter ListFilter, _, _ int) ([]Payment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if filter.QuoteID != uuid.Nil && p.QuoteID != filter.QuoteID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memoryPaymentRepo) Insert(_ context.Context, p Payment) error {
	r.payments[p.ID] = p
	return nil
}

func (r *memoryPaymentRepo) Update(_ context.Context, p Payment) error {
	if _, ok := r.payments[p.ID]; !ok {
		return ErrNotFound
	}
	r.payments[p.ID] = p
	return nil
}

func (r *memoryPaymentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.payments[id]; !ok {
		return ErrNotFound
	}
	delete(r.payments, id)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, entry shared.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type countingRejections struct {
	reasons []string
}

func (c *countingRejections) PaymentRejected(reason string) {
	c.reasons = append(c.reasons, reason)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

type memoryKeys struct {
	claimed map[string]bool
}

func (m *memoryKeys) Claim(_ context.Context, scope, key string) error {
	if key == "" {
		return nil
	}
	if m.claimed[scope+key] {
		return shared.ErrIdempotencyConflict
	}
	m.claimed[scope+key] = true
	return nil
}

func (m *memoryKeys) Release(_ context.Context, scope, key string) error {
	delete(m.claimed, scope+key)
	return nil
}

var actor = shared.Actor{UserID: 1}

func newTestService(repo Repository, opts ...Option) (*Service, *recordingAudit) {
	audit := &recordingAudit{}
	svc := NewService(repo, shared.DefaultOwnershipGroup(), audit, nil, opts...)
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, audit
}

func pay(quoteID uuid.UUID, amount float64) CreateRequest {
	return CreateRequest{
		QuoteID:       quoteID,
		Amount:        amount,
		PaymentDate:   shared.NewDate(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		PaymentMethod: MethodPix,
	}
}

func TestReconciliationRejectsOverpayment(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(1000)
	rejections := &countingRejections{}
	svc, _ := newTestService(repo, WithRejectionRecorder(rejections))
	ctx := context.Background()

	_, err := svc.Create(ctx, actor, "", pay(quoteID, 400))
	require.NoError(t, err)

	_, err = svc.Create(ctx, actor, "", pay(quoteID, 700))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	var over *OverpaymentError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, 1000.0, over.Total)
	assert.Equal(t, 400.0, over.Paid)
	assert.Equal(t, 600.0, over.Remaining)
	assert.Equal(t, 700.0, over.Amount)
	assert.Equal(t, []string{"overpayment"}, rejections.reasons)

	_, err = svc.Create(ctx, actor, "", pay(quoteID, 600))
	require.NoError(t, err)
	paid, _ := repo.SumPayments(ctx, quoteID, uuid.Nil)
	assert.Equal(t, 1000.0, paid)
	assert.True(t, ledger.IsFullyPaid(1000, paid))
	assert.Equal(t, 0.0, ledger.Remaining(1000, paid))
}

func TestCreateValidatesPayload(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(1000)
	svc, _ := newTestService(repo)

	req := pay(quoteID, 0)
	_, err := svc.Create(context.Background(), actor, "", req)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	req = pay(quoteID, 10)
	req.PaymentMethod = "cheque"
	_, err = svc.Create(context.Background(), actor, "", req)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, repo.payments)
}

func TestCreateUnknownQuote(t *testing.T) {
	svc, _ := newTestService(newMemoryPaymentRepo())
	_, err := svc.Create(context.Background(), actor, "", pay(uuid.New(), 10))
	assert.ErrorIs(t, err, ErrQuoteNotFound)
}

func TestUpdateExcludesItselfFromBalance(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(1000)
	svc, audit := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, actor, "", pay(quoteID, 400))
	require.NoError(t, err)
	_, err = svc.Create(ctx, actor, "", pay(quoteID, 600))
	require.NoError(t, err)

	// Editing the same amount keeps the sum at the total.
	updated, err := svc.Update(ctx, actor, first.ID, UpdateRequest{
		Amount:        400,
		PaymentDate:   first.PaymentDate,
		PaymentMethod: MethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, MethodCash, updated.PaymentMethod)

	_, err = svc.Update(ctx, actor, first.ID, UpdateRequest{
		Amount:        401,
		PaymentDate:   first.PaymentDate,
		PaymentMethod: MethodCash,
	})
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, 600.0, over.Paid)
	assert.Equal(t, 400.0, repo.payments[first.ID].Amount)
	assert.Equal(t, []string{"payment.created", "payment.created", "payment.updated"}, audit.actions())
}

func TestDeleteFreesHeadroom(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(500)
	inv := &countingInvalidator{}
	svc, audit := newTestService(repo, WithInvalidator(inv))
	ctx := context.Background()

	p, err := svc.Create(ctx, actor, "", pay(quoteID, 500))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, actor, p.ID))
	_, err = svc.Create(ctx, actor, "", pay(quoteID, 500))
	require.NoError(t, err)

	assert.Equal(t, 3, inv.calls)
	assert.Contains(t, audit.actions(), "payment.deleted")
	assert.ErrorIs(t, svc.Delete(ctx, actor, uuid.New()), ErrNotFound)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(1000)
	keys := &memoryKeys{claimed: map[string]bool{}}
	svc, _ := newTestService(repo, WithIdempotency(keys))
	ctx := context.Background()

	_, err := svc.Create(ctx, actor, "k-1", pay(quoteID, 100))
	require.NoError(t, err)
	_, err = svc.Create(ctx, actor, "k-1", pay(quoteID, 100))
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Len(t, repo.payments, 1)

	// A rejected payment releases its key so the client can retry.
	_, err = svc.Create(ctx, actor, "k-2", pay(quoteID, 5000))
	require.Error(t, err)
	_, err = svc.Create(ctx, actor, "k-2", pay(quoteID, 900))
	require.NoError(t, err)
}

func TestConcurrentCreatesNeverExceedTotal(t *testing.T) {
	repo := newMemoryPaymentRepo()
	quoteID := repo.addQuote(1000)
	svc, _ := newTestService(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Create(context.Background(), actor, "", pay(quoteID, 150))
		}()
	}
	wg.Wait()

	paid, _ := repo.SumPayments(context.Background(), quoteID, uuid.Nil)
	assert.LessOrEqual(t, paid, 1000.0)
	assert.Equal(t, 900.0, paid)
}
