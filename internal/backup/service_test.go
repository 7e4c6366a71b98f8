package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type backupState struct {
	clients       map[uuid.UUID]Client
	quotes        map[uuid.UUID]Quote
	serviceItems  map[uuid.UUID]LineRow
	materialItems map[uuid.UUID]LineRow
	payments      map[uuid.UUID]Payment
	employees     map[uuid.UUID]Employee
	catalog       map[uuid.UUID]CatalogItem
	settings      map[int64]CompanySettings
	expenses      map[uuid.UUID]Expense
	closings      map[uuid.UUID]CashClosing
	sequence      int64
}

func newBackupState() backupState {
	return backupState{
		clients:       map[uuid.UUID]Client{},
		quotes:        map[uuid.UUID]Quote{},
		serviceItems:  map[uuid.UUID]LineRow{},
		materialItems: map[uuid.UUID]LineRow{},
		payments:      map[uuid.UUID]Payment{},
		employees:     map[uuid.UUID]Employee{},
		catalog:       map[uuid.UUID]CatalogItem{},
		settings:      map[int64]CompanySettings{},
		expenses:      map[uuid.UUID]Expense{},
		closings:      map[uuid.UUID]CashClosing{},
	}
}

func (s backupState) clone() backupState {
	return backupState{
		clients:       maps.Clone(s.clients),
		quotes:        maps.Clone(s.quotes),
		serviceItems:  maps.Clone(s.serviceItems),
		materialItems: maps.Clone(s.materialItems),
		payments:      maps.Clone(s.payments),
		employees:     maps.Clone(s.employees),
		catalog:       maps.Clone(s.catalog),
		settings:      maps.Clone(s.settings),
		expenses:      maps.Clone(s.expenses),
		closings:      maps.Clone(s.closings),
		sequence:      s.sequence,
	}
}

type memoryBackupRepo struct {
	mu     sync.Mutex
	state  backupState
	ops    []string
	failOn string
}

func newMemoryBackupRepo() *memoryBackupRepo {
	return &memoryBackupRepo{state: newBackupState()}
}

func (r *memoryBackupRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, r); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryBackupRepo) step(op string) error {
	r.ops = append(r.ops, op)
	if op == r.failOn {
		return errors.New("store unavailable")
	}
	return nil
}

func owned(ownerIDs []int64, id int64) bool {
	for _, o := range ownerIDs {
		if o == id {
			return true
		}
	}
	return false
}

func (r *memoryBackupRepo) Purge(_ context.Context, table Table, ownerIDs []int64, clientIDs []uuid.UUID) error {
	if err := r.step("delete " + string(table)); err != nil {
		return err
	}
	s := &r.state
	quoteOwned := func(id uuid.UUID) bool {
		q, ok := s.quotes[id]
		return ok && owned(ownerIDs, q.OwnerID)
	}
	switch table {
	case TablePayments:
		maps.DeleteFunc(s.payments, func(_ uuid.UUID, p Payment) bool { return owned(ownerIDs, p.OwnerID) || quoteOwned(p.QuoteID) })
	case TableServiceItems:
		maps.DeleteFunc(s.serviceItems, func(_ uuid.UUID, l LineRow) bool { return quoteOwned(l.QuoteID) })
	case TableMaterialItems:
		maps.DeleteFunc(s.materialItems, func(_ uuid.UUID, l LineRow) bool { return quoteOwned(l.QuoteID) })
	case TableQuotes:
		maps.DeleteFunc(s.quotes, func(_ uuid.UUID, q Quote) bool { return owned(ownerIDs, q.OwnerID) })
	case TableClients:
		listed := map[uuid.UUID]bool{}
		for _, id := range clientIDs {
			listed[id] = true
		}
		maps.DeleteFunc(s.clients, func(id uuid.UUID, c Client) bool { return listed[id] && owned(ownerIDs, c.OwnerID) })
	case TableExpenses:
		maps.DeleteFunc(s.expenses, func(_ uuid.UUID, e Expense) bool { return owned(ownerIDs, e.OwnerID) })
	case TableClosings:
		maps.DeleteFunc(s.closings, func(_ uuid.UUID, c CashClosing) bool { return owned(ownerIDs, c.OwnerID) })
	case TableEmployees:
		maps.DeleteFunc(s.employees, func(_ uuid.UUID, e Employee) bool { return owned(ownerIDs, e.OwnerID) })
	case TableCatalog:
		maps.DeleteFunc(s.catalog, func(_ uuid.UUID, c CatalogItem) bool { return owned(ownerIDs, c.OwnerID) })
	case TableSettings:
		maps.DeleteFunc(s.settings, func(owner int64, _ CompanySettings) bool { return owned(ownerIDs, owner) })
	}
	return nil
}

func insertAll[T any](m map[uuid.UUID]T, rows []T, id func(T) uuid.UUID) int64 {
	var n int64
	for _, row := range rows {
		if _, exists := m[id(row)]; exists {
			continue
		}
		m[id(row)] = row
		n++
	}
	return n
}

func (r *memoryBackupRepo) InsertClients(_ context.Context, rows []Client) (int64, error) {
	if err := r.step("insert clients"); err != nil {
		return 0, err
	}
	return insertAll(r.state.clients, rows, func(c Client) uuid.UUID { return c.ID }), nil
}

func (r *memoryBackupRepo) InsertQuote(_ context.Context, q Quote) (int64, error) {
	if err := r.step("insert quote"); err != nil {
		return 0, err
	}
	for _, existing := range r.state.quotes {
		if existing.ID == q.ID || existing.Number == q.Number {
			return 0, nil
		}
	}
	if _, ok := r.state.clients[q.ClientID]; !ok {
		return 0, errors.New("client missing")
	}
	q.Services, q.Materials = nil, nil
	r.state.quotes[q.ID] = q
	return 1, nil
}

func (r *memoryBackupRepo) InsertLineItems(_ context.Context, table Table, rows []LineRow) (int64, error) {
	if err := r.step("insert " + string(table)); err != nil {
		return 0, err
	}
	target := r.state.serviceItems
	if table == TableMaterialItems {
		target = r.state.materialItems
	}
	return insertAll(target, rows, func(l LineRow) uuid.UUID { return l.Item.ID }), nil
}

func (r *memoryBackupRepo) InsertPayments(_ context.Context, rows []Payment) (int64, error) {
	if err := r.step("insert payments"); err != nil {
		return 0, err
	}
	return insertAll(r.state.payments, rows, func(p Payment) uuid.UUID { return p.ID }), nil
}

func (r *memoryBackupRepo) InsertEmployees(_ context.Context, rows []Employee) (int64, error) {
	if err := r.step("insert employees"); err != nil {
		return 0, err
	}
	return insertAll(r.state.employees, rows, func(e Employee) uuid.UUID { return e.ID }), nil
}

func (r *memoryBackupRepo) InsertCatalog(_ context.Context, rows []CatalogItem) (int64, error) {
	if err := r.step("insert catalog"); err != nil {
		return 0, err
	}
	return insertAll(r.state.catalog, rows, func(c CatalogItem) uuid.UUID { return c.ID }), nil
}

func (r *memoryBackupRepo) UpsertSettings(_ context.Context, s CompanySettings) error {
	if err := r.step("upsert settings"); err != nil {
		return err
	}
	r.state.settings[s.OwnerID] = s
	return nil
}

func (r *memoryBackupRepo) InsertExpenses(_ context.Context, rows []Expense) (int64, error) {
	if err := r.step("insert expenses"); err != nil {
		return 0, err
	}
	return insertAll(r.state.expenses, rows, func(e Expense) uuid.UUID { return e.ID }), nil
}

func (r *memoryBackupRepo) InsertClosings(_ context.Context, rows []CashClosing) (int64, error) {
	if err := r.step("insert closings"); err != nil {
		return 0, err
	}
	return insertAll(r.state.closings, rows, func(c CashClosing) uuid.UUID { return c.ID }), nil
}

func (r *memoryBackupRepo) SyncQuoteSequence(context.Context) error {
	if err := r.step("sync sequence"); err != nil {
		return err
	}
	var highest int64
	for _, q := range r.state.quotes {
		highest = max(highest, q.Number)
	}
	r.state.sequence = highest
	return nil
}

func (r *memoryBackupRepo) Snapshot(_ context.Context, ownerIDs []int64) (Document, error) {
	doc := Document{}
	for _, c := range r.state.clients {
		if owned(ownerIDs, c.OwnerID) {
			doc.Clients = append(doc.Clients, c)
		}
	}
	for _, q := range r.state.quotes {
		if !owned(ownerIDs, q.OwnerID) {
			continue
		}
		for _, l := range r.state.serviceItems {
			if l.QuoteID == q.ID {
				q.Services = append(q.Services, l.Item)
			}
		}
		for _, l := range r.state.materialItems {
			if l.QuoteID == q.ID {
				q.Materials = append(q.Materials, l.Item)
			}
		}
		doc.Quotes = append(doc.Quotes, q)
	}
	for _, p := range r.state.payments {
		doc.Payments = append(doc.Payments, p)
	}
	for _, c := range r.state.closings {
		doc.CashClosings = append(doc.CashClosings, c)
	}
	return doc, nil
}

type countingRestores struct {
	mu      sync.Mutex
	results []string
}

func (c *countingRestores) BackupRestored(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

type recordingAudit struct{ entries []shared.AuditLog }

func (a *recordingAudit) Record(_ context.Context, entry shared.AuditLog) {
	a.entries = append(a.entries, entry)
}

var (
	partnerA = shared.Actor{UserID: 1}
	fixedNow = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBackupService(repo Repository, opts ...Option) *Service {
	svc := NewService(repo, shared.DefaultOwnershipGroup(), nil, discardLogger(), opts...)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc
}

func sampleDocument() Document {
	clientID := uuid.New()
	quoteID := uuid.New()
	return Document{
		Clients: []Client{{ID: clientID, OwnerID: 1, Name: "Ana", Phone: "+5511987654321"}},
		Quotes: []Quote{{
			ID: quoteID, Number: 41, OwnerID: 2, ClientID: clientID,
			Subtotal: 1000, Total: 1000, Status: "approved",
			Services:  []LineItem{{ID: uuid.New(), Name: "Instalação", Quantity: 1, UnitPrice: 800}},
			Materials: []LineItem{{ID: uuid.New(), Name: "Cabo", Quantity: 10, UnitPrice: 20}},
		}},
		Payments:        []Payment{{ID: uuid.New(), QuoteID: quoteID, OwnerID: 1, Amount: 400, PaymentDate: shared.NewDate(fixedNow), PaymentMethod: "pix"}},
		Expenses:        []Expense{{ID: uuid.New(), OwnerID: 1, Category: "material", Amount: 120, Date: shared.NewDate(fixedNow)}},
		Employees:       []Employee{{ID: uuid.New(), OwnerID: 2, Name: "Carlos"}},
		Services:        []CatalogItem{{ID: uuid.New(), OwnerID: 1, Name: "Tomada", UnitPrice: 45}},
		CompanySettings: []CompanySettings{{OwnerID: 1, Name: "Ampere Elétrica", CompanyCashPercentage: 10}},
		CashClosings: []CashClosing{{
			ID: uuid.New(), OwnerID: 1, PeriodType: "mensal",
			StartDate: shared.NewDate(fixedNow.AddDate(0, -1, 0)), EndDate: shared.NewDate(fixedNow.AddDate(0, 0, -1)),
			TotalProfit: 900, CompanyCash: 90,
			PartnerProfits: []PartnerProfit{{PartnerID: 1, Profit: 405}, {PartnerID: 2, Profit: 405}},
		}},
	}
}

func TestRestoreRunsStepsInDependencyOrder(t *testing.T) {
	repo := newMemoryBackupRepo()
	untouched := Client{ID: uuid.New(), OwnerID: 1, Name: "Fora do backup"}
	repo.state.clients[untouched.ID] = untouched
	stale := Quote{ID: uuid.New(), Number: 7, OwnerID: 1, ClientID: untouched.ID, Status: "draft"}
	repo.state.quotes[stale.ID] = stale

	svc := newBackupService(repo)
	counts, err := svc.Restore(context.Background(), partnerA, sampleDocument())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete payments",
		"delete quote_service_items",
		"delete quote_material_items",
		"delete quotes",
		"delete clients",
		"delete expenses",
		"delete cash_closings",
		"delete employees",
		"delete catalog_items",
		"delete company_settings",
		"insert clients",
		"insert quote",
		"insert quote_service_items",
		"insert quote_material_items",
		"insert payments",
		"insert employees",
		"insert catalog",
		"upsert settings",
		"insert expenses",
		"insert closings",
		"sync sequence",
	}, repo.ops)

	assert.Equal(t, Counts{
		Clients: 1, Quotes: 1, ServiceItems: 1, MaterialItems: 1, Payments: 1,
		Employees: 1, Services: 1, CompanySettings: 1, Expenses: 1, CashClosings: 1,
	}, counts)
	assert.Contains(t, repo.state.clients, untouched.ID)
	assert.NotContains(t, repo.state.quotes, stale.ID)
	assert.Equal(t, int64(41), repo.state.sequence)
}

func TestRestoreTwiceYieldsSameCounts(t *testing.T) {
	repo := newMemoryBackupRepo()
	svc := newBackupService(repo)
	doc := sampleDocument()

	first, err := svc.Restore(context.Background(), partnerA, doc)
	require.NoError(t, err)
	second, err := svc.Restore(context.Background(), partnerA, doc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, repo.state.quotes, 1)
	assert.Len(t, repo.state.payments, 1)
}

func TestRestoreRejectsEmptyBackupWithoutWriting(t *testing.T) {
	repo := newMemoryBackupRepo()
	existing := Client{ID: uuid.New(), OwnerID: 1, Name: "Ana"}
	repo.state.clients[existing.ID] = existing
	restores := &countingRestores{}
	svc := newBackupService(repo, WithRestoreRecorder(restores))

	doc := sampleDocument()
	doc.Clients, doc.Quotes = nil, []Quote{}
	_, err := svc.Restore(context.Background(), partnerA, doc)
	require.ErrorIs(t, err, ErrEmptyBackup)

	_, err = svc.RestoreJSON(context.Background(), partnerA, []byte(`{"clients": [], "quotes": []}`))
	require.ErrorIs(t, err, ErrEmptyBackup)

	assert.Empty(t, repo.ops)
	assert.Contains(t, repo.state.clients, existing.ID)
	assert.Equal(t, []string{"rejected", "rejected"}, restores.results)
}

func TestRestoreFailureRollsBackAndNamesStep(t *testing.T) {
	repo := newMemoryBackupRepo()
	existing := Client{ID: uuid.New(), OwnerID: 1, Name: "Ana"}
	repo.state.clients[existing.ID] = existing
	repo.failOn = "insert payments"
	restores := &countingRestores{}
	svc := newBackupService(repo, WithRestoreRecorder(restores))

	_, err := svc.Restore(context.Background(), partnerA, sampleDocument())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "insert payments", stepErr.Step)

	assert.Len(t, repo.state.clients, 1)
	assert.Contains(t, repo.state.clients, existing.ID)
	assert.Empty(t, repo.state.quotes)
	assert.Equal(t, []string{"failed"}, restores.results)
}

func TestRestoreMapsLegacyProfitsAndForeignOwners(t *testing.T) {
	repo := newMemoryBackupRepo()
	svc := newBackupService(repo)
	doc := sampleDocument()
	doc.Clients[0].OwnerID = 99
	gustavo, giovanni := FlexFloat(300), FlexFloat(200)
	doc.CashClosings[0].PartnerProfits = nil
	doc.CashClosings[0].GustavoProfit = &gustavo
	doc.CashClosings[0].GiovanniProfit = &giovanni
	doc.Quotes[0].Status = "aprovado"

	_, err := svc.Restore(context.Background(), shared.Actor{UserID: 2}, doc)
	require.NoError(t, err)

	assert.Equal(t, int64(2), repo.state.clients[doc.Clients[0].ID].OwnerID)
	assert.Equal(t, "draft", repo.state.quotes[doc.Quotes[0].ID].Status)
	closing := repo.state.closings[doc.CashClosings[0].ID]
	assert.Equal(t, []PartnerProfit{{PartnerID: 1, Profit: 300}, {PartnerID: 2, Profit: 200}}, closing.PartnerProfits)
}

func TestRestoreRejectsUnknownPaymentMethod(t *testing.T) {
	repo := newMemoryBackupRepo()
	svc := newBackupService(repo)
	doc := sampleDocument()
	doc.Payments[0].PaymentMethod = "cheque"

	_, err := svc.Restore(context.Background(), partnerA, doc)
	require.Error(t, err)
	assert.Empty(t, repo.ops)
}

func TestRestoreHonoursLockAndInvalidatesCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)

	repo := newMemoryBackupRepo()
	inv := &countingInvalidator{}
	audit := &recordingAudit{}
	restores := &countingRestores{}
	svc := NewService(repo, shared.DefaultOwnershipGroup(), audit, discardLogger(),
		WithLocker(locker, time.Minute), WithInvalidator(inv), WithRestoreRecorder(restores))

	held, err := locker.Obtain(context.Background(), shared.RestoreLockKey, time.Minute, nil)
	require.NoError(t, err)
	_, err = svc.Restore(context.Background(), partnerA, sampleDocument())
	require.ErrorIs(t, err, ErrRestoreInProgress)
	assert.Empty(t, repo.ops)
	require.NoError(t, held.Release(context.Background()))

	_, err = svc.Restore(context.Background(), partnerA, sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "backup.restored", audit.entries[0].Action)
	assert.Equal(t, []string{"locked", "success"}, restores.results)
	assert.False(t, mr.Exists(shared.RestoreLockKey))
}

func TestExportStampsTimeAndRoundTrips(t *testing.T) {
	repo := newMemoryBackupRepo()
	svc := newBackupService(repo)
	_, err := svc.Restore(context.Background(), partnerA, sampleDocument())
	require.NoError(t, err)

	doc, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, doc.ExportedAt.Time)
	require.Len(t, doc.Quotes, 1)
	assert.Len(t, doc.Quotes[0].Services, 1)
	assert.Len(t, doc.Quotes[0].Materials, 1)

	counts, err := svc.Restore(context.Background(), partnerA, doc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Quotes)
	assert.Equal(t, int64(1), counts.Payments)
}
