package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
	"github.com/ampere-erp/ampere-erp/internal/settings"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    db.DBTX
}

// NewRepository constructs a PGRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

// WithTx runs fn in a serializable transaction so the restore is all-or-nothing.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{q: tx})
	})
}

var purgeSQL = map[Table]string{
	TablePayments: `DELETE FROM payments
WHERE owner_id = ANY($1) OR quote_id IN (SELECT id FROM quotes WHERE owner_id = ANY($1))`,
	TableServiceItems:  `DELETE FROM quote_service_items WHERE quote_id IN (SELECT id FROM quotes WHERE owner_id = ANY($1))`,
	TableMaterialItems: `DELETE FROM quote_material_items WHERE quote_id IN (SELECT id FROM quotes WHERE owner_id = ANY($1))`,
	TableQuotes:        `DELETE FROM quotes WHERE owner_id = ANY($1)`,
	TableExpenses:      `DELETE FROM expenses WHERE owner_id = ANY($1)`,
	TableClosings:      `DELETE FROM cash_closings WHERE owner_id = ANY($1)`,
	TableEmployees:     `DELETE FROM employees WHERE owner_id = ANY($1)`,
	TableCatalog:       `DELETE FROM catalog_items WHERE owner_id = ANY($1)`,
	TableSettings:      `DELETE FROM company_settings WHERE owner_id = ANY($1)`,
}

// Purge deletes the firm's rows of table. Clients are limited to clientIDs.
func (r *PGRepository) Purge(ctx context.Context, table Table, ownerIDs []int64, clientIDs []uuid.UUID) error {
	if table == TableClients {
		if len(clientIDs) == 0 {
			return nil
		}
		_, err := r.q.Exec(ctx, `DELETE FROM clients WHERE owner_id = ANY($1) AND id = ANY($2)`, ownerIDs, clientIDs)
		return err
	}
	query, ok := purgeSQL[table]
	if !ok {
		return fmt.Errorf("backup: unknown table %q", table)
	}
	_, err := r.q.Exec(ctx, query, ownerIDs)
	return err
}

func (r *PGRepository) execBatch(ctx context.Context, batch *pgx.Batch, counted []bool) (int64, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	results := r.q.SendBatch(ctx, batch)
	var total int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return total, err
		}
		if counted == nil || counted[i] {
			total += tag.RowsAffected()
		}
	}
	return total, results.Close()
}

// InsertClients bulk inserts clients, skipping existing ids.
func (r *PGRepository) InsertClients(ctx context.Context, rows []Client) (int64, error) {
	batch := &pgx.Batch{}
	for _, c := range rows {
		batch.Queue(`INSERT INTO clients (id, owner_id, name, phone, address, email, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))
ON CONFLICT (id) DO NOTHING`,
			c.ID, c.OwnerID, c.Name, c.Phone, c.Address, c.Email, c.CreatedAt.Ptr(), c.UpdatedAt.Ptr())
	}
	return r.execBatch(ctx, batch, nil)
}

// InsertQuote inserts one quote preserving its id and number.
func (r *PGRepository) InsertQuote(ctx context.Context, q Quote) (int64, error) {
	tag, err := r.q.Exec(ctx, `INSERT INTO quotes (id, number, owner_id, client_id, subtotal, discount, total,
	observations, status, service_started_at, service_completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()), COALESCE($13, NOW()))
ON CONFLICT DO NOTHING`,
		q.ID, q.Number, q.OwnerID, q.ClientID, q.Subtotal.Float(), q.Discount.Float(), q.Total.Float(),
		q.Observations, q.Status, q.ServiceStartedAt.Ptr(), q.ServiceCompletedAt.Ptr(),
		q.CreatedAt.Ptr(), q.UpdatedAt.Ptr())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertLineItems bulk inserts rows into one of the line item tables.
func (r *PGRepository) InsertLineItems(ctx context.Context, table Table, rows []LineRow) (int64, error) {
	if table != TableServiceItems && table != TableMaterialItems {
		return 0, fmt.Errorf("backup: %q is not a line item table", table)
	}
	query := `INSERT INTO ` + string(table) + ` (id, quote_id, name, quantity, unit_price, position)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.Item.ID, row.QuoteID, row.Item.Name, row.Item.Quantity.Float(), row.Item.UnitPrice.Float(), row.Position)
	}
	return r.execBatch(ctx, batch, nil)
}

// InsertPayments bulk inserts payments, skipping existing ids.
func (r *PGRepository) InsertPayments(ctx context.Context, rows []Payment) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(`INSERT INTO payments (id, quote_id, owner_id, amount, payment_date, payment_method, observations,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()))
ON CONFLICT (id) DO NOTHING`,
			p.ID, p.QuoteID, p.OwnerID, p.Amount.Float(), p.PaymentDate.Time, p.PaymentMethod, p.Observations,
			p.CreatedAt.Ptr(), p.UpdatedAt.Ptr())
	}
	return r.execBatch(ctx, batch, nil)
}

// InsertEmployees bulk inserts employees, skipping existing ids.
func (r *PGRepository) InsertEmployees(ctx context.Context, rows []Employee) (int64, error) {
	batch := &pgx.Batch{}
	for _, e := range rows {
		batch.Queue(`INSERT INTO employees (id, owner_id, name, cpf, phone, email, position, hire_date, observations,
	active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, TRUE), COALESCE($11, NOW()), COALESCE($12, NOW()))
ON CONFLICT (id) DO NOTHING`,
			e.ID, e.OwnerID, e.Name, e.CPF, e.Phone, e.Email, e.Position, datePtr(e.HireDate), e.Observations,
			e.Active, e.CreatedAt.Ptr(), e.UpdatedAt.Ptr())
	}
	return r.execBatch(ctx, batch, nil)
}

// InsertCatalog bulk inserts catalog items, skipping existing ids.
func (r *PGRepository) InsertCatalog(ctx context.Context, rows []CatalogItem) (int64, error) {
	batch := &pgx.Batch{}
	for _, item := range rows {
		batch.Queue(`INSERT INTO catalog_items (id, owner_id, kind, name, description, unit_price, unit, active,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, TRUE), COALESCE($9, NOW()), COALESCE($10, NOW()))
ON CONFLICT (id) DO NOTHING`,
			item.ID, item.OwnerID, item.Kind, item.Name, item.Description, item.UnitPrice.Float(), item.Unit,
			item.Active, item.CreatedAt.Ptr(), item.UpdatedAt.Ptr())
	}
	return r.execBatch(ctx, batch, nil)
}

// UpsertSettings writes the settings row keyed by owner.
func (r *PGRepository) UpsertSettings(ctx context.Context, s CompanySettings) error {
	_, err := r.q.Exec(ctx, settings.UpsertSQL,
		s.OwnerID, s.Name, s.Logo, s.Phone, s.Email, s.Address, s.CNPJ, s.Website, s.AdditionalInfo,
		s.CompanyCashPercentage.Float(), s.UpdatedAt.Ptr())
	return err
}

// InsertExpenses bulk inserts expenses, skipping existing ids.
func (r *PGRepository) InsertExpenses(ctx context.Context, rows []Expense) (int64, error) {
	batch := &pgx.Batch{}
	for _, e := range rows {
		batch.Queue(`INSERT INTO expenses (id, owner_id, category, description, amount, date, employee_id,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()))
ON CONFLICT (id) DO NOTHING`,
			e.ID, e.OwnerID, e.Category, e.Description, e.Amount.Float(), e.Date.Time, e.EmployeeID,
			e.CreatedAt.Ptr(), e.UpdatedAt.Ptr())
	}
	return r.execBatch(ctx, batch, nil)
}

// InsertClosings bulk inserts closings with their partner shares. Only
// closing rows are counted.
func (r *PGRepository) InsertClosings(ctx context.Context, rows []CashClosing) (int64, error) {
	batch := &pgx.Batch{}
	var counted []bool
	for _, c := range rows {
		batch.Queue(`INSERT INTO cash_closings (id, owner_id, period_type, start_date, end_date, total_profit,
	company_cash, total_revenue, total_expenses, observations, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
ON CONFLICT (id) DO NOTHING`,
			c.ID, c.OwnerID, c.PeriodType, c.StartDate.Time, c.EndDate.Time, c.TotalProfit.Float(),
			c.CompanyCash.Float(), c.TotalRevenue.Float(), c.TotalExpenses.Float(), c.Observations, c.CreatedAt.Ptr())
		counted = append(counted, true)
		for _, share := range c.PartnerProfits {
			batch.Queue(`INSERT INTO cash_closing_shares (closing_id, partner_id, profit) VALUES ($1, $2, $3)
ON CONFLICT (closing_id, partner_id) DO NOTHING`, c.ID, share.PartnerID, share.Profit.Float())
			counted = append(counted, false)
		}
	}
	return r.execBatch(ctx, batch, counted)
}

// SyncQuoteSequence points the quote sequence at the highest stored number.
func (r *PGRepository) SyncQuoteSequence(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `INSERT INTO document_sequences (name, value)
SELECT $1, COALESCE(MAX(number), 0) FROM quotes
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, quotes.SequenceName)
	return err
}

func datePtr(d *shared.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// Snapshot reads every firm-owned row for export.
func (r *PGRepository) Snapshot(ctx context.Context, ownerIDs []int64) (Document, error) {
	var doc Document
	var err error
	if doc.Clients, err = r.snapshotClients(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("clients: %w", err)
	}
	if doc.Quotes, err = r.snapshotQuotes(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("quotes: %w", err)
	}
	if doc.Payments, err = r.snapshotPayments(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("payments: %w", err)
	}
	if doc.Expenses, err = r.snapshotExpenses(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("expenses: %w", err)
	}
	if doc.Employees, err = r.snapshotEmployees(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("employees: %w", err)
	}
	if doc.Services, err = r.snapshotCatalog(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("catalog: %w", err)
	}
	if doc.CompanySettings, err = r.snapshotSettings(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("settings: %w", err)
	}
	if doc.CashClosings, err = r.snapshotClosings(ctx, ownerIDs); err != nil {
		return Document{}, fmt.Errorf("cash closings: %w", err)
	}
	return doc, nil
}

func (r *PGRepository) snapshotClients(ctx context.Context, ownerIDs []int64) ([]Client, error) {
	rows, err := r.q.Query(ctx, `SELECT id, owner_id, name, phone, address, email, created_at, updated_at
FROM clients WHERE owner_id = ANY($1) ORDER BY created_at`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Client{}
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.Address, &c.Email, &c.CreatedAt.Time, &c.UpdatedAt.Time); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotQuotes(ctx context.Context, ownerIDs []int64) ([]Quote, error) {
	rows, err := r.q.Query(ctx, `SELECT id, number, owner_id, client_id, subtotal, discount, total, observations,
	status, service_started_at, service_completed_at, created_at, updated_at
FROM quotes WHERE owner_id = ANY($1) ORDER BY number`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quote{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			q                  Quote
			subtotal, discount float64
			total              float64
			started, completed *time.Time
		)
		if err := rows.Scan(&q.ID, &q.Number, &q.OwnerID, &q.ClientID, &subtotal, &discount, &total, &q.Observations,
			&q.Status, &started, &completed, &q.CreatedAt.Time, &q.UpdatedAt.Time); err != nil {
			return nil, err
		}
		q.Subtotal, q.Discount, q.Total = FlexFloat(subtotal), FlexFloat(discount), FlexFloat(total)
		q.ServiceStartedAt = timestampOf(started)
		q.ServiceCompletedAt = timestampOf(completed)
		q.Services, q.Materials = []LineItem{}, []LineItem{}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, table := range []Table{TableServiceItems, TableMaterialItems} {
		items, err := r.q.Query(ctx, `SELECT i.id, i.quote_id, i.name, i.quantity, i.unit_price
FROM `+string(table)+` i JOIN quotes q ON q.id = i.quote_id
WHERE q.owner_id = ANY($1) ORDER BY i.quote_id, i.position`, ownerIDs)
		if err != nil {
			return nil, err
		}
		for items.Next() {
			var (
				item      LineItem
				quoteID   uuid.UUID
				qty, unit float64
			)
			if err := items.Scan(&item.ID, &quoteID, &item.Name, &qty, &unit); err != nil {
				items.Close()
				return nil, err
			}
			item.Quantity, item.UnitPrice = FlexFloat(qty), FlexFloat(unit)
			i, ok := index[quoteID]
			if !ok {
				continue
			}
			if table == TableServiceItems {
				out[i].Services = append(out[i].Services, item)
			} else {
				out[i].Materials = append(out[i].Materials, item)
			}
		}
		items.Close()
		if err := items.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PGRepository) snapshotPayments(ctx context.Context, ownerIDs []int64) ([]Payment, error) {
	rows, err := r.q.Query(ctx, `SELECT p.id, p.quote_id, p.owner_id, p.amount, p.payment_date, p.payment_method,
	p.observations, p.created_at, p.updated_at
FROM payments p JOIN quotes q ON q.id = p.quote_id
WHERE q.owner_id = ANY($1) ORDER BY p.payment_date, p.created_at`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		var (
			p      Payment
			amount float64
			date   time.Time
		)
		if err := rows.Scan(&p.ID, &p.QuoteID, &p.OwnerID, &amount, &date, &p.PaymentMethod, &p.Observations,
			&p.CreatedAt.Time, &p.UpdatedAt.Time); err != nil {
			return nil, err
		}
		p.Amount = FlexFloat(amount)
		p.PaymentDate = shared.NewDate(date)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotExpenses(ctx context.Context, ownerIDs []int64) ([]Expense, error) {
	rows, err := r.q.Query(ctx, `SELECT id, owner_id, category, description, amount, date, employee_id, created_at, updated_at
FROM expenses WHERE owner_id = ANY($1) ORDER BY date, created_at`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Expense{}
	for rows.Next() {
		var (
			e      Expense
			amount float64
			date   time.Time
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Category, &e.Description, &amount, &date, &e.EmployeeID,
			&e.CreatedAt.Time, &e.UpdatedAt.Time); err != nil {
			return nil, err
		}
		e.Amount = FlexFloat(amount)
		e.Date = shared.NewDate(date)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotEmployees(ctx context.Context, ownerIDs []int64) ([]Employee, error) {
	rows, err := r.q.Query(ctx, `SELECT id, owner_id, name, cpf, phone, email, position, hire_date, observations,
	active, created_at, updated_at
FROM employees WHERE owner_id = ANY($1) ORDER BY name`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Employee{}
	for rows.Next() {
		var (
			e      Employee
			hired  *time.Time
			active bool
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &e.CPF, &e.Phone, &e.Email, &e.Position, &hired,
			&e.Observations, &active, &e.CreatedAt.Time, &e.UpdatedAt.Time); err != nil {
			return nil, err
		}
		if hired != nil {
			d := shared.NewDate(*hired)
			e.HireDate = &d
		}
		e.Active = &active
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotCatalog(ctx context.Context, ownerIDs []int64) ([]CatalogItem, error) {
	rows, err := r.q.Query(ctx, `SELECT id, owner_id, kind, name, description, unit_price, unit, active, created_at, updated_at
FROM catalog_items WHERE owner_id = ANY($1) ORDER BY kind, name`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CatalogItem{}
	for rows.Next() {
		var (
			item   CatalogItem
			price  float64
			active bool
		)
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Kind, &item.Name, &item.Description, &price, &item.Unit,
			&active, &item.CreatedAt.Time, &item.UpdatedAt.Time); err != nil {
			return nil, err
		}
		item.UnitPrice = FlexFloat(price)
		item.Active = &active
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotSettings(ctx context.Context, ownerIDs []int64) ([]CompanySettings, error) {
	rows, err := r.q.Query(ctx, `SELECT owner_id, name, logo, phone, email, address, cnpj, website, additional_info,
	company_cash_percentage, updated_at
FROM company_settings WHERE owner_id = ANY($1) ORDER BY owner_id`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CompanySettings{}
	for rows.Next() {
		var (
			s   CompanySettings
			pct float64
		)
		if err := rows.Scan(&s.OwnerID, &s.Name, &s.Logo, &s.Phone, &s.Email, &s.Address, &s.CNPJ, &s.Website,
			&s.AdditionalInfo, &pct, &s.UpdatedAt.Time); err != nil {
			return nil, err
		}
		s.CompanyCashPercentage = FlexFloat(pct)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepository) snapshotClosings(ctx context.Context, ownerIDs []int64) ([]CashClosing, error) {
	rows, err := r.q.Query(ctx, `SELECT id, owner_id, period_type, start_date, end_date, total_profit, company_cash,
	total_revenue, total_expenses, observations, created_at
FROM cash_closings WHERE owner_id = ANY($1) ORDER BY end_date`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CashClosing{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			c                                  CashClosing
			start, end                         time.Time
			profit, cash, revenue, expensesSum float64
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.PeriodType, &start, &end, &profit, &cash, &revenue, &expensesSum,
			&c.Observations, &c.CreatedAt.Time); err != nil {
			return nil, err
		}
		c.StartDate, c.EndDate = shared.NewDate(start), shared.NewDate(end)
		c.TotalProfit, c.CompanyCash = FlexFloat(profit), FlexFloat(cash)
		c.TotalRevenue, c.TotalExpenses = FlexFloat(revenue), FlexFloat(expensesSum)
		c.PartnerProfits = []PartnerProfit{}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	shares, err := r.q.Query(ctx, `SELECT s.closing_id, s.partner_id, s.profit
FROM cash_closing_shares s JOIN cash_closings c ON c.id = s.closing_id
WHERE c.owner_id = ANY($1) ORDER BY s.closing_id, s.partner_id`, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer shares.Close()
	for shares.Next() {
		var (
			closingID uuid.UUID
			partner   int64
			profit    float64
		)
		if err := shares.Scan(&closingID, &partner, &profit); err != nil {
			return nil, err
		}
		if i, ok := index[closingID]; ok {
			out[i].PartnerProfits = append(out[i].PartnerProfits, PartnerProfit{PartnerID: partner, Profit: FlexFloat(profit)})
		}
	}
	return out, shares.Err()
}

func timestampOf(t *time.Time) Timestamp {
	if t == nil {
		return Timestamp{}
	}
	return Timestamp{t.UTC()}
}
