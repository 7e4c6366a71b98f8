package backup

import (
	"context"
	"fmt"
)

// StepError names the restore step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("backup restore step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type step struct {
	name string
	run  func(ctx context.Context, repo Repository) error
}

// plan lists the restore steps. Deletes run children first, inserts parents
// first; the order follows the foreign keys between the tables.
func (s *Service) plan(doc Document, counts *Counts) []step {
	owners := s.group.IDs()
	clientIDs := doc.ClientIDs()
	purge := func(table Table) step {
		return step{name: "delete " + string(table), run: func(ctx context.Context, repo Repository) error {
			return repo.Purge(ctx, table, owners, clientIDs)
		}}
	}
	serviceRows, materialRows := flattenLines(doc.Quotes)

	steps := []step{
		purge(TablePayments),
		purge(TableServiceItems),
		purge(TableMaterialItems),
		purge(TableQuotes),
		purge(TableClients),
		purge(TableExpenses),
		purge(TableClosings),
		purge(TableEmployees),
		purge(TableCatalog),
		purge(TableSettings),
		{name: "insert clients", run: func(ctx context.Context, repo Repository) (err error) {
			counts.Clients, err = repo.InsertClients(ctx, doc.Clients)
			return err
		}},
		{name: "insert quotes", run: func(ctx context.Context, repo Repository) error {
			for _, q := range doc.Quotes {
				n, err := repo.InsertQuote(ctx, q)
				if err != nil {
					return fmt.Errorf("quote %d: %w", q.Number, err)
				}
				counts.Quotes += n
			}
			return nil
		}},
		{name: "insert service items", run: func(ctx context.Context, repo Repository) (err error) {
			counts.ServiceItems, err = repo.InsertLineItems(ctx, TableServiceItems, serviceRows)
			return err
		}},
		{name: "insert material items", run: func(ctx context.Context, repo Repository) (err error) {
			counts.MaterialItems, err = repo.InsertLineItems(ctx, TableMaterialItems, materialRows)
			return err
		}},
		{name: "insert payments", run: func(ctx context.Context, repo Repository) (err error) {
			counts.Payments, err = repo.InsertPayments(ctx, doc.Payments)
			return err
		}},
		{name: "insert employees", run: func(ctx context.Context, repo Repository) (err error) {
			counts.Employees, err = repo.InsertEmployees(ctx, doc.Employees)
			return err
		}},
		{name: "insert catalog", run: func(ctx context.Context, repo Repository) (err error) {
			counts.Services, err = repo.InsertCatalog(ctx, doc.Services)
			return err
		}},
		{name: "upsert company settings", run: func(ctx context.Context, repo Repository) error {
			for _, cs := range doc.CompanySettings {
				if err := repo.UpsertSettings(ctx, cs); err != nil {
					return err
				}
				counts.CompanySettings++
			}
			return nil
		}},
		{name: "insert expenses", run: func(ctx context.Context, repo Repository) (err error) {
			counts.Expenses, err = repo.InsertExpenses(ctx, doc.Expenses)
			return err
		}},
		{name: "insert cash closings", run: func(ctx context.Context, repo Repository) (err error) {
			counts.CashClosings, err = repo.InsertClosings(ctx, doc.CashClosings)
			return err
		}},
		{name: "sync quote sequence", run: func(ctx context.Context, repo Repository) error {
			return repo.SyncQuoteSequence(ctx)
		}},
	}
	return steps
}

func flattenLines(quotes []Quote) (services, materials []LineRow) {
	for _, q := range quotes {
		for i, item := range q.Services {
			services = append(services, LineRow{QuoteID: q.ID, Position: i, Item: item})
		}
		for i, item := range q.Materials {
			materials = append(materials, LineRow{QuoteID: q.ID, Position: i, Item: item})
		}
	}
	return services, materials
}
