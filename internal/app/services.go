package app

import (
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ampere-erp/ampere-erp/internal/audit"
	"github.com/ampere-erp/ampere-erp/internal/auth"
	"github.com/ampere-erp/ampere-erp/internal/backup"
	"github.com/ampere-erp/ampere-erp/internal/closing"
	"github.com/ampere-erp/ampere-erp/internal/delinquency"
	"github.com/ampere-erp/ampere-erp/internal/expenses"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/catalog"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/clients"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/employees"
	"github.com/ampere-erp/ampere-erp/internal/observability"
	"github.com/ampere-erp/ampere-erp/internal/payments"
	"github.com/ampere-erp/ampere-erp/internal/platform/cache"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
	"github.com/ampere-erp/ampere-erp/internal/settings"
	"github.com/ampere-erp/ampere-erp/internal/shared"
	"github.com/ampere-erp/ampere-erp/jobs"
	"github.com/ampere-erp/ampere-erp/report"
)

// Deps are the process-wide resources every service shares.
type Deps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Audit defaults to a direct writer on Pool when nil.
	Audit shared.AuditSink
}

// Services holds the wired domain services.
type Services struct {
	Ownership   shared.OwnershipGroup
	Audit       shared.AuditSink
	Idempotency *shared.IdempotencyStore
	PDF         *report.Client

	Auth        *auth.Service
	Clients     *clients.Service
	Catalog     *catalog.Service
	Employees   *employees.Service
	Settings    *settings.Service
	Quotes      *quotes.Service
	Exporter    *quotes.Exporter
	Payments    *payments.Service
	Expenses    *expenses.Service
	Closing     *closing.Service
	Delinquency *delinquency.Service
	Backup      *backup.Service
	AuditLog    *audit.Service
}

// NewServices wires repositories and services against the shared pool.
func NewServices(deps Deps) (*Services, error) {
	if deps.Config == nil || deps.Pool == nil {
		return nil, errors.New("app: config and pool are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	group, err := deps.Config.Ownership()
	if err != nil {
		return nil, err
	}
	loc, err := deps.Config.Location()
	if err != nil {
		return nil, err
	}
	sink := deps.Audit
	if sink == nil {
		sink = jobs.NewAuditDispatcher(nil, shared.NewAuditLogger(deps.Pool), logger, deps.Metrics.Jobs())
	}
	region := deps.Config.DefaultPhoneRegion
	pool := deps.Pool

	var reportCache *delinquency.Cache
	if deps.Redis != nil {
		reportCache = delinquency.NewCache(deps.Redis, deps.Config.DelinquencyCacheTTL, logger)
	}
	delinquencySvc := delinquency.NewService(delinquency.NewRepository(pool, logger), reportCache, group, logger)
	delinquencySvc.WithLocation(loc)

	employeesSvc := employees.NewService(employees.NewRepository(pool), group, sink, logger, region)
	settingsSvc := settings.NewService(settings.NewRepository(pool), group, sink, logger, region)
	quotesSvc := quotes.NewService(quotes.NewRepository(pool, logger), group, sink, delinquencySvc, logger)
	pdf := report.NewClient(deps.Config.GotenbergURL)
	idempotency := shared.NewIdempotencyStore(pool)

	paymentsSvc := payments.NewService(payments.NewRepository(pool), group, sink, logger,
		payments.WithIdempotency(idempotency),
		payments.WithInvalidator(delinquencySvc),
		payments.WithRejectionRecorder(deps.Metrics),
	)

	closingSvc := closing.NewService(closing.NewRepository(pool), settingsSvc, group, sink, logger)
	closingSvc.WithLocation(loc)

	backupOpts := []backup.Option{
		backup.WithRestoreRecorder(deps.Metrics),
		backup.WithInvalidator(delinquencySvc),
	}
	if deps.Redis != nil {
		backupOpts = append(backupOpts, backup.WithLocker(cache.NewLocker(deps.Redis), deps.Config.RestoreLockTTL))
	}

	return &Services{
		Ownership:   group,
		Audit:       sink,
		Idempotency: idempotency,
		PDF:         pdf,
		Auth:        auth.NewService(auth.NewRepository(pool), group),
		Clients:     clients.NewService(clients.NewRepository(pool), group, sink, logger, region),
		Catalog:     catalog.NewService(catalog.NewRepository(pool), group, sink, logger),
		Employees:   employeesSvc,
		Settings:    settingsSvc,
		Quotes:      quotesSvc,
		Exporter:    quotes.NewExporter(quotesSvc, settingsSvc, pdf, region),
		Payments:    paymentsSvc,
		Expenses:    expenses.NewService(expenses.NewRepository(pool), employeesSvc, group, sink, logger),
		Closing:     closingSvc,
		Delinquency: delinquencySvc,
		Backup:      backup.NewService(backup.NewRepository(pool), group, sink, logger, backupOpts...),
		AuditLog:    audit.NewService(audit.NewRepository(pool)),
	}, nil
}
