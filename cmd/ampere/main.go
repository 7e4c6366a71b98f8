package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ampere-erp/ampere-erp/cmd/ampere/cli"
	"github.com/ampere-erp/ampere-erp/internal/app"
	audithttp "github.com/ampere-erp/ampere-erp/internal/audit/http"
	"github.com/ampere-erp/ampere-erp/internal/auth"
	"github.com/ampere-erp/ampere-erp/internal/backup"
	closinghttp "github.com/ampere-erp/ampere-erp/internal/closing/http"
	"github.com/ampere-erp/ampere-erp/internal/delinquency"
	"github.com/ampere-erp/ampere-erp/internal/expenses"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/catalog"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/clients"
	"github.com/ampere-erp/ampere-erp/internal/masterdata/employees"
	"github.com/ampere-erp/ampere-erp/internal/observability"
	"github.com/ampere-erp/ampere-erp/internal/payments"
	"github.com/ampere-erp/ampere-erp/internal/platform/cache"
	"github.com/ampere-erp/ampere-erp/internal/platform/db"
	"github.com/ampere-erp/ampere-erp/internal/quotes"
	"github.com/ampere-erp/ampere-erp/internal/settings"
	"github.com/ampere-erp/ampere-erp/internal/shared"
	"github.com/ampere-erp/ampere-erp/jobs"
	"github.com/ampere-erp/ampere-erp/report"
)

const usage = `usage: ampere <command> [flags]

commands:
  serve            run the HTTP API (default)
  migrate          apply database migrations and exit
  backup-export    write the firm backup document (-out file, "-" for stdout)
  backup-restore   replace the dataset from a backup file (-in file [-yes] [-json] [-actor id])
  jobs-trigger     enqueue a background job (-name delinquency:warmup|idempotency:cleanup)
  jobs-stats       print queue depth (-queue default|audit)
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = migrate(cfg, logger)
	case "backup-export":
		code = backupExport(ctx, cfg, logger, args)
	case "backup-restore":
		code = backupRestore(ctx, cfg, logger, args)
	case "jobs-trigger":
		code = jobsTrigger(ctx, cfg, args)
	case "jobs-stats":
		code = jobsStats(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	if cfg.MigrateOnStart {
		if code := migrate(cfg, logger); code != 0 {
			return code
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	auditSink := jobs.NewAuditDispatcher(jobClient, shared.NewAuditLogger(pool), logger, metrics.Jobs())

	services, err := app.NewServices(app.Deps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Audit:   auditSink,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		return 1
	}

	sessionManager := shared.NewSessionManager(redisClient, "ampere_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Ownership:          services.Ownership,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, services.Auth, sessionManager, csrfManager),
		ClientsHandler:     clients.NewHandler(logger, services.Clients),
		CatalogHandler:     catalog.NewHandler(logger, services.Catalog),
		EmployeesHandler:   employees.NewHandler(logger, services.Employees),
		QuotesHandler:      quotes.NewHandler(logger, services.Quotes, services.Exporter),
		PaymentsHandler:    payments.NewHandler(logger, services.Payments),
		ExpensesHandler:    expenses.NewHandler(logger, services.Expenses),
		ClosingHandler:     closinghttp.NewHandler(logger, services.Closing),
		SettingsHandler:    settings.NewHandler(logger, services.Settings),
		DelinquencyHandler: delinquency.NewHandler(logger, services.Delinquency),
		BackupHandler:      backup.NewHandler(logger, services.Backup),
		AuditHandler:       audithttp.NewHandler(logger, services.AuditLog),
		ReportHandler:      report.NewHandler(services.PDF, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(cfg *app.Config, logger *slog.Logger) int {
	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied")
	return 0
}

// offlineServices wires services for one-shot commands. Redis is optional:
// without it restores run unlocked and the report cache is left to expire.
func offlineServices(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*app.Services, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, continuing without lock and cache", slog.Any("error", err))
	} else {
		redisClient = client
	}
	services, err := app.NewServices(app.Deps{Config: cfg, Logger: logger, Pool: pool, Redis: redisClient})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		pool.Close()
	}
	return services, cleanup, nil
}

func backupExport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("backup-export", flag.ContinueOnError)
	out := fs.String("out", "", "destination file (default backup-<timestamp>.json, - for stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	services, cleanup, err := offlineServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		return 1
	}
	defer cleanup()

	backupCLI, err := cli.NewBackupCLI(services.Backup)
	if err != nil {
		logger.Error("init backup cli", slog.Any("error", err))
		return 1
	}
	if *out == "" {
		*out = backupCLI.DefaultExportName()
	}
	return backupCLI.ExportCommand(ctx, cli.BackupExportOptions{Out: *out})
}

func backupRestore(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("backup-restore", flag.ContinueOnError)
	in := fs.String("in", "", "backup file to restore")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	jsonOut := fs.Bool("json", false, "print restored counts as JSON")
	actor := fs.Int64("actor", 0, "partner id recorded as the restoring actor (default first partner)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	services, cleanup, err := offlineServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		return 1
	}
	defer cleanup()

	if *actor == 0 {
		if ids := services.Ownership.IDs(); len(ids) > 0 {
			*actor = ids[0]
		}
	}
	backupCLI, err := cli.NewBackupCLI(services.Backup)
	if err != nil {
		logger.Error("init backup cli", slog.Any("error", err))
		return 1
	}
	return backupCLI.RestoreCommand(ctx, cli.BackupRestoreOptions{
		In:         *in,
		ActorID:    *actor,
		Yes:        *yes,
		JSONOutput: *jsonOut,
	})
}

func jobsTrigger(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs-trigger", flag.ContinueOnError)
	name := fs.String("name", jobs.TaskDelinquencyWarmup, "job to enqueue")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	info, err := jobsCLI.Trigger(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return 0
}

func jobsStats(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs-stats", flag.ContinueOnError)
	queue := fs.String("queue", jobs.QueueDefault, "queue to inspect")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()
	stats, err := jobsCLI.InspectQueue(ctx, *queue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return 0
}
