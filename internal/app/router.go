package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

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
	"github.com/ampere-erp/ampere-erp/internal/quotes"
	"github.com/ampere-erp/ampere-erp/internal/settings"
	"github.com/ampere-erp/ampere-erp/internal/shared"
	"github.com/ampere-erp/ampere-erp/jobs"
	"github.com/ampere-erp/ampere-erp/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Ownership      shared.OwnershipGroup
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	ClientsHandler     *clients.Handler
	CatalogHandler     *catalog.Handler
	EmployeesHandler   *employees.Handler
	QuotesHandler      *quotes.Handler
	PaymentsHandler    *payments.Handler
	ExpensesHandler    *expenses.Handler
	ClosingHandler     *closinghttp.Handler
	SettingsHandler    *settings.Handler
	DelinquencyHandler *delinquency.Handler
	BackupHandler      *backup.Handler
	AuditHandler       *audithttp.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Ampere defaults. Everything outside
// /auth, /healthz and /metrics requires a partner session.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(params.Ownership))
		if params.AuthHandler != nil {
			params.AuthHandler.MountProtected(r)
		}
		if params.ClientsHandler != nil {
			params.ClientsHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.EmployeesHandler != nil {
			params.EmployeesHandler.MountRoutes(r)
		}
		if params.QuotesHandler != nil {
			params.QuotesHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.ExpensesHandler != nil {
			params.ExpensesHandler.MountRoutes(r)
		}
		if params.ClosingHandler != nil {
			params.ClosingHandler.MountRoutes(r)
		}
		if params.SettingsHandler != nil {
			params.SettingsHandler.MountRoutes(r)
		}
		if params.DelinquencyHandler != nil {
			params.DelinquencyHandler.MountRoutes(r)
		}
		if params.BackupHandler != nil {
			params.BackupHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
