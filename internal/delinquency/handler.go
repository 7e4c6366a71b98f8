package delinquency

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

type reportService interface {
	Report(ctx context.Context, sortKey SortKey) (Report, error)
}

// Handler serves the delinquency report.
type Handler struct {
	logger  *slog.Logger
	service reportService
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service reportService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/delinquency", h.show)
	r.Get("/delinquency/export.xlsx", h.export)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	data, err := ExportXLSX(report)
	if err != nil {
		h.logger.Error("export delinquency report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"inadimplencia-%s.xlsx\"", report.GeneratedAt.Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Report, bool) {
	sortKey, err := ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		httpx.RespondError(w, err)
		return Report{}, false
	}
	report, err := h.service.Report(r.Context(), sortKey)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("delinquency report", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return Report{}, false
	}
	return report, true
}
