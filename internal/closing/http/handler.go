package closinghttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/closing"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const exportLimit = 100

type closingService interface {
	Preview(ctx context.Context) (closing.Preview, error)
	PreviewRange(ctx context.Context, periodType closing.PeriodType, start, end shared.Date) (closing.Preview, error)
	DefaultRange(ctx context.Context, periodType closing.PeriodType) (closing.Window, error)
	Create(ctx context.Context, actor shared.Actor, in closing.CreateInput) (closing.CashClosing, error)
	Get(ctx context.Context, id uuid.UUID) (closing.CashClosing, error)
	List(ctx context.Context, page, perPage int) ([]closing.CashClosing, shared.Pagination, error)
	Partners() []shared.Partner
}

// Handler wires HTTP endpoints for cash closings and profit previews.
type Handler struct {
	logger  *slog.Logger
	service closingService
}

// NewHandler constructs a cash-closing HTTP handler.
func NewHandler(logger *slog.Logger, service closingService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/closings", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/preview", h.preview)
		r.Get("/default-range", h.defaultRange)
		r.Get("/export.xlsx", h.export)
		r.Get("/{id}", h.get)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	items, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, "list closings", err)
		return
	}
	if items == nil {
		items = []closing.CashClosing{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in closing.CreateInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), in)
	if err != nil {
		h.fail(w, "create closing", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periodType := closing.PeriodType(q.Get("periodType"))
	if periodType == "" && q.Get("start") == "" && q.Get("end") == "" {
		preview, err := h.service.Preview(r.Context())
		if err != nil {
			h.fail(w, "closing preview", err)
			return
		}
		httpx.JSON(w, http.StatusOK, preview)
		return
	}
	start, err := optionalDate(q.Get("start"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := optionalDate(q.Get("end"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	preview, err := h.service.PreviewRange(r.Context(), periodType, start, end)
	if err != nil {
		h.fail(w, "closing range preview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) defaultRange(w http.ResponseWriter, r *http.Request) {
	window, err := h.service.DefaultRange(r.Context(), closing.PeriodType(r.URL.Query().Get("periodType")))
	if err != nil {
		h.fail(w, "closing default range", err)
		return
	}
	httpx.JSON(w, http.StatusOK, window)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, closing.ErrNotFound)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var all []closing.CashClosing
	for page := 1; ; page++ {
		items, pagination, err := h.service.List(r.Context(), page, exportLimit)
		if err != nil {
			h.fail(w, "export closings", err)
			return
		}
		all = append(all, items...)
		if page >= pagination.TotalPages {
			break
		}
	}
	data, err := closing.ExportXLSX(all, h.service.Partners())
	if err != nil {
		h.fail(w, "render closings workbook", err)
		return
	}
	filename := fmt.Sprintf("fechamentos-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func optionalDate(raw string) (shared.Date, error) {
	if raw == "" {
		return shared.Date{}, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return shared.Date{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return d, nil
}
