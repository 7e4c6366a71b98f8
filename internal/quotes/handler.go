package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type quoteService interface {
	Create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (Quote, error)
	Get(ctx context.Context, id uuid.UUID) (Quote, error)
	List(ctx context.Context, filter ListFilter, page, perPage int) ([]Summary, shared.Pagination, error)
	Update(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateQuoteRequest) (Quote, error)
	Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error
	StartService(ctx context.Context, actor shared.Actor, id uuid.UUID, discount *ledger.Discount) (Quote, error)
	ChangeStatus(ctx context.Context, actor shared.Actor, id uuid.UUID, target Status) (Quote, error)
}

type quoteExporter interface {
	PDF(ctx context.Context, id uuid.UUID) ([]byte, Quote, error)
	WhatsApp(ctx context.Context, actor shared.Actor, id uuid.UUID) (ShareLink, error)
}

// Handler serves quote endpoints.
type Handler struct {
	logger   *slog.Logger
	service  quoteService
	exporter quoteExporter
}

// NewHandler constructs the quote handler.
func NewHandler(logger *slog.Logger, service quoteService, exporter quoteExporter) *Handler {
	return &Handler{logger: logger, service: service, exporter: exporter}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Status = status
	}
	if raw := q.Get("clientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: clientId must be a UUID", httpx.ErrValidation))
			return
		}
		filter.ClientID = id
	}
	filter.Search = q.Get("q")
	page, perPage := shared.PageFromRequest(r)
	items, pagination, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, "list quotes", err)
		return
	}
	if items == nil {
		items = []Summary{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), req)
	if err != nil {
		h.fail(w, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req UpdateQuoteRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), id, req)
	if err != nil {
		h.fail(w, "update quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromRequest(r), id); err != nil {
		h.fail(w, "delete quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(target Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := quoteID(w, r)
		if !ok {
			return
		}
		q, err := h.service.ChangeStatus(r.Context(), shared.ActorFromRequest(r), id, target)
		if err != nil {
			h.fail(w, "quote transition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req StartServiceRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	q, err := h.service.StartService(r.Context(), shared.ActorFromRequest(r), id, req.Discount)
	if err != nil {
		h.fail(w, "start service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.ChangeStatus(r.Context(), shared.ActorFromRequest(r), id, target)
	if err != nil {
		h.fail(w, "change quote status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	pdf, q, err := h.exporter.PDF(r.Context(), id)
	if err != nil {
		h.fail(w, "render quote pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"orcamento-%d.pdf\"", q.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	link, err := h.exporter.WhatsApp(r.Context(), shared.ActorFromRequest(r), id)
	if err != nil {
		h.fail(w, "share quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, link)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func quoteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
