package payments

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// IdempotencyHeader carries the client-generated key for payment creation.
const IdempotencyHeader = "Idempotency-Key"

type paymentService interface {
	Create(ctx context.Context, actor shared.Actor, idempotencyKey string, req CreateRequest) (Payment, error)
	Update(ctx context.Context, actor shared.Actor, id uuid.UUID, req UpdateRequest) (Payment, error)
	Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (Payment, error)
	List(ctx context.Context, filter ListFilter, page, perPage int) ([]Payment, shared.Pagination, error)
}

// Handler serves payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service paymentService
}

// NewHandler constructs the payment handler.
func NewHandler(logger *slog.Logger, service paymentService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Put("/{id}", h.update)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("quoteId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: quoteId must be a UUID", httpx.ErrValidation))
			return
		}
		filter.QuoteID = id
	}
	filter.Method = Method(q.Get("method"))
	for key, dst := range map[string]*shared.Date{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		d, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, key, err))
			return
		}
		*dst = d
	}
	h.respondList(w, r, filter)
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, filter ListFilter) {
	page, perPage := shared.PageFromRequest(r)
	items, pagination, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	if items == nil {
		items = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	p, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), key, req)
	if err != nil {
		h.fail(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), id, req)
	if err != nil {
		h.fail(w, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromRequest(r), id); err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func paymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
