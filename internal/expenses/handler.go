package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type expenseService interface {
	Categories() []string
	Create(ctx context.Context, actor shared.Actor, form ExpenseForm) (Expense, error)
	Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form ExpenseForm) (Expense, error)
	Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (Expense, error)
	List(ctx context.Context, filter ListFilter, page, perPage int) ([]Expense, shared.Pagination, error)
	Summarize(ctx context.Context, from, to shared.Date) (Summary, error)
}

// Handler serves expense endpoints.
type Handler struct {
	logger  *slog.Logger
	service expenseService
}

// NewHandler constructs the expense handler.
func NewHandler(logger *slog.Logger, service expenseService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/categories", h.categories)
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.show)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"data": h.service.Categories()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Category: q.Get("category")}
	if raw := q.Get("employeeId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: employeeId must be a UUID", httpx.ErrValidation))
			return
		}
		filter.EmployeeID = id
	}
	var err error
	if filter.From, err = dateParam(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = dateParam(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageFromRequest(r)
	items, pagination, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, "list expenses", err)
		return
	}
	if items == nil {
		items = []Expense{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.Summarize(r.Context(), from, to)
	if err != nil {
		h.fail(w, "summarize expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form ExpenseForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), form)
	if err != nil {
		h.fail(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	var form ExpenseForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), id, form)
	if err != nil {
		h.fail(w, "update expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromRequest(r), id); err != nil {
		h.fail(w, "delete expense", err)
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

func dateParam(r *http.Request, key string) (shared.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return shared.Date{}, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return shared.Date{}, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, key, err)
	}
	return d, nil
}

func expenseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
