package employees

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mdshared "github.com/ampere-erp/ampere-erp/internal/masterdata/shared"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type employeeService interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Employee, int, error)
	Get(ctx context.Context, id uuid.UUID) (Employee, error)
	Create(ctx context.Context, actor shared.Actor, form EmployeeForm) (Employee, error)
	Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form EmployeeForm) (Employee, error)
	Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error
}

type Handler struct {
	logger  *slog.Logger
	service employeeService
}

func NewHandler(logger *slog.Logger, service employeeService) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Show)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := mdshared.FiltersFromRequest(r)
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list employees failed", err)
		return
	}
	if items == nil {
		items = []Employee{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get employee failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form EmployeeForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), form)
	if err != nil {
		h.fail(w, "create employee failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	var form EmployeeForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), id, form)
	if err != nil {
		h.fail(w, "update employee failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromRequest(r), id); err != nil {
		h.fail(w, "delete employee failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(msg, "error", err)
	}
	httpx.RespondError(w, err)
}

func employeeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
