package catalog

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

type catalogService interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	Create(ctx context.Context, actor shared.Actor, form ItemForm) (Item, error)
	Update(ctx context.Context, actor shared.Actor, id uuid.UUID, form ItemForm) (Item, error)
	Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error
}

type Handler struct {
	logger  *slog.Logger
	service catalogService
}

func NewHandler(logger *slog.Logger, service catalogService) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/services", h.listKind(KindService))
		r.Get("/materials", h.listKind(KindMaterial))
		r.Get("/{id}", h.Show)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, mdshared.FiltersFromRequest(r))
}

// listKind serves the active entries of one kind, as used by the quote editor pickers.
func (h *Handler) listKind(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := mdshared.FiltersFromRequest(r)
		filters.Kind = string(kind)
		if filters.IsActive == nil {
			active := true
			filters.IsActive = &active
		}
		h.respondList(w, r, filters)
	}
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, filters mdshared.ListFilters) {
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list catalog items failed", err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get catalog item failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form ItemForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), shared.ActorFromRequest(r), form)
	if err != nil {
		h.fail(w, "create catalog item failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var form ItemForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), id, form)
	if err != nil {
		h.fail(w, "update catalog item failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.ActorFromRequest(r), id); err != nil {
		h.fail(w, "delete catalog item failed", err)
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

func itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
