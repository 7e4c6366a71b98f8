package settings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type settingsService interface {
	Get(ctx context.Context) (CompanySettings, error)
	Update(ctx context.Context, actor shared.Actor, req UpdateRequest) (CompanySettings, error)
}

// Handler exposes the company settings endpoints.
type Handler struct {
	logger  *slog.Logger
	service settingsService
}

// NewHandler constructs the settings handler.
func NewHandler(logger *slog.Logger, service settingsService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Put("/settings", h.update)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("load settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.Update(r.Context(), shared.ActorFromRequest(r), req)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("update settings", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}
