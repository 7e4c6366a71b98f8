package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const (
	// ConfirmHeader must carry ConfirmValue for a restore request to proceed.
	ConfirmHeader  = "X-Confirm-Restore"
	ConfirmValue   = "restore"
	maxBackupBytes = 64 << 20
)

type backupService interface {
	Export(ctx context.Context) (Document, error)
	RestoreJSON(ctx context.Context, actor shared.Actor, raw []byte) (Counts, error)
}

// Handler serves backup export and restore.
type Handler struct {
	logger  *slog.Logger
	service backupService
}

// NewHandler constructs the backup handler.
func NewHandler(logger *slog.Logger, service backupService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers backup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/backup", func(r chi.Router) {
		r.Get("/export", h.export)
		r.Post("/restore", h.restore)
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Export(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	filename := fmt.Sprintf("backup-%s.json", doc.ExportedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(ConfirmHeader) != ConfirmValue {
		httpx.RespondError(w, fmt.Errorf("%w: restore replaces all data; send %s: %s to confirm", httpx.ErrValidation, ConfirmHeader, ConfirmValue))
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, fmt.Errorf("%w: backup exceeds %d bytes", httpx.ErrValidation, tooLarge.Limit))
			return
		}
		h.fail(w, err)
		return
	}
	if !json.Valid(raw) {
		httpx.RespondError(w, ErrInvalidFormat)
		return
	}
	counts, err := h.service.RestoreJSON(r.Context(), shared.ActorFromRequest(r), raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restored": counts})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("backup request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
