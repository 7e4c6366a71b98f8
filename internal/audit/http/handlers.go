package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ampere-erp/ampere-erp/internal/audit"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const (
	defaultDateRange = 30 * 24 * time.Hour
	maxDateRange     = 366 * 24 * time.Hour
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-logs.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to as inclusive calendar days; the window defaults
// to the last 30 days and may not exceed a year.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	to := shared.NewDate(now)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := shared.ParseDate(v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("to")
		}
		to = parsed
	}
	from := shared.NewDate(to.Add(-defaultDateRange))
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := shared.ParseDate(v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("from")
		}
		from = parsed
	}
	if from.After(to.Time) {
		return audit.TimelineFilters{}, fmt.Errorf("%w: from must not be after to", httpx.ErrValidation)
	}
	if to.Sub(from.Time) > maxDateRange {
		return audit.TimelineFilters{}, fmt.Errorf("%w: date range may not exceed one year", httpx.ErrValidation)
	}

	var actorID int64
	if v := strings.TrimSpace(q.Get("actor")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, invalid("actor")
		}
		actorID = parsed
	}
	page, perPage := shared.PageFromRequest(r)

	return audit.TimelineFilters{
		From:     from.Time,
		To:       to.AddDays(1).Time,
		ActorID:  actorID,
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entityId")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: perPage,
	}, nil
}

func invalid(field string) error {
	return fmt.Errorf("%w: invalid %s", httpx.ErrValidation, field)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}
