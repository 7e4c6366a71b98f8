package closinghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampere-erp/ampere-erp/internal/closing"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type stubClosingService struct {
	previewFn      func(ctx context.Context) (closing.Preview, error)
	previewRangeFn func(ctx context.Context, periodType closing.PeriodType, start, end shared.Date) (closing.Preview, error)
	defaultRangeFn func(ctx context.Context, periodType closing.PeriodType) (closing.Window, error)
	createFn       func(ctx context.Context, actor shared.Actor, in closing.CreateInput) (closing.CashClosing, error)
	getFn          func(ctx context.Context, id uuid.UUID) (closing.CashClosing, error)
	listFn         func(ctx context.Context, page, perPage int) ([]closing.CashClosing, shared.Pagination, error)
}

func (s *stubClosingService) Preview(ctx context.Context) (closing.Preview, error) {
	return s.previewFn(ctx)
}

func (s *stubClosingService) PreviewRange(ctx context.Context, periodType closing.PeriodType, start, end shared.Date) (closing.Preview, error) {
	return s.previewRangeFn(ctx, periodType, start, end)
}

func (s *stubClosingService) DefaultRange(ctx context.Context, periodType closing.PeriodType) (closing.Window, error) {
	return s.defaultRangeFn(ctx, periodType)
}

func (s *stubClosingService) Create(ctx context.Context, actor shared.Actor, in closing.CreateInput) (closing.CashClosing, error) {
	return s.createFn(ctx, actor, in)
}

func (s *stubClosingService) Get(ctx context.Context, id uuid.UUID) (closing.CashClosing, error) {
	return s.getFn(ctx, id)
}

func (s *stubClosingService) List(ctx context.Context, page, perPage int) ([]closing.CashClosing, shared.Pagination, error) {
	return s.listFn(ctx, page, perPage)
}

func (s *stubClosingService) Partners() []shared.Partner {
	return shared.DefaultOwnershipGroup().Partners()
}

func newTestHandler(svc closingService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestPreviewWithoutParamsUsesLiveWindow(t *testing.T) {
	called := false
	svc := &stubClosingService{
		previewFn: func(ctx context.Context) (closing.Preview, error) {
			called = true
			return closing.Preview{QuotesCount: 3}, nil
		},
	}
	rr := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closings/preview", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
	var body closing.Preview
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 3, body.QuotesCount)
}

func TestPreviewWithRangeParsesDates(t *testing.T) {
	var gotStart, gotEnd shared.Date
	var gotType closing.PeriodType
	svc := &stubClosingService{
		previewRangeFn: func(ctx context.Context, periodType closing.PeriodType, start, end shared.Date) (closing.Preview, error) {
			gotType, gotStart, gotEnd = periodType, start, end
			return closing.Preview{}, nil
		},
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/closings/preview?periodType=quinzenal&start=2024-03-01&end=2024-03-15", nil)
	newTestHandler(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, closing.PeriodBiweekly, gotType)
	assert.Equal(t, "2024-03-01", gotStart.String())
	assert.Equal(t, "2024-03-15", gotEnd.String())
}

func TestPreviewRejectsBadDate(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/closings/preview?start=03/01/2024", nil)
	newTestHandler(&stubClosingService{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreatePassesActorAndMapsOverlap(t *testing.T) {
	var actor shared.Actor
	svc := &stubClosingService{
		createFn: func(ctx context.Context, a shared.Actor, in closing.CreateInput) (closing.CashClosing, error) {
			actor = a
			assert.Equal(t, closing.PeriodMonthly, in.PeriodType)
			return closing.CashClosing{}, closing.ErrOverlap
		},
	}
	payload := `{"periodType":"mensal","startDate":"2024-03-01","endDate":"2024-03-31","partnerProfits":[{"partnerId":1,"profit":10}]}`
	req := httptest.NewRequest(http.MethodPost, "/closings", strings.NewReader(payload))
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: 2}))
	rr := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, int64(2), actor.UserID)
}

func TestGetUnknownIDIsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(&stubClosingService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closings/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDefaultRangeValidationError(t *testing.T) {
	svc := &stubClosingService{
		defaultRangeFn: func(ctx context.Context, periodType closing.PeriodType) (closing.Window, error) {
			return closing.Window{}, httpx.ErrValidation
		},
	}
	rr := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closings/default-range?periodType=anual", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestExportStreamsWorkbook(t *testing.T) {
	pages := 0
	svc := &stubClosingService{
		listFn: func(ctx context.Context, page, perPage int) ([]closing.CashClosing, shared.Pagination, error) {
			pages++
			return []closing.CashClosing{{ID: uuid.New(), PeriodType: closing.PeriodWeekly}}, shared.NewPagination(page, perPage, 150), nil
		},
	}
	rr := httptest.NewRecorder()
	newTestHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closings/export.xlsx", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, pages)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "fechamentos-")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}
