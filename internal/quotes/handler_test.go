package quotes

import (
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

	"github.com/ampere-erp/ampere-erp/internal/ledger"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type stubQuoteService struct {
	quoteService
	startFn  func(ctx context.Context, actor shared.Actor, id uuid.UUID, discount *ledger.Discount) (Quote, error)
	statusFn func(ctx context.Context, actor shared.Actor, id uuid.UUID, target Status) (Quote, error)
	listFn   func(ctx context.Context, filter ListFilter, page, perPage int) ([]Summary, shared.Pagination, error)
}

func (s *stubQuoteService) StartService(ctx context.Context, actor shared.Actor, id uuid.UUID, discount *ledger.Discount) (Quote, error) {
	return s.startFn(ctx, actor, id, discount)
}

func (s *stubQuoteService) ChangeStatus(ctx context.Context, actor shared.Actor, id uuid.UUID, target Status) (Quote, error) {
	return s.statusFn(ctx, actor, id, target)
}

func (s *stubQuoteService) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Summary, shared.Pagination, error) {
	return s.listFn(ctx, filter, page, perPage)
}

type stubExporter struct {
	pdfFn      func(ctx context.Context, id uuid.UUID) ([]byte, Quote, error)
	whatsappFn func(ctx context.Context, actor shared.Actor, id uuid.UUID) (ShareLink, error)
}

func (s *stubExporter) PDF(ctx context.Context, id uuid.UUID) ([]byte, Quote, error) {
	return s.pdfFn(ctx, id)
}

func (s *stubExporter) WhatsApp(ctx context.Context, actor shared.Actor, id uuid.UUID) (ShareLink, error) {
	return s.whatsappFn(ctx, actor, id)
}

func newRouter(svc quoteService, exp quoteExporter) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, exp)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestStartDecodesOptionalDiscount(t *testing.T) {
	id := uuid.New()
	var got *ledger.Discount
	svc := &stubQuoteService{startFn: func(ctx context.Context, actor shared.Actor, qid uuid.UUID, d *ledger.Discount) (Quote, error) {
		assert.Equal(t, id, qid)
		got = d
		return Quote{ID: qid, Status: StatusInProgress, Total: 900}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/quotes/"+id.String()+"/start", strings.NewReader(`{"discount":{"type":"percentage","value":10}}`))
	rr := httptest.NewRecorder()
	newRouter(svc, &stubExporter{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, ledger.DiscountPercentage, got.Kind)
	assert.Equal(t, 10.0, got.Value)

	got = &ledger.Discount{}
	rr = httptest.NewRecorder()
	newRouter(svc, &stubExporter{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/quotes/"+id.String()+"/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, got)
}

func TestChangeStatusRejectsUnknownValue(t *testing.T) {
	svc := &stubQuoteService{statusFn: func(context.Context, shared.Actor, uuid.UUID, Status) (Quote, error) {
		t.Fatal("service must not be called")
		return Quote{}, nil
	}}
	req := httptest.NewRequest(http.MethodPatch, "/quotes/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"archived"}`))
	rr := httptest.NewRecorder()
	newRouter(svc, &stubExporter{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestChangeStatusConflictOnInvalidTransition(t *testing.T) {
	svc := &stubQuoteService{statusFn: func(context.Context, shared.Actor, uuid.UUID, Status) (Quote, error) {
		return Quote{}, &TransitionError{From: StatusCompleted, Action: ActionStart}
	}}
	req := httptest.NewRequest(http.MethodPatch, "/quotes/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"in_progress"}`))
	rr := httptest.NewRecorder()
	newRouter(svc, &stubExporter{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestListParsesFilters(t *testing.T) {
	clientID := uuid.New()
	svc := &stubQuoteService{listFn: func(ctx context.Context, filter ListFilter, page, perPage int) ([]Summary, shared.Pagination, error) {
		assert.Equal(t, StatusApproved, filter.Status)
		assert.Equal(t, clientID, filter.ClientID)
		assert.Equal(t, 2, page)
		return nil, shared.NewPagination(page, perPage, 0), nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/quotes?status=approved&clientId="+clientID.String()+"&page=2", nil)
	rr := httptest.NewRecorder()
	newRouter(svc, &stubExporter{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []Summary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.NotNil(t, body.Data)
}

func TestPDFStreamsDocument(t *testing.T) {
	exp := &stubExporter{pdfFn: func(ctx context.Context, id uuid.UUID) ([]byte, Quote, error) {
		return []byte("%PDF-1.7"), Quote{Number: 12}, nil
	}}
	rr := httptest.NewRecorder()
	newRouter(&stubQuoteService{}, exp).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotes/"+uuid.NewString()+"/pdf", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "orcamento-12.pdf")
}

func TestWhatsAppReturnsLink(t *testing.T) {
	exp := &stubExporter{whatsappFn: func(ctx context.Context, actor shared.Actor, id uuid.UUID) (ShareLink, error) {
		assert.Equal(t, int64(2), actor.UserID)
		return ShareLink{URL: "https://wa.me/5511987654321?text=x", Quote: Quote{Status: StatusSent}}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/quotes/"+uuid.NewString()+"/whatsapp", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: 2}))
	rr := httptest.NewRecorder()
	newRouter(&stubQuoteService{}, exp).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var link ShareLink
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&link))
	assert.Equal(t, StatusSent, link.Quote.Status)
}
