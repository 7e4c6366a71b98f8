package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() QuoteDocument {
	return QuoteDocument{
		Company:     Company{Name: "Ampere Elétrica"},
		Number:      42,
		ClientName:  "Maria <Silva>",
		ClientPhone: "+5511987654321",
		Services:    []Line{{Name: "Troca de disjuntor", Quantity: 2, UnitPrice: 150}},
		Materials:   []Line{{Name: "Disjuntor 20A", Quantity: 2, UnitPrice: 35}},
		Subtotal:    370,
		Discount:    20,
		Total:       350,
		IssuedAt:    time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestFormatBRLUsesCommaDecimals(t *testing.T) {
	assert.Equal(t, "R$ 900,00", FormatBRL(900))
	assert.Equal(t, "-R$ 12,50", FormatBRL(-12.5))
}

func TestWhatsAppLinkEscapesSpaces(t *testing.T) {
	link := WhatsAppLink("5511987654321", "Olá Maria & cia")
	assert.Equal(t, "https://wa.me/5511987654321?text=Ol%C3%A1%20Maria%20%26%20cia", link)
}

func TestQuoteMessageSummarisesLines(t *testing.T) {
	msg := QuoteMessage(sampleDocument())
	assert.Contains(t, msg, "orçamento nº 42")
	assert.Contains(t, msg, "Troca de disjuntor")
	assert.Contains(t, msg, "Desconto: R$ 20,00")
	assert.Contains(t, msg, "*Total: R$ 350,00*")
}

func TestRenderQuoteHTMLEscapesClientInput(t *testing.T) {
	html, err := RenderQuoteHTML(sampleDocument())
	require.NoError(t, err)
	assert.Contains(t, html, "Orçamento nº 42")
	assert.Contains(t, html, "Maria &lt;Silva&gt;")
	assert.Contains(t, html, "05/03/2024")
	assert.Contains(t, html, "R$ 350,00")
}

func TestRenderHTMLPostsToGotenberg(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		body, _ := io.ReadAll(file)
		assert.Contains(t, string(body), "hello")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/").RenderHTML(context.Background(), "<p>hello</p>")
	require.NoError(t, err)
	assert.Equal(t, "/forms/chromium/convert/html", gotPath)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
}

func TestRenderHTMLReportsFailureBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), "<p></p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium crashed")
}
