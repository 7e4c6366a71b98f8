package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var quoteTemplate = template.Must(template.New("quote.html").Funcs(template.FuncMap{
	"brl":      FormatBRL,
	"qty":      FormatQuantity,
	"date":     func(t time.Time) string { return t.Format("02/01/2006") },
	"safeURL":  func(s string) template.URL { return template.URL(s) },
	"multiply": func(a, b float64) float64 { return a * b },
}).ParseFS(templateFS, "templates/quote.html"))

// Company is the letterhead printed on documents.
type Company struct {
	Name           string
	Logo           string
	Phone          string
	Email          string
	Address        string
	CNPJ           string
	Website        string
	AdditionalInfo string
}

// Line is a printed quote line.
type Line struct {
	Name      string
	Quantity  float64
	UnitPrice float64
}

// QuoteDocument carries everything printed on a quote.
type QuoteDocument struct {
	Company      Company
	Number       int64
	ClientName   string
	ClientPhone  string
	Services     []Line
	Materials    []Line
	Subtotal     float64
	Discount     float64
	Total        float64
	Observations string
	IssuedAt     time.Time
}

// RenderQuoteHTML renders the printable quote page.
func RenderQuoteHTML(doc QuoteDocument) (string, error) {
	var buf bytes.Buffer
	if err := quoteTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("report: render quote: %w", err)
	}
	return buf.String(), nil
}

// QuoteMessage is the text shared with the client over WhatsApp.
func QuoteMessage(doc QuoteDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Olá %s! Segue o orçamento nº %d", doc.ClientName, doc.Number)
	if doc.Company.Name != "" {
		fmt.Fprintf(&b, " da %s", doc.Company.Name)
	}
	b.WriteString(".\n")
	writeLines(&b, "Serviços", doc.Services)
	writeLines(&b, "Materiais", doc.Materials)
	if doc.Discount > 0 {
		fmt.Fprintf(&b, "\nSubtotal: %s\nDesconto: %s", FormatBRL(doc.Subtotal), FormatBRL(doc.Discount))
	}
	fmt.Fprintf(&b, "\n*Total: %s*", FormatBRL(doc.Total))
	if doc.Observations != "" {
		fmt.Fprintf(&b, "\n\nObs.: %s", doc.Observations)
	}
	return b.String()
}

func writeLines(b *strings.Builder, title string, lines []Line) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, l := range lines {
		fmt.Fprintf(b, "• %s (%s × %s)\n", l.Name, FormatQuantity(l.Quantity), FormatBRL(l.UnitPrice))
	}
}
