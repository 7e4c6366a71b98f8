package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/settings"
	"github.com/ampere-erp/ampere-erp/internal/shared"
	"github.com/ampere-erp/ampere-erp/report"
)

// CompanyProfile supplies the letterhead.
type CompanyProfile interface {
	Get(ctx context.Context) (settings.CompanySettings, error)
}

// PDFRenderer converts HTML to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ShareLink is the outcome of a WhatsApp share.
type ShareLink struct {
	URL   string `json:"url"`
	Quote Quote  `json:"quote"`
}

// Exporter renders quotes as PDF documents and WhatsApp messages.
type Exporter struct {
	quotes   *Service
	company  CompanyProfile
	renderer PDFRenderer
	region   string
}

// NewExporter constructs an Exporter.
func NewExporter(quotes *Service, company CompanyProfile, renderer PDFRenderer, phoneRegion string) *Exporter {
	return &Exporter{quotes: quotes, company: company, renderer: renderer, region: phoneRegion}
}

func (e *Exporter) document(ctx context.Context, q Quote) (report.QuoteDocument, error) {
	profile, err := e.company.Get(ctx)
	if err != nil {
		return report.QuoteDocument{}, err
	}
	doc := report.QuoteDocument{
		Company: report.Company{
			Name:    profile.Name,
			Phone:   profile.Phone,
			Email:   profile.Email,
			Address: profile.Address,
		},
		Number:      q.Number,
		ClientName:  q.ClientName,
		ClientPhone: q.ClientPhone,
		Services:    reportLines(q.Services),
		Materials:   reportLines(q.Materials),
		Subtotal:    q.Subtotal,
		Discount:    q.Discount,
		Total:       q.Total,
		IssuedAt:    q.CreatedAt,
	}
	if profile.Logo != nil {
		doc.Company.Logo = *profile.Logo
	}
	if profile.CNPJ != nil {
		doc.Company.CNPJ = *profile.CNPJ
	}
	if profile.Website != nil {
		doc.Company.Website = *profile.Website
	}
	if profile.AdditionalInfo != nil {
		doc.Company.AdditionalInfo = *profile.AdditionalInfo
	}
	if q.Observations != nil {
		doc.Observations = *q.Observations
	}
	if doc.IssuedAt.IsZero() {
		doc.IssuedAt = time.Now()
	}
	return doc, nil
}

func reportLines(items []LineItem) []report.Line {
	out := make([]report.Line, 0, len(items))
	for _, item := range items {
		out = append(out, report.Line{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return out
}

// PDF renders the quote through the PDF renderer.
func (e *Exporter) PDF(ctx context.Context, id uuid.UUID) ([]byte, Quote, error) {
	q, err := e.quotes.Get(ctx, id)
	if err != nil {
		return nil, Quote{}, err
	}
	doc, err := e.document(ctx, q)
	if err != nil {
		return nil, Quote{}, err
	}
	html, err := report.RenderQuoteHTML(doc)
	if err != nil {
		return nil, Quote{}, err
	}
	pdf, err := e.renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, Quote{}, fmt.Errorf("quotes: render pdf: %w", err)
	}
	return pdf, q, nil
}

// WhatsApp builds the share link and, once built, moves a draft to sent.
func (e *Exporter) WhatsApp(ctx context.Context, actor shared.Actor, id uuid.UUID) (ShareLink, error) {
	q, err := e.quotes.Get(ctx, id)
	if err != nil {
		return ShareLink{}, err
	}
	digits, err := shared.PhoneDigits(q.ClientPhone, e.region)
	if err != nil {
		return ShareLink{}, fmt.Errorf("%w: client has no valid phone number", httpx.ErrValidation)
	}
	doc, err := e.document(ctx, q)
	if err != nil {
		return ShareLink{}, err
	}
	link := report.WhatsAppLink(digits, report.QuoteMessage(doc))
	updated, err := e.quotes.MarkSent(ctx, actor, id)
	if err != nil {
		return ShareLink{}, err
	}
	return ShareLink{URL: link, Quote: updated}, nil
}
