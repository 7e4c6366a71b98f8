// Package backup exports the firm's dataset as a portable JSON document and
// restores it destructively.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

var (
	// ErrInvalidFormat is returned when clients or quotes are missing or not arrays.
	ErrInvalidFormat = fmt.Errorf("backup: unrecognised document format: %w", httpx.ErrValidation)
	// ErrEmptyBackup guards against wiping the dataset with a degenerate file.
	ErrEmptyBackup = fmt.Errorf("backup: document has no clients and no quotes: %w", httpx.ErrValidation)
)

// FlexFloat decodes JSON numbers, numeric strings and null. Only finite
// values are accepted.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("not a number: %q", raw)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the value as float64.
func (f FlexFloat) Float() float64 { return float64(f) }

// Timestamp decodes RFC3339, zone-less and date-only strings.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := shared.ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = Timestamp{parsed.UTC()}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Ptr returns nil for the zero timestamp.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// OrNow returns the timestamp or now when unset.
func (t Timestamp) OrNow(now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.Time
}

// Client is a backed-up client.
type Client struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// LineItem is a quote service or material row.
type LineItem struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Quantity  FlexFloat `json:"quantity"`
	UnitPrice FlexFloat `json:"unitPrice"`
}

// Quote is a backed-up quote with its line items inlined.
type Quote struct {
	ID                 uuid.UUID  `json:"id"`
	Number             int64      `json:"number"`
	OwnerID            int64      `json:"ownerId"`
	ClientID           uuid.UUID  `json:"clientId"`
	Subtotal           FlexFloat  `json:"subtotal"`
	Discount           FlexFloat  `json:"discount"`
	Total              FlexFloat  `json:"total"`
	Observations       *string    `json:"observations,omitempty"`
	Status             string     `json:"status"`
	ServiceStartedAt   Timestamp  `json:"serviceStartedAt"`
	ServiceCompletedAt Timestamp  `json:"serviceCompletedAt"`
	CreatedAt          Timestamp  `json:"createdAt"`
	UpdatedAt          Timestamp  `json:"updatedAt"`
	Services           []LineItem `json:"services"`
	Materials          []LineItem `json:"materials"`
}

// Payment is a backed-up payment.
type Payment struct {
	ID            uuid.UUID   `json:"id"`
	QuoteID       uuid.UUID   `json:"quoteId"`
	OwnerID       int64       `json:"ownerId"`
	Amount        FlexFloat   `json:"amount"`
	PaymentDate   shared.Date `json:"paymentDate"`
	PaymentMethod string      `json:"paymentMethod"`
	Observations  *string     `json:"observations,omitempty"`
	CreatedAt     Timestamp   `json:"createdAt"`
	UpdatedAt     Timestamp   `json:"updatedAt"`
}

// Expense is a backed-up expense.
type Expense struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     int64       `json:"ownerId"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Amount      FlexFloat   `json:"amount"`
	Date        shared.Date `json:"date"`
	EmployeeID  *uuid.UUID  `json:"employeeId,omitempty"`
	CreatedAt   Timestamp   `json:"createdAt"`
	UpdatedAt   Timestamp   `json:"updatedAt"`
}

// Employee is a backed-up employee.
type Employee struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      int64        `json:"ownerId"`
	Name         string       `json:"name"`
	CPF          *string      `json:"cpf,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Email        *string      `json:"email,omitempty"`
	Position     *string      `json:"position,omitempty"`
	HireDate     *shared.Date `json:"hireDate,omitempty"`
	Observations *string      `json:"observations,omitempty"`
	Active       *bool        `json:"active,omitempty"`
	CreatedAt    Timestamp    `json:"createdAt"`
	UpdatedAt    Timestamp    `json:"updatedAt"`
}

// CatalogItem is a backed-up catalog entry of either kind.
type CatalogItem struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	Kind        string    `json:"kind,omitempty"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	UnitPrice   FlexFloat `json:"unitPrice"`
	Unit        string    `json:"unit,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// CompanySettings is a backed-up settings row.
type CompanySettings struct {
	OwnerID               int64     `json:"ownerId"`
	Name                  string    `json:"name"`
	Logo                  *string   `json:"logo,omitempty"`
	Phone                 string    `json:"phone"`
	Email                 string    `json:"email"`
	Address               string    `json:"address"`
	CNPJ                  *string   `json:"cnpj,omitempty"`
	Website               *string   `json:"website,omitempty"`
	AdditionalInfo        *string   `json:"additionalInfo,omitempty"`
	CompanyCashPercentage FlexFloat `json:"companyCashPercentage"`
	UpdatedAt             Timestamp `json:"updatedAt"`
}

// PartnerProfit is one partner's share of a closing.
type PartnerProfit struct {
	PartnerID int64     `json:"partnerId"`
	Profit    FlexFloat `json:"profit"`
}

// CashClosing is a backed-up closing. GustavoProfit and GiovanniProfit are
// read from documents written before per-partner shares existed.
type CashClosing struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        int64           `json:"ownerId"`
	PeriodType     string          `json:"periodType"`
	StartDate      shared.Date     `json:"startDate"`
	EndDate        shared.Date     `json:"endDate"`
	TotalProfit    FlexFloat       `json:"totalProfit"`
	CompanyCash    FlexFloat       `json:"companyCash"`
	TotalRevenue   FlexFloat       `json:"totalRevenue"`
	TotalExpenses  FlexFloat       `json:"totalExpenses"`
	PartnerProfits []PartnerProfit `json:"partnerProfits"`
	GustavoProfit  *FlexFloat      `json:"gustavoProfit,omitempty"`
	GiovanniProfit *FlexFloat      `json:"giovanniProfit,omitempty"`
	Observations   *string         `json:"observations,omitempty"`
	CreatedAt      Timestamp       `json:"createdAt"`
}

// Document is the full backup payload.
type Document struct {
	Clients         []Client          `json:"clients"`
	Quotes          []Quote           `json:"quotes"`
	Payments        []Payment         `json:"payments"`
	Expenses        []Expense         `json:"expenses"`
	Employees       []Employee        `json:"employees"`
	Services        []CatalogItem     `json:"services"`
	CompanySettings []CompanySettings `json:"companySettings"`
	CashClosings    []CashClosing     `json:"cashClosings"`
	ExportedAt      Timestamp         `json:"exportedAt"`
}

// ClientIDs lists the ids of the document's clients.
func (d Document) ClientIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Clients))
	for _, c := range d.Clients {
		ids = append(ids, c.ID)
	}
	return ids
}

// ParseDocument decodes a backup and applies the format and empty guards.
func ParseDocument(data []byte) (Document, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return Document{}, ErrInvalidFormat
	}
	for _, field := range []string{"clients", "quotes"} {
		raw, ok := shape[field]
		if !ok || !isArray(raw) {
			return Document{}, ErrInvalidFormat
		}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := doc.CheckNotEmpty(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// CheckNotEmpty rejects documents without clients and quotes.
func (d Document) CheckNotEmpty() error {
	if len(d.Clients) == 0 && len(d.Quotes) == 0 {
		return ErrEmptyBackup
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// Counts reports restored rows per category.
type Counts struct {
	Clients         int64 `json:"clients"`
	Quotes          int64 `json:"quotes"`
	ServiceItems    int64 `json:"serviceItems"`
	MaterialItems   int64 `json:"materialItems"`
	Payments        int64 `json:"payments"`
	Employees       int64 `json:"employees"`
	Services        int64 `json:"services"`
	CompanySettings int64 `json:"companySettings"`
	Expenses        int64 `json:"expenses"`
	CashClosings    int64 `json:"cashClosings"`
}
