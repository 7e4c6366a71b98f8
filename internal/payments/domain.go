package payments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// Method enumerates accepted payment methods.
type Method string

const (
	MethodCash     Method = "dinheiro"
	MethodPix      Method = "pix"
	MethodCredit   Method = "cartao_credito"
	MethodDebit    Method = "cartao_debito"
	MethodTransfer Method = "transferencia"
	MethodBoleto   Method = "boleto"
)

// Valid reports whether the method is accepted.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodPix, MethodCredit, MethodDebit, MethodTransfer, MethodBoleto:
		return true
	}
	return false
}

// Payment is an amount received against a quote.
type Payment struct {
	ID            uuid.UUID   `json:"id"`
	QuoteID       uuid.UUID   `json:"quoteId"`
	QuoteNumber   int64       `json:"quoteNumber,omitempty"`
	ClientName    string      `json:"clientName,omitempty"`
	OwnerID       int64       `json:"ownerId"`
	Amount        float64     `json:"amount"`
	PaymentDate   shared.Date `json:"paymentDate"`
	PaymentMethod Method      `json:"paymentMethod"`
	Observations  *string     `json:"observations,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// QuoteBalance is the locked view of a quote used for reconciliation.
type QuoteBalance struct {
	ID     uuid.UUID
	Number int64
	Total  float64
}

// CreateRequest is the payment create payload.
type CreateRequest struct {
	QuoteID       uuid.UUID   `json:"quoteId" validate:"required"`
	Amount        float64     `json:"amount" validate:"gt=0"`
	PaymentDate   shared.Date `json:"paymentDate" validate:"required"`
	PaymentMethod Method      `json:"paymentMethod" validate:"required,oneof=dinheiro pix cartao_credito cartao_debito transferencia boleto"`
	Observations  *string     `json:"observations,omitempty" validate:"omitempty,max=2000"`
}

// UpdateRequest replaces the editable payment fields.
type UpdateRequest struct {
	Amount        float64     `json:"amount" validate:"gt=0"`
	PaymentDate   shared.Date `json:"paymentDate" validate:"required"`
	PaymentMethod Method      `json:"paymentMethod" validate:"required,oneof=dinheiro pix cartao_credito cartao_debito transferencia boleto"`
	Observations  *string     `json:"observations,omitempty" validate:"omitempty,max=2000"`
}

// ListFilter narrows payment listings.
type ListFilter struct {
	QuoteID uuid.UUID
	Method  Method
	From    shared.Date
	To      shared.Date
}

// OverpaymentError reports a payment that would push the paid sum past the
// quote total.
type OverpaymentError struct {
	Total     float64
	Paid      float64
	Remaining float64
	Amount    float64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %.2f exceeds the remaining balance of %.2f (total %.2f, already paid %.2f)",
		e.Amount, e.Remaining, e.Total, e.Paid)
}

// Unwrap maps the error to a validation failure.
func (e *OverpaymentError) Unwrap() error {
	return httpx.ErrValidation
}

var (
	// ErrNotFound indicates the payment does not exist within the firm.
	ErrNotFound = fmt.Errorf("payment not found: %w", httpx.ErrNotFound)
	// ErrQuoteNotFound indicates the referenced quote does not exist within the firm.
	ErrQuoteNotFound = fmt.Errorf("quote not found: %w", httpx.ErrNotFound)
	// ErrDuplicateRequest indicates a replayed idempotency key.
	ErrDuplicateRequest = fmt.Errorf("payment request already processed: %w", httpx.ErrConflict)
)
