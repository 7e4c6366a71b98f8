package backup

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

func TestParseDocumentFormatGuards(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"clients": [`,
		"missing quotes":  `{"clients": []}`,
		"clients null":    `{"clients": null, "quotes": []}`,
		"quotes object":   `{"clients": [], "quotes": {}}`,
		"top level array": `[]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat))
			assert.True(t, errors.Is(err, httpx.ErrValidation))
		})
	}
}

func TestParseDocumentRejectsEmptyBackup(t *testing.T) {
	_, err := ParseDocument([]byte(`{"clients": [], "quotes": [], "payments": []}`))
	require.ErrorIs(t, err, ErrEmptyBackup)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestParseDocumentCoercesNumbersAndDates(t *testing.T) {
	raw := `{
		"clients": [{"id": "8a4f2c8e-5b1d-4c7a-9f43-0c6c7f2e1a11", "ownerId": 1, "name": "Ana", "createdAt": "2024-03-01T10:00:00"}],
		"quotes": [{
			"id": "0d6b6a7e-9a53-4a4c-8f33-2d2a8b1c9e01",
			"number": 12,
			"clientId": "8a4f2c8e-5b1d-4c7a-9f43-0c6c7f2e1a11",
			"subtotal": "1200.50",
			"discount": 0,
			"total": "1200.5",
			"status": "approved",
			"serviceCompletedAt": "2024-03-10",
			"createdAt": "2024-03-02T08:30:00Z",
			"services": [{"name": "Quadro", "quantity": "2", "unitPrice": 600.25}],
			"materials": []
		}],
		"payments": [{"quoteId": "0d6b6a7e-9a53-4a4c-8f33-2d2a8b1c9e01", "amount": "300", "paymentDate": "2024-03-11T00:00:00.000Z", "paymentMethod": "pix"}],
		"cashClosings": [{"periodType": "mensal", "startDate": "2024-03-01", "endDate": "2024-03-31", "totalProfit": "900", "gustavoProfit": "405", "giovanniProfit": 405}]
	}`
	doc, err := ParseDocument([]byte(raw))
	require.NoError(t, err)

	require.Len(t, doc.Quotes, 1)
	q := doc.Quotes[0]
	assert.Equal(t, 1200.5, q.Total.Float())
	assert.Equal(t, 2.0, q.Services[0].Quantity.Float())
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), q.ServiceCompletedAt.Time)
	assert.Nil(t, q.ServiceStartedAt.Ptr())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), doc.Clients[0].CreatedAt.Time)

	require.Len(t, doc.Payments, 1)
	assert.Equal(t, 300.0, doc.Payments[0].Amount.Float())
	assert.Equal(t, "2024-03-11", doc.Payments[0].PaymentDate.String())

	require.Len(t, doc.CashClosings, 1)
	require.NotNil(t, doc.CashClosings[0].GustavoProfit)
	assert.Equal(t, 405.0, doc.CashClosings[0].GustavoProfit.Float())
}

func TestFlexFloatRejectsText(t *testing.T) {
	var f FlexFloat
	assert.Error(t, json.Unmarshal([]byte(`"doze"`), &f))
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.Zero(t, f.Float())
}

func TestFlexFloatRejectsNonFiniteValues(t *testing.T) {
	for _, raw := range []string{`"NaN"`, `"nan"`, `"Inf"`, `"-Inf"`, `"Infinity"`, `"+infinity"`, `"1e400"`} {
		var f FlexFloat
		assert.Error(t, json.Unmarshal([]byte(raw), &f), raw)
	}
}

func TestParseDocumentRejectsNaNPaymentAmount(t *testing.T) {
	raw := `{
		"clients": [{"id": "8a4f2c8e-5b1d-4c7a-9f43-0c6c7f2e1a11", "ownerId": 1, "name": "Ana"}],
		"quotes": [],
		"payments": [{"quoteId": "0d6b6a7e-9a53-4a4c-8f33-2d2a8b1c9e01", "amount": "NaN", "paymentDate": "2024-03-11"}]
	}`
	_, err := ParseDocument([]byte(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestTimestampMarshalsRFC3339(t *testing.T) {
	ts := Timestamp{time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-05-01T12:00:00Z"`, string(data))

	data, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
