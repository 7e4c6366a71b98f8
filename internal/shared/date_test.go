package shared

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateLayouts(t *testing.T) {
	for _, raw := range []string{
		"2024-03-05",
		"2024-03-05T10:00:00Z",
		"2024-03-05T23:30:00-03:00",
		"2024-03-05T08:15:00",
		"2024-03-05 08:15:00",
		" 2024-03-05 ",
	} {
		d, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "2024-03-05", d.String(), raw)
	}
	_, err := ParseDate("05/03/2024")
	require.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Due  Date `json:"due"`
		Paid Date `json:"paid"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-01-31T12:00:00Z","paid":null}`), &payload))
	assert.Equal(t, "2024-01-31", payload.Due.String())
	assert.True(t, payload.Paid.IsZero())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-01-31","paid":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"due":42}`), &payload))
}

func TestTodayUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	now := time.Date(2024, 3, 6, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-05", Today(now, loc).String())
	assert.Equal(t, "2024-03-06", Today(now, nil).String())
	assert.Equal(t, "2024-03-08", Today(now, nil).AddDays(2).String())
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(11) 98765-4321", "BR")
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", got)

	digits, err := PhoneDigits("+55 11 98765-4321", "BR")
	require.NoError(t, err)
	assert.Equal(t, "5511987654321", digits)

	empty, err := NormalizePhone("  ", "BR")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = NormalizePhone("123", "BR")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	_, err = PhoneDigits("", "BR")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 0, 45)
	assert.Equal(t, Pagination{Page: 3, PerPage: 20, Total: 45, TotalPages: 3}, p)
	assert.Equal(t, 40, p.Offset())

	page, perPage := PageFromRequest(httptest.NewRequest("GET", "/?page=-1&perPage=500", nil))
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, perPage)
}

func TestAuditEntryValidation(t *testing.T) {
	entry := NewAuditEntry(Actor{UserID: 1, IP: "10.0.0.1"}, "create", "client", "c-1", "created")
	require.NoError(t, entry.Validate())
	assert.Equal(t, "10.0.0.1", entry.IP)
	assert.False(t, entry.At.IsZero())

	entry.EntityID = ""
	assert.Error(t, entry.Validate())
}
