package closing

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

func TestExportXLSXWritesPartnerColumns(t *testing.T) {
	obs := "fevereiro"
	closings := []CashClosing{{
		ID:             uuid.New(),
		PeriodType:     PeriodMonthly,
		StartDate:      day(t, "2024-02-01"),
		EndDate:        day(t, "2024-02-29"),
		TotalRevenue:   10000,
		PartnerProfits: []PartnerProfit{{PartnerID: 1, Profit: 3100}, {PartnerID: 2, Profit: 3600}},
		Observations:   &obs,
	}}

	data, err := ExportXLSX(closings, shared.DefaultOwnershipGroup().Partners())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lucro sócio 1", rows[0][8])
	assert.Equal(t, "Lucro sócio 2", rows[0][9])
	assert.Equal(t, "2024-02-01", rows[1][2])
	assert.Equal(t, "3100", rows[1][8])
	assert.Equal(t, "fevereiro", rows[1][10])
}
