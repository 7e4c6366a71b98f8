package closing

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ampere-erp/ampere-erp/internal/shared"
)

const exportSheet = "Fechamentos"

// ExportXLSX renders closings as a spreadsheet with one column per partner.
func ExportXLSX(closings []CashClosing, partners []shared.Partner) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	header := []any{"ID", "Período", "Início", "Fim", "Receita", "Despesas", "Lucro", "Caixa empresa"}
	for _, p := range partners {
		header = append(header, fmt.Sprintf("Lucro sócio %d", p.UserID))
	}
	header = append(header, "Observações")
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, c := range closings {
		row := []any{
			c.ID.String(),
			string(c.PeriodType),
			c.StartDate.String(),
			c.EndDate.String(),
			c.TotalRevenue,
			c.TotalExpenses,
			c.TotalProfit,
			c.CompanyCash,
		}
		for _, p := range partners {
			row = append(row, c.ProfitFor(p.UserID))
		}
		obs := ""
		if c.Observations != nil {
			obs = *c.Observations
		}
		row = append(row, obs)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, err
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "B", lastCol, 16)
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(exportSheet, "A1", lastCol+"1", style)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
