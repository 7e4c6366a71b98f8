package delinquency

import (
	"github.com/xuri/excelize/v2"
)

const (
	clientSheet = "Clientes"
	quoteSheet  = "Orçamentos"
)

// ExportXLSX renders the report as a workbook with a client summary sheet
// and one row per delinquent quote.
func ExportXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(clientSheet)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(quoteSheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	clientHeader := []string{"Cliente", "Telefone", "Dívida total", "Orçamentos", "Dívida mais antiga", "Dias em atraso", "Severidade"}
	quoteHeader := []string{"Cliente", "Orçamento", "Status", "Total", "Pago", "Dívida", "Concluído em", "Dias em atraso", "Severidade"}
	writeRow(f, clientSheet, 1, toAny(clientHeader))
	writeRow(f, quoteSheet, 1, toAny(quoteHeader))

	qrow := 2
	for i, c := range report.Clients {
		writeRow(f, clientSheet, i+2, []any{
			c.ClientName,
			c.ClientPhone,
			c.TotalDebt,
			len(c.QuotesWithDebt),
			c.OldestDebtDate.Format("2006-01-02"),
			optionalInt(c.MaxDaysOverdue),
			string(c.Severity),
		})
		for _, q := range c.QuotesWithDebt {
			completed := ""
			if q.ServiceCompletedAt != nil {
				completed = q.ServiceCompletedAt.Format("2006-01-02")
			}
			writeRow(f, quoteSheet, qrow, []any{
				c.ClientName,
				q.Number,
				string(q.Status),
				q.Total,
				q.Paid,
				q.Debt,
				completed,
				optionalInt(q.DaysOverdue),
				string(q.Severity),
			})
			qrow++
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	if err == nil {
		_ = f.SetCellStyle(clientSheet, "A1", "G1", style)
		_ = f.SetCellStyle(quoteSheet, "A1", "I1", style)
	}
	_ = f.SetColWidth(clientSheet, "A", "A", 32)
	_ = f.SetColWidth(clientSheet, "B", "G", 18)
	_ = f.SetColWidth(quoteSheet, "A", "A", 32)
	_ = f.SetColWidth(quoteSheet, "B", "I", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for c, v := range values {
		cell, _ := excelize.CoordinatesToCellName(c+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func optionalInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
