// Package export renders reconciliation results to spreadsheet files for
// the purchasing team.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/partsport/offer-service/internal/audit"
	"github.com/partsport/offer-service/internal/cart"
)

const (
	changesSheet  = "Price Changes"
	removalsSheet = "Removed Items"
	passesSheet   = "Passes"
)

// WriteReport writes one drift report as an xlsx workbook.
func WriteReport(report cart.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", changesSheet)
	writeHeader(f, changesSheet, []string{"Line", "Name", "Brand", "Article", "Old Price", "New Price", "Delta", "Percent", "Qty"})
	for i, change := range report.Changes {
		row := i + 2
		setRow(f, changesSheet, row, []any{
			change.LineID,
			change.Name,
			change.Brand,
			change.Article,
			change.OldPrice.InexactFloat64(),
			change.NewPrice.InexactFloat64(),
			change.Delta().InexactFloat64(),
			change.Percent().InexactFloat64(),
			change.Quantity,
		})
	}

	if _, err := f.NewSheet(removalsSheet); err != nil {
		return fmt.Errorf("create removals sheet: %w", err)
	}
	writeHeader(f, removalsSheet, []string{"Line", "Name", "Brand", "Article"})
	for i, removal := range report.Removals {
		row := i + 2
		setRow(f, removalsSheet, row, []any{
			removal.LineID,
			removal.Name,
			removal.Brand,
			removal.Article,
		})
	}

	summaryRow := len(report.Changes) + 3
	setRow(f, changesSheet, summaryRow, []any{
		"TOTAL", "", "", "",
		report.OldTotal.InexactFloat64(),
		report.NewTotal.InexactFloat64(),
		report.NewTotal.Sub(report.OldTotal).InexactFloat64(),
	})

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// WritePassHistory writes recent audit pass records as an xlsx workbook.
func WritePassHistory(records []audit.PassRecord, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", passesSheet)
	writeHeader(f, passesSheet, []string{"Pass", "Phase", "Changes", "Removals", "Old Total", "New Total", "Checked At"})
	for i, record := range records {
		row := i + 2
		setRow(f, passesSheet, row, []any{
			record.PassID.String(),
			record.Phase,
			record.ChangeCount,
			record.RemovalCount,
			record.OldTotal.InexactFloat64(),
			record.NewTotal.InexactFloat64(),
			record.CheckedAt.Format("2006-01-02 15:04:05"),
		})
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save pass history: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
}

func setRow(f *excelize.File, sheet string, row int, values []any) {
	for i, value := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, value)
	}
}
