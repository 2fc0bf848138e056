// Package export renders reconciliation reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/posrecon/internal/models"
)

// Sheet names in the discrepancy workbook.
const (
	SummarySheet       = "Summary"
	DiscrepanciesSheet = "Discrepancies"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var discrepancyHeader = []any{
	"Statement ID", "Transaction Date", "Description", "Statement Amount",
	"Aggregate ID", "Group ID", "Aggregate Amount", "Difference",
	"Day Difference", "Reason", "Severity", "Status",
}

// FileName returns the download name for a report over r.
func FileName(r models.DateRange) string {
	return fmt.Sprintf("discrepancies_%s_%s.xlsx", r.Start, r.End)
}

// WriteDiscrepancies writes a workbook with a Summary sheet and one row per
// discrepancy item to w.
func WriteDiscrepancies(w io.Writer, summary *models.ReconciliationSummary, items []models.DiscrepancyItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, summary, bold); err != nil {
		return err
	}
	if _, err := f.NewSheet(DiscrepanciesSheet); err != nil {
		return fmt.Errorf("failed to add discrepancies sheet: %w", err)
	}
	if err := writeItems(f, items, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s *models.ReconciliationSummary, style int) error {
	if s == nil {
		s = &models.ReconciliationSummary{}
	}
	rows := [][]any{
		{"Period Start", s.Period.Start.String()},
		{"Period End", s.Period.End.String()},
		{"Total Statements", s.TotalStatements},
		{"Total Aggregates", s.TotalAggregates},
		{"Auto Matched", s.AutoMatched},
		{"Manually Matched", s.ManuallyMatched},
		{"Discrepancies", s.Discrepancies},
		{"Unreconciled", s.Unreconciled},
		{"Total Difference", s.TotalDifference.InexactFloat64()},
		{"Percentage Reconciled", s.PercentageReconciled},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetColStyle(SummarySheet, "A", style); err != nil {
		return fmt.Errorf("failed to style summary labels: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeItems(f *excelize.File, items []models.DiscrepancyItem, style int) error {
	if err := f.SetSheetRow(DiscrepanciesSheet, "A1", &discrepancyHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetRowStyle(DiscrepanciesSheet, 1, 1, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, it := range items {
		var aggregateAmount any
		if it.AggregateAmount != nil {
			aggregateAmount = it.AggregateAmount.InexactFloat64()
		}
		row := []any{
			it.StatementID,
			it.TransactionDate.String(),
			it.Description,
			it.StatementAmount.InexactFloat64(),
			it.AggregateID,
			it.GroupID,
			aggregateAmount,
			it.Difference.InexactFloat64(),
			it.DayDifference,
			string(it.Reason),
			string(it.Severity),
			string(it.Status),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DiscrepanciesSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for statement %s: %w", it.StatementID, err)
		}
	}

	if err := f.SetPanes(DiscrepanciesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	return f.SetColWidth(DiscrepanciesSheet, "A", "L", 18)
}
