package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aquaflora/stockscan/internal/scan"
)

const (
	tallySheet   = "Tally"
	summarySheet = "Summary"
)

var tallyHeadings = []any{"SKU", "Name", "System stock", "Counted", "Variance", "Status", "First scanned", "Last scanned"}

// WriteXLSX writes a workbook with a Tally sheet (one row per entry) and a
// Summary sheet.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tallySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	// Tally
	headings := tallyHeadings
	if err := f.SetSheetRow(tallySheet, "A1", &headings); err != nil {
		return err
	}
	if err := f.SetRowStyle(tallySheet, 1, 1, bold); err != nil {
		return err
	}
	for i, e := range r.Entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		v := scan.Variance(e)
		row := []any{
			e.SKU,
			e.Name,
			e.SystemStock,
			e.Count,
			v,
			string(scan.Classify(v)),
			formatTime(e.FirstScannedAt),
			formatTime(e.LastScannedAt),
		}
		if err := f.SetSheetRow(tallySheet, cell, &row); err != nil {
			return fmt.Errorf("write row for %s: %w", e.SKU, err)
		}
	}
	if err := f.SetColWidth(tallySheet, "B", "B", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(tallySheet, "G", "H", 22); err != nil {
		return err
	}

	// Summary
	s := r.Summary
	summary := [][]any{
		{"Session", r.SessionID},
		{"Generated at", formatTime(r.GeneratedAt)},
		{"Entries", s.Entries},
		{"Units counted", s.Units},
		{"Matching", s.Matching},
		{"Surplus", s.Surplus},
		{"Shortage", s.Shortage},
		{"Net variance", s.NetVariance},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(summarySheet, "A", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 22); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
