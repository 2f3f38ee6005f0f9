package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// generateXLSXReport writes a workbook with a summary sheet followed by one
// sheet per section
func (rg *ReportGenerator) generateXLSXReport(report *Report, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summary := &Section{Name: summarySheet, Headers: []string{"Metric", "Value"}}
	summary.AddRow("Report", report.Title)
	summary.AddRow("Generated", report.GeneratedAt.Format(time.RFC3339))
	if rg.config.IncludeSummary {
		for _, m := range report.Summary {
			summary.AddRow(m.Label, m.Value)
		}
	}
	if err := writeSheet(f, summarySheet, summary, bold); err != nil {
		return err
	}

	used := map[string]bool{summarySheet: true}
	for _, section := range rg.sections(report) {
		name := sheetName(section.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, section, bold); err != nil {
			return err
		}
	}

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, section *Section, headerStyle int) error {
	for col, header := range section.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", cell, err)
		}
	}
	if len(section.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(section.Headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range section.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, xlsxValue(v)); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

// xlsxValue keeps numbers numeric so the sheet can be summed
func xlsxValue(v interface{}) interface{} {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.Round(2).InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.Round(2).InexactFloat64()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02")
	case string, float64, int, bool:
		return x
	default:
		return formatCell(v)
	}
}

// sheetName makes a unique sheet name within the 31 character limit
func sheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if len([]rune(clean)) > 31 {
		clean = string([]rune(clean)[:31])
	}
	candidate := clean
	for i := 2; used[candidate]; i++ {
		suffix := fmt.Sprintf(" %d", i)
		base := []rune(clean)
		if len(base)+len(suffix) > 31 {
			base = base[:31-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	used[candidate] = true
	return candidate
}
