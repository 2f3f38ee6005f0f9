// Package reporter renders reconciliation results for people and tools.
//
// Every result type is first turned into a Report: a title, summary metrics
// and tabular sections, plus the original result for structured output. The
// ReportGenerator then writes the report in the configured format:
//   - Console: aligned tables for terminal display
//   - JSON: the full result with the summary metrics
//   - CSV: one block per section, for spreadsheet import
//   - XLSX: a workbook with a summary sheet and one sheet per section
//
// Example usage:
//
//	report := reporter.NewDocumentMatchReport(records)
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(report, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Binary reports whether the format must not be written to a terminal
func (f OutputFormat) Binary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format" validate:"required"`

	// Detail level options
	IncludeSummary bool `json:"include_summary" mapstructure:"include_summary"`
	IncludeReasons bool `json:"include_reasons" mapstructure:"include_reasons"`

	// MaxRows caps the rows printed per console section; 0 prints all
	MaxRows int `json:"max_rows" mapstructure:"max_rows" validate:"gte=0"`

	// ColumnMaxWidth truncates long console cells
	ColumnMaxWidth int `json:"column_max_width" mapstructure:"column_max_width" validate:"gte=8"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		IncludeSummary: true,
		IncludeReasons: true,
		MaxRows:        0,
		ColumnMaxWidth: 60,
		CSVDelimiter:   ',',
		CSVHeaders:     true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if err := validation.Struct("report", c); err != nil {
		return err
	}
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	switch c.CSVDelimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// Metric is one labelled summary value
type Metric struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// Section is one table of a report
type Section struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	Rows    [][]interface{} `json:"rows"`
}

// AddRow appends a row of cells
func (s *Section) AddRow(cells ...interface{}) {
	s.Rows = append(s.Rows, cells)
}

// Report is a rendered-format independent view of a result
type Report struct {
	Title       string     `json:"title"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Summary     []Metric   `json:"summary"`
	Sections    []*Section `json:"-"`

	// Data is the result the report was built from, written as is by the
	// JSON format
	Data interface{} `json:"data,omitempty"`
}

// NewReport creates an empty report for data
func NewReport(title string, data interface{}) *Report {
	return &Report{Title: title, GeneratedAt: time.Now().UTC(), Data: data}
}

// AddMetric appends a summary value
func (r *Report) AddMetric(label string, value interface{}) {
	r.Summary = append(r.Summary, Metric{Label: label, Value: value})
}

// AddSection appends a table and returns it for filling
func (r *Report) AddSection(name string, headers ...string) *Section {
	s := &Section{Name: name, Headers: headers}
	r.Sections = append(r.Sections, s)
	return s
}

// Section returns the named table, or nil
func (r *Report) Section(name string) *Section {
	for _, s := range r.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// Config returns the generator's configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport writes report to writer in the configured format
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *Report, writer io.Writer) error {
	fmt.Fprintf(writer, "%s\n", strings.ToUpper(report.Title))
	fmt.Fprintf(writer, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	if rg.config.IncludeSummary && len(report.Summary) > 0 {
		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		for _, m := range report.Summary {
			fmt.Fprintf(tw, "%s:\t%s\n", m.Label, formatCell(m.Value))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(writer, "\n")
	}

	for _, section := range rg.sections(report) {
		fmt.Fprintf(writer, "=== %s ===\n", strings.ToUpper(section.Name))
		if len(section.Rows) == 0 {
			fmt.Fprintf(writer, "(none)\n\n")
			continue
		}

		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\n", strings.Join(section.Headers, "\t"))
		rows := section.Rows
		if rg.config.MaxRows > 0 && len(rows) > rg.config.MaxRows {
			rows = rows[:rg.config.MaxRows]
		}
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = truncate(formatCell(v), rg.config.ColumnMaxWidth)
			}
			fmt.Fprintf(tw, "%s\n", strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if hidden := len(section.Rows) - len(rows); hidden > 0 {
			fmt.Fprintf(writer, "... %d more rows\n", hidden)
		}
		fmt.Fprintf(writer, "\n")
	}
	return nil
}

// generateJSONReport writes the summary and the full result
func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	out := *report
	if !rg.config.IncludeSummary {
		out.Summary = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// generateCSVReport writes each section as a block of rows
func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	sections := rg.sections(report)
	if rg.config.IncludeSummary && len(report.Summary) > 0 {
		sections = append([]*Section{summarySection(report)}, sections...)
	}

	for i, section := range sections {
		if i > 0 {
			if err := csvWriter.Write([]string{""}); err != nil {
				return fmt.Errorf("failed to write CSV separator: %w", err)
			}
		}
		if rg.config.CSVHeaders {
			headers := append([]string{"Section"}, section.Headers...)
			if err := csvWriter.Write(headers); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		for _, row := range section.Rows {
			record := make([]string, 0, len(row)+1)
			record = append(record, section.Name)
			for _, v := range row {
				record = append(record, formatCell(v))
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// sections drops the reasons column when reasons are not wanted
func (rg *ReportGenerator) sections(report *Report) []*Section {
	if rg.config.IncludeReasons {
		return report.Sections
	}
	out := make([]*Section, 0, len(report.Sections))
	for _, s := range report.Sections {
		idx := -1
		for i, h := range s.Headers {
			if h == reasonsHeader {
				idx = i
			}
		}
		if idx < 0 {
			out = append(out, s)
			continue
		}
		trimmed := &Section{Name: s.Name, Headers: removeAt(s.Headers, idx)}
		for _, row := range s.Rows {
			if idx < len(row) {
				row = removeAt(row, idx)
			}
			trimmed.Rows = append(trimmed.Rows, row)
		}
		out = append(out, trimmed)
	}
	return out
}

const reasonsHeader = "Reasons"

func summarySection(report *Report) *Section {
	s := &Section{Name: "summary", Headers: []string{"Metric", "Value"}}
	for _, m := range report.Summary {
		s.AddRow(m.Label, m.Value)
	}
	return s
}

func removeAt[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// formatCell renders a cell value for text formats
func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(2)
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.StringFixed(2)
	case float64:
		return fmt.Sprintf("%.2f", x)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02")
	case []string:
		return strings.Join(x, "; ")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// calculatePercentage calculates percentage with safe division
func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
