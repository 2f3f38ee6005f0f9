package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/parsers"
	"github.com/mohit-ambani/auditflow-sub000/internal/reconciler"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

func createTestRecords() []*models.DocumentMatchRecord {
	expected := decimal.NewFromInt(100)
	actual := decimal.NewFromInt(80)
	variance := -20.0
	return []*models.DocumentMatchRecord{
		{
			OrgID:           "org-1",
			PurchaseOrderID: "po-1",
			InvoiceID:       "inv-1",
			Score:           100,
			MatchType:       models.DocumentMatchExact,
			LineMatches: []models.LineMatchRecord{
				{POLineID: "po-1-l1", InvoiceLineID: "inv-1-l1", Score: 100, Class: models.LineMatchExact},
			},
			TotalValueMatch: true,
			TotalGSTMatch:   true,
			Reasons:         []string{"all lines matched"},
			AutoApprove:     true,
		},
		{
			OrgID:            "org-1",
			PurchaseOrderID:  "po-2",
			InvoiceID:        "inv-2",
			Score:            72.5,
			MatchType:        models.DocumentMatchPartialQty,
			UnmatchedPOLines: []string{"po-2-l2"},
			Discrepancies: []models.Discrepancy{
				{Type: models.DiscrepancyShortSupply, Severity: models.SeverityMedium, Message: "short supply",
					LineID: "po-2-l1", Expected: &expected, Actual: &actual, Variance: &variance},
			},
			Reasons:     []string{"quantity short on one line"},
			NeedsReview: true,
		},
		{
			OrgID:           "org-1",
			PurchaseOrderID: "po-3",
			InvoiceID:       "inv-3",
			Score:           40,
			MatchType:       models.DocumentMatchNone,
			Reasons:         []string{"no line matched"},
			NeedsReview:     true,
		},
	}
}

func generate(t *testing.T, config *ReportConfig, report *Report) string {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	return buf.String()
}

func configWith(format OutputFormat) *ReportConfig {
	config := DefaultReportConfig()
	config.Format = format
	return config
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "xlsx",
			config:      configWith(FormatXLSX),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      configWith("pdf"),
			expectError: true,
		},
		{
			name: "column width too small",
			config: &ReportConfig{
				Format:         FormatConsole,
				ColumnMaxWidth: 4,
				CSVDelimiter:   ',',
			},
			expectError: true,
		},
		{
			name: "quote delimiter",
			config: &ReportConfig{
				Format:         FormatCSV,
				ColumnMaxWidth: 60,
				CSVDelimiter:   '"',
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
		binary bool
	}{
		{FormatConsole, true, false},
		{FormatJSON, true, false},
		{FormatCSV, true, false},
		{FormatXLSX, true, true},
		{"html", false, false},
	}
	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("%s.IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
		if got := tt.format.Binary(); got != tt.binary {
			t.Errorf("%s.Binary() = %v, want %v", tt.format, got, tt.binary)
		}
	}
}

func TestConsoleReport(t *testing.T) {
	output := generate(t, configWith(FormatConsole), NewDocumentMatchReport(createTestRecords()))

	expectedSections := []string{
		"DOCUMENT MATCH REPORT",
		"=== SUMMARY ===",
		"=== MATCHES ===",
		"=== LINES ===",
		"=== DISCREPANCIES ===",
		"Auto Approved:",
		"po-2-l2",
		"short supply",
		"no line matched",
	}
	for _, s := range expectedSections {
		if !strings.Contains(output, s) {
			t.Errorf("console output missing %q", s)
		}
	}
}

func TestConsoleReport_Options(t *testing.T) {
	config := configWith(FormatConsole)
	config.MaxRows = 1
	config.IncludeReasons = false
	config.IncludeSummary = false

	output := generate(t, config, NewDocumentMatchReport(createTestRecords()))

	if strings.Contains(output, "=== SUMMARY ===") {
		t.Error("summary should be omitted")
	}
	if strings.Contains(output, "Reasons") || strings.Contains(output, "no line matched") {
		t.Error("reasons should be omitted")
	}
	if !strings.Contains(output, "... 2 more rows") {
		t.Errorf("expected truncation notice, got:\n%s", output)
	}
}

func TestConsoleReport_EmptySection(t *testing.T) {
	output := generate(t, configWith(FormatConsole), NewDocumentMatchReport(nil))
	if !strings.Contains(output, "(none)") {
		t.Errorf("expected empty sections to print (none), got:\n%s", output)
	}
}

func TestJSONReport(t *testing.T) {
	output := generate(t, configWith(FormatJSON), NewDocumentMatchReport(createTestRecords()))

	var decoded struct {
		Title   string   `json:"title"`
		Summary []Metric `json:"summary"`
		Data    []struct {
			PurchaseOrderID string `json:"purchaseOrderId"`
			MatchType       string `json:"matchType"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Title != "Document Match Report" {
		t.Errorf("title = %q", decoded.Title)
	}
	if len(decoded.Data) != 3 || decoded.Data[1].MatchType != "PARTIAL_QTY" {
		t.Errorf("unexpected data: %+v", decoded.Data)
	}
	if len(decoded.Summary) == 0 {
		t.Error("expected summary metrics")
	}
}

func TestCSVReport(t *testing.T) {
	output := generate(t, configWith(FormatCSV), NewDocumentMatchReport(createTestRecords()))

	reader := csv.NewReader(strings.NewReader(output))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}

	counts := map[string]int{}
	for _, r := range records {
		counts[r[0]]++
	}
	// header rows start with "Section"
	if counts["Section"] != 4 {
		t.Errorf("expected 4 header rows, got %d", counts["Section"])
	}
	if counts[SectionMatches] != 3 {
		t.Errorf("expected 3 match rows, got %d", counts[SectionMatches])
	}
	if counts[SectionDiscrepancies] != 1 {
		t.Errorf("expected 1 discrepancy row, got %d", counts[SectionDiscrepancies])
	}
	if counts["summary"] == 0 {
		t.Error("expected summary rows")
	}
}

func TestCSVReport_Delimiter(t *testing.T) {
	config := configWith(FormatCSV)
	config.CSVDelimiter = ';'
	config.CSVHeaders = false
	config.IncludeSummary = false

	output := generate(t, config, NewDocumentMatchReport(createTestRecords()[:1]))
	if strings.Contains(output, "Section") {
		t.Error("headers should be omitted")
	}
	if !strings.Contains(output, "Matches;po-1;inv-1;EXACT;100.00") {
		t.Errorf("unexpected CSV output:\n%s", output)
	}
}

func TestXLSXReport(t *testing.T) {
	generator, err := NewReportGenerator(configWith(FormatXLSX))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := generator.GenerateReport(NewDocumentMatchReport(createTestRecords()), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("output is not a workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{summarySheet, SectionMatches, SectionLines, SectionDiscrepancies}
	if strings.Join(sheets, ",") != strings.Join(want, ",") {
		t.Errorf("sheets = %v, want %v", sheets, want)
	}

	header, _ := f.GetCellValue(SectionMatches, "A1")
	if header != "PO" {
		t.Errorf("A1 = %q, want PO", header)
	}
	rows, err := f.GetRows(SectionMatches)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[2][0] != "po-2" {
		t.Errorf("second match PO = %q", rows[2][0])
	}

	title, _ := f.GetCellValue(summarySheet, "B2")
	if title != "Document Match Report" {
		t.Errorf("summary title = %q", title)
	}
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{summarySheet: true}
	tests := []struct {
		in   string
		want string
	}{
		{"Matches", "Matches"},
		{"Matches", "Matches 2"},
		{"Summary", "Summary 2"},
		{"a/b:c", "a_b_c"},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
		{strings.Repeat("x", 40), strings.Repeat("x", 29) + " 2"},
	}
	for _, tt := range tests {
		if got := sheetName(tt.in, used); got != tt.want {
			t.Errorf("sheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCell(t *testing.T) {
	amount := decimal.RequireFromString("1234.5")
	var nilAmount *decimal.Decimal
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, ""},
		{"decimal", amount, "1234.50"},
		{"decimal pointer", &amount, "1234.50"},
		{"nil decimal pointer", nilAmount, ""},
		{"float", 72.456, "72.46"},
		{"bool", true, "yes"},
		{"date", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "2024-03-10"},
		{"zero date", time.Time{}, ""},
		{"strings", []string{"a", "b"}, "a; b"},
		{"int", 7, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCell(tt.in); got != tt.want {
				t.Errorf("formatCell() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewBatchReport(t *testing.T) {
	records := createTestRecords()
	outcomes := []reconciler.InvoiceOutcome{
		{InvoiceID: "inv-1", Record: records[0]},
		{InvoiceID: "inv-2", Record: records[1]},
		{InvoiceID: "inv-4"},
		{InvoiceID: "inv-5", Err: errors.New("store unavailable")},
	}

	report := NewBatchReport(outcomes)
	section := report.Section(SectionInvoices)
	if section == nil || len(section.Rows) != 4 {
		t.Fatalf("expected 4 invoice rows, got %+v", section)
	}
	verdicts := []string{"AUTO_APPROVED", "NEEDS_REVIEW", "NO_CANDIDATE", "FAILED"}
	for i, want := range verdicts {
		if got := section.Rows[i][1]; got != want {
			t.Errorf("row %d outcome = %v, want %s", i, got, want)
		}
	}
	if report.Summary[0].Value != 4 {
		t.Errorf("invoice count = %v", report.Summary[0].Value)
	}
	last := report.Summary[len(report.Summary)-1]
	if last.Label != "Failures" || !strings.Contains(last.Value.(string), "unexpected error during reconcile invoice inv-5") {
		t.Errorf("unexpected failure summary %+v", last)
	}
}

func TestNewGSTReturnReport(t *testing.T) {
	summary := &models.GSTReturnSummary{
		OrgID:  "org-1",
		Period: "2024-03",
		Records: []models.GSTMatchRecord{
			{EntryID: "g1", InvoiceID: "inv-3", Score: 100, Class: models.GSTMatchExact},
			{EntryID: "g2", Class: models.GSTMatchNone,
				Discrepancies: []models.Discrepancy{models.NewDiscrepancy(models.DiscrepancyMissingInBooks, models.SeverityHigh, "not in books")}},
		},
		Matched:         1,
		MissingInBooks:  1,
		MissingInGSTR:   1,
		MissingInvoices: []string{"inv-9"},
		FiledTax:        decimal.NewFromInt(180),
		ClaimedTax:      decimal.NewFromInt(360),
		ITCDelta:        decimal.NewFromInt(-180),
	}

	report := NewGSTReturnReport(summary)
	if s := report.Section(SectionEntries); s == nil || len(s.Rows) != 2 {
		t.Errorf("expected 2 entry rows")
	}
	if s := report.Section(SectionDiscrepancies); s == nil || len(s.Rows) != 1 {
		t.Errorf("expected 1 discrepancy row")
	}
	if s := report.Section("Missing In Return"); s == nil || s.Rows[0][0] != "inv-9" {
		t.Errorf("expected missing invoice section")
	}

	output := generate(t, configWith(FormatConsole), report)
	if !strings.Contains(output, "-180.00") {
		t.Errorf("expected ITC delta in output:\n%s", output)
	}
}

func TestNewImportReport(t *testing.T) {
	stats := parsers.NewParseStats()
	stats.TotalLines = 4
	stats.RecordsParsed = 3
	stats.RecordsValid = 2
	stats.AddError(&parsers.ParseError{Line: 3, Field: "amount", Value: "abc", Message: "invalid amount"})

	report := NewImportReport("Bank Statement Import", "hdfc.csv", stats)
	errs := report.Section(SectionErrors)
	if errs == nil || len(errs.Rows) != 1 || errs.Rows[0][0] != 3 {
		t.Fatalf("unexpected error rows: %+v", errs)
	}
	var rate interface{}
	for _, m := range report.Summary {
		if m.Label == "Success Rate %" {
			rate = m.Value
		}
	}
	if got, ok := rate.(float64); !ok || got < 66.6 || got > 66.7 {
		t.Errorf("success rate = %v", rate)
	}
}

func TestNewPaymentMatchReport(t *testing.T) {
	best := models.PaymentCandidate{InvoiceID: "inv-1", InvoiceNumber: "INV-1", Outstanding: decimal.NewFromInt(1000),
		Score: 95, MatchType: models.PaymentMatchExact}
	results := []*models.PaymentMatchResult{{
		TransactionID: "t1",
		Candidates:    []models.PaymentCandidate{best},
		BestMatch:     &best,
		Confidence:    95,
		MatchType:     models.PaymentMatchExact,
		AutoMatch:     true,
	}}

	report := NewPaymentMatchReport(results, nil)
	matches := report.Section(SectionMatches)
	if matches == nil || matches.Rows[0][1] != "inv-1" {
		t.Fatalf("unexpected match rows: %+v", matches)
	}
	if c := report.Section(SectionCandidates); c == nil || len(c.Rows) != 1 {
		t.Errorf("expected one candidate row")
	}
}

func TestSafeReportGenerator_Validation(t *testing.T) {
	srg, err := NewSafeReportGenerator(nil, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = srg.GenerateReportSafely(nil, &bytes.Buffer{})
	if !apperrors.HasCode(err, apperrors.CodeMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}

	if _, err := NewSafeReportGenerator(configWith("pdf"), logger.NewNopLogger()); !apperrors.HasCode(err, apperrors.CodeInvalidConfig) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestSafeReportGenerator_FormatFallback(t *testing.T) {
	srg, err := NewSafeReportGenerator(configWith(FormatJSON), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// channels cannot be encoded as JSON
	report := NewReport("Broken", make(chan int))
	report.AddMetric("Rows", 1)

	var buf bytes.Buffer
	if err := srg.GenerateReportSafely(report, &buf); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if !strings.Contains(buf.String(), "fallback format") || !strings.Contains(buf.String(), "BROKEN") {
		t.Errorf("expected console fallback output, got:\n%s", buf.String())
	}
}

func TestSafeReportGenerator_WriteFile(t *testing.T) {
	srg, err := NewSafeReportGenerator(configWith(FormatCSV), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := NewDocumentMatchReport(createTestRecords())

	path := filepath.Join(t.TempDir(), "matches.csv")
	written, err := srg.WriteFile(report, path)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if written != path {
		t.Errorf("written = %q, want %q", written, path)
	}
	content, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(content), "po-1") {
		t.Errorf("unexpected file content: %v", err)
	}

	nested := filepath.Join(t.TempDir(), "reports", "march", "matches.csv")
	if written, err := srg.WriteFile(report, nested); err != nil || written != nested {
		t.Fatalf("expected missing directories to be created, got %q, %v", written, err)
	}

	// a regular file where a directory should be forces the backup
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	srg.now = func() time.Time { return time.Date(2024, 3, 15, 10, 15, 0, 0, time.UTC) }
	backup, err := srg.WriteFile(report, filepath.Join(blocker, "matches-fallback.csv"))
	if err != nil {
		t.Fatalf("expected output fallback, got %v", err)
	}
	defer os.Remove(backup)
	if want := filepath.Join(os.TempDir(), "matches-fallback_backup_20240315T101500.csv"); backup != want {
		t.Errorf("backup = %q, want %q", backup, want)
	}
	if _, err := os.Stat(backup); err != nil {
		t.Errorf("backup file not written: %v", err)
	}
}

func TestSafeReportGenerator_WriteFileLeavesNoTempFiles(t *testing.T) {
	srg, err := NewSafeReportGenerator(configWith(FormatJSON), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dir := t.TempDir()
	if _, err := srg.WriteFile(NewReport("Broken", make(chan int)), filepath.Join(dir, "out.json")); err == nil {
		t.Fatal("expected the JSON render to fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed render left files behind: %v", entries)
	}
}

func TestFallbackFormat(t *testing.T) {
	tests := []struct {
		in   OutputFormat
		want OutputFormat
		ok   bool
	}{
		{FormatXLSX, FormatCSV, true},
		{FormatJSON, FormatConsole, true},
		{FormatCSV, FormatConsole, true},
		{FormatConsole, "", false},
	}
	for _, tt := range tests {
		got, ok := fallbackFormat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("fallbackFormat(%s) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
