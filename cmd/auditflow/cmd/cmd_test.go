package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// inv1 matches po1 exactly; inv2 was short supplied against po2
const testFixtures = `{
  "purchaseOrders": [
    {"id": "po1", "orgId": "acme", "vendorId": "v1", "number": "PO-1", "date": "2024-03-01T00:00:00Z", "status": "OPEN",
     "lines": [
       {"id": "p1", "description": "Steel Rod", "catalogId": "SKU-ROD", "quantity": "100", "unitPrice": "10"},
       {"id": "p2", "description": "Cement", "catalogId": "SKU-CEM", "quantity": "50", "unitPrice": "350"}
     ],
     "subtotal": "18500", "taxTotal": "3330", "total": "21830"},
    {"id": "po2", "orgId": "acme", "vendorId": "v2", "number": "PO-2", "date": "2024-03-01T00:00:00Z", "status": "OPEN",
     "lines": [{"id": "p1", "description": "Copper Wire", "quantity": "100", "unitPrice": "20"}],
     "subtotal": "2000", "taxTotal": "360", "total": "2360"}
  ],
  "invoices": [
    {"id": "inv1", "orgId": "acme", "kind": "PURCHASE", "partyId": "v1", "partyGstin": "27AAAAA0000A1Z5", "number": "INV-1",
     "date": "2024-03-06T00:00:00Z", "dueDate": "2024-04-05T00:00:00Z",
     "lines": [
       {"id": "i1", "description": "Steel Rod", "catalogId": "SKU-ROD", "quantity": "100", "unitPrice": "10"},
       {"id": "i2", "description": "Cement", "catalogId": "SKU-CEM", "quantity": "50", "unitPrice": "350"}
     ],
     "subtotal": "18500", "cgst": "1665", "sgst": "1665", "total": "21830", "paymentStatus": "UNPAID"},
    {"id": "inv2", "orgId": "acme", "kind": "PURCHASE", "partyId": "v2", "partyGstin": "27BBBBB0000B1Z5", "number": "INV-2",
     "date": "2024-03-06T00:00:00Z", "dueDate": "2024-04-05T00:00:00Z",
     "lines": [{"id": "i1", "description": "Copper Wire", "quantity": "80", "unitPrice": "20"}],
     "subtotal": "1600", "cgst": "144", "sgst": "144", "total": "1888", "paymentStatus": "UNPAID"}
  ],
  "transactions": [
    {"id": "t1", "orgId": "acme", "date": "2024-03-20T00:00:00Z", "amount": "1000", "direction": "DEBIT",
     "reference": "NEFT INV-1", "status": "UNMATCHED"}
  ],
  "catalog": [
    {"id": "c1", "orgId": "acme", "code": "SKU-ROD", "name": "Steel Rod 12mm", "active": true},
    {"id": "c2", "orgId": "acme", "code": "SKU-CEM", "name": "Portland Cement", "active": true}
  ]
}`

func writeFixtures(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.json")
	if err := os.WriteFile(path, []byte(testFixtures), 0644); err != nil {
		t.Fatalf("failed to write fixtures: %v", err)
	}
	return path
}

// resetFlags puts every flag back to its default so runs do not leak into
// each other through the package level commands
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

type jsonReport struct {
	Title   string `json:"title"`
	Summary []struct {
		Label string      `json:"label"`
		Value interface{} `json:"value"`
	} `json:"summary"`
	Data json.RawMessage `json:"data"`
}

func decodeReport(t *testing.T, out string) jsonReport {
	t.Helper()
	var r jsonReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	return r
}

func TestDocumentsCommand(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := runCommand(t, "documents", "--fixtures", fixtures, "--org", "acme",
		"--po", "po1", "--invoice", "inv1", "--format", "json")
	if err != nil {
		t.Fatalf("documents failed: %v\n%s", err, out)
	}

	report := decodeReport(t, out)
	var records []models.DocumentMatchRecord
	if err := json.Unmarshal(report.Data, &records); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].MatchType != models.DocumentMatchExact || !records[0].AutoApprove {
		t.Errorf("expected an auto approved exact match, got %s", records[0].MatchType)
	}
}

func TestDocumentsCommand_Console(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := runCommand(t, "documents", "--fixtures", fixtures, "--org", "acme",
		"--po", "po2", "--invoice", "inv2")
	if err != nil {
		t.Fatalf("documents failed: %v\n%s", err, out)
	}
	for _, want := range []string{"DOCUMENT MATCH REPORT", "=== SUMMARY ===", "PARTIAL_QTY", "SHORT_SUPPLY"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	fixtures := writeFixtures(t)

	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{
			name: "missing org",
			args: []string{"documents", "--fixtures", fixtures, "--po", "po1", "--invoice", "inv1"},
			code: errors.CodeMissingConfig,
		},
		{
			name: "missing source",
			args: []string{"documents", "--org", "acme", "--po", "po1", "--invoice", "inv1"},
			code: errors.CodeMissingConfig,
		},
		{
			name: "unknown purchase order",
			args: []string{"documents", "--fixtures", fixtures, "--org", "acme", "--po", "nope", "--invoice", "inv1"},
			code: errors.CodeRecordNotFound,
		},
		{
			name: "bad allocation",
			args: []string{"allocate", "--fixtures", fixtures, "--org", "acme", "--txn", "t1", "--alloc", "inv1"},
			code: errors.CodeInvalidData,
		},
		{
			name: "bad payment date",
			args: []string{"discount", "--fixtures", fixtures, "--org", "acme", "--invoices", "inv1", "--payment-date", "05/04/2024"},
			code: errors.CodeInvalidDate,
		},
		{
			name: "xlsx without output",
			args: []string{"documents", "--fixtures", fixtures, "--org", "acme", "--po", "po1", "--invoice", "inv1", "--format", "xlsx"},
			code: errors.CodeInvalidConfig,
		},
		{
			name: "payment needs txn or all",
			args: []string{"payment", "--fixtures", fixtures, "--org", "acme"},
			code: errors.CodeMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.args...)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestBatchCommand(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := runCommand(t, "batch", "--fixtures", fixtures, "--org", "acme", "--format", "json")
	if err != nil {
		t.Fatalf("batch failed: %v\n%s", err, out)
	}
	report := decodeReport(t, out)
	if len(report.Summary) == 0 || report.Summary[0].Label != "Invoices" {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	if n, ok := report.Summary[0].Value.(float64); !ok || n != 2 {
		t.Errorf("expected both purchase invoices in the batch, got %v", report.Summary[0].Value)
	}
}

func TestAllocateCommand(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := runCommand(t, "allocate", "--fixtures", fixtures, "--org", "acme",
		"--txn", "t1", "--alloc", "inv1=1000", "--format", "json")
	if err != nil {
		t.Fatalf("allocate failed: %v\n%s", err, out)
	}
	var plan models.AllocationPlan
	if err := json.Unmarshal(decodeReport(t, out).Data, &plan); err != nil {
		t.Fatalf("failed to decode plan: %v", err)
	}
	if plan.TransactionStatus != models.TransactionAutoMatched {
		t.Errorf("expected AUTO_MATCHED, got %s", plan.TransactionStatus)
	}
	if len(plan.Allocations) != 1 || plan.Allocations[0].InvoiceID != "inv1" {
		t.Errorf("unexpected allocations %+v", plan.Allocations)
	}
}

func TestSQLitePersistsAcrossRuns(t *testing.T) {
	fixtures := writeFixtures(t)
	db := filepath.Join(t.TempDir(), "books.db")

	if _, err := runCommand(t, "documents", "--fixtures", fixtures, "--sqlite", db, "--org", "acme",
		"--po", "po2", "--invoice", "inv2"); err != nil {
		t.Fatalf("seeding run failed: %v", err)
	}

	// the short supply verdict is now waiting for review in the database
	out, err := runCommand(t, "review", "--sqlite", db, "--org", "acme", "--kind", "document_match", "--format", "csv")
	if err != nil {
		t.Fatalf("review failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "po2") || !strings.Contains(out, "inv2") {
		t.Errorf("expected the po2/inv2 verdict in the review queue:\n%s", out)
	}
}

func TestImportBankCommand(t *testing.T) {
	fixtures := writeFixtures(t)
	dir := t.TempDir()
	statement := filepath.Join(dir, "statement.csv")
	content := "Date,Amount,Type,Reference,Narration\n" +
		"2024-03-20,1000.00,DEBIT,UTR001,NEFT INV-1\n" +
		"2024-03-21,not-a-number,DEBIT,UTR002,bad row\n" +
		"2024-03-22,250.00,CREDIT,UTR003,refund\n" +
		"2024-03-20,1000.00,DEBIT,UTR001,NEFT INV-1\n"
	if err := os.WriteFile(statement, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write statement: %v", err)
	}

	out, err := runCommand(t, "import-bank", "--fixtures", fixtures, "--org", "acme",
		"--file", statement, "--format", "json")
	if err != nil {
		t.Fatalf("import-bank failed: %v\n%s", err, out)
	}
	report := decodeReport(t, out)
	values := map[string]interface{}{}
	for _, m := range report.Summary {
		values[m.Label] = m.Value
	}
	if values["Rows Imported"] != float64(3) {
		t.Errorf("expected 3 imported rows, got %v", values["Rows Imported"])
	}
	if values["Rows Rejected"] != float64(1) {
		t.Errorf("expected 1 rejected row, got %v", values["Rows Rejected"])
	}
	if values["Possible Duplicates"] != float64(1) {
		t.Errorf("expected the repeated UTR001 line to be flagged, got %v", values["Possible Duplicates"])
	}

	if _, err := runCommand(t, "import-bank", "--fixtures", fixtures, "--org", "acme",
		"--file", statement, "--layout", "mt940"); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected an unknown layout error, got %v", err)
	}
}

func TestMetricsFile(t *testing.T) {
	fixtures := writeFixtures(t)
	metricsFile := filepath.Join(t.TempDir(), "auditflow.prom")

	if _, err := runCommand(t, "documents", "--fixtures", fixtures, "--org", "acme",
		"--po", "po1", "--invoice", "inv1", "--metrics-file", metricsFile); err != nil {
		t.Fatalf("documents failed: %v", err)
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "auditflow_reconciliation_outcomes_total") {
		t.Errorf("expected outcome counters in metrics file:\n%s", data)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "auditflow ") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText []string
	}{
		{name: "nil", err: nil, wantCode: 0},
		{
			name:     "configuration",
			err:      errors.ConfigurationError(errors.CodeMissingConfig, "org", "", nil).WithSuggestion("Pass --org"),
			wantCode: 4,
			wantText: []string{"Suggestion: Pass --org", "Configuration error help"},
		},
		{
			name:     "not found",
			err:      errors.NotFoundError("invoice", "inv-9", "acme"),
			wantCode: 7,
			wantText: []string{"Lookup error help"},
		},
		{
			name:     "missing file",
			err:      &os.PathError{Op: "open", Path: "x.csv", Err: os.ErrNotExist},
			wantCode: 2,
			wantText: []string{"File not found"},
		},
		{
			name:     "generic",
			err:      os.ErrClosed,
			wantCode: 1,
			wantText: []string{"Error: file already closed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := NewCLIErrorHandler()
			h.out = &out

			if code := h.HandleError(tt.err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			for _, want := range tt.wantText {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected %q in:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestGenerateCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")

	out, err := runCommand(t, "generate", "--org", "acme", "--output-dir", dir,
		"--purchase-orders", "10", "--paid-ratio", "1", "--format", "json")
	if err != nil {
		t.Fatalf("generate failed: %v\n%s", err, out)
	}
	report := decodeReport(t, out)
	if report.Title != "Generated Dataset" {
		t.Errorf("unexpected title %q", report.Title)
	}
	for _, m := range report.Summary {
		if m.Label == "Statement Lines" && m.Value != float64(10) {
			t.Errorf("every invoice should be paid, got %v statement lines", m.Value)
		}
	}

	out, err = runCommand(t, "batch", "--fixtures", filepath.Join(dir, "fixtures.json"),
		"--org", "acme", "--format", "json")
	if err != nil {
		t.Fatalf("batch over generated fixtures failed: %v\n%s", err, out)
	}
	if n := decodeReport(t, out).Summary[0].Value; n != float64(10) {
		t.Errorf("expected 10 invoices in the batch, got %v", n)
	}

	if _, err := runCommand(t, "generate", "--org", "acme", "--output-dir", dir, "--vendors", "0"); err == nil {
		t.Error("expected zero vendors to be rejected")
	}
}
