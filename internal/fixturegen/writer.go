package fixturegen

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// File names written by WriteFiles
const (
	FixturesFile  = "fixtures.json"
	StatementFile = "statement.csv"
	ReturnFile    = "gstr2b.csv"
)

var (
	statementHeader = []string{"Date", "Amount", "Type", "Reference", "Narration"}
	returnHeader    = []string{
		"GSTIN of supplier", "Invoice number", "Invoice Date", "Invoice Value", "Taxable Value",
		"Integrated Tax", "Central Tax", "State/UT Tax", "Filing Status", "Return Period",
	}
)

// WriteFiles writes the fixtures, the bank statement in the standard layout
// and the GST return in the GSTR-2B layout into dir, creating it if needed.
// It returns the written paths in that order.
func (d *Dataset) WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.FileError(apperrors.CodeFilePermission, dir, err)
	}

	paths := []string{
		filepath.Join(dir, FixturesFile),
		filepath.Join(dir, StatementFile),
		filepath.Join(dir, ReturnFile),
	}

	data, err := json.MarshalIndent(d.Fixtures, "", "  ")
	if err != nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "encode fixtures", err)
	}
	if err := os.WriteFile(paths[0], data, 0644); err != nil {
		return nil, apperrors.FileError(apperrors.CodeFilePermission, paths[0], err)
	}

	statement := make([][]string, 0, len(d.Statement)+1)
	statement = append(statement, statementHeader)
	for _, t := range d.Statement {
		statement = append(statement, []string{
			t.Date.Format("2006-01-02"),
			t.Amount.StringFixed(2),
			string(t.Direction),
			t.Reference,
			t.Description,
		})
	}
	if err := writeCSV(paths[1], statement); err != nil {
		return nil, err
	}

	entries := make([][]string, 0, len(d.Return)+1)
	entries = append(entries, returnHeader)
	for _, e := range d.Return {
		entries = append(entries, returnRecord(e))
	}
	if err := writeCSV(paths[2], entries); err != nil {
		return nil, err
	}
	return paths, nil
}

func returnRecord(e *models.GSTEntry) []string {
	filed := "Y"
	if !e.Filed {
		filed = "N"
	}
	return []string{
		e.CounterpartyGSTIN,
		e.InvoiceNumber,
		e.InvoiceDate.Format("02-01-2006"),
		e.InvoiceValue.StringFixed(2),
		e.TaxableValue.StringFixed(2),
		e.IGST.StringFixed(2),
		e.CGST.StringFixed(2),
		e.SGST.StringFixed(2),
		filed,
		e.ReturnPeriod,
	}
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.FileError(apperrors.CodeFilePermission, path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(records); err != nil {
		return apperrors.FileError(apperrors.CodeFilePermission, path, err)
	}
	return nil
}
