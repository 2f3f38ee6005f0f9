// Package parsers imports bank statements and GST return exports from CSV.
//
// Real exports differ in column names, delimiters, date formats and the way
// they sign amounts. A Layout maps the standard fields of a record to the
// headers a format may use, and the parsers turn each row into a domain
// record. Bad rows are collected in ParseStats instead of failing the file.
//
// Example usage:
//
//	parser, err := NewBankStatementParser("org-1", SplitBankLayout, nil)
//	txns, stats, err := parser.ParseFile(ctx, "statement.csv")
//
//	gst, err := NewGSTReturnParser("org-1", "2024-03", GSTR2BLayout, nil)
//	stats, err = gst.Stream(ctx, file, 500, func(batch []*models.GSTEntry) error {
//		return saveAll(batch)
//	})
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// ParseError is one rejected row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s=%q): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s=%q): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BaseParser reads delimited rows and resolves layout columns
type BaseParser struct {
	layout *Layout
	logger logger.Logger
}

func newBaseParser(layout *Layout, log logger.Logger, component string) (*BaseParser, error) {
	if layout == nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeMissingConfig, "parser layout", nil, nil)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &BaseParser{
		layout: layout.Clone(),
		logger: logger.OrGlobal(log, component),
	}, nil
}

// Layout returns a copy of the layout in use
func (bp *BaseParser) Layout() *Layout {
	return bp.layout.Clone()
}

// ParseContext holds the state of one parse
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	Columns    map[string]int
	ctx        context.Context
}

func newParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{Source: source, Columns: map[string]int{}, ctx: ctx}
}

// Has reports whether field resolved to a column
func (pc *ParseContext) Has(field string) bool {
	_, ok := pc.Columns[field]
	return ok
}

// openFile opens path after checking it is UTF-8 text
func (bp *BaseParser) openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		switch {
		case os.IsNotExist(err):
			return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, apperrors.FileError(apperrors.CodeFilePermission, path, err)
		default:
			return nil, apperrors.FileError(apperrors.CodeFileCorrupted, path, err)
		}
	}

	if err := checkEncoding(file, path); err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, apperrors.FileError(apperrors.CodeFileCorrupted, path, err)
	}
	return file, nil
}

// checkEncoding rejects files whose first 100 lines are not valid UTF-8
func checkEncoding(r io.Reader, path string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan() && line <= 100; line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return apperrors.ParseError(apperrors.CodeInvalidFormat, path, line, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding")).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.FileError(apperrors.CodeFileCorrupted, path, err)
	}
	return nil
}

func (bp *BaseParser) newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	if bp.layout.Delimiter != 0 {
		reader.Comma = bp.layout.Delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// maxPreambleRows bounds the rows searched for the header
const maxPreambleRows = 30

// readHeaders finds the header row and resolves the layout's columns. Rows
// before it that do not resolve every required field, such as the account
// summary bank statements open with, are skipped.
func (bp *BaseParser) readHeaders(reader *csv.Reader, pctx *ParseContext) error {
	var best []string
	var bestColumns map[string]int
	bestLine := 0

	for pctx.LineNumber < maxPreambleRows {
		headers, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.ParseError(apperrors.CodeInvalidFormat, pctx.Source, pctx.LineNumber+1, "headers", "", err).
				WithSuggestion("Check the file is a valid CSV with the expected delimiter")
		}
		pctx.LineNumber++

		columns := resolveColumns(bp.layout, headers)
		if len(columns) == 0 {
			continue
		}
		if len(missingFields(bp.layout, columns)) == 0 {
			pctx.Headers = cleanHeaders(headers)
			pctx.Columns = columns
			bp.logger.WithFields(logger.Fields{
				"layout":  bp.layout.Name,
				"line":    pctx.LineNumber,
				"columns": len(columns),
			}).Debug("Resolved CSV columns")
			return nil
		}
		if len(columns) > len(bestColumns) {
			best, bestColumns, bestLine = headers, columns, pctx.LineNumber
		}
	}

	if bestColumns == nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "file_content", "no header row", nil).
			WithContext("source", pctx.Source).
			WithSuggestion(fmt.Sprintf("Ensure the file has a header row in the %s layout", bp.layout.Name))
	}

	missing := missingFields(bp.layout, bestColumns)
	bp.logger.WithFields(logger.Fields{
		"layout":  bp.layout.Name,
		"missing": missing,
		"headers": cleanHeaders(best),
	}).Error("Required columns are missing")
	return apperrors.ParseError(apperrors.CodeMissingColumn, pctx.Source, bestLine, "headers",
		strings.Join(missing, ", "), nil).
		WithSuggestion(fmt.Sprintf("Layout %s needs columns for: %s", bp.layout.Name, strings.Join(missing, ", ")))
}

// readRecord returns the next non-empty row
func (bp *BaseParser) readRecord(reader *csv.Reader, pctx *ParseContext) ([]string, error) {
	for {
		if err := pctx.ctx.Err(); err != nil {
			return nil, apperrors.InternalError(apperrors.CodeTimeout, "csv parsing", err)
		}
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		pctx.LineNumber++
		if !isEmptyRecord(record) {
			return record, nil
		}
	}
}

// field returns the trimmed value of field, or "" when the layout column is
// absent from the file or the row is short
func (pc *ParseContext) field(record []string, field string) string {
	idx, ok := pc.Columns[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func resolveColumns(layout *Layout, headers []string) map[string]int {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := headerKey(h)
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}

	columns := make(map[string]int)
	for field, aliases := range layout.Columns {
		for _, alias := range aliases {
			if i, ok := index[headerKey(alias)]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func missingFields(layout *Layout, columns map[string]int) []string {
	var missing []string
	for _, field := range layout.Required {
		if _, ok := columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	for _, group := range layout.AnyOf {
		found := false
		for _, field := range group {
			if _, ok := columns[field]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(group, "|"))
		}
	}
	return missing
}

// headerKey lower-cases a header and keeps only letters and digits
func headerKey(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimPrefix(h, "\ufeff")) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return cleaned
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats counts the rows of one parse
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates empty statistics
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError records a rejected row
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors reports whether any row was rejected
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// SampleErrors returns up to max error messages
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

func layoutError(name, message string) error {
	return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "parser layout "+name, message, nil)
}
