package parsers

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

var gstEntryNamespace = uuid.MustParse("2c4e6a80-91b3-5d57-8f1e-a3c5e7092b4d")

// GSTReturnParser turns rows of a return statement into GST entries
type GSTReturnParser struct {
	*BaseParser
	orgID  string
	period string
	config *ImportConfig
}

// NewGSTReturnParser creates a parser for orgID. period applies to rows
// without a period column and may be empty when the file carries one.
func NewGSTReturnParser(orgID, period string, layout *Layout, config *ImportConfig, log ...logger.Logger) (*GSTReturnParser, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "org_id", orgID, nil)
	}
	if period != "" {
		normalized, err := normalizePeriod(period)
		if err != nil {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidDate, "period", period, err).
				WithSuggestion("Use YYYY-MM, for example 2024-03")
		}
		period = normalized
	}
	if layout == nil {
		layout = GSTR2BLayout
	}
	if config == nil {
		config = DefaultImportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var l logger.Logger
	if len(log) > 0 {
		l = log[0]
	}
	base, err := newBaseParser(layout, l, "gst-return-parser")
	if err != nil {
		return nil, err
	}
	return &GSTReturnParser{BaseParser: base, orgID: orgID, period: period, config: config}, nil
}

// ParseFile parses a whole return statement file
func (p *GSTReturnParser) ParseFile(ctx context.Context, path string) ([]*models.GSTEntry, *ParseStats, error) {
	file, err := p.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return p.Parse(ctx, file, path)
}

// Parse reads every row of r
func (p *GSTReturnParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.GSTEntry, *ParseStats, error) {
	var entries []*models.GSTEntry
	stats, err := p.Stream(ctx, r, source, 0, func(batch []*models.GSTEntry) error {
		entries = append(entries, batch...)
		return nil
	})
	return entries, stats, err
}

// Stream hands entries to callback in batches
func (p *GSTReturnParser) Stream(ctx context.Context, r io.Reader, source string, batchSize int, callback func([]*models.GSTEntry) error) (*ParseStats, error) {
	return stream(ctx, p.BaseParser, r, source, p.config, batchSize, p.decode, callback)
}

func (p *GSTReturnParser) decode(record []string, pctx *ParseContext) (*models.GSTEntry, *ParseError) {
	entry := &models.GSTEntry{
		ID:                pctx.field(record, FieldID),
		OrgID:             p.orgID,
		CounterpartyGSTIN: strings.ToUpper(pctx.field(record, FieldGSTIN)),
		InvoiceNumber:     pctx.field(record, FieldInvoiceNumber),
		Filed:             parseFiled(pctx.field(record, FieldFiled)),
	}
	if entry.CounterpartyGSTIN == "" {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldGSTIN, Message: "supplier GSTIN is empty"}
	}
	if entry.InvoiceNumber == "" {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldInvoiceNumber, Message: "invoice number is empty"}
	}

	period := p.period
	if raw := pctx.field(record, FieldPeriod); raw != "" {
		normalized, err := normalizePeriod(raw)
		if err != nil {
			return nil, &ParseError{Line: pctx.LineNumber, Field: FieldPeriod, Value: raw, Message: "invalid return period", Err: err}
		}
		period = normalized
	}
	if period == "" {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldPeriod, Message: "no return period in the row or the import"}
	}
	entry.ReturnPeriod = period

	rawDate := pctx.field(record, FieldInvoiceDate)
	date, err := parseDate(rawDate, p.layout.DateFormats)
	if err != nil {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldInvoiceDate, Value: rawDate, Message: "invalid invoice date", Err: err}
	}
	entry.InvoiceDate = date

	amounts := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{FieldInvoiceValue, &entry.InvoiceValue},
		{FieldTaxableValue, &entry.TaxableValue},
		{FieldIGST, &entry.IGST},
		{FieldCGST, &entry.CGST},
		{FieldSGST, &entry.SGST},
	}
	for _, a := range amounts {
		raw := pctx.field(record, a.field)
		v, err := parseAmount(raw)
		if err != nil {
			return nil, &ParseError{Line: pctx.LineNumber, Field: a.field, Value: raw, Message: "invalid amount", Err: err}
		}
		*a.dst = v
	}
	if entry.InvoiceValue.IsNegative() || entry.TaxTotal().IsNegative() {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldInvoiceValue, Value: entry.InvoiceValue.String(),
			Message: "return amounts cannot be negative"}
	}
	if !pctx.Has(FieldTaxableValue) {
		entry.TaxableValue = entry.InvoiceValue.Sub(entry.TaxTotal())
	}

	if entry.ID == "" {
		entry.ID = p.entryID(entry)
	}
	return entry, nil
}

// entryID identifies an entry by supplier, normalized invoice number and
// period, so a revised statement for the same period replaces the old rows
func (p *GSTReturnParser) entryID(e *models.GSTEntry) string {
	name := strings.Join([]string{p.orgID, e.CounterpartyGSTIN, models.NormalizeNumber(e.InvoiceNumber), e.ReturnPeriod}, "|")
	return "gst-" + uuid.NewSHA1(gstEntryNamespace, []byte(name)).String()
}
