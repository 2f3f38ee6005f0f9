package parsers

import (
	"strings"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Standard field names a layout maps to source column headers
const (
	FieldID          = "id"
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldDirection   = "direction"
	FieldReference   = "reference"
	FieldDescription = "description"

	FieldGSTIN         = "gstin"
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldInvoiceValue  = "invoice_value"
	FieldTaxableValue  = "taxable_value"
	FieldIGST          = "igst"
	FieldCGST          = "cgst"
	FieldSGST          = "sgst"
	FieldFiled         = "filed"
	FieldPeriod        = "period"
)

// Layout describes one CSV export format. Columns lists, per standard field,
// the headers that may carry it; headers are compared ignoring case, spacing
// and punctuation, so "Invoice Value(₹)" matches "invoice value".
type Layout struct {
	Name        string              `json:"name" mapstructure:"name" validate:"required"`
	Delimiter   rune                `json:"delimiter" mapstructure:"delimiter"`
	DateFormats []string            `json:"date_formats" mapstructure:"date_formats" validate:"min=1,dive,required"`
	Columns     map[string][]string `json:"columns" mapstructure:"columns" validate:"required,min=1"`

	// Required fields must resolve to a column; AnyOf groups need one member
	Required []string   `json:"required" mapstructure:"required"`
	AnyOf    [][]string `json:"any_of,omitempty" mapstructure:"any_of"`
}

// Validate checks the layout is usable
func (l *Layout) Validate() error {
	if err := validation.Struct("parser layout", l); err != nil {
		return err
	}
	for _, field := range l.Required {
		if len(l.Columns[field]) == 0 {
			return layoutError(l.Name, "required field "+field+" has no column")
		}
	}
	return nil
}

// Clone returns a deep copy of the layout
func (l *Layout) Clone() *Layout {
	if l == nil {
		return nil
	}
	clone := *l
	clone.DateFormats = append([]string(nil), l.DateFormats...)
	clone.Required = append([]string(nil), l.Required...)
	clone.Columns = make(map[string][]string, len(l.Columns))
	for field, headers := range l.Columns {
		clone.Columns[field] = append([]string(nil), headers...)
	}
	clone.AnyOf = make([][]string, len(l.AnyOf))
	for i, group := range l.AnyOf {
		clone.AnyOf[i] = append([]string(nil), group...)
	}
	return &clone
}

// WithAlias returns a copy of the layout that also accepts header for field
func (l *Layout) WithAlias(field, header string) *Layout {
	clone := l.Clone()
	clone.Columns[field] = append(clone.Columns[field], header)
	return clone
}

var commonDateFormats = []string{"2006-01-02", "02-01-2006", "02/01/2006", "02-Jan-2006", "02 Jan 2006", "2006/01/02"}

// Predefined layouts
var (
	// StandardBankLayout is a signed or typed single amount column export
	StandardBankLayout = &Layout{
		Name:        "standard",
		Delimiter:   ',',
		DateFormats: commonDateFormats,
		Columns: map[string][]string{
			FieldID:          {"id", "transaction_id", "txn id"},
			FieldDate:        {"date", "transaction_date", "value_date"},
			FieldAmount:      {"amount", "transaction_amount"},
			FieldDirection:   {"type", "direction", "dr/cr", "debit_credit"},
			FieldReference:   {"reference", "ref", "utr"},
			FieldDescription: {"description", "narration", "remarks"},
		},
		Required: []string{FieldDate, FieldAmount},
	}

	// SplitBankLayout has separate withdrawal and deposit columns, the usual
	// shape of Indian bank statement downloads
	SplitBankLayout = &Layout{
		Name:        "split",
		Delimiter:   ',',
		DateFormats: []string{"02/01/06", "02/01/2006", "02-01-2006", "02-Jan-2006", "2006-01-02"},
		Columns: map[string][]string{
			FieldID:          {"tran id", "transaction id"},
			FieldDate:        {"txn date", "date", "transaction date", "value dt", "value date"},
			FieldDebit:       {"withdrawal amt.", "withdrawal amount", "withdrawal", "debit", "debit amount"},
			FieldCredit:      {"deposit amt.", "deposit amount", "deposit", "credit", "credit amount"},
			FieldReference:   {"chq./ref.no.", "ref no./cheque no.", "cheque no", "reference"},
			FieldDescription: {"narration", "description", "particulars", "remarks"},
		},
		Required: []string{FieldDate},
		AnyOf:    [][]string{{FieldDebit, FieldCredit}},
	}

	// GSTR2BLayout is the B2B sheet of the auto-drafted input tax statement
	GSTR2BLayout = &Layout{
		Name:        "gstr2b",
		Delimiter:   ',',
		DateFormats: []string{"02-01-2006", "02/01/2006", "2006-01-02", "02-Jan-2006"},
		Columns: map[string][]string{
			FieldID:            {"id", "entry id"},
			FieldGSTIN:         {"gstin of supplier", "supplier gstin", "ctin", "gstin"},
			FieldInvoiceNumber: {"invoice number", "invoice no", "inum", "document number"},
			FieldInvoiceDate:   {"invoice date", "idt", "document date"},
			FieldInvoiceValue:  {"invoice value", "val", "invoice value (₹)"},
			FieldTaxableValue:  {"taxable value", "txval"},
			FieldIGST:          {"integrated tax", "igst", "iamt"},
			FieldCGST:          {"central tax", "cgst", "camt"},
			FieldSGST:          {"state/ut tax", "state tax", "sgst", "samt"},
			FieldFiled:         {"gstr-1/iff/gstr-5 filing status", "filing status", "filed"},
			FieldPeriod:        {"return period", "gstr-1/iff/gstr-5 period", "period", "rtnprd"},
		},
		Required: []string{FieldGSTIN, FieldInvoiceNumber, FieldInvoiceDate, FieldInvoiceValue},
	}
)

// GetBankLayout returns a predefined bank layout by name
func GetBankLayout(name string) *Layout {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardBankLayout
	case "split":
		return SplitBankLayout
	default:
		return nil
	}
}

// ListBankLayouts returns the predefined bank layouts
func ListBankLayouts() []*Layout {
	return []*Layout{StandardBankLayout, SplitBankLayout}
}

// AutoDetectBankLayout picks the first predefined layout whose required
// columns all appear in headers, falling back to the standard layout
func AutoDetectBankLayout(headers []string) *Layout {
	for _, layout := range ListBankLayouts() {
		if len(missingFields(layout, resolveColumns(layout, headers))) == 0 {
			return layout
		}
	}
	return StandardBankLayout
}

// ImportConfig bounds streaming imports
type ImportConfig struct {
	BatchSize int `json:"batch_size" mapstructure:"batch_size" validate:"gte=1"`

	// MaxErrors stops an import after that many bad rows; zero means no limit
	MaxErrors int `json:"max_errors" mapstructure:"max_errors" validate:"gte=0"`
}

// DefaultImportConfig returns batches of 500 rows and at most 100 bad rows
func DefaultImportConfig() *ImportConfig {
	return &ImportConfig{
		BatchSize: 500,
		MaxErrors: 100,
	}
}

// Validate checks the import limits
func (c *ImportConfig) Validate() error {
	return validation.Struct("import", c)
}
