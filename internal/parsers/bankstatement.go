package parsers

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// transactionNamespace seeds ids of statement rows that carry none
var transactionNamespace = uuid.MustParse("8f1d7b0e-3c55-5a8e-9d0a-6b1f4c2e7a31")

// BankStatementParser turns statement rows into unmatched bank transactions
type BankStatementParser struct {
	*BaseParser
	orgID  string
	config *ImportConfig
}

// NewBankStatementParser creates a parser for orgID. A nil layout uses the
// standard layout and a nil config the default import limits.
func NewBankStatementParser(orgID string, layout *Layout, config *ImportConfig, log ...logger.Logger) (*BankStatementParser, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "org_id", orgID, nil)
	}
	if layout == nil {
		layout = StandardBankLayout
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
	base, err := newBaseParser(layout, l, "bank-statement-parser")
	if err != nil {
		return nil, err
	}
	return &BankStatementParser{BaseParser: base, orgID: orgID, config: config}, nil
}

// ParseFile parses a whole statement file
func (p *BankStatementParser) ParseFile(ctx context.Context, path string) ([]*models.BankTransaction, *ParseStats, error) {
	file, err := p.openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return p.Parse(ctx, file, path)
}

// Parse reads every row of r. source names r in errors.
func (p *BankStatementParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.BankTransaction, *ParseStats, error) {
	var txns []*models.BankTransaction
	stats, err := p.Stream(ctx, r, source, 0, func(batch []*models.BankTransaction) error {
		txns = append(txns, batch...)
		return nil
	})
	return txns, stats, err
}

// Stream hands transactions to callback in batches of batchSize, or of the
// configured size when batchSize is not positive
func (p *BankStatementParser) Stream(ctx context.Context, r io.Reader, source string, batchSize int, callback func([]*models.BankTransaction) error) (*ParseStats, error) {
	return stream(ctx, p.BaseParser, r, source, p.config, batchSize, p.decode, callback)
}

func (p *BankStatementParser) decode(record []string, pctx *ParseContext) (*models.BankTransaction, *ParseError) {
	rawDate := pctx.field(record, FieldDate)
	date, err := parseDate(rawDate, p.layout.DateFormats)
	if err != nil {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldDate, Value: rawDate, Message: "invalid date", Err: err}
	}

	amount, direction, perr := p.amountAndDirection(record, pctx)
	if perr != nil {
		return nil, perr
	}

	txn := &models.BankTransaction{
		ID:          pctx.field(record, FieldID),
		OrgID:       p.orgID,
		Date:        date,
		Amount:      amount,
		Direction:   direction,
		Reference:   pctx.field(record, FieldReference),
		Description: pctx.field(record, FieldDescription),
		Status:      models.TransactionUnmatched,
	}
	if txn.ID == "" {
		txn.ID = p.rowID(txn, pctx.LineNumber)
	}
	if err := txn.Validate(); err != nil {
		return nil, &ParseError{Line: pctx.LineNumber, Field: FieldAmount, Value: amount.String(), Message: "invalid transaction", Err: err}
	}
	return txn, nil
}

// amountAndDirection reads either split debit and credit columns or a
// single amount, signed or qualified by a type column. A negative single
// amount without a type column is a debit.
func (p *BankStatementParser) amountAndDirection(record []string, pctx *ParseContext) (decimal.Decimal, models.TransactionDirection, *ParseError) {
	if pctx.Has(FieldDebit) || pctx.Has(FieldCredit) {
		debit, err := parseAmount(pctx.field(record, FieldDebit))
		if err != nil {
			return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldDebit, Value: pctx.field(record, FieldDebit), Message: "invalid amount", Err: err}
		}
		credit, err := parseAmount(pctx.field(record, FieldCredit))
		if err != nil {
			return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldCredit, Value: pctx.field(record, FieldCredit), Message: "invalid amount", Err: err}
		}
		switch {
		case !debit.IsZero() && !credit.IsZero():
			return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldAmount,
				Value: debit.String() + "/" + credit.String(), Message: "row has both a withdrawal and a deposit"}
		case !debit.IsZero():
			return debit.Abs(), models.DirectionDebit, nil
		case !credit.IsZero():
			return credit.Abs(), models.DirectionCredit, nil
		default:
			return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldAmount, Message: "row has no amount"}
		}
	}

	raw := pctx.field(record, FieldAmount)
	amount, err := parseAmount(raw)
	if err != nil {
		return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldAmount, Value: raw, Message: "invalid amount", Err: err}
	}

	direction := models.DirectionCredit
	if amount.IsNegative() {
		direction = models.DirectionDebit
	}
	if rawType := pctx.field(record, FieldDirection); rawType != "" {
		d, ok := parseDirection(rawType)
		if !ok {
			return decimal.Zero, "", &ParseError{Line: pctx.LineNumber, Field: FieldDirection, Value: rawType,
				Message: "type is neither debit nor credit"}
		}
		direction = d
	}
	return amount.Abs(), direction, nil
}

// rowID derives a stable id from the row's content and position, so
// importing the same file twice upserts the same transactions
func (p *BankStatementParser) rowID(txn *models.BankTransaction, line int) string {
	name := strings.Join([]string{
		p.orgID,
		txn.Date.Format("2006-01-02"),
		txn.Amount.StringFixed(2),
		string(txn.Direction),
		txn.Reference,
		txn.Description,
		strconv.Itoa(line),
	}, "|")
	return "txn-" + uuid.NewSHA1(transactionNamespace, []byte(name)).String()
}

// DetectBankLayout reads the first rows of path and returns the predefined
// layout whose columns they carry
func DetectBankLayout(path string) (*Layout, error) {
	base := &BaseParser{layout: StandardBankLayout, logger: logger.OrGlobal(nil, "bank-statement-parser")}
	file, err := base.openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := base.newReader(file)
	for i := 0; i < maxPreambleRows; i++ {
		headers, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path, i+1, "headers", "", err)
		}
		for _, layout := range ListBankLayouts() {
			if len(missingFields(layout, resolveColumns(layout, headers))) == 0 {
				return layout, nil
			}
		}
	}
	return nil, apperrors.ParseError(apperrors.CodeMissingColumn, path, 0, "headers", "",
		fmt.Errorf("no known bank statement layout matches the file")).
		WithSuggestion("Pass --layout or add column aliases for this bank's export")
}
