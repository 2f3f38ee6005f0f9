package gst

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// PeriodLayout is the format of a return period
const PeriodLayout = "2006-01"

// BooksSource is the read side of the store used by the reconciler
type BooksSource interface {
	GetGSTEntry(ctx context.Context, orgID, id string) (*models.GSTEntry, error)
	ListGSTEntries(ctx context.Context, orgID string, filter models.GSTEntryFilter) ([]*models.GSTEntry, error)
	ListInvoices(ctx context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error)
}

// Reconciler compares return entries with books invoices
type Reconciler struct {
	config *Config
	source BooksSource
	logger logger.Logger
}

// NewReconciler creates a GST reconciler. A nil config uses DefaultConfig;
// source may be nil when only the pure methods are used.
func NewReconciler(config *Config, source BooksSource, log logger.Logger) *Reconciler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reconciler{
		config: config,
		source: source,
		logger: logger.OrGlobal(log, "gst-reconciler"),
	}
}

// MatchEntry loads one entry and the books invoices of its counterparty
func (r *Reconciler) MatchEntry(ctx context.Context, orgID, entryID string) (*models.GSTMatchRecord, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "gst match without a books source", nil)
	}

	entry, err := r.source.GetGSTEntry(ctx, orgID, entryID)
	if err != nil {
		return nil, err
	}
	invoices, err := r.source.ListInvoices(ctx, orgID, models.InvoiceFilter{
		Kind:       r.config.InvoiceKind,
		PartyGSTIN: entry.CounterpartyGSTIN,
	})
	if err != nil {
		return nil, err
	}
	return r.ReconcileEntry(entry, invoices), nil
}

// ReconcileReturn reconciles every entry of a return period, optionally
// limited to one counterparty GSTIN
func (r *Reconciler) ReconcileReturn(ctx context.Context, orgID, period, gstin string) (*models.GSTReturnSummary, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "gst return without a books source", nil)
	}
	if _, _, err := PeriodBounds(period); err != nil {
		return nil, err
	}

	entries, err := r.source.ListGSTEntries(ctx, orgID, models.GSTEntryFilter{Period: period, GSTIN: gstin})
	if err != nil {
		return nil, err
	}
	invoices, err := r.source.ListInvoices(ctx, orgID, models.InvoiceFilter{
		Kind:       r.config.InvoiceKind,
		PartyGSTIN: gstin,
	})
	if err != nil {
		return nil, err
	}

	summary, err := r.ReconcileEntries(orgID, period, gstin, entries, invoices)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logger.Fields{
		"org_id":           orgID,
		"period":           period,
		"entries":          len(entries),
		"matched":          summary.Matched,
		"missing_in_books": summary.MissingInBooks,
		"missing_in_gstr":  summary.MissingInGSTR,
		"itc_delta":        summary.ITCDelta.StringFixed(2),
	}).Info("GST return reconciled")
	return summary, nil
}

// ReconcileEntries aggregates per-entry results of a period. Books invoices
// dated inside the period that no entry matched count as missing in the
// return.
func (r *Reconciler) ReconcileEntries(orgID, period, gstin string, entries []*models.GSTEntry, invoices []*models.Invoice) (*models.GSTReturnSummary, error) {
	start, end, err := PeriodBounds(period)
	if err != nil {
		return nil, err
	}

	summary := &models.GSTReturnSummary{
		OrgID:      orgID,
		GSTIN:      gstin,
		Period:     period,
		Records:    make([]models.GSTMatchRecord, 0, len(entries)),
		FiledTax:   decimal.Zero,
		ClaimedTax: decimal.Zero,
	}

	byID := make(map[string]*models.Invoice, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
	}

	claimed := make(map[string]bool)
	for _, entry := range entries {
		record := r.ReconcileEntry(entry, invoices)
		summary.Records = append(summary.Records, *record)

		switch {
		case !record.Matched():
			summary.MissingInBooks++
		case record.Class == models.GSTMatchNone:
			summary.Unmatched++
			claimed[record.InvoiceID] = true
		default:
			summary.Matched++
			claimed[record.InvoiceID] = true
			summary.FiledTax = summary.FiledTax.Add(entry.TaxTotal())
			summary.ClaimedTax = summary.ClaimedTax.Add(byID[record.InvoiceID].TaxTotal())
		}
	}

	for _, inv := range invoices {
		if claimed[inv.ID] || inv.Kind != r.config.InvoiceKind {
			continue
		}
		if gstin != "" && !sameGSTIN(inv.PartyGSTIN, gstin) {
			continue
		}
		day := models.TruncateDay(inv.Date)
		if day.Before(start) || day.After(end) {
			continue
		}
		summary.MissingInGSTR++
		summary.MissingInvoices = append(summary.MissingInvoices, inv.ID)
	}

	summary.ITCDelta = summary.FiledTax.Sub(summary.ClaimedTax)
	return summary, nil
}

// ReconcileEntry finds the books invoice for entry among invoices and scores
// the pairing
func (r *Reconciler) ReconcileEntry(entry *models.GSTEntry, invoices []*models.Invoice) *models.GSTMatchRecord {
	record := &models.GSTMatchRecord{
		OrgID:         entry.OrgID,
		EntryID:       entry.ID,
		Discrepancies: []models.Discrepancy{},
	}

	inv := r.FindInvoice(entry, invoices)
	if inv == nil {
		record.Class = models.GSTMatchNone
		record.ITCStatus = models.ITCNotFiled
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyMissingInBooks, models.SeverityHigh,
				fmt.Sprintf("invoice %s from %s is not recorded in the books", entry.InvoiceNumber, entry.CounterpartyGSTIN)))
		record.Reasons = []string{"no books invoice with this GSTIN and invoice number"}
		return record
	}

	record.InvoiceID = inv.ID
	score := 100.0
	tolerance := decimal.NewFromFloat(r.config.AmountTolerance)

	if diff := entry.InvoiceValue.Sub(inv.Total).Abs(); diff.GreaterThan(tolerance) {
		score -= r.config.Penalties.Amount
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyAmountMismatch, r.config.severity(diff),
				fmt.Sprintf("invoice value differs by %s", diff.StringFixed(2))).
				WithValues(inv.Total, entry.InvoiceValue, models.VariancePercent(inv.Total, entry.InvoiceValue)))
	}

	if diff := entry.TaxTotal().Sub(inv.TaxTotal()).Abs(); diff.GreaterThan(tolerance) {
		score -= r.config.Penalties.Tax
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyGSTMismatch, r.config.severity(diff),
				fmt.Sprintf("tax amount differs by %s", diff.StringFixed(2))).
				WithValues(inv.TaxTotal(), entry.TaxTotal(), models.VariancePercent(inv.TaxTotal(), entry.TaxTotal())))
	}

	if entryKind, booksKind := taxStructure(entry.CGST, entry.SGST, entry.IGST), taxStructure(inv.CGST, inv.SGST, inv.IGST); entryKind != booksKind {
		score -= r.config.Penalties.Structure
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyGSTStructureMismatch, models.SeverityMedium,
				fmt.Sprintf("return reports %s tax, books record %s tax", entryKind, booksKind)))
	}

	if days := models.AbsDays(entry.InvoiceDate, inv.Date); days > r.config.DateToleranceDays {
		score -= r.config.Penalties.Date
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyDateMismatch, models.SeverityLow,
				fmt.Sprintf("invoice dates are %d days apart", days)))
	}

	record.Score = models.RoundScore(models.ClampScore(score))
	record.Class = r.classify(record.Score)

	switch {
	case len(record.Discrepancies) > 0:
		record.ITCStatus = models.ITCMismatch
	case !entry.Filed:
		record.ITCStatus = models.ITCNotFiled
	default:
		record.ITCStatus = models.ITCAvailable
	}

	record.Reasons = []string{fmt.Sprintf("matched books invoice %s with score %.0f", inv.Number, record.Score)}
	for _, d := range record.Discrepancies {
		record.Reasons = append(record.Reasons, d.Message)
	}
	if record.ITCStatus == models.ITCNotFiled {
		record.Reasons = append(record.Reasons, "counterparty has not filed this invoice yet")
	}
	return record
}

// FindInvoice returns the books invoice for entry: the first with the same
// GSTIN and exact invoice number, else the first whose normalized number
// matches and whose date is within the date tolerance
func (r *Reconciler) FindInvoice(entry *models.GSTEntry, invoices []*models.Invoice) *models.Invoice {
	number := strings.TrimSpace(entry.InvoiceNumber)
	for _, inv := range invoices {
		if sameGSTIN(inv.PartyGSTIN, entry.CounterpartyGSTIN) && strings.TrimSpace(inv.Number) == number {
			return inv
		}
	}

	normalized := models.NormalizeNumber(number)
	if normalized == "" {
		return nil
	}
	for _, inv := range invoices {
		if !sameGSTIN(inv.PartyGSTIN, entry.CounterpartyGSTIN) {
			continue
		}
		if models.NormalizeNumber(inv.Number) == normalized && models.AbsDays(entry.InvoiceDate, inv.Date) <= r.config.DateToleranceDays {
			return inv
		}
	}
	return nil
}

func (r *Reconciler) classify(score float64) models.GSTMatchClass {
	switch {
	case score >= r.config.ExactScore:
		return models.GSTMatchExact
	case score >= r.config.PartialScore:
		return models.GSTMatchPartial
	default:
		return models.GSTMatchNone
	}
}

// PeriodBounds returns the first and last day of a YYYY-MM period
func PeriodBounds(period string) (time.Time, time.Time, error) {
	start, err := time.Parse(PeriodLayout, period)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.ValidationError(apperrors.CodeInvalidDate, "period", period, err).
			WithSuggestion("use the return period format YYYY-MM")
	}
	return start, start.AddDate(0, 1, -1), nil
}

func sameGSTIN(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// taxStructure names how tax was levied: inter-state (IGST), intra-state
// (CGST+SGST), both, or none
func taxStructure(cgst, sgst, igst decimal.Decimal) string {
	intra := cgst.IsPositive() || sgst.IsPositive()
	inter := igst.IsPositive()
	switch {
	case intra && inter:
		return "mixed"
	case inter:
		return "IGST"
	case intra:
		return "CGST+SGST"
	default:
		return "no"
	}
}
