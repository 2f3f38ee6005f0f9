package matcher

import (
	"context"
	"fmt"
	"math"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// DocumentSource is the read side of the store used by the document reconciler
type DocumentSource interface {
	GetPurchaseOrder(ctx context.Context, orgID, id string) (*models.PurchaseOrder, error)
	GetInvoice(ctx context.Context, orgID, id string) (*models.Invoice, error)
	ListPurchaseOrders(ctx context.Context, orgID string, filter models.POFilter) ([]*models.PurchaseOrder, error)
	ListInvoices(ctx context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error)
}

// DocumentReconciler aggregates line matches into a PO to invoice verdict
type DocumentReconciler struct {
	config *Config
	lines  *LineItemMatcher
	source DocumentSource
	logger logger.Logger
}

// NewDocumentReconciler creates a reconciler. source may be nil when only
// Reconcile is used on records the caller already holds.
func NewDocumentReconciler(config *Config, source DocumentSource, log logger.Logger) *DocumentReconciler {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentReconciler{
		config: config,
		lines:  NewLineItemMatcher(config),
		source: source,
		logger: logger.OrGlobal(log, "document-reconciler"),
	}
}

// Reconcile compares a purchase order with an invoice of the same vendor
func (r *DocumentReconciler) Reconcile(po *models.PurchaseOrder, inv *models.Invoice) (*models.DocumentMatchRecord, error) {
	if po.VendorID != inv.PartyID {
		return nil, apperrors.ReconciliationError(apperrors.CodeVendorMismatch, "document reconciliation", nil).
			WithContext("purchase_order_id", po.ID).
			WithContext("invoice_id", inv.ID).
			WithContext("po_vendor", po.VendorID).
			WithContext("invoice_vendor", inv.PartyID)
	}

	record := &models.DocumentMatchRecord{
		OrgID:           inv.OrgID,
		PurchaseOrderID: po.ID,
		InvoiceID:       inv.ID,
		LineMatches:     []models.LineMatchRecord{},
		Discrepancies:   []models.Discrepancy{},
	}

	record.Discrepancies = append(record.Discrepancies, invalidLineValues("purchase order", po.Lines)...)
	record.Discrepancies = append(record.Discrepancies, invalidLineValues("invoice", inv.Lines)...)

	outcome := r.lines.MatchLines(po.Lines, inv.Lines)
	record.LineMatches = append(record.LineMatches, outcome.Records...)

	for _, lm := range outcome.Records {
		record.Discrepancies = append(record.Discrepancies, r.lineDiscrepancies(lm, outcome)...)
	}
	for _, line := range outcome.UnmatchedInvoice {
		record.UnmatchedInvoiceLines = append(record.UnmatchedInvoiceLines, line.ID)
		d := models.NewDiscrepancy(models.DiscrepancyExcessSupply, models.SeverityMedium,
			fmt.Sprintf("invoice line %q has no matching purchase order line", line.Description))
		d.LineID = line.ID
		record.Discrepancies = append(record.Discrepancies, d)
	}
	for _, line := range outcome.UnmatchedPO {
		record.UnmatchedPOLines = append(record.UnmatchedPOLines, line.ID)
		d := models.NewDiscrepancy(models.DiscrepancyShortSupply, models.SeverityHigh,
			fmt.Sprintf("purchase order line %q was not invoiced", line.Description))
		d.LineID = line.ID
		record.Discrepancies = append(record.Discrepancies, d)
	}

	valueVar := models.VariancePercent(po.Subtotal, inv.Subtotal)
	gstVar := models.VariancePercent(po.Total, inv.Total)
	record.ValueVariancePct = models.RoundScore(valueVar)
	record.GSTVariancePct = models.RoundScore(gstVar)
	record.TotalValueMatch = valueVar <= r.config.ValueTolerancePct
	record.TotalGSTMatch = gstVar <= r.config.GSTTolerancePct

	if !record.TotalValueMatch {
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyValueVariance, r.totalSeverity(valueVar),
				fmt.Sprintf("subtotal differs by %.2f%% (tolerance %.2f%%)", valueVar, r.config.ValueTolerancePct)).
				WithValues(po.Subtotal, inv.Subtotal, valueVar))
	}
	if !record.TotalGSTMatch {
		record.Discrepancies = append(record.Discrepancies,
			models.NewDiscrepancy(models.DiscrepancyValueVariance, r.totalSeverity(gstVar),
				fmt.Sprintf("tax-inclusive total differs by %.2f%% (tolerance %.2f%%)", gstVar, r.config.GSTTolerancePct)).
				WithValues(po.Total, inv.Total, gstVar))
	}

	record.Score = r.overallScore(outcome, valueVar, gstVar, record.TotalValueMatch, record.TotalGSTMatch)
	record.MatchType = r.matchType(record, len(outcome.Records))

	hasHigh := models.HasHighSeverity(record.Discrepancies)
	record.AutoApprove = record.Score >= r.config.AutoApproveScore && !hasHigh
	record.NeedsReview = !record.AutoApprove
	record.Reasons = r.reasons(record, outcome, hasHigh)

	return record, nil
}

// ReconcileByID loads both documents from the store and reconciles them
func (r *DocumentReconciler) ReconcileByID(ctx context.Context, orgID, poID, invoiceID string) (*models.DocumentMatchRecord, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "reconcile by id without a document source", nil)
	}

	po, err := r.source.GetPurchaseOrder(ctx, orgID, poID)
	if err != nil {
		return nil, err
	}
	inv, err := r.source.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(po, inv)
}

// FindBestPO reconciles an invoice against every open or partially fulfilled
// PO of its vendor and keeps the highest score. It returns nil when the
// vendor has no candidate PO. Ties keep the earlier PO in store order.
func (r *DocumentReconciler) FindBestPO(ctx context.Context, orgID, invoiceID string) (*models.DocumentMatchRecord, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "find best po without a document source", nil)
	}

	inv, err := r.source.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}

	pos, err := r.source.ListPurchaseOrders(ctx, orgID, models.POFilter{
		VendorID: inv.PartyID,
		Statuses: []models.POStatus{models.POStatusOpen, models.POStatusPartiallyFulfilled},
	})
	if err != nil {
		return nil, err
	}

	return r.BestOf(inv, pos)
}

// BestOf reconciles inv against each candidate PO and returns the best record
func (r *DocumentReconciler) BestOf(inv *models.Invoice, pos []*models.PurchaseOrder) (*models.DocumentMatchRecord, error) {
	var best *models.DocumentMatchRecord
	for _, po := range pos {
		if !po.Status.IsReconcilable() {
			continue
		}
		record, err := r.Reconcile(po, inv)
		if err != nil {
			return nil, err
		}
		if best == nil || record.Score > best.Score {
			best = record
		}
	}

	if best == nil {
		r.logger.WithFields(logger.Fields{
			"invoice_id": inv.ID,
			"vendor_id":  inv.PartyID,
		}).Debug("No open purchase orders for vendor")
	}
	return best, nil
}

// AuditVendor runs FindBestPO for every purchase invoice of a vendor, one at a
// time. Invoices without a candidate PO are omitted from the result.
func (r *DocumentReconciler) AuditVendor(ctx context.Context, orgID, vendorID string) ([]*models.DocumentMatchRecord, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "vendor audit without a document source", nil)
	}

	invoices, err := r.source.ListInvoices(ctx, orgID, models.InvoiceFilter{
		Kind:    models.InvoiceKindPurchase,
		PartyID: vendorID,
	})
	if err != nil {
		return nil, err
	}
	pos, err := r.source.ListPurchaseOrders(ctx, orgID, models.POFilter{
		VendorID: vendorID,
		Statuses: []models.POStatus{models.POStatusOpen, models.POStatusPartiallyFulfilled},
	})
	if err != nil {
		return nil, err
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "vendor audit " + vendorID,
		Total:     int64(len(invoices)),
		Logger:    r.logger,
	})

	var results []*models.DocumentMatchRecord
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			tracker.CompleteWithError(err)
			return results, err
		}
		record, err := r.BestOf(inv, pos)
		if err != nil {
			tracker.Fail()
			tracker.CompleteWithError(err)
			return results, err
		}
		tracker.Increment()
		if record != nil {
			results = append(results, record)
		}
	}
	tracker.Complete()

	return results, nil
}

func (r *DocumentReconciler) lineDiscrepancies(lm models.LineMatchRecord, outcome LineMatchOutcome) []models.Discrepancy {
	var pair models.MatchCandidatePair
	for _, p := range outcome.Pairs {
		if p.InvoiceLine.ID == lm.InvoiceLineID && p.POLine.ID == lm.POLineID {
			pair = p
			break
		}
	}

	var out []models.Discrepancy
	if !lm.QtyWithinTol {
		sev := models.SeverityMedium
		if lm.QtyVariancePct > r.config.QtyHighVariancePct {
			sev = models.SeverityHigh
		}
		d := models.NewDiscrepancy(models.DiscrepancyQtyVariance, sev,
			fmt.Sprintf("quantity for %q differs by %.2f%% (tolerance %.2f%%)",
				pair.InvoiceLine.Description, lm.QtyVariancePct, r.config.QtyTolerancePct)).
			WithValues(pair.POLine.Quantity, pair.InvoiceLine.Quantity, lm.QtyVariancePct)
		d.LineID = lm.InvoiceLineID
		out = append(out, d)
	}
	if !lm.PriceWithinTol {
		sev := models.SeverityLow
		if lm.PriceVariancePct > r.config.PriceHighVariancePct {
			sev = models.SeverityHigh
		}
		d := models.NewDiscrepancy(models.DiscrepancyPriceVariance, sev,
			fmt.Sprintf("unit price for %q differs by %.2f%% (tolerance %.2f%%)",
				pair.InvoiceLine.Description, lm.PriceVariancePct, r.config.PriceTolerancePct)).
			WithValues(pair.POLine.UnitPrice, pair.InvoiceLine.UnitPrice, lm.PriceVariancePct)
		d.LineID = lm.InvoiceLineID
		out = append(out, d)
	}
	return out
}

func (r *DocumentReconciler) totalSeverity(variancePct float64) models.Severity {
	if variancePct > r.config.TotalHighVariancePct {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// overallScore weights the average line score (unmatched lines on either
// side count as zero) and adds up to TotalsPoints for each totals check.
func (r *DocumentReconciler) overallScore(outcome LineMatchOutcome, valueVar, gstVar float64, valueMatch, gstMatch bool) float64 {
	count := len(outcome.Records) + len(outcome.UnmatchedPO) + len(outcome.UnmatchedInvoice)
	var avg float64
	if count > 0 {
		var sum float64
		for _, rec := range outcome.Records {
			sum += rec.Score
		}
		avg = sum / float64(count)
	}

	points := func(match bool, variance float64) float64 {
		if match {
			return r.config.TotalsPoints
		}
		return math.Max(0, r.config.TotalsPoints-variance)
	}

	score := r.config.LineScoreWeight*avg + points(valueMatch, valueVar) + points(gstMatch, gstVar)
	return models.RoundScore(models.ClampScore(score))
}

func (r *DocumentReconciler) matchType(record *models.DocumentMatchRecord, matchedLines int) models.DocumentMatchType {
	switch {
	case record.Score >= r.config.ExactDocumentScore && len(record.Discrepancies) == 0:
		return models.DocumentMatchExact
	case record.Score < r.config.NoMatchScore && matchedLines == 0:
		return models.DocumentMatchNone
	case !record.TotalValueMatch && !record.TotalGSTMatch:
		return models.DocumentMatchPartialBoth
	case !record.TotalValueMatch:
		return models.DocumentMatchPartialQty
	case !record.TotalGSTMatch:
		return models.DocumentMatchPartialValue
	default:
		return models.DocumentMatchPartialQty
	}
}

func (r *DocumentReconciler) reasons(record *models.DocumentMatchRecord, outcome LineMatchOutcome, hasHigh bool) []string {
	reasons := []string{
		fmt.Sprintf("%d of %d invoice lines matched, %d purchase order lines not invoiced",
			len(outcome.Records), len(outcome.Records)+len(outcome.UnmatchedInvoice), len(outcome.UnmatchedPO)),
	}

	if record.TotalValueMatch {
		reasons = append(reasons, fmt.Sprintf("subtotal within %.2f%% tolerance (variance %.2f%%)",
			r.config.ValueTolerancePct, record.ValueVariancePct))
	} else {
		reasons = append(reasons, fmt.Sprintf("subtotal outside %.2f%% tolerance (variance %.2f%%)",
			r.config.ValueTolerancePct, record.ValueVariancePct))
	}
	if record.TotalGSTMatch {
		reasons = append(reasons, fmt.Sprintf("tax-inclusive total within %.2f%% tolerance (variance %.2f%%)",
			r.config.GSTTolerancePct, record.GSTVariancePct))
	} else {
		reasons = append(reasons, fmt.Sprintf("tax-inclusive total outside %.2f%% tolerance (variance %.2f%%)",
			r.config.GSTTolerancePct, record.GSTVariancePct))
	}

	switch {
	case record.AutoApprove:
		reasons = append(reasons, fmt.Sprintf("auto-approved: score %.2f with no high-severity discrepancies", record.Score))
	case hasHigh:
		reasons = append(reasons, fmt.Sprintf("queued for review: score %.2f with high-severity discrepancies", record.Score))
	default:
		reasons = append(reasons, fmt.Sprintf("queued for review: score %.2f below %.2f", record.Score, r.config.AutoApproveScore))
	}
	return reasons
}

func invalidLineValues(side string, lines []models.LineItem) []models.Discrepancy {
	var out []models.Discrepancy
	for _, line := range lines {
		if !line.HasNegativeValue() {
			continue
		}
		d := models.NewDiscrepancy(models.DiscrepancyInvalidValue, models.SeverityHigh,
			fmt.Sprintf("%s line %q has a negative quantity or unit price (qty %s, price %s)",
				side, line.Description, line.Quantity.String(), line.UnitPrice.String()))
		d.LineID = line.ID
		out = append(out, d)
	}
	return out
}
