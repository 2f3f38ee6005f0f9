package reporter

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/parsers"
	"github.com/mohit-ambani/auditflow-sub000/internal/payment"
	"github.com/mohit-ambani/auditflow-sub000/internal/reconciler"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// Section names shared by several builders
const (
	SectionMatches       = "Matches"
	SectionDiscrepancies = "Discrepancies"
	SectionLines         = "Lines"
	SectionCandidates    = "Candidates"
	SectionAllocations   = "Allocations"
	SectionInvoices      = "Invoices"
	SectionEntries       = "Entries"
	SectionErrors        = "Errors"
	SectionDuplicates    = "Possible Duplicates"
)

// NewDocumentMatchReport reports PO to invoice verdicts
func NewDocumentMatchReport(records []*models.DocumentMatchRecord) *Report {
	report := NewReport("Document Match Report", records)

	byType := map[models.DocumentMatchType]int{}
	auto, review := 0, 0
	for _, r := range records {
		byType[r.MatchType]++
		if r.AutoApprove {
			auto++
		}
		if r.NeedsReview {
			review++
		}
	}
	report.AddMetric("Documents", len(records))
	report.AddMetric("Auto Approved", auto)
	report.AddMetric("Needs Review", review)
	report.AddMetric("Auto Approval Rate %", calculatePercentage(auto, len(records)))
	for _, t := range []models.DocumentMatchType{
		models.DocumentMatchExact, models.DocumentMatchPartialQty, models.DocumentMatchPartialValue,
		models.DocumentMatchPartialBoth, models.DocumentMatchNone,
	} {
		report.AddMetric(string(t), byType[t])
	}

	matches := report.AddSection(SectionMatches, "PO", "Invoice", "Type", "Score",
		"Value Variance %", "GST Variance %", "Auto Approve", "Needs Review", "Resolved By", reasonsHeader)
	lines := report.AddSection(SectionLines, "PO", "Invoice", "PO Line", "Invoice Line", "Class", "Score",
		"Qty Variance", "Price Variance", "Amount Variance")
	discrepancies := newDiscrepancySection(report, "PO", "Invoice")

	for _, r := range records {
		resolvedBy := ""
		if r.Resolution != nil {
			resolvedBy = r.Resolution.ResolvedBy
		}
		matches.AddRow(r.PurchaseOrderID, r.InvoiceID, string(r.MatchType), r.Score,
			r.ValueVariancePct, r.GSTVariancePct, r.AutoApprove, r.NeedsReview, resolvedBy, r.Reasons)
		for _, lm := range r.LineMatches {
			lines.AddRow(r.PurchaseOrderID, r.InvoiceID, lm.POLineID, lm.InvoiceLineID, string(lm.Class), lm.Score,
				lm.QtyVariance, lm.PriceVariance, lm.AmountVariance)
		}
		for _, id := range r.UnmatchedPOLines {
			lines.AddRow(r.PurchaseOrderID, r.InvoiceID, id, "", "UNMATCHED", 0.0, "", "", "")
		}
		for _, id := range r.UnmatchedInvoiceLines {
			lines.AddRow(r.PurchaseOrderID, r.InvoiceID, "", id, "UNMATCHED", 0.0, "", "", "")
		}
		addDiscrepancies(discrepancies, r.Discrepancies, r.PurchaseOrderID, r.InvoiceID)
	}
	return report
}

// NewBatchReport reports a batch of best-PO searches
func NewBatchReport(outcomes []reconciler.InvoiceOutcome) *Report {
	summary := reconciler.Summarize(outcomes)
	report := NewReport("Invoice Batch Report", struct {
		Summary  reconciler.BatchSummary     `json:"summary"`
		Outcomes []reconciler.InvoiceOutcome `json:"outcomes"`
	}{summary, outcomes})

	report.AddMetric("Invoices", summary.Total)
	report.AddMetric("Auto Approved", summary.AutoApproved)
	report.AddMetric("Needs Review", summary.NeedsReview)
	report.AddMetric("No Candidate PO", summary.NoCandidate)
	report.AddMetric("Failed", summary.Failed)
	if failures := batchFailures(outcomes); failures.Total > 0 {
		report.AddMetric("Failures", failures.Error())
	}

	section := report.AddSection(SectionInvoices, "Invoice", "Outcome", "PO", "Type", "Score", reasonsHeader)
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			section.AddRow(o.InvoiceID, "FAILED", "", "", 0.0, []string{o.Err.Error()})
		case o.Record == nil:
			section.AddRow(o.InvoiceID, "NO_CANDIDATE", "", "", 0.0, []string{"vendor has no open purchase order"})
		default:
			verdict := "NEEDS_REVIEW"
			if o.Record.AutoApprove {
				verdict = "AUTO_APPROVED"
			}
			section.AddRow(o.InvoiceID, verdict, o.Record.PurchaseOrderID, string(o.Record.MatchType),
				o.Record.Score, o.Record.Reasons)
		}
	}
	return report
}

// batchFailures groups failed outcomes by error category, e.g. "3 errors
// occurred (not_found: 2, storage: 1)"
func batchFailures(outcomes []reconciler.InvoiceOutcome) *apperrors.ErrorSummary {
	var errs []*apperrors.ReconcilerError
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, apperrors.WrapIfNeeded(o.Err, apperrors.CategoryInternal,
				apperrors.CodeUnexpectedError, "reconcile invoice "+o.InvoiceID))
		}
	}
	return apperrors.NewErrorSummary(errs)
}

// NewPaymentMatchReport reports ranked invoice candidates per transaction.
// summary may be nil for a single transaction.
func NewPaymentMatchReport(results []*models.PaymentMatchResult, summary *payment.BatchSummary) *Report {
	report := NewReport("Payment Match Report", struct {
		Summary *payment.BatchSummary        `json:"summary,omitempty"`
		Results []*models.PaymentMatchResult `json:"results"`
	}{summary, results})

	if summary != nil {
		report.AddMetric("Transactions", summary.TotalTransactions)
		report.AddMetric("Invoices Indexed", summary.IndexedInvoices)
		report.AddMetric("Auto Matched", summary.AutoMatched)
		report.AddMetric("Needs Review", summary.NeedsReview)
		report.AddMetric("No Candidates", summary.NoCandidates)
		report.AddMetric("Exact", summary.ExactMatches)
		report.AddMetric("Reference", summary.ReferenceMatches)
		report.AddMetric("Fuzzy", summary.FuzzyMatches)
		report.AddMetric("Partial", summary.PartialMatches)
		report.AddMetric("Split", summary.SplitMatches)
		report.AddMetric("Auto Matched Amount", summary.TotalAutoMatched)
	} else {
		report.AddMetric("Transactions", len(results))
	}

	matches := report.AddSection(SectionMatches, "Transaction", "Best Invoice", "Type", "Confidence",
		"Auto Match", "Needs Review", "Split", reasonsHeader)
	candidates := report.AddSection(SectionCandidates, "Transaction", "Invoice", "Number", "Outstanding",
		"Difference", "Type", "Score", "Amount", "Reference", "Description", "Date")

	for _, r := range results {
		best := ""
		if r.BestMatch != nil {
			best = r.BestMatch.InvoiceID
		}
		split := make([]string, 0, len(r.SplitProposal))
		for _, s := range r.SplitProposal {
			split = append(split, s.InvoiceID+"="+s.Amount.StringFixed(2))
		}
		matches.AddRow(r.TransactionID, best, string(r.MatchType), r.Confidence, r.AutoMatch, r.NeedsReview,
			strings.Join(split, " "), r.Reasons)
		for _, c := range r.Candidates {
			candidates.AddRow(r.TransactionID, c.InvoiceID, c.InvoiceNumber, c.Outstanding, c.Difference,
				string(c.MatchType), c.Score, c.Signals.Amount, c.Signals.Reference, c.Signals.Description, c.Signals.Date)
		}
	}
	return report
}

// NewAllocationReport reports the writes of one allocation
func NewAllocationReport(plan *models.AllocationPlan) *Report {
	report := NewReport("Payment Allocation", plan)
	total := decimal.Zero
	for _, a := range plan.Allocations {
		total = total.Add(a.Amount)
	}
	report.AddMetric("Transaction", plan.TransactionID)
	report.AddMetric("Transaction Status", string(plan.TransactionStatus))
	report.AddMetric("Confidence", plan.Confidence)
	report.AddMetric("Allocated", total)

	allocations := report.AddSection(SectionAllocations, "Invoice", "Amount", "Balance Before", "Balance After", "Paid On", "Allocated At")
	for _, a := range plan.Allocations {
		allocations.AddRow(a.InvoiceID, a.Amount, a.BalanceBefore, a.BalanceAfter, a.PaidOn, a.AllocatedAt)
	}
	addInvoiceUpdates(report, plan.InvoiceUpdates)
	return report
}

// NewReversalReport reports the allocations removed from a transaction
func NewReversalReport(plan *models.ReversalPlan) *Report {
	report := NewReport("Allocation Reversal", plan)
	report.AddMetric("Transaction", plan.TransactionID)
	report.AddMetric("Transaction Status", string(plan.TransactionStatus))
	report.AddMetric("Allocations Removed", len(plan.Removed))

	removed := report.AddSection(SectionAllocations, "Invoice", "Amount", "Allocated At")
	for _, a := range plan.Removed {
		removed.AddRow(a.InvoiceID, a.Amount, a.AllocatedAt)
	}
	addInvoiceUpdates(report, plan.InvoiceUpdates)
	return report
}

func addInvoiceUpdates(report *Report, updates []models.InvoicePaymentUpdate) {
	section := report.AddSection(SectionInvoices, "Invoice", "Amount Paid", "Status")
	for _, u := range updates {
		section.AddRow(u.InvoiceID, u.AmountPaid, string(u.Status))
	}
}

// NewGSTReturnReport reports a whole return period
func NewGSTReturnReport(summary *models.GSTReturnSummary) *Report {
	report := NewReport("GST Return Reconciliation", summary)
	report.AddMetric("Period", summary.Period)
	if summary.GSTIN != "" {
		report.AddMetric("GSTIN", summary.GSTIN)
	}
	report.AddMetric("Entries", len(summary.Records))
	report.AddMetric("Matched", summary.Matched)
	report.AddMetric("Unmatched", summary.Unmatched)
	report.AddMetric("Missing In Books", summary.MissingInBooks)
	report.AddMetric("Missing In Return", summary.MissingInGSTR)
	report.AddMetric("Filed Tax", summary.FiledTax)
	report.AddMetric("Claimed Tax", summary.ClaimedTax)
	report.AddMetric("ITC Delta", summary.ITCDelta)

	records := make([]*models.GSTMatchRecord, len(summary.Records))
	for i := range summary.Records {
		records[i] = &summary.Records[i]
	}
	addGSTSections(report, records)

	if len(summary.MissingInvoices) > 0 {
		missing := report.AddSection("Missing In Return", "Invoice")
		for _, id := range summary.MissingInvoices {
			missing.AddRow(id)
		}
	}
	return report
}

// NewGSTMatchReport reports individually matched return entries
func NewGSTMatchReport(records []*models.GSTMatchRecord) *Report {
	report := NewReport("GST Entry Match", records)
	matched := 0
	for _, r := range records {
		if r.Matched() {
			matched++
		}
	}
	report.AddMetric("Entries", len(records))
	report.AddMetric("Matched", matched)
	addGSTSections(report, records)
	return report
}

func addGSTSections(report *Report, records []*models.GSTMatchRecord) {
	entries := report.AddSection(SectionEntries, "Entry", "Invoice", "Class", "Score", "ITC Status", reasonsHeader)
	discrepancies := newDiscrepancySection(report, "Entry", "Invoice")
	for _, r := range records {
		entries.AddRow(r.EntryID, r.InvoiceID, string(r.Class), r.Score, string(r.ITCStatus), r.Reasons)
		addDiscrepancies(discrepancies, r.Discrepancies, r.EntryID, r.InvoiceID)
	}
}

// NewDiscountReport reports discount evaluations
func NewDiscountReport(evals []*models.DiscountEvaluation) *Report {
	report := NewReport("Discount Evaluation", evals)
	byClass := map[models.DiscountClass]int{}
	shortfall := decimal.Zero
	for _, e := range evals {
		byClass[e.Class]++
		if e.Class == models.DiscountUnderDiscounted {
			shortfall = shortfall.Add(e.Difference.Abs())
		}
	}
	report.AddMetric("Invoices", len(evals))
	for _, c := range []models.DiscountClass{
		models.DiscountCorrect, models.DiscountUnderDiscounted, models.DiscountOverDiscounted, models.DiscountNeedsReview,
	} {
		report.AddMetric(string(c), byClass[c])
	}
	report.AddMetric("Discount Shortfall", shortfall)

	section := report.AddSection(SectionInvoices, "Invoice", "Term", "Expected", "Actual", "Difference", "Class", reasonsHeader)
	for _, e := range evals {
		section.AddRow(e.InvoiceID, e.TermID, e.ExpectedDiscount, e.ActualDiscount, e.Difference, string(e.Class), e.Reasons)
	}
	return report
}

// NewPenaltyReport reports late-payment penalties
func NewPenaltyReport(evals []*models.PenaltyEvaluation) *Report {
	report := NewReport("Late Payment Penalties", evals)
	total := decimal.Zero
	late := 0
	for _, e := range evals {
		total = total.Add(e.Penalty)
		if e.DaysLate > 0 {
			late++
		}
	}
	report.AddMetric("Invoices", len(evals))
	report.AddMetric("Paid Late", late)
	report.AddMetric("Total Penalty", total)

	section := report.AddSection(SectionInvoices, "Invoice", "Term", "Payment Date", "Days Late", "Penalty", reasonsHeader)
	for _, e := range evals {
		section.AddRow(e.InvoiceID, e.TermID, e.PaymentDate, e.DaysLate, e.Penalty, e.Reasons)
	}
	return report
}

// NewSKUReport reports catalog resolutions of free-text descriptions
func NewSKUReport(resolutions []*models.SKUResolution) *Report {
	report := NewReport("SKU Resolution", resolutions)
	byTier := map[models.SKUTier]int{}
	review := 0
	for _, r := range resolutions {
		if r.BestMatch != nil {
			byTier[r.BestMatch.Tier]++
		}
		if r.NeedsReview {
			review++
		}
	}
	report.AddMetric("Descriptions", len(resolutions))
	for _, t := range []models.SKUTier{models.SKUTierExact, models.SKUTierAlias, models.SKUTierFuzzy, models.SKUTierAI} {
		report.AddMetric(string(t), byTier[t])
	}
	report.AddMetric("Needs Review", review)

	lines := report.AddSection(SectionLines, "Description", "Catalog Entry", "Tier", "Confidence", "Needs Review")
	candidates := report.AddSection(SectionCandidates, "Description", "Catalog Entry", "Tier", "Confidence", "Matched Text")
	for _, r := range resolutions {
		if r.BestMatch != nil {
			lines.AddRow(r.Description, r.BestMatch.CatalogID, string(r.BestMatch.Tier), r.BestMatch.Confidence, r.NeedsReview)
		} else {
			lines.AddRow(r.Description, "", "", 0.0, r.NeedsReview)
		}
		for _, c := range r.Candidates {
			candidates.AddRow(r.Description, c.CatalogID, string(c.Tier), c.Confidence, c.MatchedText)
		}
	}
	return report
}

// NewReviewQueueReport lists results waiting for a reviewer
func NewReviewQueueReport(results []*models.StoredResult) *Report {
	report := NewReport("Review Queue", results)
	byKind := map[models.ResultKind]int{}
	for _, r := range results {
		byKind[r.Kind]++
	}
	report.AddMetric("Pending", len(results))
	for _, k := range []models.ResultKind{
		models.ResultDocumentMatch, models.ResultGSTMatch, models.ResultDiscountEvaluation, models.ResultPaymentAllocation,
	} {
		if byKind[k] > 0 {
			report.AddMetric(string(k), byKind[k])
		}
	}

	section := report.AddSection("Pending", "Key", "Kind", "Subjects", "Class", "Score", "Updated")
	for _, r := range results {
		section.AddRow(r.Key, string(r.Kind), strings.Join(r.SubjectIDs, " / "), r.Class, r.Score, r.UpdatedAt)
	}
	return report
}

// NewImportReport reports the outcome of a statement import
func NewImportReport(title, source string, stats *parsers.ParseStats) *Report {
	report := NewReport(title, stats)
	report.AddMetric("Source", source)
	report.AddMetric("Lines", stats.TotalLines)
	report.AddMetric("Rows Parsed", stats.RecordsParsed)
	report.AddMetric("Rows Imported", stats.RecordsValid)
	report.AddMetric("Rows Rejected", stats.ErrorCount)
	report.AddMetric("Success Rate %", calculatePercentage(stats.RecordsValid, stats.RecordsParsed))

	section := report.AddSection(SectionErrors, "Line", "Field", "Value", "Message")
	for _, e := range stats.Errors {
		msg := e.Message
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		section.AddRow(e.Line, e.Field, e.Value, msg)
	}
	return report
}

// AddDuplicateSection lists statement lines that look imported twice
func AddDuplicateSection(report *Report, groups []payment.DuplicateGroup) {
	report.AddMetric("Possible Duplicates", len(groups))
	section := report.AddSection(SectionDuplicates, "Group", "Transactions", "Amount", "Direction", "Confidence", reasonsHeader)
	for _, g := range groups {
		section.AddRow(g.GroupID, g.TransactionIDs, g.Amount, string(g.Direction), g.Confidence, g.Reason)
	}
}

func newDiscrepancySection(report *Report, subject, other string) *Section {
	return report.AddSection(SectionDiscrepancies, subject, other, "Type", "Severity", "Line",
		"Expected", "Actual", "Variance %", "Message")
}

func addDiscrepancies(section *Section, ds []models.Discrepancy, subject, other string) {
	for _, d := range ds {
		var variance interface{} = ""
		if d.Variance != nil {
			variance = *d.Variance
		}
		section.AddRow(subject, other, string(d.Type), string(d.Severity), d.LineID, d.Expected, d.Actual, variance, d.Message)
	}
}
