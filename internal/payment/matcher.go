package payment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// InvoiceSource is the read side of the store used by the matcher
type InvoiceSource interface {
	GetTransaction(ctx context.Context, orgID, id string) (*models.BankTransaction, error)
	ListTransactions(ctx context.Context, orgID string, filter models.TransactionFilter) ([]*models.BankTransaction, error)
	ListInvoices(ctx context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error)
}

// Matcher ranks open invoices as settlement candidates for bank transactions
type Matcher struct {
	config *Config
	source InvoiceSource
	logger logger.Logger
}

// BatchResult is the outcome of matching every unmatched transaction of an
// organization in one pass
type BatchResult struct {
	Results []*models.PaymentMatchResult
	Summary BatchSummary
}

// BatchSummary provides aggregate statistics about a batch run
type BatchSummary struct {
	TotalTransactions int
	IndexedInvoices   int
	AutoMatched       int
	NeedsReview       int
	NoCandidates      int
	ExactMatches      int
	FuzzyMatches      int
	ReferenceMatches  int
	PartialMatches    int
	SplitMatches      int
	TotalAutoMatched  decimal.Decimal
}

// NewMatcher creates a payment matcher. A nil config uses DefaultConfig; source
// may be nil when only MatchTransaction is used.
func NewMatcher(config *Config, source InvoiceSource, log logger.Logger) *Matcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Matcher{
		config: config,
		source: source,
		logger: logger.OrGlobal(log, "payment-matcher"),
	}
}

// Match loads a transaction and its candidate invoices and ranks them
func (m *Matcher) Match(ctx context.Context, orgID, transactionID string) (*models.PaymentMatchResult, error) {
	if m.source == nil {
		return nil, fmt.Errorf("payment matcher has no invoice source")
	}

	txn, err := m.source.GetTransaction(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}

	invoices, err := m.source.ListInvoices(ctx, orgID, models.InvoiceFilter{
		Kind:            models.KindForDirection(txn.Direction),
		From:            txn.Date.AddDate(0, 0, -m.config.DateWindowDays),
		To:              txn.Date.AddDate(0, 0, m.config.DateWindowDays),
		PaymentStatuses: []models.PaymentStatus{models.PaymentStatusUnpaid, models.PaymentStatusPartiallyPaid},
	})
	if err != nil {
		return nil, err
	}

	return m.MatchTransaction(txn, invoices), nil
}

// MatchUnmatched ranks candidates for every UNMATCHED transaction of the
// organization against one index of its open invoices
func (m *Matcher) MatchUnmatched(ctx context.Context, orgID string) (*BatchResult, error) {
	if m.source == nil {
		return nil, fmt.Errorf("payment matcher has no invoice source")
	}

	txns, err := m.source.ListTransactions(ctx, orgID, models.TransactionFilter{Status: models.TransactionUnmatched})
	if err != nil {
		return nil, err
	}
	invoices, err := m.source.ListInvoices(ctx, orgID, models.InvoiceFilter{
		PaymentStatuses: []models.PaymentStatus{models.PaymentStatusUnpaid, models.PaymentStatusPartiallyPaid},
	})
	if err != nil {
		return nil, err
	}

	index := NewInvoiceIndex(invoices)
	batch := &BatchResult{
		Summary: BatchSummary{
			TotalTransactions: len(txns),
			IndexedInvoices:   index.GetIndexStats().TotalInvoices,
			TotalAutoMatched:  decimal.Zero,
		},
	}

	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		result := m.MatchTransaction(txn, index.GetCandidates(txn, m.config.DateWindowDays))
		batch.Results = append(batch.Results, result)
		batch.Summary.add(result, txn)
	}

	m.logger.WithFields(logger.Fields{
		"org_id":        orgID,
		"transactions":  batch.Summary.TotalTransactions,
		"auto_matched":  batch.Summary.AutoMatched,
		"needs_review":  batch.Summary.NeedsReview,
		"no_candidates": batch.Summary.NoCandidates,
	}).Info("Payment matching pass completed")

	return batch, nil
}

// MatchTransaction scores invoices against txn. Invoices of the wrong kind,
// already paid or dated outside the window are ignored.
func (m *Matcher) MatchTransaction(txn *models.BankTransaction, invoices []*models.Invoice) *models.PaymentMatchResult {
	result := &models.PaymentMatchResult{
		OrgID:         txn.OrgID,
		TransactionID: txn.ID,
		Candidates:    []models.PaymentCandidate{},
	}

	dates := make(map[string]*models.Invoice, len(invoices))
	for _, inv := range invoices {
		if !m.eligible(txn, inv) {
			continue
		}
		candidate := m.ScoreCandidate(txn, inv)
		if candidate.Score < m.config.MinCandidateScore {
			continue
		}
		dates[inv.ID] = inv
		result.Candidates = append(result.Candidates, candidate)
	}

	// Highest score first; ties go to the older invoice, then the lower id.
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da, db := models.TruncateDay(dates[a.InvoiceID].Date), models.TruncateDay(dates[b.InvoiceID].Date)
		if !da.Equal(db) {
			return da.Before(db)
		}
		return a.InvoiceID < b.InvoiceID
	})

	if m.config.MaxCandidates > 0 && len(result.Candidates) > m.config.MaxCandidates {
		result.Candidates = result.Candidates[:m.config.MaxCandidates]
	}

	if len(result.Candidates) == 0 {
		result.NeedsReview = true
		result.Reasons = []string{fmt.Sprintf("no open %s invoice scored at least %.0f within %d days",
			strings.ToLower(string(models.KindForDirection(txn.Direction))), m.config.MinCandidateScore, m.config.DateWindowDays)}
		return result
	}

	best := result.Candidates[0]
	result.BestMatch = &best
	result.Confidence = best.Score
	result.MatchType = best.MatchType
	result.AutoMatch = best.Score >= m.config.AutoMatchScore && best.MatchType != models.PaymentMatchSplit
	result.NeedsReview = !result.AutoMatch

	if best.MatchType == models.PaymentMatchSplit {
		result.SplitProposal = PlanSplit(txn.Amount, result.Candidates)
	}

	result.Reasons = append([]string{}, best.Reasons...)
	switch {
	case result.AutoMatch:
		result.Reasons = append(result.Reasons, fmt.Sprintf("auto-matched to %s with confidence %.0f", best.InvoiceNumber, best.Score))
	case best.MatchType == models.PaymentMatchSplit:
		result.Reasons = append(result.Reasons, "transaction exceeds the best invoice's outstanding, split across candidates proposed")
	default:
		result.Reasons = append(result.Reasons, fmt.Sprintf("queued for review: confidence %.0f below %.0f", best.Score, m.config.AutoMatchScore))
	}
	return result
}

// ScoreCandidate computes the signal breakdown of one invoice for txn
func (m *Matcher) ScoreCandidate(txn *models.BankTransaction, inv *models.Invoice) models.PaymentCandidate {
	outstanding := inv.Outstanding()
	diff := txn.Amount.Sub(outstanding)
	absDiff := diff.Abs()

	var signals models.PaymentSignals
	var reasons []string

	signals.Amount, reasons = m.amountPoints(txn.Amount, outstanding, absDiff, reasons)
	signals.Reference, reasons = m.referencePoints(txn.Reference, inv.Number, reasons)
	signals.Description, reasons = m.descriptionPoints(txn.Description, inv.Number, reasons)
	signals.Date, reasons = m.datePoints(txn, inv, reasons)

	candidate := models.PaymentCandidate{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Outstanding:   outstanding,
		Difference:    diff,
		Signals:       signals,
		Score:         models.RoundScore(models.ClampScore(signals.Total())),
		Reasons:       reasons,
	}
	candidate.MatchType = m.matchType(txn.Amount, outstanding, absDiff, signals)
	return candidate
}

func (m *Matcher) eligible(txn *models.BankTransaction, inv *models.Invoice) bool {
	if inv.Kind != models.KindForDirection(txn.Direction) || !inv.PaymentStatus.IsOpen() {
		return false
	}
	if !inv.Outstanding().IsPositive() {
		return false
	}
	return models.AbsDays(txn.Date, inv.Date) <= m.config.DateWindowDays
}

func (m *Matcher) amountPoints(amount, outstanding, absDiff decimal.Decimal, reasons []string) (float64, []string) {
	p := m.config.Points
	switch {
	case absDiff.LessThan(m.config.exactTolerance()):
		return p.ExactAmount, append(reasons, "amount equals the outstanding balance")
	case absDiff.LessThanOrEqual(m.config.fuzzyTolerance()):
		return p.FuzzyAmount, append(reasons, fmt.Sprintf("amount within %.2f of the outstanding balance (difference %s)",
			m.config.FuzzyTolerance, absDiff.StringFixed(2)))
	}

	if amount.GreaterThanOrEqual(outstanding) {
		return 0, reasons
	}
	ratio := amount.Div(outstanding).InexactFloat64()
	switch {
	case ratio >= m.config.NearFullRatio:
		return p.NearFullPayment, append(reasons, fmt.Sprintf("near-full partial payment (%.0f%% of outstanding)", ratio*100))
	case ratio >= m.config.HalfRatio:
		return p.HalfPayment, append(reasons, fmt.Sprintf("partial payment (%.0f%% of outstanding)", ratio*100))
	}
	return 0, reasons
}

func (m *Matcher) referencePoints(reference, invoiceNumber string, reasons []string) (float64, []string) {
	ref := strings.ToLower(strings.TrimSpace(reference))
	num := strings.ToLower(strings.TrimSpace(invoiceNumber))
	if ref == "" || num == "" {
		return 0, reasons
	}
	if strings.Contains(ref, num) || strings.Contains(num, ref) {
		return m.config.Points.Reference, append(reasons, fmt.Sprintf("reference %q matches invoice number %s", reference, invoiceNumber))
	}

	normNum := models.NormalizeNumber(invoiceNumber)
	if normNum != "" && strings.Contains(models.NormalizeNumber(reference), normNum) {
		return m.config.Points.ExtractedReference, append(reasons, fmt.Sprintf("invoice number %s found inside reference %q", invoiceNumber, reference))
	}
	return 0, reasons
}

func (m *Matcher) descriptionPoints(description, invoiceNumber string, reasons []string) (float64, []string) {
	desc := strings.ToLower(description)
	num := strings.ToLower(strings.TrimSpace(invoiceNumber))
	if num == "" || !strings.Contains(desc, num) {
		return 0, reasons
	}
	return m.config.Points.Description, append(reasons, fmt.Sprintf("description mentions invoice number %s", invoiceNumber))
}

// datePoints awards the highest applicable date tier
func (m *Matcher) datePoints(txn *models.BankTransaction, inv *models.Invoice, reasons []string) (float64, []string) {
	p := m.config.Points
	toInvoice := models.AbsDays(txn.Date, inv.Date)
	nearest := toInvoice

	toDue := -1
	if !inv.DueDate.IsZero() {
		toDue = models.AbsDays(txn.Date, inv.DueDate)
		if toDue < nearest {
			nearest = toDue
		}
	}

	switch {
	case toInvoice <= 7:
		return p.NearInvoiceDate, append(reasons, fmt.Sprintf("paid %d days from the invoice date", toInvoice))
	case toDue >= 0 && toDue <= 7:
		return p.NearDueDate, append(reasons, fmt.Sprintf("paid %d days from the due date", toDue))
	case nearest <= 30:
		return p.WithinMonth, append(reasons, "paid within a month of the invoice")
	case nearest <= 60:
		return p.WithinTwoMonths, append(reasons, "paid within two months of the invoice")
	}
	return 0, reasons
}

func (m *Matcher) matchType(amount, outstanding, absDiff decimal.Decimal, signals models.PaymentSignals) models.PaymentMatchType {
	switch {
	case absDiff.LessThan(m.config.exactTolerance()):
		return models.PaymentMatchExact
	case absDiff.LessThanOrEqual(m.config.fuzzyTolerance()):
		return models.PaymentMatchFuzzy
	case amount.GreaterThan(outstanding.Add(m.config.fuzzyTolerance())):
		return models.PaymentMatchSplit
	case signals.Reference > 0 && signals.Amount == 0:
		return models.PaymentMatchReference
	default:
		return models.PaymentMatchPartial
	}
}

func (s *BatchSummary) add(result *models.PaymentMatchResult, txn *models.BankTransaction) {
	if result.BestMatch == nil {
		s.NoCandidates++
		s.NeedsReview++
		return
	}
	if result.AutoMatch {
		s.AutoMatched++
		s.TotalAutoMatched = s.TotalAutoMatched.Add(txn.Amount)
	} else {
		s.NeedsReview++
	}

	switch result.MatchType {
	case models.PaymentMatchExact:
		s.ExactMatches++
	case models.PaymentMatchFuzzy:
		s.FuzzyMatches++
	case models.PaymentMatchReference:
		s.ReferenceMatches++
	case models.PaymentMatchPartial:
		s.PartialMatches++
	case models.PaymentMatchSplit:
		s.SplitMatches++
	}
}
