package discount

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// TermSource is the read side of the store used by the evaluator
type TermSource interface {
	GetInvoice(ctx context.Context, orgID, id string) (*models.Invoice, error)
	ListDiscountTerms(ctx context.Context, orgID, vendorID string) ([]*models.DiscountTerm, error)
	ListAllocations(ctx context.Context, orgID string, filter models.AllocationFilter) ([]models.PaymentAllocation, error)
}

// Evaluator compares invoice discounts with agreed terms
type Evaluator struct {
	config *Config
	source TermSource
	logger logger.Logger
}

// NewEvaluator creates an evaluator. A nil config uses DefaultConfig; source
// may be nil when only the pure methods are used.
func NewEvaluator(config *Config, source TermSource, log logger.Logger) *Evaluator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Evaluator{
		config: config,
		source: source,
		logger: logger.OrGlobal(log, "discount-evaluator"),
	}
}

// Evaluate loads an invoice with its vendor's terms. When paymentDate is nil
// the date of the latest bank payment allocated to the invoice is used, if any.
func (e *Evaluator) Evaluate(ctx context.Context, orgID, invoiceID string, paymentDate *time.Time) (*models.DiscountEvaluation, error) {
	inv, terms, paid, err := e.load(ctx, orgID, invoiceID, paymentDate)
	if err != nil {
		return nil, err
	}

	result := e.EvaluateInvoice(inv, terms, paid)
	e.logger.WithFields(logger.Fields{
		"org_id":     orgID,
		"invoice_id": invoiceID,
		"term_id":    result.TermID,
		"class":      result.Class,
		"difference": result.Difference.StringFixed(2),
	}).Debug("Discount evaluated")
	return result, nil
}

// Penalty loads an invoice with its vendor's terms and computes the late
// payment penalty. Without a payment date, given or recorded, nothing is late.
func (e *Evaluator) Penalty(ctx context.Context, orgID, invoiceID string, paymentDate *time.Time) (*models.PenaltyEvaluation, error) {
	inv, terms, paid, err := e.load(ctx, orgID, invoiceID, paymentDate)
	if err != nil {
		return nil, err
	}
	if paid == nil {
		return &models.PenaltyEvaluation{
			OrgID:     inv.OrgID,
			InvoiceID: inv.ID,
			Penalty:   decimal.Zero,
			Reasons:   []string{"invoice has no recorded payment"},
		}, nil
	}
	return e.ComputePenalty(inv, terms, *paid), nil
}

func (e *Evaluator) load(ctx context.Context, orgID, invoiceID string, paymentDate *time.Time) (*models.Invoice, []*models.DiscountTerm, *time.Time, error) {
	if e.source == nil {
		return nil, nil, nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "discount evaluation without a term source", nil)
	}

	inv, err := e.source.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, nil, nil, err
	}
	terms, err := e.source.ListDiscountTerms(ctx, orgID, inv.PartyID)
	if err != nil {
		return nil, nil, nil, err
	}

	if paymentDate != nil {
		return inv, terms, paymentDate, nil
	}
	allocations, err := e.source.ListAllocations(ctx, orgID, models.AllocationFilter{InvoiceID: invoiceID})
	if err != nil {
		return nil, nil, nil, err
	}
	return inv, terms, LatestPayment(allocations), nil
}

// LatestPayment returns the latest bank payment date among allocations, or
// nil. Allocations without a payment date are ignored; when they were
// recorded says nothing about when the money moved.
func LatestPayment(allocations []models.PaymentAllocation) *time.Time {
	var latest *time.Time
	for i := range allocations {
		at := allocations[i].PaidOn
		if at.IsZero() {
			continue
		}
		if latest == nil || at.After(*latest) {
			latest = &at
		}
	}
	return latest
}

type candidate struct {
	term   *models.DiscountTerm
	amount decimal.Decimal
}

// EvaluateInvoice picks the highest applicable discount among terms and
// classifies the invoice's actual line discounts against it
func (e *Evaluator) EvaluateInvoice(inv *models.Invoice, terms []*models.DiscountTerm, paymentDate *time.Time) *models.DiscountEvaluation {
	result := &models.DiscountEvaluation{
		OrgID:            inv.OrgID,
		InvoiceID:        inv.ID,
		ExpectedDiscount: decimal.Zero,
		ActualDiscount:   inv.LineDiscountTotal(),
		Reasons:          []string{},
	}

	var candidates []candidate
	for _, term := range terms {
		amount, reason, ok := e.expected(inv, term, paymentDate)
		if !ok {
			if reason != "" {
				result.Reasons = append(result.Reasons, reason)
			}
			continue
		}
		candidates = append(candidates, candidate{term: term, amount: amount})
	}

	// highest first; id keeps ties stable
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].amount.Equal(candidates[j].amount) {
			return candidates[i].amount.GreaterThan(candidates[j].amount)
		}
		return candidates[i].term.ID < candidates[j].term.ID
	})

	if len(candidates) > 0 {
		best := candidates[0]
		result.TermID = best.term.ID
		result.ExpectedDiscount = best.amount.Round(2)
		result.Reasons = append(result.Reasons, fmt.Sprintf("term %s expects a discount of %s",
			termLabel(best.term), result.ExpectedDiscount.StringFixed(2)))
	} else {
		result.Reasons = append(result.Reasons, "no discount term applies")
	}

	result.Difference = result.ActualDiscount.Sub(result.ExpectedDiscount)
	tolerance := e.config.tolerance()

	switch {
	case len(candidates) > 1 && candidates[0].amount.Equal(candidates[1].amount) && candidates[0].term.ID != candidates[1].term.ID:
		result.Class = models.DiscountNeedsReview
		result.Reasons = append(result.Reasons, fmt.Sprintf("terms %s and %s give the same discount",
			termLabel(candidates[0].term), termLabel(candidates[1].term)))
	case result.Difference.Abs().LessThanOrEqual(tolerance):
		result.Class = models.DiscountCorrect
	case result.Difference.IsNegative():
		result.Class = models.DiscountUnderDiscounted
		result.Reasons = append(result.Reasons, fmt.Sprintf("invoice discount is %s short", result.Difference.Abs().StringFixed(2)))
	default:
		result.Class = models.DiscountOverDiscounted
		result.Reasons = append(result.Reasons, fmt.Sprintf("invoice discount exceeds the terms by %s", result.Difference.StringFixed(2)))
	}
	return result
}

// expected returns the discount term grants on inv. A false result with a
// reason explains why an otherwise relevant term was skipped.
func (e *Evaluator) expected(inv *models.Invoice, term *models.DiscountTerm, paymentDate *time.Time) (decimal.Decimal, string, bool) {
	if term.Kind == models.DiscountLatePenalty {
		return decimal.Zero, "", false
	}
	if !term.ValidOn(inv.Date) {
		return decimal.Zero, "", false
	}
	if inv.Subtotal.LessThan(term.MinOrderValue) {
		return decimal.Zero, fmt.Sprintf("term %s needs a minimum order of %s", termLabel(term), term.MinOrderValue.StringFixed(2)), false
	}
	if !appliesToLines(term, inv) {
		return decimal.Zero, fmt.Sprintf("term %s covers none of the invoiced items", termLabel(term)), false
	}

	if term.Kind == models.DiscountCash {
		if paymentDate == nil {
			return decimal.Zero, fmt.Sprintf("cash discount %s needs a payment date", termLabel(term)), false
		}
		if days := models.DaysBetween(inv.Date, *paymentDate); days > term.PaymentWithinDays {
			return decimal.Zero, fmt.Sprintf("paid after %d days, cash discount %s needs payment within %d",
				days, termLabel(term), term.PaymentWithinDays), false
		}
	}

	switch term.ValueType {
	case models.ValuePercentage:
		return models.PercentOf(inv.Subtotal, term.Value), "", true
	case models.ValueAmount:
		return term.Value, "", true
	case models.ValueSlab:
		for _, slab := range term.Slabs {
			if !slab.Contains(inv.Subtotal) {
				continue
			}
			if slab.ValueType == models.ValueAmount {
				return slab.Value, "", true
			}
			return models.PercentOf(inv.Subtotal, slab.Value), "", true
		}
		return decimal.Zero, fmt.Sprintf("no slab of term %s covers a subtotal of %s", termLabel(term), inv.Subtotal.StringFixed(2)), false
	default:
		return decimal.Zero, fmt.Sprintf("term %s has unknown value type %s", termLabel(term), term.ValueType), false
	}
}

// ComputePenalty charges the highest active late-payment percentage pro rata
// for every day past the due date
func (e *Evaluator) ComputePenalty(inv *models.Invoice, terms []*models.DiscountTerm, paymentDate time.Time) *models.PenaltyEvaluation {
	result := &models.PenaltyEvaluation{
		OrgID:       inv.OrgID,
		InvoiceID:   inv.ID,
		PaymentDate: paymentDate,
		Penalty:     decimal.Zero,
		Reasons:     []string{},
	}

	if days := models.DaysBetween(inv.DueDate, paymentDate); days > 0 {
		result.DaysLate = days
	}

	var term *models.DiscountTerm
	for _, t := range terms {
		if t.Kind != models.DiscountLatePenalty || !t.ValidOn(inv.Date) {
			continue
		}
		if term == nil || t.PenaltyPercent.GreaterThan(term.PenaltyPercent) {
			term = t
		}
	}

	switch {
	case term == nil:
		result.Reasons = append(result.Reasons, "no late payment penalty term is active")
	case result.DaysLate == 0:
		result.TermID = term.ID
		result.Reasons = append(result.Reasons, "paid on or before the due date")
	default:
		result.TermID = term.ID
		period := decimal.NewFromInt(int64(e.config.PenaltyPeriodDays))
		result.Penalty = models.PercentOf(inv.Total, term.PenaltyPercent).
			Mul(decimal.NewFromInt(int64(result.DaysLate))).
			Div(period).
			Round(2)
		result.Reasons = append(result.Reasons, fmt.Sprintf("%d days late at %s%% per %d days",
			result.DaysLate, term.PenaltyPercent.String(), e.config.PenaltyPeriodDays))
	}
	return result
}

func appliesToLines(term *models.DiscountTerm, inv *models.Invoice) bool {
	if len(term.CatalogIDs) == 0 {
		return true
	}
	ids := inv.CatalogIDs()
	for _, id := range term.CatalogIDs {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

func termLabel(term *models.DiscountTerm) string {
	if term.Name != "" {
		return term.Name
	}
	return term.ID
}
