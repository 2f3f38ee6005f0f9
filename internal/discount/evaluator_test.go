package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

var invoiceDate = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// createTestInvoice builds an invoice whose lines carry the given discounts
// and catalog ids; the subtotal is set explicitly
func createTestInvoice(subtotal string, lines ...models.LineItem) *models.Invoice {
	sub := dec(subtotal)
	tax := sub.Mul(dec("0.18"))
	return &models.Invoice{
		ID:            "inv-1",
		OrgID:         "org-1",
		Kind:          models.InvoiceKindPurchase,
		PartyID:       "vendor-1",
		Number:        "INV-001",
		Date:          invoiceDate,
		DueDate:       invoiceDate.AddDate(0, 0, 30),
		Lines:         lines,
		Subtotal:      sub,
		IGST:          tax,
		Total:         sub.Add(tax),
		PaymentStatus: models.PaymentStatusUnpaid,
	}
}

func discountLine(id, catalogID, discount string) models.LineItem {
	return models.LineItem{
		ID:             id,
		Description:    "item " + id,
		CatalogID:      catalogID,
		Quantity:       dec("1"),
		UnitPrice:      dec("100"),
		DiscountAmount: dec(discount),
	}
}

func createTestTerm(id string, kind models.DiscountKind, valueType models.DiscountValueType, value string) *models.DiscountTerm {
	return &models.DiscountTerm{
		ID:            id,
		OrgID:         "org-1",
		VendorID:      "vendor-1",
		Kind:          kind,
		ValueType:     valueType,
		Value:         dec(value),
		MinOrderValue: decimal.Zero,
		ValidFrom:     invoiceDate.AddDate(0, -1, 0),
		Active:        true,
	}
}

func newTestEvaluator(source TermSource) *Evaluator {
	return NewEvaluator(nil, source, logger.NewNopLogger())
}

func TestEvaluateInvoice_SlabBoundary(t *testing.T) {
	e := newTestEvaluator(nil)
	term := createTestTerm("t1", models.DiscountVolume, models.ValueSlab, "0")
	term.Slabs = []models.DiscountSlab{
		{Min: dec("0"), Max: decPtr("50000"), ValueType: models.ValuePercentage, Value: dec("5")},
		{Min: dec("50000"), ValueType: models.ValuePercentage, Value: dec("8")},
	}
	inv := createTestInvoice("50000", discountLine("l1", "", "3000"))

	result := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, nil)
	if !result.ExpectedDiscount.Equal(dec("4000")) {
		t.Errorf("expected discount 4000 from the upper slab, got %s", result.ExpectedDiscount)
	}
	if !result.Difference.Equal(dec("-1000")) {
		t.Errorf("expected difference -1000, got %s", result.Difference)
	}
	if result.Class != models.DiscountUnderDiscounted {
		t.Errorf("expected UNDER_DISCOUNTED, got %s", result.Class)
	}
	if result.TermID != "t1" {
		t.Errorf("expected term t1, got %q", result.TermID)
	}
}

func TestEvaluateInvoice_Classification(t *testing.T) {
	e := newTestEvaluator(nil)
	term := createTestTerm("t1", models.DiscountTrade, models.ValuePercentage, "10")

	tests := []struct {
		name   string
		actual string
		want   models.DiscountClass
	}{
		{"exact", "100", models.DiscountCorrect},
		{"one below", "99", models.DiscountCorrect},
		{"one above", "101", models.DiscountCorrect},
		{"just below tolerance", "98.99", models.DiscountUnderDiscounted},
		{"just above tolerance", "101.01", models.DiscountOverDiscounted},
		{"no discount", "0", models.DiscountUnderDiscounted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := createTestInvoice("1000", discountLine("l1", "", tt.actual))
			result := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, nil)
			if result.Class != tt.want {
				t.Errorf("actual %s: expected %s, got %s", tt.actual, tt.want, result.Class)
			}
		})
	}
}

func TestEvaluateInvoice_HighestTermWins(t *testing.T) {
	e := newTestEvaluator(nil)
	pct := createTestTerm("pct", models.DiscountTrade, models.ValuePercentage, "5")
	flat := createTestTerm("flat", models.DiscountTrade, models.ValueAmount, "750")
	inv := createTestInvoice("10000", discountLine("l1", "", "750"))

	result := e.EvaluateInvoice(inv, []*models.DiscountTerm{pct, flat}, nil)
	if result.TermID != "flat" || !result.ExpectedDiscount.Equal(dec("750")) {
		t.Errorf("expected flat 750 to win, got %s %s", result.TermID, result.ExpectedDiscount)
	}
	if result.Class != models.DiscountCorrect {
		t.Errorf("expected CORRECT, got %s", result.Class)
	}
}

func TestEvaluateInvoice_TieNeedsReview(t *testing.T) {
	e := newTestEvaluator(nil)
	pct := createTestTerm("pct", models.DiscountTrade, models.ValuePercentage, "5")
	flat := createTestTerm("flat", models.DiscountVolume, models.ValueAmount, "500")
	inv := createTestInvoice("10000", discountLine("l1", "", "500"))

	result := e.EvaluateInvoice(inv, []*models.DiscountTerm{pct, flat}, nil)
	if result.Class != models.DiscountNeedsReview {
		t.Errorf("expected NEEDS_REVIEW on tie, got %s", result.Class)
	}
	if result.TermID != "flat" {
		t.Errorf("expected ties to resolve by term id, got %s", result.TermID)
	}
}

func TestEvaluateInvoice_Applicability(t *testing.T) {
	e := newTestEvaluator(nil)
	validTo := invoiceDate.AddDate(0, 0, -1)

	tests := []struct {
		name   string
		modify func(*models.DiscountTerm)
		apply  bool
	}{
		{"active term applies", func(*models.DiscountTerm) {}, true},
		{"inactive term", func(t *models.DiscountTerm) { t.Active = false }, false},
		{"starts on invoice date", func(t *models.DiscountTerm) { t.ValidFrom = invoiceDate }, true},
		{"starts after invoice date", func(t *models.DiscountTerm) { t.ValidFrom = invoiceDate.AddDate(0, 0, 1) }, false},
		{"ends on invoice date", func(t *models.DiscountTerm) { end := invoiceDate; t.ValidTo = &end }, true},
		{"ended before invoice date", func(t *models.DiscountTerm) { t.ValidTo = &validTo }, false},
		{"minimum order met", func(t *models.DiscountTerm) { t.MinOrderValue = dec("1000") }, true},
		{"minimum order not met", func(t *models.DiscountTerm) { t.MinOrderValue = dec("1000.01") }, false},
		{"shares a catalog item", func(t *models.DiscountTerm) { t.CatalogIDs = []string{"sku-x", "sku-1"} }, true},
		{"covers other items", func(t *models.DiscountTerm) { t.CatalogIDs = []string{"sku-x"} }, false},
		{"late penalty is not a discount", func(t *models.DiscountTerm) { t.Kind = models.DiscountLatePenalty }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := createTestTerm("t1", models.DiscountTrade, models.ValueAmount, "50")
			tt.modify(term)
			inv := createTestInvoice("1000", discountLine("l1", "sku-1", "0"))

			result := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, nil)
			if applied := result.TermID != ""; applied != tt.apply {
				t.Errorf("expected applied=%v, got term %q (%v)", tt.apply, result.TermID, result.Reasons)
			}
		})
	}
}

func TestEvaluateInvoice_CashDiscountTiming(t *testing.T) {
	e := newTestEvaluator(nil)
	term := createTestTerm("cash", models.DiscountCash, models.ValuePercentage, "2")
	term.PaymentWithinDays = 10
	inv := createTestInvoice("1000", discountLine("l1", "", "20"))

	onTime := invoiceDate.AddDate(0, 0, 10)
	late := invoiceDate.AddDate(0, 0, 11)

	if r := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, &onTime); r.Class != models.DiscountCorrect || r.TermID != "cash" {
		t.Errorf("expected cash discount within 10 days, got %s %q", r.Class, r.TermID)
	}
	if r := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, &late); r.TermID != "" || r.Class != models.DiscountOverDiscounted {
		t.Errorf("expected no cash discount after 11 days, got %s %q", r.Class, r.TermID)
	}
	if r := e.EvaluateInvoice(inv, []*models.DiscountTerm{term}, nil); r.TermID != "" {
		t.Errorf("expected no cash discount without a payment, got %q", r.TermID)
	}
}

func TestEvaluateInvoice_NoTerms(t *testing.T) {
	e := newTestEvaluator(nil)
	inv := createTestInvoice("1000", discountLine("l1", "", "0.50"))

	result := e.EvaluateInvoice(inv, nil, nil)
	if result.Class != models.DiscountCorrect || !result.ExpectedDiscount.IsZero() {
		t.Errorf("expected CORRECT with zero expected, got %s %s", result.Class, result.ExpectedDiscount)
	}
	if len(result.Reasons) == 0 {
		t.Error("expected a reason")
	}
}

func TestComputePenalty(t *testing.T) {
	e := newTestEvaluator(nil)
	penalty := createTestTerm("late", models.DiscountLatePenalty, models.ValuePercentage, "0")
	penalty.PenaltyPercent = dec("2")
	// subtotal 10000 + 18% tax
	inv := createTestInvoice("10000")

	tests := []struct {
		name     string
		offset   int
		daysLate int
		want     string
	}{
		{"paid early", -5, 0, "0"},
		{"paid on due date", 0, 0, "0"},
		{"fifteen days late", 15, 15, "118"},
		{"thirty days late", 30, 30, "236"},
		{"seven days late", 7, 7, "55.07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.ComputePenalty(inv, []*models.DiscountTerm{penalty}, inv.DueDate.AddDate(0, 0, tt.offset))
			if result.DaysLate != tt.daysLate {
				t.Errorf("expected %d days late, got %d", tt.daysLate, result.DaysLate)
			}
			if !result.Penalty.Equal(dec(tt.want)) {
				t.Errorf("expected penalty %s, got %s", tt.want, result.Penalty)
			}
		})
	}
}

func TestComputePenalty_NoTerm(t *testing.T) {
	e := newTestEvaluator(nil)
	inv := createTestInvoice("10000")
	trade := createTestTerm("t1", models.DiscountTrade, models.ValuePercentage, "5")

	result := e.ComputePenalty(inv, []*models.DiscountTerm{trade}, inv.DueDate.AddDate(0, 0, 40))
	if !result.Penalty.IsZero() || result.TermID != "" {
		t.Errorf("expected no penalty without a penalty term, got %s", result.Penalty)
	}
	if result.DaysLate != 40 {
		t.Errorf("expected days late to be reported, got %d", result.DaysLate)
	}
}

type fakeTermSource struct {
	invoices    map[string]*models.Invoice
	terms       []*models.DiscountTerm
	allocations []models.PaymentAllocation
}

func (f *fakeTermSource) GetInvoice(_ context.Context, orgID, id string) (*models.Invoice, error) {
	if inv, ok := f.invoices[id]; ok && inv.OrgID == orgID {
		return inv, nil
	}
	return nil, apperrors.NotFoundError("invoice", id, orgID)
}

func (f *fakeTermSource) ListDiscountTerms(_ context.Context, orgID, vendorID string) ([]*models.DiscountTerm, error) {
	var out []*models.DiscountTerm
	for _, t := range f.terms {
		if t.OrgID == orgID && t.VendorID == vendorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTermSource) ListAllocations(_ context.Context, _ string, filter models.AllocationFilter) ([]models.PaymentAllocation, error) {
	var out []models.PaymentAllocation
	for _, a := range f.allocations {
		if a.InvoiceID == filter.InvoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestEvaluate_DerivesPaymentDateFromAllocations(t *testing.T) {
	inv := createTestInvoice("1000", discountLine("l1", "", "20"))
	cash := createTestTerm("cash", models.DiscountCash, models.ValuePercentage, "2")
	cash.PaymentWithinDays = 10
	late := createTestTerm("late", models.DiscountLatePenalty, models.ValuePercentage, "0")
	late.PenaltyPercent = dec("3")

	source := &fakeTermSource{
		invoices: map[string]*models.Invoice{inv.ID: inv},
		terms:    []*models.DiscountTerm{cash, late},
		allocations: []models.PaymentAllocation{
			{TransactionID: "t1", InvoiceID: inv.ID, Amount: dec("500"),
				PaidOn: invoiceDate.AddDate(0, 0, 5), AllocatedAt: invoiceDate.AddDate(0, 2, 0)},
			{TransactionID: "t2", InvoiceID: inv.ID, Amount: dec("680"),
				PaidOn: invoiceDate.AddDate(0, 0, 8), AllocatedAt: invoiceDate.AddDate(0, 2, 0)},
		},
	}
	e := newTestEvaluator(source)
	ctx := context.Background()

	result, err := e.Evaluate(ctx, "org-1", inv.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TermID != "cash" || result.Class != models.DiscountCorrect {
		t.Errorf("expected cash discount from the latest payment date, got %s %q", result.Class, result.TermID)
	}

	override := invoiceDate.AddDate(0, 0, 20)
	result, err = e.Evaluate(ctx, "org-1", inv.ID, &override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TermID != "" {
		t.Errorf("expected an explicit late payment date to disable the cash discount, got %q", result.TermID)
	}

	penalty, err := e.Penalty(ctx, "org-1", inv.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if penalty.DaysLate != 0 || !penalty.Penalty.IsZero() {
		t.Errorf("expected payment before due date, got %d days %s", penalty.DaysLate, penalty.Penalty)
	}
}

func TestPenalty_NoPayment(t *testing.T) {
	inv := createTestInvoice("1000")
	e := newTestEvaluator(&fakeTermSource{invoices: map[string]*models.Invoice{inv.ID: inv}})

	result, err := e.Penalty(context.Background(), "org-1", inv.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Penalty.IsZero() {
		t.Errorf("expected zero penalty, got %s", result.Penalty)
	}

	if _, err := e.Evaluate(context.Background(), "org-2", inv.ID, nil); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found for another organization, got %v", err)
	}
}

func TestLatestPayment(t *testing.T) {
	if LatestPayment(nil) != nil {
		t.Error("expected nil without allocations")
	}
	later := invoiceDate.AddDate(0, 0, 3)
	got := LatestPayment([]models.PaymentAllocation{
		{PaidOn: later, AllocatedAt: invoiceDate.AddDate(1, 0, 0)},
		{PaidOn: invoiceDate},
		{AllocatedAt: invoiceDate.AddDate(2, 0, 0)},
	})
	if got == nil || !got.Equal(later) {
		t.Errorf("expected %v, got %v", later, got)
	}

	if got := LatestPayment([]models.PaymentAllocation{{AllocatedAt: later}}); got != nil {
		t.Errorf("expected nil without a payment date, got %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
	bad := DefaultConfig()
	bad.PenaltyPeriodDays = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected zero penalty period to be rejected")
	}
}
