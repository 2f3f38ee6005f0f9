package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransactionDirection_IsValid(t *testing.T) {
	tests := []struct {
		dir   TransactionDirection
		valid bool
	}{
		{DirectionDebit, true},
		{DirectionCredit, true},
		{"SIDEWAYS", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			if got := tt.dir.IsValid(); got != tt.valid {
				t.Errorf("TransactionDirection.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestKindForDirection(t *testing.T) {
	if KindForDirection(DirectionDebit) != InvoiceKindPurchase {
		t.Error("expected debit to settle purchase invoices")
	}
	if KindForDirection(DirectionCredit) != InvoiceKindSales {
		t.Error("expected credit to settle sales invoices")
	}
}

func TestVariancePercent(t *testing.T) {
	tests := []struct {
		name     string
		expected decimal.Decimal
		actual   decimal.Decimal
		want     float64
	}{
		{"equal", d("100"), d("100"), 0},
		{"three percent over", d("100"), d("103"), 3},
		{"ten percent under", d("200"), d("180"), 10},
		{"zero expected zero actual", decimal.Zero, decimal.Zero, 0},
		{"zero expected nonzero actual", decimal.Zero, d("5"), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VariancePercent(tt.expected, tt.actual); got != tt.want {
				t.Errorf("VariancePercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithinAmountBoundary(t *testing.T) {
	tol := d("1")
	if !WithinAmount(d("118000"), d("118001.00"), tol) {
		t.Error("expected a difference of exactly 1.00 to be within tolerance")
	}
	if WithinAmount(d("118000"), d("118001.01"), tol) {
		t.Error("expected a difference of 1.01 to be outside tolerance")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 8, 1, 0, 0, 0, time.UTC)

	if got := DaysBetween(a, b); got != 7 {
		t.Errorf("expected 7 days, got %d", got)
	}
	if got := DaysBetween(b, a); got != -7 {
		t.Errorf("expected -7 days, got %d", got)
	}
	if got := AbsDays(b, a); got != 7 {
		t.Errorf("expected 7 absolute days, got %d", got)
	}
}

func TestDiscountSlabContains(t *testing.T) {
	upper := d("50000")
	slab := DiscountSlab{Min: decimal.Zero, Max: &upper, ValueType: ValuePercentage, Value: d("5")}
	open := DiscountSlab{Min: d("50000"), ValueType: ValuePercentage, Value: d("8")}

	if slab.Contains(d("50000")) {
		t.Error("expected the upper bound to be excluded")
	}
	if !slab.Contains(d("49999.99")) {
		t.Error("expected a value below the upper bound to be included")
	}
	if !open.Contains(d("50000")) {
		t.Error("expected the lower bound to be included")
	}
	if !open.Contains(d("9999999")) {
		t.Error("expected an open slab to have no upper bound")
	}
}

func TestDiscountTermValidOn(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	term := DiscountTerm{Active: true, ValidFrom: from, ValidTo: &to}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"before window", from.AddDate(0, 0, -1), false},
		{"first day", from, true},
		{"last day afternoon", to.Add(15 * time.Hour), true},
		{"after window", to.AddDate(0, 0, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := term.ValidOn(tt.date); got != tt.want {
				t.Errorf("ValidOn(%s) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}

	open := DiscountTerm{Active: true, ValidFrom: from}
	if !open.ValidOn(from.AddDate(5, 0, 0)) {
		t.Error("expected an open-ended term to stay valid")
	}
	inactive := DiscountTerm{Active: false, ValidFrom: from}
	if inactive.ValidOn(from) {
		t.Error("expected an inactive term to be invalid")
	}
}

func TestInvoiceHelpers(t *testing.T) {
	inv := Invoice{
		ID:         "inv-1",
		Kind:       InvoiceKindPurchase,
		CGST:       d("900"),
		SGST:       d("900"),
		Total:      d("11800"),
		AmountPaid: d("1800"),
		Lines: []LineItem{
			{ID: "l1", CatalogID: "sku-1", DiscountAmount: d("100")},
			{ID: "l2", DiscountAmount: d("50.50")},
		},
	}

	if !inv.TaxTotal().Equal(d("1800")) {
		t.Errorf("expected tax total 1800, got %s", inv.TaxTotal())
	}
	if !inv.Outstanding().Equal(d("10000")) {
		t.Errorf("expected outstanding 10000, got %s", inv.Outstanding())
	}
	if !inv.LineDiscountTotal().Equal(d("150.50")) {
		t.Errorf("expected line discount 150.50, got %s", inv.LineDiscountTotal())
	}
	if _, ok := inv.CatalogIDs()["sku-1"]; !ok || len(inv.CatalogIDs()) != 1 {
		t.Errorf("expected catalog ids {sku-1}, got %v", inv.CatalogIDs())
	}
	if err := inv.Validate(); err != nil {
		t.Errorf("expected valid invoice, got %v", err)
	}
}

func TestBankTransactionValidate(t *testing.T) {
	valid := BankTransaction{ID: "t1", Amount: d("10"), Direction: DirectionDebit, Date: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid transaction, got %v", err)
	}

	negative := valid
	negative.Amount = d("-10")
	if err := negative.Validate(); err == nil {
		t.Error("expected negative amount to fail validation")
	}
}

func TestCatalogEntryHasAlias(t *testing.T) {
	entry := CatalogEntry{Aliases: []string{"Steel  Rod 12mm"}}
	if !entry.HasAlias("steel rod 12MM") {
		t.Error("expected alias comparison to ignore case and spacing")
	}
	if entry.HasAlias("steel rod 10mm") {
		t.Error("expected a different alias not to match")
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey(ResultDocumentMatch, "org-1", "po-1", "inv-1")
	b := IdempotencyKey(ResultDocumentMatch, "org-1", "po-1", "inv-1")
	c := IdempotencyKey(ResultDocumentMatch, "org-1", "po-2", "inv-1")
	g := IdempotencyKey(ResultGSTMatch, "org-1", "po-1", "inv-1")

	if a != b {
		t.Error("expected identical inputs to give identical keys")
	}
	if a == c || a == g {
		t.Error("expected different inputs or kinds to give different keys")
	}
}

func TestDiscrepancyJSON(t *testing.T) {
	disc := NewDiscrepancy(DiscrepancyQtyVariance, SeverityHigh, "qty off").
		WithValues(d("100"), d("120"), 20)

	data, err := json.Marshal(disc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Discrepancy
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Expected == nil || !decoded.Expected.Equal(d("100")) {
		t.Errorf("expected expected value 100, got %v", decoded.Expected)
	}
	if decoded.Variance == nil || *decoded.Variance != 20 {
		t.Errorf("expected variance 20, got %v", decoded.Variance)
	}
	if !HasHighSeverity([]Discrepancy{decoded}) {
		t.Error("expected HIGH severity to be detected")
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := map[string]string{
		"INV/2024-001": "inv2024001",
		"  Inv 42 ":    "inv42",
		"---":          "",
	}
	for in, want := range tests {
		if got := NormalizeNumber(in); got != want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
