package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

type fakeAllocationStore struct {
	txns        map[string]*models.BankTransaction
	invoices    map[string]*models.Invoice
	allocations []models.PaymentAllocation
}

func newFakeAllocationStore(txns []*models.BankTransaction, invoices []*models.Invoice) *fakeAllocationStore {
	s := &fakeAllocationStore{
		txns:     make(map[string]*models.BankTransaction),
		invoices: make(map[string]*models.Invoice),
	}
	for _, t := range txns {
		s.txns[t.ID] = t
	}
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
	}
	return s
}

func (s *fakeAllocationStore) GetTransaction(_ context.Context, orgID, id string) (*models.BankTransaction, error) {
	if t, ok := s.txns[id]; ok && t.OrgID == orgID {
		return t, nil
	}
	return nil, apperrors.NotFoundError("bank transaction", id, orgID)
}

func (s *fakeAllocationStore) GetInvoice(_ context.Context, orgID, id string) (*models.Invoice, error) {
	if inv, ok := s.invoices[id]; ok && inv.OrgID == orgID {
		return inv, nil
	}
	return nil, apperrors.NotFoundError("invoice", id, orgID)
}

func (s *fakeAllocationStore) ListAllocations(_ context.Context, _ string, filter models.AllocationFilter) ([]models.PaymentAllocation, error) {
	var out []models.PaymentAllocation
	for _, a := range s.allocations {
		if filter.TransactionID != "" && a.TransactionID != filter.TransactionID {
			continue
		}
		if filter.InvoiceID != "" && a.InvoiceID != filter.InvoiceID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeAllocationStore) ApplyAllocationPlan(_ context.Context, plan *models.AllocationPlan) error {
	s.allocations = append(s.allocations, plan.Allocations...)
	for _, u := range plan.InvoiceUpdates {
		s.invoices[u.InvoiceID].AmountPaid = u.AmountPaid
		s.invoices[u.InvoiceID].PaymentStatus = u.Status
	}
	s.txns[plan.TransactionID].Status = plan.TransactionStatus
	return nil
}

func (s *fakeAllocationStore) ApplyReversalPlan(_ context.Context, plan *models.ReversalPlan) error {
	removed := make(map[string]bool)
	for _, a := range plan.Removed {
		removed[a.TransactionID+"|"+a.InvoiceID] = true
	}
	kept := s.allocations[:0]
	for _, a := range s.allocations {
		if !removed[a.TransactionID+"|"+a.InvoiceID] {
			kept = append(kept, a)
		}
	}
	s.allocations = kept
	for _, u := range plan.InvoiceUpdates {
		s.invoices[u.InvoiceID].AmountPaid = u.AmountPaid
		s.invoices[u.InvoiceID].PaymentStatus = u.Status
	}
	s.txns[plan.TransactionID].Status = plan.TransactionStatus
	return nil
}

func newTestAllocator(store AllocationStore) *Allocator {
	a := NewAllocator(nil, store, logger.NewNopLogger())
	a.now = func() time.Time { return baseDate }
	return a
}

func req(invoiceID, amount string) models.AllocationRequest {
	return models.AllocationRequest{InvoiceID: invoiceID, Amount: dec(amount)}
}

func TestAllocator_ExactSettlement(t *testing.T) {
	txn := createTestTxn("t1", "10000", models.DirectionDebit, "", "")
	txn.Date = baseDate.AddDate(0, 0, -3)
	store := newFakeAllocationStore(
		[]*models.BankTransaction{txn},
		[]*models.Invoice{createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "10000", 0)},
	)
	a := newTestAllocator(store)

	plan, err := a.Allocate(context.Background(), "org-1", "t1", []models.AllocationRequest{req("i1", "10000")}, 95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.TransactionStatus != models.TransactionAutoMatched {
		t.Errorf("expected AUTO_MATCHED, got %s", plan.TransactionStatus)
	}
	alloc := plan.Allocations[0]
	if !alloc.BalanceBefore.Equal(dec("10000")) || !alloc.BalanceAfter.IsZero() {
		t.Errorf("unexpected balances %s -> %s", alloc.BalanceBefore, alloc.BalanceAfter)
	}
	if !alloc.AllocatedAt.Equal(baseDate) {
		t.Errorf("expected allocation timestamp from the clock, got %v", alloc.AllocatedAt)
	}
	if !alloc.PaidOn.Equal(txn.Date) {
		t.Errorf("expected payment date from the transaction, got %v", alloc.PaidOn)
	}
	if update := plan.InvoiceUpdates[0]; !update.PreviousPaid.IsZero() || !update.AmountPaid.Equal(dec("10000")) {
		t.Errorf("unexpected invoice update %s -> %s", update.PreviousPaid, update.AmountPaid)
	}
	if store.invoices["i1"].PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("expected PAID, got %s", store.invoices["i1"].PaymentStatus)
	}
	if store.txns["t1"].Status != models.TransactionAutoMatched {
		t.Errorf("expected transaction to be AUTO_MATCHED in the store, got %s", store.txns["t1"].Status)
	}
}

func TestAllocator_PaymentStatusTolerance(t *testing.T) {
	a := newTestAllocator(nil)
	total := dec("10000")

	tests := []struct {
		paid string
		want models.PaymentStatus
	}{
		{"10000", models.PaymentStatusPaid},
		{"9999", models.PaymentStatusPaid},
		{"9998.99", models.PaymentStatusPartiallyPaid},
		{"0.01", models.PaymentStatusPartiallyPaid},
		{"0", models.PaymentStatusUnpaid},
	}

	for _, tt := range tests {
		if got := a.PaymentStatusFor(total, dec(tt.paid)); got != tt.want {
			t.Errorf("PaymentStatusFor(%s) = %s, want %s", tt.paid, got, tt.want)
		}
	}
}

func TestAllocator_ManualPartialAllocation(t *testing.T) {
	store := newFakeAllocationStore(
		[]*models.BankTransaction{createTestTxn("t1", "4000", models.DirectionDebit, "", "")},
		[]*models.Invoice{createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "10000", 0)},
	)
	a := newTestAllocator(store)

	plan, err := a.Allocate(context.Background(), "org-1", "t1", []models.AllocationRequest{req("i1", "4000")}, 45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.TransactionStatus != models.TransactionManuallyMatched {
		t.Errorf("expected MANUALLY_MATCHED, got %s", plan.TransactionStatus)
	}
	if plan.InvoiceUpdates[0].Status != models.PaymentStatusPartiallyPaid {
		t.Errorf("expected PARTIALLY_PAID, got %s", plan.InvoiceUpdates[0].Status)
	}
}

func TestAllocator_TransactionLimit(t *testing.T) {
	tests := []struct {
		name    string
		amounts []string
		wantErr bool
	}{
		{"exactly the amount", []string{"600", "400"}, false},
		{"within tolerance", []string{"600", "410"}, false},
		{"beyond tolerance", []string{"600", "410.01"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeAllocationStore(
				[]*models.BankTransaction{createTestTxn("t1", "1000", models.DirectionDebit, "", "")},
				[]*models.Invoice{
					createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "600", 0),
					createTestInvoice("i2", "INV-2", models.InvoiceKindPurchase, "500", 0),
				},
			)
			a := newTestAllocator(store)

			_, err := a.Allocate(context.Background(), "org-1", "t1",
				[]models.AllocationRequest{req("i1", tt.amounts[0]), req("i2", tt.amounts[1])}, 50)
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeAllocationExceeded) {
					t.Fatalf("expected allocation exceeded, got %v", err)
				}
				if len(store.allocations) != 0 {
					t.Error("expected nothing to be written on a rejected plan")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAllocator_InvoiceLimit(t *testing.T) {
	txn := createTestTxn("t1", "1000", models.DirectionDebit, "", "")
	inv := createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "500", 0)
	inv.AmountPaid = dec("200")
	invoices := map[string]*models.Invoice{"i1": inv}
	a := newTestAllocator(nil)

	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("i1", "301")}, 50); err != nil {
		t.Errorf("expected allocation up to total + 1 to pass, got %v", err)
	}
	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("i1", "301.01")}, 50); !apperrors.HasCode(err, apperrors.CodeAllocationExceeded) {
		t.Errorf("expected allocation exceeded, got %v", err)
	}
	// Two requests against the same invoice accumulate.
	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("i1", "200"), req("i1", "200")}, 50); !apperrors.HasCode(err, apperrors.CodeAllocationExceeded) {
		t.Errorf("expected accumulated requests to be rejected, got %v", err)
	}
}

func TestAllocator_ExistingAllocationsCount(t *testing.T) {
	txn := createTestTxn("t1", "1000", models.DirectionDebit, "", "")
	inv := createTestInvoice("i2", "INV-2", models.InvoiceKindPurchase, "5000", 0)
	existing := []models.PaymentAllocation{{TransactionID: "t1", InvoiceID: "i1", Amount: dec("900")}}
	a := newTestAllocator(nil)

	_, err := a.Plan(txn, map[string]*models.Invoice{"i2": inv}, existing, []models.AllocationRequest{req("i2", "200")}, 50)
	if !apperrors.HasCode(err, apperrors.CodeAllocationExceeded) {
		t.Errorf("expected earlier allocations to count against the transaction, got %v", err)
	}
}

func TestAllocator_RejectsInvalidRequests(t *testing.T) {
	txn := createTestTxn("t1", "1000", models.DirectionDebit, "", "")
	purchase := createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "1000", 0)
	sales := createTestInvoice("s1", "S-1", models.InvoiceKindSales, "1000", 0)
	invoices := map[string]*models.Invoice{"i1": purchase, "s1": sales}
	a := newTestAllocator(nil)

	if _, err := a.Plan(txn, invoices, nil, nil, 50); err == nil {
		t.Error("expected empty request list to be rejected")
	}
	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("i1", "0")}, 50); !apperrors.HasCode(err, apperrors.CodeInvalidAmount) {
		t.Errorf("expected zero amount to be rejected, got %v", err)
	}
	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("s1", "100")}, 50); err == nil {
		t.Error("expected a debit settling a sales invoice to be rejected")
	}
	if _, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{req("missing", "100")}, 50); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found for unknown invoice, got %v", err)
	}
}

func TestAllocator_ReverseIsSymmetric(t *testing.T) {
	store := newFakeAllocationStore(
		[]*models.BankTransaction{createTestTxn("t1", "15000", models.DirectionDebit, "", "")},
		[]*models.Invoice{
			createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "10000", 0),
			createTestInvoice("i2", "INV-2", models.InvoiceKindPurchase, "5000", 0),
		},
	)
	a := newTestAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "org-1", "t1", []models.AllocationRequest{req("i1", "10000"), req("i2", "5000")}, 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan, err := a.Reverse(ctx, "org-1", "t1", "i2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.TransactionStatus != models.TransactionManuallyMatched {
		t.Errorf("expected status to stay while allocations remain, got %s", plan.TransactionStatus)
	}
	if !store.invoices["i2"].AmountPaid.IsZero() || store.invoices["i2"].PaymentStatus != models.PaymentStatusUnpaid {
		t.Errorf("expected i2 back to UNPAID, got %s %s", store.invoices["i2"].AmountPaid, store.invoices["i2"].PaymentStatus)
	}
	if store.invoices["i1"].PaymentStatus != models.PaymentStatusPaid {
		t.Error("expected i1 to be untouched")
	}

	plan, err = a.Reverse(ctx, "org-1", "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.TransactionStatus != models.TransactionUnmatched {
		t.Errorf("expected UNMATCHED once no allocations remain, got %s", plan.TransactionStatus)
	}
	if !store.invoices["i1"].AmountPaid.IsZero() {
		t.Errorf("expected i1 paid amount back to zero, got %s", store.invoices["i1"].AmountPaid)
	}

	if _, err := a.Reverse(ctx, "org-1", "t1"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found when nothing is left to reverse, got %v", err)
	}
}

func TestAllocator_ReversalFloorsAtZero(t *testing.T) {
	txn := createTestTxn("t1", "500", models.DirectionDebit, "", "")
	inv := createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "1000", 0)
	inv.AmountPaid = dec("100")
	existing := []models.PaymentAllocation{{TransactionID: "t1", InvoiceID: "i1", Amount: dec("500")}}
	a := newTestAllocator(nil)

	plan, err := a.PlanReversal(txn, map[string]*models.Invoice{"i1": inv}, existing, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.InvoiceUpdates[0].AmountPaid.IsZero() {
		t.Errorf("expected paid amount floored at zero, got %s", plan.InvoiceUpdates[0].AmountPaid)
	}
}

func TestAllocator_InvariantHoldsForAcceptedPlans(t *testing.T) {
	a := newTestAllocator(nil)
	txn := createTestTxn("t1", "1000", models.DirectionDebit, "", "")
	tolerance := dec("10")

	for step := 0; step < 40; step++ {
		first := decimal.NewFromInt(int64(step * 17 % 700))
		second := decimal.NewFromInt(int64(step * 31 % 500))
		if !first.IsPositive() || !second.IsPositive() {
			continue
		}
		invoices := map[string]*models.Invoice{
			"i1": createTestInvoice("i1", "INV-1", models.InvoiceKindPurchase, "650", 0),
			"i2": createTestInvoice("i2", "INV-2", models.InvoiceKindPurchase, "450", 0),
		}
		plan, err := a.Plan(txn, invoices, nil, []models.AllocationRequest{
			{InvoiceID: "i1", Amount: first},
			{InvoiceID: "i2", Amount: second},
		}, 50)
		if err != nil {
			continue
		}

		sum := decimal.Zero
		for _, alloc := range plan.Allocations {
			sum = sum.Add(alloc.Amount)
			if alloc.Amount.GreaterThan(invoices[alloc.InvoiceID].Total.Add(dec("1"))) {
				t.Errorf("step %d: allocation %s exceeds invoice total", step, alloc.Amount)
			}
		}
		if sum.GreaterThan(txn.Amount.Add(tolerance)) {
			t.Errorf("step %d: allocations %s exceed transaction amount", step, sum)
		}
	}
}

func TestPlanSplit(t *testing.T) {
	candidates := []models.PaymentCandidate{
		{InvoiceID: "i1", Outstanding: dec("6000")},
		{InvoiceID: "i0", Outstanding: dec("0")},
		{InvoiceID: "i2", Outstanding: dec("3000")},
		{InvoiceID: "i3", Outstanding: dec("5000")},
	}

	got := PlanSplit(dec("10000"), candidates)
	if len(got) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(got))
	}
	want := []models.AllocationRequest{req("i1", "6000"), req("i2", "3000"), req("i3", "1000")}
	for i := range want {
		if got[i].InvoiceID != want[i].InvoiceID || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("allocation %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
