// Package storetest holds behaviour every store.Store implementation must
// share. Backends run it from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// Factory returns an empty store for one test
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract
func Run(t *testing.T, newStore Factory) {
	t.Run("OrgScoping", func(t *testing.T) { testOrgScoping(t, newStore(t)) })
	t.Run("InvoiceRoundTrip", func(t *testing.T) { testInvoiceRoundTrip(t, newStore(t)) })
	t.Run("InvoiceFilter", func(t *testing.T) { testInvoiceFilter(t, newStore(t)) })
	t.Run("PurchaseOrders", func(t *testing.T) { testPurchaseOrders(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("GSTEntries", func(t *testing.T) { testGSTEntries(t, newStore(t)) })
	t.Run("CatalogAndAliases", func(t *testing.T) { testCatalogAndAliases(t, newStore(t)) })
	t.Run("DiscountTerms", func(t *testing.T) { testDiscountTerms(t, newStore(t)) })
	t.Run("AllocationPlan", func(t *testing.T) { testAllocationPlan(t, newStore(t)) })
	t.Run("AllocationPlanIsAtomic", func(t *testing.T) { testAllocationPlanAtomic(t, newStore(t)) })
	t.Run("ReversalPlan", func(t *testing.T) { testReversalPlan(t, newStore(t)) })
	t.Run("StalePlanRejected", func(t *testing.T) { testStalePlanRejected(t, newStore(t)) })
	t.Run("Results", func(t *testing.T) { testResults(t, newStore(t)) })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Invoice returns a valid purchase invoice for tests
func Invoice(org, id string, date time.Time, total string) *models.Invoice {
	t := decimal.RequireFromString(total)
	return &models.Invoice{
		ID:            id,
		OrgID:         org,
		Kind:          models.InvoiceKindPurchase,
		PartyID:       "vendor-1",
		PartyGSTIN:    "27AAPFU0939F1ZV",
		Number:        "INV-" + id,
		Date:          date,
		DueDate:       date.AddDate(0, 0, 30),
		Subtotal:      t,
		Total:         t,
		AmountPaid:    decimal.Zero,
		PaymentStatus: models.PaymentStatusUnpaid,
		Lines: []models.LineItem{{
			ID:          id + "-l1",
			Description: "OPC 53 Grade Cement 50kg",
			CatalogID:   "c1",
			Quantity:    decimal.NewFromInt(10),
			UnitPrice:   t.Div(decimal.NewFromInt(10)),
		}},
	}
}

// Transaction returns a valid unmatched outgoing payment for tests
func Transaction(org, id string, date time.Time, amount string) *models.BankTransaction {
	return &models.BankTransaction{
		ID:        id,
		OrgID:     org,
		Date:      date,
		Amount:    decimal.RequireFromString(amount),
		Direction: models.DirectionDebit,
		Reference: "NEFT " + id,
		Status:    models.TransactionUnmatched,
	}
}

func testOrgScoping(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i1", day(2024, 3, 1), "1000")))

	_, err := s.GetInvoice(ctx, "org-2", "i1")
	assert.True(t, apperrors.IsNotFound(err), "other organization must see not found, got %v", err)

	list, err := s.ListInvoices(ctx, "org-2", models.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetPurchaseOrder(ctx, "org-1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.GetTransaction(ctx, "org-1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.GetGSTEntry(ctx, "org-1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.GetCatalogEntry(ctx, "org-1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func testInvoiceRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	in := Invoice("org-1", "i1", day(2024, 3, 1), "1180.50")
	in.CGST = decimal.RequireFromString("90.04")
	in.SGST = decimal.RequireFromString("90.04")
	require.NoError(t, s.SaveInvoice(ctx, in))

	got, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, in.Number, got.Number)
	assert.True(t, in.Total.Equal(got.Total), "total %s", got.Total)
	assert.True(t, in.CGST.Equal(got.CGST), "cgst %s", got.CGST)
	assert.True(t, in.Date.Equal(got.Date))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "c1", got.Lines[0].CatalogID)
	assert.True(t, got.Lines[0].Quantity.Equal(decimal.NewFromInt(10)))

	got.Number = "changed"
	again, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, in.Number, again.Number, "returned records must not alias stored state")

	in.Total = decimal.RequireFromString("1200")
	require.NoError(t, s.SaveInvoice(ctx, in))
	got, err = s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(1200)), "save replaces by id")

	bad := Invoice("org-1", "", day(2024, 3, 1), "10")
	err = s.SaveInvoice(ctx, bad)
	re, ok := apperrors.AsReconcilerError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperrors.CategoryValidation, re.Category)
}

func testInvoiceFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	i1 := Invoice("org-1", "i1", day(2024, 3, 1), "100")
	i2 := Invoice("org-1", "i2", day(2024, 3, 15), "200")
	i2.PaymentStatus = models.PaymentStatusPaid
	i3 := Invoice("org-1", "i3", day(2024, 3, 31), "300")
	i3.Kind = models.InvoiceKindSales
	i3.PartyID = "customer-1"
	i0 := Invoice("org-1", "i0", day(2024, 3, 15), "50")
	for _, inv := range []*models.Invoice{i1, i2, i3, i0} {
		require.NoError(t, s.SaveInvoice(ctx, inv))
	}

	all, err := s.ListInvoices(ctx, "org-1", models.InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i0", "i2", "i3"}, invoiceIDs(all), "ordered by date then id")

	purchases, err := s.ListInvoices(ctx, "org-1", models.InvoiceFilter{Kind: models.InvoiceKindPurchase})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i0", "i2"}, invoiceIDs(purchases))

	window, err := s.ListInvoices(ctx, "org-1", models.InvoiceFilter{
		From: day(2024, 3, 15),
		To:   time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"i0", "i2", "i3"}, invoiceIDs(window), "days are inclusive")

	open, err := s.ListInvoices(ctx, "org-1", models.InvoiceFilter{
		PaymentStatuses: []models.PaymentStatus{models.PaymentStatusUnpaid, models.PaymentStatusPartiallyPaid},
		PartyID:         "vendor-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i0"}, invoiceIDs(open))
}

func testPurchaseOrders(t *testing.T, s store.Store) {
	ctx := context.Background()
	mk := func(id, vendor string, date time.Time, status models.POStatus) *models.PurchaseOrder {
		return &models.PurchaseOrder{
			ID: id, OrgID: "org-1", VendorID: vendor, Number: "PO-" + id, Date: date, Status: status,
			Lines: []models.LineItem{{ID: id + "-1", Description: "TMT Steel Bar 12mm",
				Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}},
			Subtotal: decimal.NewFromInt(100), Total: decimal.NewFromInt(100),
		}
	}
	require.NoError(t, s.SavePurchaseOrder(ctx, mk("p2", "vendor-1", day(2024, 2, 10), models.POStatusOpen)))
	require.NoError(t, s.SavePurchaseOrder(ctx, mk("p1", "vendor-1", day(2024, 2, 1), models.POStatusFulfilled)))
	require.NoError(t, s.SavePurchaseOrder(ctx, mk("p3", "vendor-2", day(2024, 2, 5), models.POStatusOpen)))

	got, err := s.ListPurchaseOrders(ctx, "org-1", models.POFilter{VendorID: "vendor-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)
	require.Len(t, got[1].Lines, 1)

	open, err := s.ListPurchaseOrders(ctx, "org-1", models.POFilter{Statuses: []models.POStatus{models.POStatusOpen}})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "p3", open[0].ID)

	po, err := s.GetPurchaseOrder(ctx, "org-1", "p3")
	require.NoError(t, err)
	assert.Equal(t, "vendor-2", po.VendorID)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	t1 := Transaction("org-1", "t1", day(2024, 3, 5), "500")
	t1.Status = ""
	require.NoError(t, s.SaveTransaction(ctx, t1))
	t2 := Transaction("org-1", "t2", day(2024, 3, 2), "700")
	t2.Status = models.TransactionAutoMatched
	require.NoError(t, s.SaveTransaction(ctx, t2))

	got, err := s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionUnmatched, got.Status, "empty status defaults to unmatched")

	unmatched, err := s.ListTransactions(ctx, "org-1", models.TransactionFilter{Status: models.TransactionUnmatched})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "t1", unmatched[0].ID)

	all, err := s.ListTransactions(ctx, "org-1", models.TransactionFilter{From: day(2024, 3, 1), To: day(2024, 3, 5)})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID)

	zero := Transaction("org-1", "t3", day(2024, 3, 5), "0")
	assert.Error(t, s.SaveTransaction(ctx, zero))
}

func testGSTEntries(t *testing.T, s store.Store) {
	ctx := context.Background()
	mk := func(id, period, gstin string, date time.Time) *models.GSTEntry {
		return &models.GSTEntry{
			ID: id, OrgID: "org-1", ReturnPeriod: period, CounterpartyGSTIN: gstin,
			InvoiceNumber: "INV-" + id, InvoiceDate: date,
			InvoiceValue: decimal.NewFromInt(1180), TaxableValue: decimal.NewFromInt(1000),
			CGST: decimal.NewFromInt(90), SGST: decimal.NewFromInt(90), Filed: true,
		}
	}
	require.NoError(t, s.SaveGSTEntry(ctx, mk("e2", "2024-03", "27AAPFU0939F1ZV", day(2024, 3, 20))))
	require.NoError(t, s.SaveGSTEntry(ctx, mk("e1", "2024-03", "29AAGCB7383J1Z4", day(2024, 3, 2))))
	require.NoError(t, s.SaveGSTEntry(ctx, mk("e3", "2024-04", "27AAPFU0939F1ZV", day(2024, 4, 2))))

	march, err := s.ListGSTEntries(ctx, "org-1", models.GSTEntryFilter{Period: "2024-03"})
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "e1", march[0].ID)
	assert.True(t, march[0].CGST.Equal(decimal.NewFromInt(90)))

	byGSTIN, err := s.ListGSTEntries(ctx, "org-1", models.GSTEntryFilter{GSTIN: "27AAPFU0939F1ZV"})
	require.NoError(t, err)
	assert.Len(t, byGSTIN, 2)
}

func testCatalogAndAliases(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveCatalogEntry(ctx, &models.CatalogEntry{
		ID: "c2", OrgID: "org-1", Code: "TMT-12", Name: "TMT Steel Bar 12mm", Active: true,
	}))
	require.NoError(t, s.SaveCatalogEntry(ctx, &models.CatalogEntry{
		ID: "c1", OrgID: "org-1", Code: "CEM-OPC-53", Name: "OPC 53 Grade Cement 50kg",
		Aliases: []string{"Ultratech OPC 53"}, Active: true,
	}))
	require.NoError(t, s.SaveCatalogEntry(ctx, &models.CatalogEntry{
		ID: "c3", OrgID: "org-1", Code: "SAND", Name: "River Sand", Active: false,
	}))

	active, err := s.ListCatalog(ctx, "org-1", models.CatalogFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "c1", active[0].ID, "ordered by code")
	assert.Equal(t, []string{"Ultratech OPC 53"}, active[0].Aliases)

	limited, err := s.ListCatalog(ctx, "org-1", models.CatalogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	added, err := s.AppendAlias(ctx, "org-1", "c2", "Saria 12 mm")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AppendAlias(ctx, "org-1", "c2", "  saria   12 MM ")
	require.NoError(t, err)
	assert.False(t, added, "alias comparison ignores case and spacing")

	entry, err := s.GetCatalogEntry(ctx, "org-1", "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Saria 12 mm"}, entry.Aliases)

	_, err = s.AppendAlias(ctx, "org-2", "c2", "anything")
	assert.True(t, apperrors.IsNotFound(err))
}

func testDiscountTerms(t *testing.T, s store.Store) {
	ctx := context.Background()
	to := day(2024, 12, 31)
	max := decimal.NewFromInt(100000)
	require.NoError(t, s.SaveDiscountTerm(ctx, &models.DiscountTerm{
		ID: "t2", OrgID: "org-1", VendorID: "vendor-1", Kind: models.DiscountVolume,
		ValueType: models.ValueSlab,
		Slabs: []models.DiscountSlab{
			{Min: decimal.NewFromInt(50000), Max: &max, ValueType: models.ValuePercentage, Value: decimal.NewFromInt(2)},
			{Min: decimal.NewFromInt(100000), ValueType: models.ValuePercentage, Value: decimal.NewFromInt(4)},
		},
		ValidFrom: day(2024, 1, 1), ValidTo: &to, Active: true,
	}))
	require.NoError(t, s.SaveDiscountTerm(ctx, &models.DiscountTerm{
		ID: "t1", OrgID: "org-1", VendorID: "vendor-1", Kind: models.DiscountCash,
		ValueType: models.ValuePercentage, Value: decimal.NewFromInt(1),
		CatalogIDs: []string{"c1"}, PaymentWithinDays: 10, ValidFrom: day(2024, 1, 1), Active: true,
	}))
	require.NoError(t, s.SaveDiscountTerm(ctx, &models.DiscountTerm{
		ID: "t3", OrgID: "org-1", VendorID: "vendor-2", Kind: models.DiscountLatePenalty,
		PenaltyPercent: decimal.NewFromInt(2), ValidFrom: day(2024, 1, 1), Active: true,
	}))

	terms, err := s.ListDiscountTerms(ctx, "org-1", "vendor-1")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "t1", terms[0].ID)
	assert.Equal(t, []string{"c1"}, terms[0].CatalogIDs)
	assert.Nil(t, terms[0].ValidTo)

	slab := terms[1]
	require.Len(t, slab.Slabs, 2)
	require.NotNil(t, slab.Slabs[0].Max)
	assert.True(t, slab.Slabs[0].Max.Equal(max))
	assert.Nil(t, slab.Slabs[1].Max)
	require.NotNil(t, slab.ValidTo)
	assert.True(t, slab.ValidTo.Equal(to))
}

func testAllocationPlan(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i1", day(2024, 3, 1), "1000")))
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i2", day(2024, 3, 2), "500")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t1", day(2024, 3, 10), "1200")))

	at := day(2024, 3, 10)
	plan := &models.AllocationPlan{
		OrgID:         "org-1",
		TransactionID: "t1",
		Allocations: []models.PaymentAllocation{
			{TransactionID: "t1", InvoiceID: "i1", Amount: decimal.NewFromInt(1000),
				BalanceBefore: decimal.NewFromInt(1000), BalanceAfter: decimal.Zero, PaidOn: day(2024, 3, 8), AllocatedAt: at},
			{TransactionID: "t1", InvoiceID: "i2", Amount: decimal.NewFromInt(200),
				BalanceBefore: decimal.NewFromInt(500), BalanceAfter: decimal.NewFromInt(300), AllocatedAt: at},
		},
		InvoiceUpdates: []models.InvoicePaymentUpdate{
			{InvoiceID: "i1", AmountPaid: decimal.NewFromInt(1000), Status: models.PaymentStatusPaid},
			{InvoiceID: "i2", AmountPaid: decimal.NewFromInt(200), Status: models.PaymentStatusPartiallyPaid},
		},
		TransactionStatus: models.TransactionAutoMatched,
	}
	require.NoError(t, s.ApplyAllocationPlan(ctx, plan))

	i2, err := s.GetInvoice(ctx, "org-1", "i2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartiallyPaid, i2.PaymentStatus)
	assert.True(t, i2.AmountPaid.Equal(decimal.NewFromInt(200)))

	txn, err := s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAutoMatched, txn.Status)

	allocs, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{TransactionID: "t1"})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "i1", allocs[0].InvoiceID)
	assert.True(t, allocs[0].PaidOn.Equal(day(2024, 3, 8)), "payment date survives storage, got %v", allocs[0].PaidOn)
	assert.True(t, allocs[1].PaidOn.IsZero())
	assert.True(t, allocs[1].BalanceAfter.Equal(decimal.NewFromInt(300)))

	forInvoice, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{InvoiceID: "i2"})
	require.NoError(t, err)
	assert.Len(t, forInvoice, 1)

	noStatus := &models.AllocationPlan{OrgID: "org-1", TransactionID: "t1"}
	require.NoError(t, s.ApplyAllocationPlan(ctx, noStatus))
	txn, err = s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAutoMatched, txn.Status, "empty plan status leaves the transaction alone")
}

func testAllocationPlanAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i1", day(2024, 3, 1), "1000")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t1", day(2024, 3, 10), "1000")))

	plan := &models.AllocationPlan{
		OrgID:         "org-1",
		TransactionID: "t1",
		Allocations: []models.PaymentAllocation{
			{TransactionID: "t1", InvoiceID: "i1", Amount: decimal.NewFromInt(500), AllocatedAt: day(2024, 3, 10)},
			{TransactionID: "t1", InvoiceID: "ghost", Amount: decimal.NewFromInt(500), AllocatedAt: day(2024, 3, 10)},
		},
		InvoiceUpdates: []models.InvoicePaymentUpdate{
			{InvoiceID: "i1", AmountPaid: decimal.NewFromInt(500), Status: models.PaymentStatusPartiallyPaid},
			{InvoiceID: "ghost", AmountPaid: decimal.NewFromInt(500), Status: models.PaymentStatusPartiallyPaid},
		},
		TransactionStatus: models.TransactionAutoMatched,
	}
	err := s.ApplyAllocationPlan(ctx, plan)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)

	inv, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.True(t, inv.AmountPaid.IsZero(), "a failed plan writes nothing")
	allocs, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{})
	require.NoError(t, err)
	assert.Empty(t, allocs)
	txn, err := s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionUnmatched, txn.Status)
}

func testReversalPlan(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i1", day(2024, 3, 1), "1000")))
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i2", day(2024, 3, 1), "1000")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t1", day(2024, 3, 10), "400")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t2", day(2024, 3, 11), "300")))

	a1 := models.PaymentAllocation{TransactionID: "t1", InvoiceID: "i1", Amount: decimal.NewFromInt(400), AllocatedAt: day(2024, 3, 10)}
	a2 := models.PaymentAllocation{TransactionID: "t2", InvoiceID: "i1", Amount: decimal.NewFromInt(300), AllocatedAt: day(2024, 3, 11)}
	require.NoError(t, s.ApplyAllocationPlan(ctx, &models.AllocationPlan{
		OrgID: "org-1", TransactionID: "t1", Allocations: []models.PaymentAllocation{a1},
		InvoiceUpdates:    []models.InvoicePaymentUpdate{{InvoiceID: "i1", AmountPaid: decimal.NewFromInt(400), Status: models.PaymentStatusPartiallyPaid}},
		TransactionStatus: models.TransactionAutoMatched,
	}))
	require.NoError(t, s.ApplyAllocationPlan(ctx, &models.AllocationPlan{
		OrgID: "org-1", TransactionID: "t2", Allocations: []models.PaymentAllocation{a2},
		InvoiceUpdates: []models.InvoicePaymentUpdate{{InvoiceID: "i1", PreviousPaid: decimal.NewFromInt(400),
			AmountPaid: decimal.NewFromInt(700), Status: models.PaymentStatusPartiallyPaid}},
		TransactionStatus: models.TransactionAutoMatched,
	}))

	require.NoError(t, s.ApplyReversalPlan(ctx, &models.ReversalPlan{
		OrgID: "org-1", TransactionID: "t1", Removed: []models.PaymentAllocation{a1},
		InvoiceUpdates: []models.InvoicePaymentUpdate{{InvoiceID: "i1", PreviousPaid: decimal.NewFromInt(700),
			AmountPaid: decimal.NewFromInt(300), Status: models.PaymentStatusPartiallyPaid}},
		TransactionStatus: models.TransactionUnmatched,
	}))

	allocs, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "t2", allocs[0].TransactionID)

	inv, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.True(t, inv.AmountPaid.Equal(decimal.NewFromInt(300)))

	txn, err := s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionUnmatched, txn.Status)

	err = s.ApplyReversalPlan(ctx, &models.ReversalPlan{OrgID: "org-2", TransactionID: "t2"})
	assert.True(t, apperrors.IsNotFound(err))
}

// Two plans computed from the same read of an invoice: the second one must
// not overwrite the paid amount the first one wrote.
func testStalePlanRejected(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, Invoice("org-1", "i1", day(2024, 3, 1), "1000")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t1", day(2024, 3, 10), "600")))
	require.NoError(t, s.SaveTransaction(ctx, Transaction("org-1", "t2", day(2024, 3, 11), "600")))

	planFor := func(txnID string) *models.AllocationPlan {
		return &models.AllocationPlan{
			OrgID: "org-1", TransactionID: txnID,
			Allocations: []models.PaymentAllocation{{TransactionID: txnID, InvoiceID: "i1",
				Amount: decimal.NewFromInt(600), AllocatedAt: day(2024, 3, 12)}},
			InvoiceUpdates: []models.InvoicePaymentUpdate{{InvoiceID: "i1", PreviousPaid: decimal.Zero,
				AmountPaid: decimal.NewFromInt(600), Status: models.PaymentStatusPartiallyPaid}},
			TransactionStatus: models.TransactionManuallyMatched,
		}
	}
	require.NoError(t, s.ApplyAllocationPlan(ctx, planFor("t1")))

	err := s.ApplyAllocationPlan(ctx, planFor("t2"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDataInconsistent), "got %v", err)

	inv, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.True(t, inv.AmountPaid.Equal(decimal.NewFromInt(600)), "got %s", inv.AmountPaid)
	allocs, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{InvoiceID: "i1"})
	require.NoError(t, err)
	assert.Len(t, allocs, 1)
	txn, err := s.GetTransaction(ctx, "org-1", "t2")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionUnmatched, txn.Status)

	err = s.ApplyReversalPlan(ctx, &models.ReversalPlan{
		OrgID: "org-1", TransactionID: "t1",
		Removed: []models.PaymentAllocation{{TransactionID: "t1", InvoiceID: "i1", Amount: decimal.NewFromInt(600)}},
		InvoiceUpdates: []models.InvoicePaymentUpdate{{InvoiceID: "i1", PreviousPaid: decimal.NewFromInt(900),
			AmountPaid: decimal.NewFromInt(300), Status: models.PaymentStatusPartiallyPaid}},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDataInconsistent), "got %v", err)
}

func testResults(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := models.IdempotencyKey(models.ResultDocumentMatch, "org-1", "p1", "i1")
	first := &models.StoredResult{
		Key: key, OrgID: "org-1", Kind: models.ResultDocumentMatch,
		SubjectIDs: []string{"p1", "i1"}, Score: 72.5, Class: "PARTIAL_BOTH",
		NeedsReview: true, Payload: json.RawMessage(`{"score":72.5}`),
	}
	require.NoError(t, s.SaveResult(ctx, first))
	saved, err := s.GetResult(ctx, "org-1", key)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "i1"}, saved.SubjectIDs)
	assert.JSONEq(t, `{"score":72.5}`, string(saved.Payload))
	created := saved.CreatedAt

	second := *first
	second.Score = 95
	second.Class = "EXACT"
	second.NeedsReview = false
	second.Payload = json.RawMessage(`{"score":95}`)
	require.NoError(t, s.SaveResult(ctx, &second))

	all, err := s.ListResults(ctx, "org-1", models.ResultDocumentMatch)
	require.NoError(t, err)
	require.Len(t, all, 1, "same key upserts one row")
	assert.Equal(t, 95.0, all[0].Score)
	assert.False(t, all[0].NeedsReview)
	assert.True(t, all[0].CreatedAt.Equal(created), "creation time survives an upsert")

	other := models.IdempotencyKey(models.ResultGSTMatch, "org-1", "e1")
	require.NoError(t, s.SaveResult(ctx, &models.StoredResult{
		Key: other, OrgID: "org-1", Kind: models.ResultGSTMatch, SubjectIDs: []string{"e1"},
	}))
	gst, err := s.ListResults(ctx, "org-1", models.ResultGSTMatch)
	require.NoError(t, err)
	require.Len(t, gst, 1)
	everything, err := s.ListResults(ctx, "org-1", "")
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	_, err = s.GetResult(ctx, "org-2", key)
	assert.True(t, apperrors.IsNotFound(err))

	err = s.SaveResult(ctx, &models.StoredResult{OrgID: "org-1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingField))
}

func invoiceIDs(list []*models.Invoice) []string {
	ids := make([]string, 0, len(list))
	for _, inv := range list {
		ids = append(ids, inv.ID)
	}
	return ids
}
