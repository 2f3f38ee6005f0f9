package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	"github.com/mohit-ambani/auditflow-sub000/internal/store/storetest"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestStore_CopiesOnWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := storetest.Invoice("org-1", "i1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "100")
	require.NoError(t, s.SaveInvoice(ctx, inv))

	inv.Lines[0].Description = "mutated after save"
	got, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, "OPC 53 Grade Cement 50kg", got.Lines[0].Description)

	entry := &models.CatalogEntry{ID: "c1", OrgID: "org-1", Name: "Cement", Aliases: []string{"OPC"}, Active: true}
	require.NoError(t, s.SaveCatalogEntry(ctx, entry))
	entry.Aliases[0] = "changed"
	stored, err := s.GetCatalogEntry(ctx, "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"OPC"}, stored.Aliases)
}

func TestStore_SaveResultTimestamps(t *testing.T) {
	ctx := context.Background()
	s := New()
	clock := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	res := &models.StoredResult{Key: "k1", OrgID: "org-1", Kind: models.ResultGSTMatch}
	require.NoError(t, s.SaveResult(ctx, res))

	clock = clock.Add(time.Hour)
	require.NoError(t, s.SaveResult(ctx, res))

	got, err := s.GetResult(ctx, "org-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.Equal(t, time.Date(2024, 4, 1, 11, 0, 0, 0, time.UTC), got.UpdatedAt)
}

const fixtureJSON = `{
  "invoices": [{
    "id": "i1", "orgId": "org-1", "kind": "PURCHASE", "partyId": "vendor-1",
    "number": "INV-1", "date": "2024-03-01T00:00:00Z", "dueDate": "2024-03-31T00:00:00Z",
    "lines": [], "subtotal": "1000", "cgst": "0", "sgst": "0", "igst": "0",
    "total": "1000", "amountPaid": "400", "paymentStatus": "PARTIALLY_PAID"
  }],
  "transactions": [{
    "id": "t1", "orgId": "org-1", "date": "2024-03-05T00:00:00Z", "amount": "400",
    "direction": "DEBIT", "status": "AUTO_MATCHED"
  }],
  "catalog": [{"id": "c1", "orgId": "org-1", "code": "CEM", "name": "Cement", "active": true}],
  "allocations": [{
    "transactionId": "t1", "invoiceId": "i1", "amount": "400",
    "balanceBefore": "1000", "balanceAfter": "600", "allocatedAt": "2024-03-05T00:00:00Z"
  }]
}`

func TestSeed(t *testing.T) {
	ctx := context.Background()
	f, err := store.ReadFixtures(strings.NewReader(fixtureJSON))
	require.NoError(t, err)

	s := New()
	require.NoError(t, store.Seed(ctx, s, f))

	inv, err := s.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.True(t, inv.AmountPaid.Equal(decimal.NewFromInt(400)), "seeding keeps recorded settlement")

	txn, err := s.GetTransaction(ctx, "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAutoMatched, txn.Status)

	allocs, err := s.ListAllocations(ctx, "org-1", models.AllocationFilter{InvoiceID: "i1"})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.True(t, allocs[0].BalanceAfter.Equal(decimal.NewFromInt(600)))
}

func TestReadFixtures_RejectsUnknownFields(t *testing.T) {
	_, err := store.ReadFixtures(strings.NewReader(`{"invoices": [], "vendors": []}`))
	require.Error(t, err)
	re, ok := apperrors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidFormat, re.Code)
}

func TestLoadFixturesFile_Missing(t *testing.T) {
	_, err := store.LoadFixturesFile("testdata/does-not-exist.json")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeFileNotFound))
}

func TestSeed_UnknownTransaction(t *testing.T) {
	f := &store.Fixtures{Allocations: []models.PaymentAllocation{{TransactionID: "ghost", InvoiceID: "i1"}}}
	err := store.Seed(context.Background(), New(), f)
	assert.ErrorContains(t, err, "ghost")
}
