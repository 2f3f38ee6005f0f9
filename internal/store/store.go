// Package store defines the persistence contract of the reconciliation
// engine. Every read is scoped by organization: a record of another
// organization is reported as not found.
package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// Reader loads source documents
type Reader interface {
	GetPurchaseOrder(ctx context.Context, orgID, id string) (*models.PurchaseOrder, error)
	GetInvoice(ctx context.Context, orgID, id string) (*models.Invoice, error)
	GetTransaction(ctx context.Context, orgID, id string) (*models.BankTransaction, error)
	GetGSTEntry(ctx context.Context, orgID, id string) (*models.GSTEntry, error)
	GetCatalogEntry(ctx context.Context, orgID, id string) (*models.CatalogEntry, error)

	ListPurchaseOrders(ctx context.Context, orgID string, filter models.POFilter) ([]*models.PurchaseOrder, error)
	ListInvoices(ctx context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error)
	ListTransactions(ctx context.Context, orgID string, filter models.TransactionFilter) ([]*models.BankTransaction, error)
	ListGSTEntries(ctx context.Context, orgID string, filter models.GSTEntryFilter) ([]*models.GSTEntry, error)
	ListCatalog(ctx context.Context, orgID string, filter models.CatalogFilter) ([]*models.CatalogEntry, error)
	ListDiscountTerms(ctx context.Context, orgID, vendorID string) ([]*models.DiscountTerm, error)
	ListAllocations(ctx context.Context, orgID string, filter models.AllocationFilter) ([]models.PaymentAllocation, error)
}

// Writer stores source documents and applies settlement plans. Save methods
// insert or replace by id.
type Writer interface {
	SavePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error
	SaveInvoice(ctx context.Context, inv *models.Invoice) error
	SaveTransaction(ctx context.Context, txn *models.BankTransaction) error
	SaveGSTEntry(ctx context.Context, entry *models.GSTEntry) error
	SaveCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error
	SaveDiscountTerm(ctx context.Context, term *models.DiscountTerm) error

	// AppendAlias adds alias to a catalog entry unless an equal alias exists,
	// reporting whether it was added
	AppendAlias(ctx context.Context, orgID, catalogID, alias string) (bool, error)

	// ApplyAllocationPlan and ApplyReversalPlan write all of a plan or none of
	// it. A plan whose invoice updates no longer start from the stored paid
	// amount is rejected with StalePlanError.
	ApplyAllocationPlan(ctx context.Context, plan *models.AllocationPlan) error
	ApplyReversalPlan(ctx context.Context, plan *models.ReversalPlan) error
}

// ResultStore persists match results under their idempotency key
type ResultStore interface {
	// SaveResult upserts by (orgID, key), keeping the original creation time
	SaveResult(ctx context.Context, result *models.StoredResult) error
	GetResult(ctx context.Context, orgID, key string) (*models.StoredResult, error)
	ListResults(ctx context.Context, orgID string, kind models.ResultKind) ([]*models.StoredResult, error)
}

// Store is the full persistence contract
type Store interface {
	Reader
	Writer
	ResultStore
	Close() error
}

// StalePlanError reports an invoice whose paid amount changed between
// planning and applying a settlement plan
func StalePlanError(orgID string, update models.InvoicePaymentUpdate, current decimal.Decimal) error {
	return apperrors.ReconciliationError(apperrors.CodeDataInconsistent, "apply payment plan",
		fmt.Errorf("invoice %s has %s paid, plan was made against %s",
			update.InvoiceID, current.StringFixed(2), update.PreviousPaid.StringFixed(2))).
		WithContext("org_id", orgID).
		WithSuggestion("Another allocation changed the invoice in the meantime; run the command again")
}
