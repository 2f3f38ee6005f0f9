package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// Fixtures is a JSON snapshot of source documents used to seed a store
type Fixtures struct {
	PurchaseOrders []*models.PurchaseOrder    `json:"purchaseOrders"`
	Invoices       []*models.Invoice          `json:"invoices"`
	Transactions   []*models.BankTransaction  `json:"transactions"`
	GSTEntries     []*models.GSTEntry         `json:"gstEntries"`
	Catalog        []*models.CatalogEntry     `json:"catalog"`
	DiscountTerms  []*models.DiscountTerm     `json:"discountTerms"`
	Allocations    []models.PaymentAllocation `json:"allocations"`
}

// ReadFixtures decodes fixtures, rejecting unknown fields
func ReadFixtures(r io.Reader) (*Fixtures, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, "fixtures", 0, "", "", err)
	}
	return &f, nil
}

// LoadFixturesFile reads fixtures from path
func LoadFixturesFile(path string) (*Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
	}
	defer file.Close()
	return ReadFixtures(file)
}

// Seed writes every fixture record through w. Allocations are applied as
// plans of their own and leave invoice and transaction state untouched.
func Seed(ctx context.Context, w Writer, f *Fixtures) error {
	for _, po := range f.PurchaseOrders {
		if err := w.SavePurchaseOrder(ctx, po); err != nil {
			return fmt.Errorf("purchase order %s: %w", po.ID, err)
		}
	}
	for _, inv := range f.Invoices {
		if err := w.SaveInvoice(ctx, inv); err != nil {
			return fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
	}
	for _, txn := range f.Transactions {
		if err := w.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
	}
	for _, e := range f.GSTEntries {
		if err := w.SaveGSTEntry(ctx, e); err != nil {
			return fmt.Errorf("gst entry %s: %w", e.ID, err)
		}
	}
	for _, e := range f.Catalog {
		if err := w.SaveCatalogEntry(ctx, e); err != nil {
			return fmt.Errorf("catalog entry %s: %w", e.ID, err)
		}
	}
	for _, t := range f.DiscountTerms {
		if err := w.SaveDiscountTerm(ctx, t); err != nil {
			return fmt.Errorf("discount term %s: %w", t.ID, err)
		}
	}

	byTxn := make(map[string][]models.PaymentAllocation)
	var order []string
	orgOf := make(map[string]string)
	dateOf := make(map[string]time.Time)
	for _, txn := range f.Transactions {
		orgOf[txn.ID] = txn.OrgID
		dateOf[txn.ID] = txn.Date
	}
	for _, a := range f.Allocations {
		if a.PaidOn.IsZero() {
			a.PaidOn = dateOf[a.TransactionID]
		}
		if _, ok := byTxn[a.TransactionID]; !ok {
			order = append(order, a.TransactionID)
		}
		byTxn[a.TransactionID] = append(byTxn[a.TransactionID], a)
	}
	for _, id := range order {
		org, ok := orgOf[id]
		if !ok {
			return fmt.Errorf("allocation references unknown transaction %s", id)
		}
		if err := w.ApplyAllocationPlan(ctx, &models.AllocationPlan{
			OrgID:         org,
			TransactionID: id,
			Allocations:   byTxn[id],
		}); err != nil {
			return fmt.Errorf("allocations of transaction %s: %w", id, err)
		}
	}
	return nil
}
