// Package memory is an in-process implementation of store.Store. It backs
// the tests and the CLI's JSON fixture mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var _ store.Store = (*Store)(nil)

type key struct {
	org string
	id  string
}

// Store keeps every record in maps keyed by organization and id. Records are
// copied on the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	purchaseOrders map[key]*models.PurchaseOrder
	invoices       map[key]*models.Invoice
	transactions   map[key]*models.BankTransaction
	gstEntries     map[key]*models.GSTEntry
	catalog        map[key]*models.CatalogEntry
	terms          map[key]*models.DiscountTerm
	allocations    map[string][]models.PaymentAllocation
	results        map[key]*models.StoredResult

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		purchaseOrders: make(map[key]*models.PurchaseOrder),
		invoices:       make(map[key]*models.Invoice),
		transactions:   make(map[key]*models.BankTransaction),
		gstEntries:     make(map[key]*models.GSTEntry),
		catalog:        make(map[key]*models.CatalogEntry),
		terms:          make(map[key]*models.DiscountTerm),
		allocations:    make(map[string][]models.PaymentAllocation),
		results:        make(map[key]*models.StoredResult),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// GetPurchaseOrder implements store.Reader
func (s *Store) GetPurchaseOrder(_ context.Context, orgID, id string) (*models.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.purchaseOrders[key{orgID, id}]
	if !ok {
		return nil, apperrors.NotFoundError("purchase order", id, orgID)
	}
	return clonePO(po), nil
}

// GetInvoice implements store.Reader
func (s *Store) GetInvoice(_ context.Context, orgID, id string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[key{orgID, id}]
	if !ok {
		return nil, apperrors.NotFoundError("invoice", id, orgID)
	}
	return cloneInvoice(inv), nil
}

// GetTransaction implements store.Reader
func (s *Store) GetTransaction(_ context.Context, orgID, id string) (*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.transactions[key{orgID, id}]
	if !ok {
		return nil, apperrors.NotFoundError("bank transaction", id, orgID)
	}
	c := *txn
	return &c, nil
}

// GetGSTEntry implements store.Reader
func (s *Store) GetGSTEntry(_ context.Context, orgID, id string) (*models.GSTEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.gstEntries[key{orgID, id}]
	if !ok {
		return nil, apperrors.NotFoundError("gst entry", id, orgID)
	}
	c := *entry
	return &c, nil
}

// GetCatalogEntry implements store.Reader
func (s *Store) GetCatalogEntry(_ context.Context, orgID, id string) (*models.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.catalog[key{orgID, id}]
	if !ok {
		return nil, apperrors.NotFoundError("catalog entry", id, orgID)
	}
	return cloneCatalogEntry(entry), nil
}

// ListPurchaseOrders returns matching orders by date, then id
func (s *Store) ListPurchaseOrders(_ context.Context, orgID string, filter models.POFilter) ([]*models.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PurchaseOrder
	for k, po := range s.purchaseOrders {
		if k.org == orgID && filter.Matches(po) {
			out = append(out, clonePO(po))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byDateThenID(out[i].Date, out[j].Date, out[i].ID, out[j].ID)
	})
	return out, nil
}

// ListInvoices returns matching invoices by date, then id
func (s *Store) ListInvoices(_ context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Invoice
	for k, inv := range s.invoices {
		if k.org == orgID && filter.Matches(inv) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byDateThenID(out[i].Date, out[j].Date, out[i].ID, out[j].ID)
	})
	return out, nil
}

// ListTransactions returns matching transactions by date, then id
func (s *Store) ListTransactions(_ context.Context, orgID string, filter models.TransactionFilter) ([]*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BankTransaction
	for k, txn := range s.transactions {
		if k.org != orgID || !transactionMatches(filter, txn) {
			continue
		}
		c := *txn
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return byDateThenID(out[i].Date, out[j].Date, out[i].ID, out[j].ID)
	})
	return out, nil
}

// ListGSTEntries returns the entries of a period by invoice date, then id
func (s *Store) ListGSTEntries(_ context.Context, orgID string, filter models.GSTEntryFilter) ([]*models.GSTEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.GSTEntry
	for k, e := range s.gstEntries {
		if k.org != orgID {
			continue
		}
		if filter.Period != "" && e.ReturnPeriod != filter.Period {
			continue
		}
		if filter.GSTIN != "" && e.CounterpartyGSTIN != filter.GSTIN {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return byDateThenID(out[i].InvoiceDate, out[j].InvoiceDate, out[i].ID, out[j].ID)
	})
	return out, nil
}

// ListCatalog returns catalog entries by code, then id
func (s *Store) ListCatalog(_ context.Context, orgID string, filter models.CatalogFilter) ([]*models.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CatalogEntry
	for k, e := range s.catalog {
		if k.org != orgID || (filter.ActiveOnly && !e.Active) {
			continue
		}
		out = append(out, cloneCatalogEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListDiscountTerms returns a vendor's terms by id
func (s *Store) ListDiscountTerms(_ context.Context, orgID, vendorID string) ([]*models.DiscountTerm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DiscountTerm
	for k, t := range s.terms {
		if k.org == orgID && t.VendorID == vendorID {
			out = append(out, cloneTerm(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAllocations returns allocations in the order they were made
func (s *Store) ListAllocations(_ context.Context, orgID string, filter models.AllocationFilter) ([]models.PaymentAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PaymentAllocation
	for _, a := range s.allocations[orgID] {
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

// SavePurchaseOrder implements store.Writer
func (s *Store) SavePurchaseOrder(_ context.Context, po *models.PurchaseOrder) error {
	if err := po.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "purchase_order", po.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseOrders[key{po.OrgID, po.ID}] = clonePO(po)
	return nil
}

// SaveInvoice implements store.Writer
func (s *Store) SaveInvoice(_ context.Context, inv *models.Invoice) error {
	if err := inv.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "invoice", inv.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[key{inv.OrgID, inv.ID}] = cloneInvoice(inv)
	return nil
}

// SaveTransaction implements store.Writer
func (s *Store) SaveTransaction(_ context.Context, txn *models.BankTransaction) error {
	if err := txn.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidAmount, "transaction", txn.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *txn
	if c.Status == "" {
		c.Status = models.TransactionUnmatched
	}
	s.transactions[key{txn.OrgID, txn.ID}] = &c
	return nil
}

// SaveGSTEntry implements store.Writer
func (s *Store) SaveGSTEntry(_ context.Context, entry *models.GSTEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.gstEntries[key{entry.OrgID, entry.ID}] = &c
	return nil
}

// SaveCatalogEntry implements store.Writer
func (s *Store) SaveCatalogEntry(_ context.Context, entry *models.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[key{entry.OrgID, entry.ID}] = cloneCatalogEntry(entry)
	return nil
}

// SaveDiscountTerm implements store.Writer
func (s *Store) SaveDiscountTerm(_ context.Context, term *models.DiscountTerm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[key{term.OrgID, term.ID}] = cloneTerm(term)
	return nil
}

// AppendAlias implements store.Writer
func (s *Store) AppendAlias(_ context.Context, orgID, catalogID, alias string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.catalog[key{orgID, catalogID}]
	if !ok {
		return false, apperrors.NotFoundError("catalog entry", catalogID, orgID)
	}
	if entry.HasAlias(alias) {
		return false, nil
	}
	entry.Aliases = append(entry.Aliases, alias)
	return true, nil
}

// ApplyAllocationPlan implements store.Writer. Every referenced record is
// checked before anything is written.
func (s *Store) ApplyAllocationPlan(_ context.Context, plan *models.AllocationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.planTargets(plan.OrgID, plan.TransactionID, plan.InvoiceUpdates)
	if err != nil {
		return err
	}

	s.allocations[plan.OrgID] = append(s.allocations[plan.OrgID], plan.Allocations...)
	s.applyInvoiceUpdates(plan.OrgID, plan.InvoiceUpdates)
	if plan.TransactionStatus != "" {
		txn.Status = plan.TransactionStatus
	}
	return nil
}

// ApplyReversalPlan implements store.Writer
func (s *Store) ApplyReversalPlan(_ context.Context, plan *models.ReversalPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.planTargets(plan.OrgID, plan.TransactionID, plan.InvoiceUpdates)
	if err != nil {
		return err
	}

	removed := make(map[string]bool, len(plan.Removed))
	for _, a := range plan.Removed {
		removed[a.TransactionID+"|"+a.InvoiceID] = true
	}
	kept := make([]models.PaymentAllocation, 0, len(s.allocations[plan.OrgID]))
	for _, a := range s.allocations[plan.OrgID] {
		if !removed[a.TransactionID+"|"+a.InvoiceID] {
			kept = append(kept, a)
		}
	}
	s.allocations[plan.OrgID] = kept
	s.applyInvoiceUpdates(plan.OrgID, plan.InvoiceUpdates)
	if plan.TransactionStatus != "" {
		txn.Status = plan.TransactionStatus
	}
	return nil
}

func (s *Store) planTargets(orgID, transactionID string, updates []models.InvoicePaymentUpdate) (*models.BankTransaction, error) {
	txn, ok := s.transactions[key{orgID, transactionID}]
	if !ok {
		return nil, apperrors.NotFoundError("bank transaction", transactionID, orgID)
	}
	for _, u := range updates {
		inv, ok := s.invoices[key{orgID, u.InvoiceID}]
		if !ok {
			return nil, apperrors.NotFoundError("invoice", u.InvoiceID, orgID)
		}
		if !inv.AmountPaid.Equal(u.PreviousPaid) {
			return nil, store.StalePlanError(orgID, u, inv.AmountPaid)
		}
	}
	return txn, nil
}

func (s *Store) applyInvoiceUpdates(orgID string, updates []models.InvoicePaymentUpdate) {
	for _, u := range updates {
		inv := s.invoices[key{orgID, u.InvoiceID}]
		inv.AmountPaid = u.AmountPaid
		inv.PaymentStatus = u.Status
	}
}

// SaveResult implements store.ResultStore
func (s *Store) SaveResult(_ context.Context, result *models.StoredResult) error {
	if result.Key == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "key", "", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneResult(result)
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	if existing, ok := s.results[key{result.OrgID, result.Key}]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	s.results[key{result.OrgID, result.Key}] = c
	return nil
}

// GetResult implements store.ResultStore
func (s *Store) GetResult(_ context.Context, orgID, resultKey string) (*models.StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[key{orgID, resultKey}]
	if !ok {
		return nil, apperrors.NotFoundError("match result", resultKey, orgID)
	}
	return cloneResult(r), nil
}

// ListResults returns the results of one kind, oldest first
func (s *Store) ListResults(_ context.Context, orgID string, kind models.ResultKind) ([]*models.StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StoredResult
	for k, r := range s.results {
		if k.org == orgID && (kind == "" || r.Kind == kind) {
			out = append(out, cloneResult(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byDateThenID(out[i].CreatedAt, out[j].CreatedAt, out[i].Key, out[j].Key)
	})
	return out, nil
}

func transactionMatches(f models.TransactionFilter, txn *models.BankTransaction) bool {
	if f.Status != "" && txn.Status != f.Status {
		return false
	}
	day := models.TruncateDay(txn.Date)
	if !f.From.IsZero() && day.Before(models.TruncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(models.TruncateDay(f.To)) {
		return false
	}
	return true
}

func byDateThenID(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA < idB
}

func clonePO(po *models.PurchaseOrder) *models.PurchaseOrder {
	c := *po
	c.Lines = append([]models.LineItem(nil), po.Lines...)
	return &c
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	c := *inv
	c.Lines = append([]models.LineItem(nil), inv.Lines...)
	return &c
}

func cloneCatalogEntry(e *models.CatalogEntry) *models.CatalogEntry {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	return &c
}

func cloneTerm(t *models.DiscountTerm) *models.DiscountTerm {
	c := *t
	c.Slabs = append([]models.DiscountSlab(nil), t.Slabs...)
	c.CatalogIDs = append([]string(nil), t.CatalogIDs...)
	return &c
}

func cloneResult(r *models.StoredResult) *models.StoredResult {
	c := *r
	c.SubjectIDs = append([]string(nil), r.SubjectIDs...)
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}
