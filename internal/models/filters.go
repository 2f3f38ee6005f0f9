package models

import "time"

// POFilter selects purchase orders of a vendor
type POFilter struct {
	VendorID string
	Statuses []POStatus
}

// InvoiceFilter selects invoices. Zero values leave a field unconstrained;
// From and To are inclusive calendar days.
type InvoiceFilter struct {
	Kind            InvoiceKind
	PartyID         string
	PartyGSTIN      string
	From            time.Time
	To              time.Time
	PaymentStatuses []PaymentStatus
}

// Matches reports whether inv satisfies the filter
func (f InvoiceFilter) Matches(inv *Invoice) bool {
	if f.Kind != "" && inv.Kind != f.Kind {
		return false
	}
	if f.PartyID != "" && inv.PartyID != f.PartyID {
		return false
	}
	if f.PartyGSTIN != "" && inv.PartyGSTIN != f.PartyGSTIN {
		return false
	}
	day := TruncateDay(inv.Date)
	if !f.From.IsZero() && day.Before(TruncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(TruncateDay(f.To)) {
		return false
	}
	if len(f.PaymentStatuses) > 0 {
		found := false
		for _, s := range f.PaymentStatuses {
			if inv.PaymentStatus == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Matches reports whether po satisfies the filter
func (f POFilter) Matches(po *PurchaseOrder) bool {
	if f.VendorID != "" && po.VendorID != f.VendorID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if po.Status == s {
			return true
		}
	}
	return false
}

// TransactionFilter selects bank transactions
type TransactionFilter struct {
	Status TransactionStatus
	From   time.Time
	To     time.Time
}

// GSTEntryFilter selects return entries of a period
type GSTEntryFilter struct {
	Period string
	GSTIN  string
}

// CatalogFilter selects catalog entries
type CatalogFilter struct {
	ActiveOnly bool
	Limit      int
}

// AllocationFilter selects payment allocations by transaction or invoice
type AllocationFilter struct {
	TransactionID string
	InvoiceID     string
}
