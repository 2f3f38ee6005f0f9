package payment

import (
	"sort"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

const dayKeyLayout = "2006-01-02"

// InvoiceIndex holds the open invoices of an organization keyed for the
// lookups done while matching many transactions in one pass
type InvoiceIndex struct {
	// DateIndex maps invoice dates (YYYY-MM-DD) to invoices
	DateIndex map[string][]*models.Invoice

	// KindIndex maps purchase/sales to invoices
	KindIndex map[models.InvoiceKind][]*models.Invoice

	// AllInvoices holds every indexed invoice in date order
	AllInvoices []*models.Invoice
}

// IndexStats describes the contents of an index
type IndexStats struct {
	TotalInvoices int
	UniqueDates   int
	UniqueKinds   int
}

// NewInvoiceIndex indexes the open invoices among invoices. Paid invoices are
// skipped since they can never be payment candidates.
func NewInvoiceIndex(invoices []*models.Invoice) *InvoiceIndex {
	index := &InvoiceIndex{
		DateIndex: make(map[string][]*models.Invoice),
		KindIndex: make(map[models.InvoiceKind][]*models.Invoice),
	}

	for _, inv := range invoices {
		if inv.PaymentStatus.IsOpen() {
			index.AllInvoices = append(index.AllInvoices, inv)
		}
	}
	sortByDate(index.AllInvoices)

	for _, inv := range index.AllInvoices {
		key := models.TruncateDay(inv.Date).Format(dayKeyLayout)
		index.DateIndex[key] = append(index.DateIndex[key], inv)
		index.KindIndex[inv.Kind] = append(index.KindIndex[inv.Kind], inv)
	}
	return index
}

// GetByDateRange returns invoices dated between start and end inclusive
func (ix *InvoiceIndex) GetByDateRange(start, end time.Time) []*models.Invoice {
	var result []*models.Invoice

	current := models.TruncateDay(start)
	last := models.TruncateDay(end)
	for !current.After(last) {
		if invoices, ok := ix.DateIndex[current.Format(dayKeyLayout)]; ok {
			result = append(result, invoices...)
		}
		current = current.AddDate(0, 0, 1)
	}
	return result
}

// GetCandidates returns the invoices of the kind matching the transaction
// direction dated within windowDays of the transaction
func (ix *InvoiceIndex) GetCandidates(txn *models.BankTransaction, windowDays int) []*models.Invoice {
	kind := models.KindForDirection(txn.Direction)

	var candidates []*models.Invoice
	for _, inv := range ix.GetByDateRange(txn.Date.AddDate(0, 0, -windowDays), txn.Date.AddDate(0, 0, windowDays)) {
		if inv.Kind == kind {
			candidates = append(candidates, inv)
		}
	}
	return candidates
}

// GetIndexStats returns statistics about the index
func (ix *InvoiceIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalInvoices: len(ix.AllInvoices),
		UniqueDates:   len(ix.DateIndex),
		UniqueKinds:   len(ix.KindIndex),
	}
}

func sortByDate(invoices []*models.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		di, dj := models.TruncateDay(invoices[i].Date), models.TruncateDay(invoices[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return invoices[i].ID < invoices[j].ID
	})
}
