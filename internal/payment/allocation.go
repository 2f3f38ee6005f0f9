package payment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// AllocationStore is the part of the store that settles invoices
type AllocationStore interface {
	GetTransaction(ctx context.Context, orgID, id string) (*models.BankTransaction, error)
	GetInvoice(ctx context.Context, orgID, id string) (*models.Invoice, error)
	ListAllocations(ctx context.Context, orgID string, filter models.AllocationFilter) ([]models.PaymentAllocation, error)
	ApplyAllocationPlan(ctx context.Context, plan *models.AllocationPlan) error
	ApplyReversalPlan(ctx context.Context, plan *models.ReversalPlan) error
}

// Allocator turns allocation requests into checked plans and hands them to
// the store, which applies each plan atomically
type Allocator struct {
	config *Config
	store  AllocationStore
	logger logger.Logger
	now    func() time.Time
}

// NewAllocator creates an allocator. A nil config uses DefaultConfig.
func NewAllocator(config *Config, store AllocationStore, log logger.Logger) *Allocator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Allocator{
		config: config,
		store:  store,
		logger: logger.OrGlobal(log, "payment-allocator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Allocate applies requests of a transaction to invoices. confidence decides
// whether the transaction is recorded as auto or manually matched.
func (a *Allocator) Allocate(ctx context.Context, orgID, transactionID string, requests []models.AllocationRequest, confidence float64) (*models.AllocationPlan, error) {
	txn, err := a.store.GetTransaction(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}
	existing, err := a.store.ListAllocations(ctx, orgID, models.AllocationFilter{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}

	invoices := make(map[string]*models.Invoice, len(requests))
	for _, req := range requests {
		if _, ok := invoices[req.InvoiceID]; ok {
			continue
		}
		inv, err := a.store.GetInvoice(ctx, orgID, req.InvoiceID)
		if err != nil {
			return nil, err
		}
		invoices[req.InvoiceID] = inv
	}

	plan, err := a.Plan(txn, invoices, existing, requests, confidence)
	if err != nil {
		return nil, err
	}
	if err := a.store.ApplyAllocationPlan(ctx, plan); err != nil {
		return nil, err
	}

	a.logger.WithFields(logger.Fields{
		"org_id":         orgID,
		"transaction_id": transactionID,
		"allocations":    len(plan.Allocations),
		"status":         plan.TransactionStatus,
	}).Info("Payment allocated")
	return plan, nil
}

// Plan checks the allocation invariants and computes the resulting invoice
// and transaction states without writing anything. existing holds the
// allocations already recorded against txn.
func (a *Allocator) Plan(txn *models.BankTransaction, invoices map[string]*models.Invoice, existing []models.PaymentAllocation, requests []models.AllocationRequest, confidence float64) (*models.AllocationPlan, error) {
	if len(requests) == 0 {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "allocations", nil, nil)
	}

	allocated := decimal.Zero
	for _, alloc := range existing {
		allocated = allocated.Add(alloc.Amount)
	}

	paid := make(map[string]decimal.Decimal, len(invoices))
	plan := &models.AllocationPlan{
		OrgID:         txn.OrgID,
		TransactionID: txn.ID,
		Confidence:    confidence,
	}
	now := a.now()

	for _, req := range requests {
		if !req.Amount.IsPositive() {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidAmount, "amount", req.Amount.String(), nil).
				WithContext("invoice_id", req.InvoiceID)
		}
		inv, ok := invoices[req.InvoiceID]
		if !ok {
			return nil, apperrors.NotFoundError("invoice", req.InvoiceID, txn.OrgID)
		}
		if inv.Kind != models.KindForDirection(txn.Direction) {
			return nil, apperrors.ReconciliationError(apperrors.CodeDataInconsistent, "payment allocation",
				fmt.Errorf("%s transaction %s cannot settle %s invoice %s", txn.Direction, txn.ID, inv.Kind, inv.ID))
		}

		before, seen := paid[inv.ID]
		if !seen {
			before = inv.AmountPaid
		}
		after := before.Add(req.Amount)
		if after.GreaterThan(inv.Total.Add(a.config.invoiceTolerance())) {
			return nil, apperrors.ValidationError(apperrors.CodeAllocationExceeded, "invoice "+inv.ID, after.StringFixed(2), nil).
				WithContext("invoice_total", inv.Total.StringFixed(2)).
				WithContext("transaction_id", txn.ID)
		}
		paid[inv.ID] = after

		allocated = allocated.Add(req.Amount)
		plan.Allocations = append(plan.Allocations, models.PaymentAllocation{
			TransactionID: txn.ID,
			InvoiceID:     inv.ID,
			Amount:        req.Amount,
			BalanceBefore: inv.Total.Sub(before),
			BalanceAfter:  inv.Total.Sub(after),
			PaidOn:        txn.Date,
			AllocatedAt:   now,
		})
	}

	if allocated.GreaterThan(txn.Amount.Add(a.config.allocationTolerance())) {
		return nil, apperrors.ValidationError(apperrors.CodeAllocationExceeded, "transaction "+txn.ID, allocated.StringFixed(2), nil).
			WithContext("transaction_amount", txn.Amount.StringFixed(2))
	}

	plan.InvoiceUpdates = a.invoiceUpdates(invoices, paid)
	plan.TransactionStatus = models.TransactionManuallyMatched
	if confidence >= a.config.AutoMatchScore {
		plan.TransactionStatus = models.TransactionAutoMatched
	}
	return plan, nil
}

// Reverse removes the allocations of a transaction, limited to invoiceIDs
// when any are given
func (a *Allocator) Reverse(ctx context.Context, orgID, transactionID string, invoiceIDs ...string) (*models.ReversalPlan, error) {
	txn, err := a.store.GetTransaction(ctx, orgID, transactionID)
	if err != nil {
		return nil, err
	}
	existing, err := a.store.ListAllocations(ctx, orgID, models.AllocationFilter{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}

	invoices := make(map[string]*models.Invoice)
	for _, alloc := range existing {
		if _, ok := invoices[alloc.InvoiceID]; ok {
			continue
		}
		inv, err := a.store.GetInvoice(ctx, orgID, alloc.InvoiceID)
		if err != nil {
			return nil, err
		}
		invoices[alloc.InvoiceID] = inv
	}

	plan, err := a.PlanReversal(txn, invoices, existing, invoiceIDs)
	if err != nil {
		return nil, err
	}
	if err := a.store.ApplyReversalPlan(ctx, plan); err != nil {
		return nil, err
	}

	a.logger.WithFields(logger.Fields{
		"org_id":         orgID,
		"transaction_id": transactionID,
		"removed":        len(plan.Removed),
		"status":         plan.TransactionStatus,
	}).Info("Payment allocation reversed")
	return plan, nil
}

// PlanReversal computes the effect of removing allocations. Paid amounts are
// decremented by what is removed and never drop below zero.
func (a *Allocator) PlanReversal(txn *models.BankTransaction, invoices map[string]*models.Invoice, existing []models.PaymentAllocation, invoiceIDs []string) (*models.ReversalPlan, error) {
	only := make(map[string]bool, len(invoiceIDs))
	for _, id := range invoiceIDs {
		only[id] = true
	}

	plan := &models.ReversalPlan{OrgID: txn.OrgID, TransactionID: txn.ID}
	paid := make(map[string]decimal.Decimal)
	remaining := 0

	for _, alloc := range existing {
		if len(only) > 0 && !only[alloc.InvoiceID] {
			remaining++
			continue
		}
		inv, ok := invoices[alloc.InvoiceID]
		if !ok {
			return nil, apperrors.NotFoundError("invoice", alloc.InvoiceID, txn.OrgID)
		}
		current, seen := paid[inv.ID]
		if !seen {
			current = inv.AmountPaid
		}
		paid[inv.ID] = decimal.Max(decimal.Zero, current.Sub(alloc.Amount))
		plan.Removed = append(plan.Removed, alloc)
	}

	if len(plan.Removed) == 0 {
		return nil, apperrors.NotFoundError("payment allocation", txn.ID, txn.OrgID)
	}

	plan.InvoiceUpdates = a.invoiceUpdates(invoices, paid)
	plan.TransactionStatus = txn.Status
	if remaining == 0 {
		plan.TransactionStatus = models.TransactionUnmatched
	}
	return plan, nil
}

// PaymentStatusFor derives the settlement state of an invoice from its paid amount
func (a *Allocator) PaymentStatusFor(total, paid decimal.Decimal) models.PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total.Sub(a.config.invoiceTolerance())):
		return models.PaymentStatusPaid
	case paid.IsPositive():
		return models.PaymentStatusPartiallyPaid
	default:
		return models.PaymentStatusUnpaid
	}
}

func (a *Allocator) invoiceUpdates(invoices map[string]*models.Invoice, paid map[string]decimal.Decimal) []models.InvoicePaymentUpdate {
	ids := make([]string, 0, len(paid))
	for id := range paid {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	updates := make([]models.InvoicePaymentUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, models.InvoicePaymentUpdate{
			InvoiceID:    id,
			PreviousPaid: invoices[id].AmountPaid,
			AmountPaid:   paid[id],
			Status:       a.PaymentStatusFor(invoices[id].Total, paid[id]),
		})
	}
	return updates
}

// PlanSplit spreads amount over the ranked candidates, filling each
// outstanding balance in turn until the amount is used up
func PlanSplit(amount decimal.Decimal, candidates []models.PaymentCandidate) []models.AllocationRequest {
	var requests []models.AllocationRequest
	left := amount
	for _, c := range candidates {
		if !left.IsPositive() {
			break
		}
		if !c.Outstanding.IsPositive() {
			continue
		}
		take := decimal.Min(left, c.Outstanding)
		requests = append(requests, models.AllocationRequest{InvoiceID: c.InvoiceID, Amount: take})
		left = left.Sub(take)
	}
	return requests
}
