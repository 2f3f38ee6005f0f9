package reconciler

import (
	"context"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/discount"
	"github.com/mohit-ambani/auditflow-sub000/internal/gst"
	"github.com/mohit-ambani/auditflow-sub000/internal/matcher"
	"github.com/mohit-ambani/auditflow-sub000/internal/metrics"
	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/payment"
	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// Service runs every reconciliation component against one store
type Service struct {
	config    *Config
	store     store.Store
	documents *matcher.DocumentReconciler
	payments  *payment.Matcher
	allocator *payment.Allocator
	gst       *gst.Reconciler
	discounts *discount.Evaluator
	skus      *sku.Resolver
	metrics   *metrics.Recorder
	logger    logger.Logger
	now       func() time.Time
}

type serviceOptions struct {
	metrics  *metrics.Recorder
	oracle   sku.Oracle
	searcher sku.SearcherFactory
}

// Option customizes a Service
type Option func(*serviceOptions)

// WithMetrics reports outcomes, errors and oracle calls to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *serviceOptions) {
		o.metrics = rec
	}
}

// WithOracle enables the AI tier of SKU resolution
func WithOracle(oracle sku.Oracle) Option {
	return func(o *serviceOptions) {
		o.oracle = oracle
	}
}

// WithSKUSearcher replaces the fuzzy candidate index of SKU resolution
func WithSKUSearcher(f sku.SearcherFactory) Option {
	return func(o *serviceOptions) {
		o.searcher = f
	}
}

// NewService validates config and builds every component on st. A nil
// config uses DefaultConfig.
func NewService(config *Config, st store.Store, log logger.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "store", nil, nil).
			WithSuggestion("Open a fixtures, sqlite or postgres store before creating the service")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	log = logger.OrGlobal(log, "reconciliation-service")

	var skuOpts []sku.ResolverOption
	if o.metrics != nil {
		skuOpts = append(skuOpts, sku.WithOracleRecorder(o.metrics))
	}
	if o.oracle != nil {
		skuOpts = append(skuOpts, sku.WithOracle(o.oracle))
	}
	if o.searcher != nil {
		skuOpts = append(skuOpts, sku.WithSearcher(o.searcher))
	}

	s := &Service{
		config:    config,
		store:     st,
		documents: matcher.NewDocumentReconciler(config.Matcher, st, log.WithComponent("document-reconciler")),
		payments:  payment.NewMatcher(config.Payment, st, log.WithComponent("payment-matcher")),
		allocator: payment.NewAllocator(config.Payment, st, log.WithComponent("payment-allocator")),
		gst:       gst.NewReconciler(config.GST, st, log.WithComponent("gst-reconciler")),
		discounts: discount.NewEvaluator(config.Discount, st, log.WithComponent("discount-evaluator")),
		skus:      sku.NewResolver(config.SKU, st, log.WithComponent("sku-resolver"), skuOpts...),
		metrics:   o.metrics,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}

	log.WithFields(logger.Fields{
		"persist_results":   config.PersistResults,
		"batch_concurrency": config.BatchConcurrency,
		"oracle":            o.oracle != nil,
	}).Debug("Reconciliation service created")
	return s, nil
}

// Config returns a copy of the active configuration
func (s *Service) Config() *Config {
	return s.config.Clone()
}

// ReconcileDocuments compares one purchase order with one invoice
func (s *Service) ReconcileDocuments(ctx context.Context, orgID, poID, invoiceID string) (*models.DocumentMatchRecord, error) {
	start := time.Now()
	record, err := s.documents.ReconcileByID(ctx, orgID, poID, invoiceID)
	s.observe(metrics.ComponentDocument, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentDocument, string(record.MatchType))
	if err := s.persistDocumentMatch(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// FindBestPO reconciles an invoice against its vendor's open purchase orders.
// It returns nil when the vendor has none.
func (s *Service) FindBestPO(ctx context.Context, orgID, invoiceID string) (*models.DocumentMatchRecord, error) {
	start := time.Now()
	record, err := s.documents.FindBestPO(ctx, orgID, invoiceID)
	s.observe(metrics.ComponentDocument, start, err)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.metrics.RecordOutcome(metrics.ComponentDocument, "no_candidate")
		return nil, nil
	}
	s.metrics.RecordOutcome(metrics.ComponentDocument, string(record.MatchType))
	if err := s.persistDocumentMatch(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// AuditVendor finds the best purchase order for every purchase invoice of a
// vendor and persists each verdict
func (s *Service) AuditVendor(ctx context.Context, orgID, vendorID string) ([]*models.DocumentMatchRecord, error) {
	start := time.Now()
	records, err := s.documents.AuditVendor(ctx, orgID, vendorID)
	s.observe(metrics.ComponentDocument, start, err)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		s.metrics.RecordOutcome(metrics.ComponentDocument, string(record.MatchType))
		if err := s.persistDocumentMatch(ctx, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// MatchPayment ranks open invoices for one bank transaction
func (s *Service) MatchPayment(ctx context.Context, orgID, transactionID string) (*models.PaymentMatchResult, error) {
	start := time.Now()
	result, err := s.payments.Match(ctx, orgID, transactionID)
	s.observe(metrics.ComponentPayment, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentPayment, string(result.MatchType))
	return result, nil
}

// MatchUnmatchedPayments ranks candidates for every unmatched transaction
func (s *Service) MatchUnmatchedPayments(ctx context.Context, orgID string) (*payment.BatchResult, error) {
	start := time.Now()
	batch, err := s.payments.MatchUnmatched(ctx, orgID)
	s.observe(metrics.ComponentPayment, start, err)
	if err != nil {
		return batch, err
	}
	for _, result := range batch.Results {
		s.metrics.RecordOutcome(metrics.ComponentPayment, string(result.MatchType))
	}
	return batch, nil
}

// Allocate applies a transaction to invoices and records the plan
func (s *Service) Allocate(ctx context.Context, orgID, transactionID string, requests []models.AllocationRequest, confidence float64) (*models.AllocationPlan, error) {
	start := time.Now()
	plan, err := s.allocator.Allocate(ctx, orgID, transactionID, requests, confidence)
	s.observe(metrics.ComponentAllocation, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentAllocation, string(plan.TransactionStatus))
	if err := s.persistAllocation(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ReverseAllocation removes a transaction's allocations, limited to
// invoiceIDs when any are given
func (s *Service) ReverseAllocation(ctx context.Context, orgID, transactionID string, invoiceIDs ...string) (*models.ReversalPlan, error) {
	start := time.Now()
	plan, err := s.allocator.Reverse(ctx, orgID, transactionID, invoiceIDs...)
	s.observe(metrics.ComponentAllocation, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentAllocation, "reversed")
	return plan, nil
}

// MatchGSTEntry reconciles one return entry against the books
func (s *Service) MatchGSTEntry(ctx context.Context, orgID, entryID string) (*models.GSTMatchRecord, error) {
	start := time.Now()
	record, err := s.gst.MatchEntry(ctx, orgID, entryID)
	s.observe(metrics.ComponentGST, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentGST, string(record.Class))
	if err := s.persistGSTMatch(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ReconcileGSTReturn reconciles a return period, optionally limited to one
// counterparty, and persists every entry verdict
func (s *Service) ReconcileGSTReturn(ctx context.Context, orgID, period, gstin string) (*models.GSTReturnSummary, error) {
	start := time.Now()
	summary, err := s.gst.ReconcileReturn(ctx, orgID, period, gstin)
	s.observe(metrics.ComponentGST, start, err)
	if err != nil {
		return nil, err
	}
	for i := range summary.Records {
		record := &summary.Records[i]
		s.metrics.RecordOutcome(metrics.ComponentGST, string(record.Class))
		if err := s.persistGSTMatch(ctx, record); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// EvaluateDiscount compares the discount an invoice carries with its terms.
// A nil paymentDate uses the latest recorded allocation.
func (s *Service) EvaluateDiscount(ctx context.Context, orgID, invoiceID string, paymentDate *time.Time) (*models.DiscountEvaluation, error) {
	start := time.Now()
	eval, err := s.discounts.Evaluate(ctx, orgID, invoiceID, paymentDate)
	s.observe(metrics.ComponentDiscount, start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOutcome(metrics.ComponentDiscount, string(eval.Class))
	if err := s.persistDiscountEvaluation(ctx, eval); err != nil {
		return nil, err
	}
	return eval, nil
}

// ComputePenalty returns the late payment penalty owed on an invoice
func (s *Service) ComputePenalty(ctx context.Context, orgID, invoiceID string, paymentDate *time.Time) (*models.PenaltyEvaluation, error) {
	start := time.Now()
	penalty, err := s.discounts.Penalty(ctx, orgID, invoiceID, paymentDate)
	s.observe(metrics.ComponentPenalty, start, err)
	if err != nil {
		return nil, err
	}
	outcome := "on_time"
	if penalty.DaysLate > 0 {
		outcome = "late"
	}
	s.metrics.RecordOutcome(metrics.ComponentPenalty, outcome)
	return penalty, nil
}

// ResolveSKU resolves one free-text description against the active catalog
func (s *Service) ResolveSKU(ctx context.Context, orgID string, q sku.Query) (*models.SKUResolution, error) {
	start := time.Now()
	resolution, err := s.skus.Resolve(ctx, orgID, q)
	s.observe(metrics.ComponentSKU, start, err)
	if err != nil {
		return nil, err
	}
	s.recordSKU(resolution)
	return resolution, nil
}

// ResolveInvoiceLines resolves every line of an invoice in line order
func (s *Service) ResolveInvoiceLines(ctx context.Context, orgID, invoiceID string) ([]*models.SKUResolution, error) {
	inv, err := s.store.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		s.metrics.RecordError(metrics.ComponentSKU, err)
		return nil, err
	}

	start := time.Now()
	resolutions, err := s.skus.ResolveLines(ctx, orgID, inv.Lines)
	s.observe(metrics.ComponentSKU, start, err)
	if err != nil {
		return nil, err
	}
	for _, r := range resolutions {
		s.recordSKU(r)
	}
	return resolutions, nil
}

// LearnAlias records a confirmed description of a catalog entry
func (s *Service) LearnAlias(ctx context.Context, orgID, catalogID, alias string) (bool, error) {
	added, err := s.skus.LearnAlias(ctx, orgID, catalogID, alias)
	if err != nil {
		s.metrics.RecordError(metrics.ComponentSKU, err)
		return false, err
	}
	return added, nil
}

func (s *Service) recordSKU(r *models.SKUResolution) {
	outcome := "unresolved"
	if r.BestMatch != nil {
		outcome = string(r.BestMatch.Tier)
	}
	s.metrics.RecordOutcome(metrics.ComponentSKU, outcome)
}

func (s *Service) observe(component string, start time.Time, err error) {
	s.metrics.ObserveDuration(component, time.Since(start))
	if err != nil {
		s.metrics.RecordError(component, err)
	}
}
