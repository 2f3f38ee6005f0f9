package reconciler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// InvoiceOutcome is the result of finding the best PO for one invoice of a
// batch. Record is nil when the vendor has no candidate PO or Err is set.
type InvoiceOutcome struct {
	InvoiceID string                      `json:"invoiceId"`
	Record    *models.DocumentMatchRecord `json:"record,omitempty"`
	Err       error                       `json:"-"`
}

// BatchSummary counts the outcomes of a batch
type BatchSummary struct {
	Total        int `json:"total"`
	AutoApproved int `json:"autoApproved"`
	NeedsReview  int `json:"needsReview"`
	NoCandidate  int `json:"noCandidate"`
	Failed       int `json:"failed"`
}

// Summarize counts outcomes by verdict
func Summarize(outcomes []InvoiceOutcome) BatchSummary {
	summary := BatchSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			summary.Failed++
		case o.Record == nil:
			summary.NoCandidate++
		case o.Record.AutoApprove:
			summary.AutoApproved++
		default:
			summary.NeedsReview++
		}
	}
	return summary
}

// ReconcileInvoices runs FindBestPO for each invoice with at most concurrency
// invoices in flight. Outcomes keep the order of invoiceIDs. A failing invoice
// is reported in its outcome and does not stop the batch; only cancellation
// of ctx does. A concurrency below one uses the configured default.
func (s *Service) ReconcileInvoices(ctx context.Context, orgID string, invoiceIDs []string, concurrency int) ([]InvoiceOutcome, error) {
	if concurrency < 1 {
		concurrency = s.config.BatchConcurrency
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "invoice batch",
		Total:     int64(len(invoiceIDs)),
		Logger:    s.logger,
	})

	outcomes := make([]InvoiceOutcome, len(invoiceIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range invoiceIDs {
		i, id := i, id
		outcomes[i].InvoiceID = id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record, err := s.FindBestPO(gctx, orgID, id)
			if err != nil {
				outcomes[i].Err = err
				tracker.Fail()
				s.logger.WithError(err).WithField("invoice_id", id).Warn("Invoice reconciliation failed")
				return nil
			}
			outcomes[i].Record = record
			tracker.Increment()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tracker.CompleteWithError(err)
		return outcomes, err
	}
	tracker.Complete()

	summary := Summarize(outcomes)
	s.logger.WithFields(logger.Fields{
		"org_id":        orgID,
		"total":         summary.Total,
		"auto_approved": summary.AutoApproved,
		"needs_review":  summary.NeedsReview,
		"no_candidate":  summary.NoCandidate,
		"failed":        summary.Failed,
	}).Info("Invoice batch completed")
	return outcomes, nil
}
