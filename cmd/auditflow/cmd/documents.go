package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Reconcile an invoice against a purchase order",
	Long: `Match the lines of an invoice to the lines of a purchase order and report
the document level result with its discrepancies.

Example:
  auditflow documents --fixtures data.json --org acme --po PO-1 --invoice INV-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		poID, _ := cmd.Flags().GetString("po")
		invoiceID, _ := cmd.Flags().GetString("invoice")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			record, err := a.service.ReconcileDocuments(ctx, a.cfg.Org, poID, invoiceID)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewDocumentMatchReport([]*models.DocumentMatchRecord{record}))
		})
	},
}

var findPOCmd = &cobra.Command{
	Use:   "find-po",
	Short: "Find the purchase order that best matches an invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		invoiceID, _ := cmd.Flags().GetString("invoice")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			record, err := a.service.FindBestPO(ctx, a.cfg.Org, invoiceID)
			if err != nil {
				return err
			}
			var records []*models.DocumentMatchRecord
			if record != nil {
				records = append(records, record)
			} else {
				a.logger.WithField("invoice", invoiceID).Info("No candidate purchase order")
			}
			return a.render(cmd, reporter.NewDocumentMatchReport(records))
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Reconcile every invoice of a vendor",
	RunE: func(cmd *cobra.Command, args []string) error {
		vendorID, _ := cmd.Flags().GetString("vendor")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			records, err := a.service.AuditVendor(ctx, a.cfg.Org, vendorID)
			if err != nil {
				return err
			}
			report := reporter.NewDocumentMatchReport(records)
			report.Title = fmt.Sprintf("Vendor Audit: %s", vendorID)
			return a.render(cmd, report)
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Find and score the best purchase order for many invoices",
	Long: `Run the best purchase order search for each invoice concurrently. Without
--invoices every purchase invoice of the organization is reconciled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		invoiceIDs, _ := cmd.Flags().GetStringSlice("invoices")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if len(invoiceIDs) == 0 {
				invoices, err := a.store.ListInvoices(ctx, a.cfg.Org, models.InvoiceFilter{Kind: models.InvoiceKindPurchase})
				if err != nil {
					return err
				}
				for _, inv := range invoices {
					invoiceIDs = append(invoiceIDs, inv.ID)
				}
			}
			outcomes, err := a.service.ReconcileInvoices(ctx, a.cfg.Org, invoiceIDs, concurrency)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewBatchReport(outcomes))
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List persisted results waiting for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			results, err := a.service.ReviewQueue(ctx, a.cfg.Org, models.ResultKind(kind))
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewReviewQueueReport(results))
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Mark a persisted document match as resolved",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		by, _ := cmd.Flags().GetString("by")
		note, _ := cmd.Flags().GetString("note")
		if by == "" {
			return errors.ValidationError(errors.CodeMissingField, "by", by, nil).
				WithSuggestion("Pass --by with the reviewer's name")
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			record, err := a.service.ResolveDocumentMatch(ctx, a.cfg.Org, key, by, note)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewDocumentMatchReport([]*models.DocumentMatchRecord{record}))
		})
	},
}

func init() {
	rootCmd.AddCommand(documentsCmd, findPOCmd, auditCmd, batchCmd, reviewCmd, resolveCmd)

	documentsCmd.Flags().String("po", "", "purchase order id (required)")
	documentsCmd.Flags().String("invoice", "", "invoice id (required)")
	_ = documentsCmd.MarkFlagRequired("po")
	_ = documentsCmd.MarkFlagRequired("invoice")

	findPOCmd.Flags().String("invoice", "", "invoice id (required)")
	_ = findPOCmd.MarkFlagRequired("invoice")

	auditCmd.Flags().String("vendor", "", "vendor id (required)")
	_ = auditCmd.MarkFlagRequired("vendor")

	batchCmd.Flags().StringSlice("invoices", nil, "invoice ids (default: all purchase invoices)")
	batchCmd.Flags().Int("concurrency", 0, "parallel reconciliations (default: reconciler.batch_concurrency)")

	reviewCmd.Flags().String("kind", "", "result kind: document_match, gst_match, discount_evaluation, payment_allocation")

	resolveCmd.Flags().String("key", "", "result key (required)")
	resolveCmd.Flags().String("by", "", "reviewer")
	resolveCmd.Flags().String("note", "", "resolution note")
	_ = resolveCmd.MarkFlagRequired("key")
}
