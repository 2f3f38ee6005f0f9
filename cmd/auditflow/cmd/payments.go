package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/cmd/auditflow/config"
	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Rank open invoices for a bank transaction",
	Long: `Rank the open invoices an unreconciled bank transaction could settle.
With --all every unmatched transaction of the organization is ranked.

Examples:
  auditflow payment --fixtures data.json --org acme --txn TXN-1
  auditflow payment --sqlite books.db --org acme --all --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		txnID, _ := cmd.Flags().GetString("txn")
		all, _ := cmd.Flags().GetBool("all")
		if (txnID == "") == !all {
			return errors.ValidationError(errors.CodeMissingField, "txn", txnID, nil).
				WithSuggestion("Pass either --txn or --all")
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if all {
				batch, err := a.service.MatchUnmatchedPayments(ctx, a.cfg.Org)
				if err != nil {
					return err
				}
				return a.render(cmd, reporter.NewPaymentMatchReport(batch.Results, &batch.Summary))
			}
			result, err := a.service.MatchPayment(ctx, a.cfg.Org, txnID)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewPaymentMatchReport([]*models.PaymentMatchResult{result}, nil))
		})
	},
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate a bank transaction across invoices",
	Long: `Split a bank transaction across one or more invoices and update their
payment status.

Example:
  auditflow allocate --sqlite books.db --org acme --txn TXN-1 --alloc INV-1=5000 --alloc INV-2=2500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		txnID, _ := cmd.Flags().GetString("txn")
		pairs, _ := cmd.Flags().GetStringArray("alloc")
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		requests, err := config.ParseAllocations(pairs)
		if err != nil {
			return err
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			plan, err := a.service.Allocate(ctx, a.cfg.Org, txnID, requests, confidence)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewAllocationReport(plan))
		})
	},
}

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Reverse the allocations of a bank transaction",
	Long: `Remove the allocations of a bank transaction, optionally only those to the
given invoices, and restore the invoices' payment status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		txnID, _ := cmd.Flags().GetString("txn")
		invoiceIDs, _ := cmd.Flags().GetStringSlice("invoices")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			plan, err := a.service.ReverseAllocation(ctx, a.cfg.Org, txnID, invoiceIDs...)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewReversalReport(plan))
		})
	},
}

func init() {
	rootCmd.AddCommand(paymentCmd, allocateCmd, reverseCmd)

	paymentCmd.Flags().String("txn", "", "bank transaction id")
	paymentCmd.Flags().Bool("all", false, "rank every unmatched transaction")

	allocateCmd.Flags().String("txn", "", "bank transaction id (required)")
	allocateCmd.Flags().StringArray("alloc", nil, "INVOICE_ID=AMOUNT, repeatable (required)")
	allocateCmd.Flags().Float64("confidence", 100, "match score recorded on the allocations (0-100)")
	_ = allocateCmd.MarkFlagRequired("txn")
	_ = allocateCmd.MarkFlagRequired("alloc")

	reverseCmd.Flags().String("txn", "", "bank transaction id (required)")
	reverseCmd.Flags().StringSlice("invoices", nil, "only reverse allocations to these invoices")
	_ = reverseCmd.MarkFlagRequired("txn")
}
