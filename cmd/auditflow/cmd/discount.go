package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/cmd/auditflow/config"
	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
)

var discountCmd = &cobra.Command{
	Use:   "discount",
	Short: "Audit the discounts applied on invoices",
	Long: `Compare the discount applied on each invoice with the discount its vendor
terms entitle it to. --payment-date decides early payment eligibility and
defaults to the invoice's recorded payment date.

Example:
  auditflow discount --fixtures data.json --org acme --invoices INV-1,INV-2 --payment-date 2024-04-05`,
	RunE: func(cmd *cobra.Command, args []string) error {
		invoiceIDs, _ := cmd.Flags().GetStringSlice("invoices")
		paymentDate, err := paymentDateFlag(cmd)
		if err != nil {
			return err
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			evals := make([]*models.DiscountEvaluation, 0, len(invoiceIDs))
			for _, id := range invoiceIDs {
				eval, err := a.service.EvaluateDiscount(ctx, a.cfg.Org, id, paymentDate)
				if err != nil {
					return err
				}
				evals = append(evals, eval)
			}
			return a.render(cmd, reporter.NewDiscountReport(evals))
		})
	},
}

var penaltyCmd = &cobra.Command{
	Use:   "penalty",
	Short: "Compute late payment penalties on invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		invoiceIDs, _ := cmd.Flags().GetStringSlice("invoices")
		paymentDate, err := paymentDateFlag(cmd)
		if err != nil {
			return err
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			evals := make([]*models.PenaltyEvaluation, 0, len(invoiceIDs))
			for _, id := range invoiceIDs {
				eval, err := a.service.ComputePenalty(ctx, a.cfg.Org, id, paymentDate)
				if err != nil {
					return err
				}
				evals = append(evals, eval)
			}
			return a.render(cmd, reporter.NewPenaltyReport(evals))
		})
	},
}

func paymentDateFlag(cmd *cobra.Command) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString("payment-date")
	return config.ParseDate("payment-date", raw)
}

func init() {
	rootCmd.AddCommand(discountCmd, penaltyCmd)

	for _, c := range []*cobra.Command{discountCmd, penaltyCmd} {
		c.Flags().StringSlice("invoices", nil, "invoice ids (required)")
		c.Flags().String("payment-date", "", "payment date, YYYY-MM-DD")
		_ = c.MarkFlagRequired("invoices")
	}
}
