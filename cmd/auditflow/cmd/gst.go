package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var gstCmd = &cobra.Command{
	Use:   "gst",
	Short: "Reconcile GST return entries against the books",
	Long: `Match a single GST return entry, or every entry of a return period,
against the invoices in the books. A period run also lists book invoices the
return is missing and the input tax credit at risk.

Examples:
  auditflow gst --fixtures data.json --org acme --entry GST-1
  auditflow gst --sqlite books.db --org acme --period 2024-03 --gstin 27AAAAA0000A1Z5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		entryID, _ := cmd.Flags().GetString("entry")
		period, _ := cmd.Flags().GetString("period")
		gstin, _ := cmd.Flags().GetString("gstin")
		if (entryID == "") == (period == "") {
			return errors.ValidationError(errors.CodeMissingField, "period", period, nil).
				WithSuggestion("Pass either --entry or --period")
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if entryID != "" {
				record, err := a.service.MatchGSTEntry(ctx, a.cfg.Org, entryID)
				if err != nil {
					return err
				}
				return a.render(cmd, reporter.NewGSTMatchReport([]*models.GSTMatchRecord{record}))
			}
			summary, err := a.service.ReconcileGSTReturn(ctx, a.cfg.Org, period, gstin)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewGSTReturnReport(summary))
		})
	},
}

func init() {
	rootCmd.AddCommand(gstCmd)

	gstCmd.Flags().String("entry", "", "return entry id")
	gstCmd.Flags().String("period", "", "return period, YYYY-MM")
	gstCmd.Flags().String("gstin", "", "limit a period run to one supplier GSTIN")
}
