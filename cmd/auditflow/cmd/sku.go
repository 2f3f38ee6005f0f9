package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var skuCmd = &cobra.Command{
	Use:   "sku",
	Short: "Resolve a description, or every line of an invoice, to catalog SKUs",
	Long: `Resolve free text to the organization's catalog through exact codes,
learned aliases, fuzzy matching and, when configured, the completion oracle.

Examples:
  auditflow sku --fixtures data.json --org acme --description "steel bolt m8 x 40"
  auditflow sku --fixtures data.json --org acme --invoice INV-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		invoiceID, _ := cmd.Flags().GetString("invoice")
		q := sku.Query{}
		q.Description, _ = cmd.Flags().GetString("description")
		q.Code, _ = cmd.Flags().GetString("code")
		q.HSNCode, _ = cmd.Flags().GetString("hsn")
		if invoiceID == "" && q.Description == "" && q.Code == "" {
			return errors.ValidationError(errors.CodeMissingField, "description", "", nil).
				WithSuggestion("Pass --description, --code or --invoice")
		}
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			if invoiceID != "" {
				resolutions, err := a.service.ResolveInvoiceLines(ctx, a.cfg.Org, invoiceID)
				if err != nil {
					return err
				}
				return a.render(cmd, reporter.NewSKUReport(resolutions))
			}
			resolution, err := a.service.ResolveSKU(ctx, a.cfg.Org, q)
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewSKUReport([]*models.SKUResolution{resolution}))
		})
	},
}

var learnAliasCmd = &cobra.Command{
	Use:   "learn-alias",
	Short: "Teach the catalog an alias for one of its entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogID, _ := cmd.Flags().GetString("catalog")
		alias, _ := cmd.Flags().GetString("alias")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			added, err := a.service.LearnAlias(ctx, a.cfg.Org, catalogID, alias)
			if err != nil {
				return err
			}
			report := reporter.NewReport("Alias Learned", map[string]interface{}{
				"catalogId": catalogID,
				"alias":     alias,
				"added":     added,
			})
			report.AddMetric("Catalog Entry", catalogID)
			report.AddMetric("Alias", alias)
			report.AddMetric("Added", added)
			return a.render(cmd, report)
		})
	},
}

func init() {
	rootCmd.AddCommand(skuCmd, learnAliasCmd)

	skuCmd.Flags().String("description", "", "free text description")
	skuCmd.Flags().String("code", "", "item code")
	skuCmd.Flags().String("hsn", "", "HSN code narrowing the search")
	skuCmd.Flags().String("invoice", "", "resolve every line of this invoice")

	learnAliasCmd.Flags().String("catalog", "", "catalog entry id (required)")
	learnAliasCmd.Flags().String("alias", "", "alias text (required)")
	_ = learnAliasCmd.MarkFlagRequired("catalog")
	_ = learnAliasCmd.MarkFlagRequired("alias")
}
