package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/parsers"
	"github.com/mohit-ambani/auditflow-sub000/internal/payment"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

var importBankCmd = &cobra.Command{
	Use:   "import-bank",
	Short: "Import a bank statement CSV into the store",
	Long: `Stream a bank statement CSV into the store in batches. Without --layout the
layout is detected from the file's header row. Lines with the same amount and
direction a day or less apart are listed as possible duplicates.

Available layouts: ` + bankLayoutNames() + `

Example:
  auditflow import-bank --sqlite books.db --org acme --file statement.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		layoutName, _ := cmd.Flags().GetString("layout")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			layout, err := bankLayout(path, layoutName)
			if err != nil {
				return err
			}
			parser, err := parsers.NewBankStatementParser(a.cfg.Org, layout, a.cfg.Import, a.logger)
			if err != nil {
				return err
			}
			file, err := openImportFile(path)
			if err != nil {
				return err
			}
			defer file.Close()

			var imported []*models.BankTransaction
			stats, err := parser.Stream(ctx, file, path, a.cfg.Import.BatchSize, func(batch []*models.BankTransaction) error {
				for _, txn := range batch {
					if err := a.store.SaveTransaction(ctx, txn); err != nil {
						return err
					}
				}
				imported = append(imported, batch...)
				return nil
			})
			if err != nil {
				return err
			}

			report := reporter.NewImportReport("Bank Statement Import", path, stats)
			duplicates := payment.DetectDuplicates(imported, a.cfg.Reconciler.Payment.DuplicateWindowDays)
			if len(duplicates) > 0 {
				a.logger.WithField("groups", len(duplicates)).Warn("Statement has possible duplicate lines")
			}
			reporter.AddDuplicateSection(report, duplicates)
			return a.render(cmd, report)
		})
	},
}

var importGSTRCmd = &cobra.Command{
	Use:   "import-gstr",
	Short: "Import a GSTR-2B style return CSV into the store",
	Long: `Stream the entries of a GST return CSV into the store. --period applies to
rows without a period column.

Example:
  auditflow import-gstr --sqlite books.db --org acme --file gstr2b.csv --period 2024-03`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		period, _ := cmd.Flags().GetString("period")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			parser, err := parsers.NewGSTReturnParser(a.cfg.Org, period, nil, a.cfg.Import, a.logger)
			if err != nil {
				return err
			}
			file, err := openImportFile(path)
			if err != nil {
				return err
			}
			defer file.Close()

			stats, err := parser.Stream(ctx, file, path, a.cfg.Import.BatchSize, func(batch []*models.GSTEntry) error {
				for _, entry := range batch {
					if err := a.store.SaveGSTEntry(ctx, entry); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return a.render(cmd, reporter.NewImportReport("GST Return Import", path, stats))
		})
	},
}

func bankLayout(path, name string) (*parsers.Layout, error) {
	if name == "" {
		return parsers.DetectBankLayout(path)
	}
	layout := parsers.GetBankLayout(name)
	if layout == nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout", name, nil).
			WithSuggestion("Available layouts: " + bankLayoutNames())
	}
	return layout, nil
}

func bankLayoutNames() string {
	layouts := parsers.ListBankLayouts()
	names := make([]string, 0, len(layouts))
	for _, l := range layouts {
		names = append(names, l.Name)
	}
	return strings.Join(names, ", ")
}

func openImportFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		code := errors.CodeFileNotFound
		if os.IsPermission(err) {
			code = errors.CodeFilePermission
		}
		return nil, errors.FileError(code, path, err)
	}
	return file, nil
}

func init() {
	rootCmd.AddCommand(importBankCmd, importGSTRCmd)

	importBankCmd.Flags().String("file", "", "statement CSV (required)")
	importBankCmd.Flags().String("layout", "", "statement layout (default: detect)")
	_ = importBankCmd.MarkFlagRequired("file")

	importGSTRCmd.Flags().String("file", "", "return CSV (required)")
	importGSTRCmd.Flags().String("period", "", "return period, YYYY-MM")
	_ = importGSTRCmd.MarkFlagRequired("file")
}
