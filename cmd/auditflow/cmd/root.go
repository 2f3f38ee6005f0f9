package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mohit-ambani/auditflow-sub000/cmd/auditflow/config"
)

var (
	cfgFile string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "auditflow",
	Short: "Financial document reconciliation engine",
	Long: `Auditflow reconciles purchase orders, invoices, bank transactions and GST
returns for an organization. It matches invoice lines to purchase orders,
ranks invoices for bank payments, checks GST return entries against the
books, audits discounts and resolves free-text descriptions to catalog SKUs.

Documents come from a JSON fixtures file, a SQLite database or PostgreSQL.

Examples:
  auditflow documents --fixtures data.json --org acme --po PO-1 --invoice INV-1
  auditflow batch --sqlite books.db --org acme --format xlsx --output batch.xlsx
  auditflow gst --database-url postgres://... --org acme --period 2024-03
  auditflow version`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       getVersionString(),
}

// Execute adds all child commands to the root command and runs it with ctx
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("org", "", "organization id")
	flags.String("fixtures", "", "JSON fixtures file to load into the store")
	flags.String("sqlite", "", "SQLite database file")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.StringP("format", "f", "console", "output format: console, json, csv, xlsx")
	flags.StringP("output", "o", "", "output file path (default: stdout)")
	flags.String("metrics-file", "", "write prometheus metrics to this file after the command")

	bindFlag("verbose", "verbose")
	bindFlag("org", "org")
	bindFlag("source.fixtures", "fixtures")
	bindFlag("source.sqlite", "sqlite")
	bindFlag("source.database_url", "database-url")
	bindFlag("report.format", "format")
	bindFlag("output", "output")
	bindFlag("metrics.file", "metrics-file")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(2)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// secrets and endpoints are usually given through the environment only
	for _, key := range []string{"oracle.endpoint", "oracle.api_key", "oracle.model", "oracle.redis_addr", "metrics.environment"} {
		_ = viper.BindEnv(key)
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
