// Package config assembles the CLI configuration from viper: flags, an
// optional config file and AUDITFLOW_ environment variables, layered over
// every component's defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/oracle"
	"github.com/mohit-ambani/auditflow-sub000/internal/parsers"
	"github.com/mohit-ambani/auditflow-sub000/internal/reconciler"
	"github.com/mohit-ambani/auditflow-sub000/internal/reporter"
	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// EnvPrefix prefixes every environment variable the CLI reads
const EnvPrefix = "AUDITFLOW"

// SourceConfig selects where source documents are read from. Fixtures may
// be combined with a database to seed it.
type SourceConfig struct {
	Fixtures    string `json:"fixtures" mapstructure:"fixtures"`
	SQLite      string `json:"sqlite" mapstructure:"sqlite"`
	DatabaseURL string `json:"-" mapstructure:"database_url"`
}

// Kind names the backing store
func (s SourceConfig) Kind() string {
	switch {
	case s.DatabaseURL != "":
		return "postgres"
	case s.SQLite != "":
		return "sqlite"
	case s.Fixtures != "":
		return "fixtures"
	default:
		return ""
	}
}

// MetricsConfig controls the prometheus text file written after a command
type MetricsConfig struct {
	File        string `json:"file" mapstructure:"file"`
	Environment string `json:"environment" mapstructure:"environment"`
}

// Config is everything a command needs
type Config struct {
	Org     string `json:"org" mapstructure:"org"`
	Output  string `json:"output" mapstructure:"output"`
	Verbose bool   `json:"verbose" mapstructure:"verbose"`

	Source     SourceConfig           `json:"source" mapstructure:"source"`
	Metrics    MetricsConfig          `json:"metrics" mapstructure:"metrics"`
	Report     *reporter.ReportConfig `json:"report" mapstructure:"report"`
	Log        *logger.Config         `json:"log" mapstructure:"log"`
	Reconciler *reconciler.Config     `json:"reconciler" mapstructure:"reconciler"`
	Oracle     *oracle.Config         `json:"oracle" mapstructure:"oracle"`
	Import     *parsers.ImportConfig  `json:"import" mapstructure:"import"`
}

// Default returns the defaults of every component
func Default() *Config {
	log := logger.DefaultConfig()
	log.Level = logger.WarnLevel
	return &Config{
		Metrics:    MetricsConfig{Environment: "cli"},
		Report:     reporter.DefaultReportConfig(),
		Log:        log,
		Reconciler: reconciler.DefaultConfig(),
		Oracle:     oracle.DefaultConfig(),
		Import:     parsers.DefaultImportConfig(),
	}
}

// Load decodes v over the defaults and validates the result
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err).
			WithSuggestion("Check the config file keys and value types")
	}
	if cfg.Verbose {
		cfg.Log.Level = logger.DebugLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the source selection, the output and every component
func (c *Config) Validate() error {
	if c.Source.SQLite != "" && c.Source.DatabaseURL != "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "source", "sqlite+database_url", nil).
			WithSuggestion("Pass either --sqlite or --database-url")
	}
	if c.Report.Format.Binary() && c.Output == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", "", fmt.Errorf("%s reports need an output file", c.Report.Format)).
			WithSuggestion("Pass --output report.xlsx")
	}

	for name, v := range map[string]interface{ Validate() error }{
		"report":     c.Report,
		"log":        c.Log,
		"reconciler": c.Reconciler,
		"oracle":     c.Oracle,
		"import":     c.Import,
	} {
		if err := v.Validate(); err != nil {
			if _, ok := errors.AsReconcilerError(err); ok {
				return err
			}
			return errors.ConfigurationError(errors.CodeInvalidConfig, name, nil, err)
		}
	}
	return nil
}

// RequireOrg fails when no organization was given
func (c *Config) RequireOrg() error {
	if strings.TrimSpace(c.Org) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "org", "", nil).
			WithSuggestion("Pass --org or set AUDITFLOW_ORG")
	}
	return nil
}

// RequireSource fails when no store was selected
func (c *Config) RequireSource() error {
	if c.Source.Kind() == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "source", "", nil).
			WithSuggestion("Pass --fixtures, --sqlite or --database-url")
	}
	return nil
}

// ParseAllocations reads "invoice=amount" pairs
func ParseAllocations(pairs []string) ([]models.AllocationRequest, error) {
	requests := make([]models.AllocationRequest, 0, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		id, raw = strings.TrimSpace(id), strings.TrimSpace(raw)
		if !ok || id == "" || raw == "" {
			return nil, errors.ValidationError(errors.CodeInvalidData, "alloc", pair, nil).
				WithSuggestion("Use --alloc INVOICE_ID=AMOUNT")
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidAmount, "alloc", pair, err)
		}
		requests = append(requests, models.AllocationRequest{InvoiceID: id, Amount: amount})
	}
	return requests, nil
}

// ParseDate reads a YYYY-MM-DD flag; an empty value yields nil
func ParseDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, field, raw, err).
			WithSuggestion("Use YYYY-MM-DD")
	}
	return &t, nil
}
