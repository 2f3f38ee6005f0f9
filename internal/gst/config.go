// Package gst reconciles tax-authority return entries with the invoices
// recorded in the books.
package gst

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Penalties are the points subtracted from a perfect score per discrepancy
type Penalties struct {
	Amount    float64 `json:"amount" mapstructure:"amount" validate:"gte=0,lte=100"`
	Tax       float64 `json:"tax" mapstructure:"tax" validate:"gte=0,lte=100"`
	Structure float64 `json:"structure" mapstructure:"structure" validate:"gte=0,lte=100"`
	Date      float64 `json:"date" mapstructure:"date" validate:"gte=0,lte=100"`
}

// Config holds GST matching tolerances. Amounts are in currency units.
type Config struct {
	Penalties Penalties `json:"penalties" mapstructure:"penalties"`

	// InvoiceKind is the side of the books a return is compared with:
	// purchase invoices for inward returns, sales invoices for outward ones.
	InvoiceKind models.InvoiceKind `json:"invoice_kind" mapstructure:"invoice_kind" validate:"oneof=PURCHASE SALES"`

	AmountTolerance float64 `json:"amount_tolerance" mapstructure:"amount_tolerance" validate:"gte=0"`
	MediumAmount    float64 `json:"medium_amount" mapstructure:"medium_amount" validate:"gte=0"`
	HighAmount      float64 `json:"high_amount" mapstructure:"high_amount" validate:"gte=0"`

	// DateToleranceDays bounds both the normalized-number lookup and the date check
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days" validate:"gte=0,lte=366"`

	ExactScore   float64 `json:"exact_score" mapstructure:"exact_score" validate:"gte=0,lte=100"`
	PartialScore float64 `json:"partial_score" mapstructure:"partial_score" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() *Config {
	return &Config{
		Penalties: Penalties{
			Amount:    30,
			Tax:       25,
			Structure: 15,
			Date:      10,
		},
		InvoiceKind:       models.InvoiceKindPurchase,
		AmountTolerance:   1,
		MediumAmount:      100,
		HighAmount:        1000,
		DateToleranceDays: 5,
		ExactScore:        100,
		PartialScore:      70,
	}
}

// Validate checks field ranges and the relations between thresholds
func (c *Config) Validate() error {
	if err := validation.Struct("gst", c); err != nil {
		return err
	}
	if c.MediumAmount > c.HighAmount {
		return fmt.Errorf("medium amount %.2f cannot exceed high amount %.2f", c.MediumAmount, c.HighAmount)
	}
	if c.PartialScore > c.ExactScore {
		return fmt.Errorf("partial score %.2f cannot exceed exact score %.2f", c.PartialScore, c.ExactScore)
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// severity scales a monetary difference
func (c *Config) severity(diff decimal.Decimal) models.Severity {
	switch {
	case diff.GreaterThan(decimal.NewFromFloat(c.HighAmount)):
		return models.SeverityHigh
	case diff.GreaterThan(decimal.NewFromFloat(c.MediumAmount)):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
