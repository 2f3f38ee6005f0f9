// Package discount checks the discount printed on an invoice against the
// vendor's contractual terms and computes late-payment penalties.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Config holds discount evaluation tolerances
type Config struct {
	// AmountTolerance is the slack, in currency units, within which an actual
	// discount is considered correct
	AmountTolerance float64 `json:"amount_tolerance" mapstructure:"amount_tolerance" validate:"gte=0"`

	// PenaltyPeriodDays is the period the penalty percentage is charged over
	PenaltyPeriodDays int `json:"penalty_period_days" mapstructure:"penalty_period_days" validate:"gt=0,lte=366"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() *Config {
	return &Config{
		AmountTolerance:   1,
		PenaltyPeriodDays: 30,
	}
}

// Validate checks field ranges
func (c *Config) Validate() error {
	return validation.Struct("discount", c)
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *Config) tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.AmountTolerance)
}
