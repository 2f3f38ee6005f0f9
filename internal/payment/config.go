// Package payment pairs bank transactions with open invoices and applies the
// resulting allocations.
//
// A debit is matched against purchase invoices and a credit against sales
// invoices. Each open invoice dated inside the window around the transaction
// is scored on four signals (amount, reference, description and date), the
// candidates are ranked, and the best one determines the match type and
// whether the transaction may be settled without review.
package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Points are the scores each payment signal contributes
type Points struct {
	ExactAmount        float64 `json:"exact_amount" mapstructure:"exact_amount" validate:"gte=0,lte=100"`
	FuzzyAmount        float64 `json:"fuzzy_amount" mapstructure:"fuzzy_amount" validate:"gte=0,lte=100"`
	NearFullPayment    float64 `json:"near_full_payment" mapstructure:"near_full_payment" validate:"gte=0,lte=100"`
	HalfPayment        float64 `json:"half_payment" mapstructure:"half_payment" validate:"gte=0,lte=100"`
	Reference          float64 `json:"reference" mapstructure:"reference" validate:"gte=0,lte=100"`
	ExtractedReference float64 `json:"extracted_reference" mapstructure:"extracted_reference" validate:"gte=0,lte=100"`
	Description        float64 `json:"description" mapstructure:"description" validate:"gte=0,lte=100"`
	NearInvoiceDate    float64 `json:"near_invoice_date" mapstructure:"near_invoice_date" validate:"gte=0,lte=100"`
	NearDueDate        float64 `json:"near_due_date" mapstructure:"near_due_date" validate:"gte=0,lte=100"`
	WithinMonth        float64 `json:"within_month" mapstructure:"within_month" validate:"gte=0,lte=100"`
	WithinTwoMonths    float64 `json:"within_two_months" mapstructure:"within_two_months" validate:"gte=0,lte=100"`
}

// Config holds payment matching and allocation thresholds. Amount tolerances
// are in currency units.
type Config struct {
	Points Points `json:"points" mapstructure:"points"`

	// DateWindowDays bounds candidate invoice dates around the transaction date
	DateWindowDays int `json:"date_window_days" mapstructure:"date_window_days" validate:"gte=0,lte=366"`

	ExactTolerance float64 `json:"exact_tolerance" mapstructure:"exact_tolerance" validate:"gte=0"`
	FuzzyTolerance float64 `json:"fuzzy_tolerance" mapstructure:"fuzzy_tolerance" validate:"gte=0"`

	NearFullRatio float64 `json:"near_full_ratio" mapstructure:"near_full_ratio" validate:"gt=0,lte=1"`
	HalfRatio     float64 `json:"half_ratio" mapstructure:"half_ratio" validate:"gt=0,lte=1"`

	MinCandidateScore float64 `json:"min_candidate_score" mapstructure:"min_candidate_score" validate:"gte=0,lte=100"`
	AutoMatchScore    float64 `json:"auto_match_score" mapstructure:"auto_match_score" validate:"gte=0,lte=100"`
	MaxCandidates     int     `json:"max_candidates" mapstructure:"max_candidates" validate:"gte=0"`

	// AllocationTolerance is how far allocations may exceed the transaction
	// amount; InvoiceTolerance is how far they may exceed an invoice total
	// and also the slack for treating an invoice as fully paid.
	AllocationTolerance float64 `json:"allocation_tolerance" mapstructure:"allocation_tolerance" validate:"gte=0"`
	InvoiceTolerance    float64 `json:"invoice_tolerance" mapstructure:"invoice_tolerance" validate:"gte=0"`

	// DuplicateWindowDays is how many days apart two identical statement
	// lines may be and still be flagged as a possible double import
	DuplicateWindowDays int `json:"duplicate_window_days" mapstructure:"duplicate_window_days" validate:"gte=0,lte=30"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() *Config {
	return &Config{
		Points: Points{
			ExactAmount:        40,
			FuzzyAmount:        30,
			NearFullPayment:    25,
			HalfPayment:        15,
			Reference:          30,
			ExtractedReference: 25,
			Description:        15,
			NearInvoiceDate:    15,
			NearDueDate:        12,
			WithinMonth:        10,
			WithinTwoMonths:    5,
		},
		DateWindowDays:      7,
		ExactTolerance:      1,
		FuzzyTolerance:      10,
		NearFullRatio:       0.95,
		HalfRatio:           0.5,
		MinCandidateScore:   15,
		AutoMatchScore:      90,
		AllocationTolerance: 10,
		InvoiceTolerance:    1,
		DuplicateWindowDays: 1,
	}
}

// Validate checks field ranges and the relations between thresholds
func (c *Config) Validate() error {
	if err := validation.Struct("payment", c); err != nil {
		return err
	}
	if c.ExactTolerance > c.FuzzyTolerance {
		return fmt.Errorf("exact tolerance %.2f cannot exceed fuzzy tolerance %.2f",
			c.ExactTolerance, c.FuzzyTolerance)
	}
	if c.HalfRatio > c.NearFullRatio {
		return fmt.Errorf("half payment ratio %.2f cannot exceed near-full ratio %.2f",
			c.HalfRatio, c.NearFullRatio)
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

func (c *Config) exactTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.ExactTolerance)
}

func (c *Config) fuzzyTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.FuzzyTolerance)
}

func (c *Config) allocationTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.AllocationTolerance)
}

func (c *Config) invoiceTolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.InvoiceTolerance)
}
