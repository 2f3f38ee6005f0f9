// Package matcher pairs purchase order lines with invoice lines and turns the
// line pairing into a document-level verdict.
//
// Line matching is a greedy weighted-signal assignment:
//  1. Every invoice line is scored against the PO lines still in the pool
//  2. Signals are catalog id, description containment, HSN code, quantity
//     and unit price, each worth a fixed number of points
//  3. The best PO line above the minimum score is claimed and leaves the pool
//
// The document reconciler then adds supply discrepancies, compares the
// subtotal and the tax-inclusive total, and derives the match type and the
// review/auto-approve routing.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.QtyTolerancePct = 3
//
//	reconciler := matcher.NewDocumentReconciler(config, nil, nil)
//	record, err := reconciler.Reconcile(po, invoice)
package matcher

import (
	"fmt"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Weights are the points each line signal contributes
type Weights struct {
	SKU         float64 `json:"sku" mapstructure:"sku" validate:"gte=0,lte=100"`
	Description float64 `json:"description" mapstructure:"description" validate:"gte=0,lte=100"`
	HSN         float64 `json:"hsn" mapstructure:"hsn" validate:"gte=0,lte=100"`
	Quantity    float64 `json:"quantity" mapstructure:"quantity" validate:"gte=0,lte=100"`
	Price       float64 `json:"price" mapstructure:"price" validate:"gte=0,lte=100"`
}

// Config holds line and document matching tolerances and thresholds.
// Percentages are relative to the PO-side value.
type Config struct {
	Weights Weights `json:"weights" mapstructure:"weights"`

	// QtyTolerancePct earns the full quantity points when not exceeded
	QtyTolerancePct float64 `json:"qty_tolerance_pct" mapstructure:"qty_tolerance_pct" validate:"gte=0,lte=100"`
	// PriceTolerancePct earns the full price points when not exceeded
	PriceTolerancePct float64 `json:"price_tolerance_pct" mapstructure:"price_tolerance_pct" validate:"gte=0,lte=100"`

	MinLineScore     float64 `json:"min_line_score" mapstructure:"min_line_score" validate:"gte=0,lte=100"`
	ExactLineScore   float64 `json:"exact_line_score" mapstructure:"exact_line_score" validate:"gte=0,lte=100"`
	PartialLineScore float64 `json:"partial_line_score" mapstructure:"partial_line_score" validate:"gte=0,lte=100"`

	// QtyHighVariancePct and PriceHighVariancePct escalate line discrepancies to HIGH
	QtyHighVariancePct   float64 `json:"qty_high_variance_pct" mapstructure:"qty_high_variance_pct" validate:"gte=0"`
	PriceHighVariancePct float64 `json:"price_high_variance_pct" mapstructure:"price_high_variance_pct" validate:"gte=0"`

	// ValueTolerancePct applies to the subtotal, GSTTolerancePct to the tax-inclusive total
	ValueTolerancePct    float64 `json:"value_tolerance_pct" mapstructure:"value_tolerance_pct" validate:"gte=0,lte=100"`
	GSTTolerancePct      float64 `json:"gst_tolerance_pct" mapstructure:"gst_tolerance_pct" validate:"gte=0,lte=100"`
	TotalHighVariancePct float64 `json:"total_high_variance_pct" mapstructure:"total_high_variance_pct" validate:"gte=0"`

	// LineScoreWeight scales the average line score; TotalsPoints is the
	// maximum earned by each of the two totals comparisons.
	LineScoreWeight float64 `json:"line_score_weight" mapstructure:"line_score_weight" validate:"gte=0,lte=1"`
	TotalsPoints    float64 `json:"totals_points" mapstructure:"totals_points" validate:"gte=0,lte=50"`

	ExactDocumentScore float64 `json:"exact_document_score" mapstructure:"exact_document_score" validate:"gte=0,lte=100"`
	AutoApproveScore   float64 `json:"auto_approve_score" mapstructure:"auto_approve_score" validate:"gte=0,lte=100"`
	NoMatchScore       float64 `json:"no_match_score" mapstructure:"no_match_score" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			SKU:         40,
			Description: 20,
			HSN:         15,
			Quantity:    25,
			Price:       20,
		},
		QtyTolerancePct:      5,
		PriceTolerancePct:    2,
		MinLineScore:         30,
		ExactLineScore:       90,
		PartialLineScore:     50,
		QtyHighVariancePct:   10,
		PriceHighVariancePct: 5,
		ValueTolerancePct:    5,
		GSTTolerancePct:      2,
		TotalHighVariancePct: 10,
		LineScoreWeight:      0.6,
		TotalsPoints:         20,
		ExactDocumentScore:   95,
		AutoApproveScore:     90,
		NoMatchScore:         50,
	}
}

// StrictConfig tightens quantity and price tolerances for high-value vendors
func StrictConfig() *Config {
	cfg := DefaultConfig()
	cfg.QtyTolerancePct = 1
	cfg.PriceTolerancePct = 0.5
	cfg.ValueTolerancePct = 1
	cfg.GSTTolerancePct = 0.5
	return cfg
}

// Validate checks field ranges and the relations between thresholds
func (c *Config) Validate() error {
	if err := validation.Struct("matcher", c); err != nil {
		return err
	}
	if c.PartialLineScore > c.ExactLineScore {
		return fmt.Errorf("partial line score %.2f cannot exceed exact line score %.2f",
			c.PartialLineScore, c.ExactLineScore)
	}
	if c.AutoApproveScore > c.ExactDocumentScore {
		return fmt.Errorf("auto approve score %.2f cannot exceed exact document score %.2f",
			c.AutoApproveScore, c.ExactDocumentScore)
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

func (c *Config) String() string {
	return fmt.Sprintf("matcher.Config{qty: ±%.1f%%, price: ±%.1f%%, value: ±%.1f%%, gst: ±%.1f%%, min line: %.0f}",
		c.QtyTolerancePct, c.PriceTolerancePct, c.ValueTolerancePct, c.GSTTolerancePct, c.MinLineScore)
}
