// Package reconciler wires the matching components to a store. The Service
// loads records, runs a component, records metrics and persists each verdict
// under its idempotency key, so reruns replace earlier results.
package reconciler

import (
	"github.com/mohit-ambani/auditflow-sub000/internal/discount"
	"github.com/mohit-ambani/auditflow-sub000/internal/gst"
	"github.com/mohit-ambani/auditflow-sub000/internal/matcher"
	"github.com/mohit-ambani/auditflow-sub000/internal/payment"
	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Config groups the component configurations with the service options
type Config struct {
	Matcher  *matcher.Config  `json:"matcher" mapstructure:"matcher" validate:"required"`
	Payment  *payment.Config  `json:"payment" mapstructure:"payment" validate:"required"`
	GST      *gst.Config      `json:"gst" mapstructure:"gst" validate:"required"`
	Discount *discount.Config `json:"discount" mapstructure:"discount" validate:"required"`
	SKU      *sku.Config      `json:"sku" mapstructure:"sku" validate:"required"`

	// BatchConcurrency bounds the invoices reconciled at once by ReconcileInvoices
	BatchConcurrency int `json:"batch_concurrency" mapstructure:"batch_concurrency" validate:"gte=1,lte=64"`

	// PersistResults stores every verdict through the store's ResultStore
	PersistResults bool `json:"persist_results" mapstructure:"persist_results"`
}

// DefaultConfig returns every component's defaults with persistence on
func DefaultConfig() *Config {
	return &Config{
		Matcher:          matcher.DefaultConfig(),
		Payment:          payment.DefaultConfig(),
		GST:              gst.DefaultConfig(),
		Discount:         discount.DefaultConfig(),
		SKU:              sku.DefaultConfig(),
		BatchConcurrency: 4,
		PersistResults:   true,
	}
}

// Validate checks the service options and then each component
func (c *Config) Validate() error {
	if err := validation.Struct("reconciler", c); err != nil {
		return err
	}
	for _, v := range []interface{ Validate() error }{c.Matcher, c.Payment, c.GST, c.Discount, c.SKU} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Matcher = c.Matcher.Clone()
	clone.Payment = c.Payment.Clone()
	clone.GST = c.GST.Clone()
	clone.Discount = c.Discount.Clone()
	clone.SKU = c.SKU.Clone()
	return &clone
}
