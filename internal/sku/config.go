// Package sku resolves free-text line descriptions to catalog entries.
//
// Resolution is a cascade that stops at the first tier producing a confident
// answer: exact catalog code, exact name or alias, fuzzy similarity over
// names and aliases, and finally an optional external oracle whose
// suggestions are merged with the fuzzy candidates.
package sku

import (
	"fmt"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Config holds resolution thresholds. Confidences are in [0, 1].
type Config struct {
	AliasConfidence float64 `json:"alias_confidence" mapstructure:"alias_confidence" validate:"gte=0,lte=1"`

	// FuzzyThreshold is the lowest similarity kept as a candidate;
	// ResolvedThreshold ends the cascade at the fuzzy tier.
	FuzzyThreshold     float64 `json:"fuzzy_threshold" mapstructure:"fuzzy_threshold" validate:"gte=0,lte=1"`
	ResolvedThreshold  float64 `json:"resolved_threshold" mapstructure:"resolved_threshold" validate:"gte=0,lte=1"`
	MaxFuzzyCandidates int     `json:"max_fuzzy_candidates" mapstructure:"max_fuzzy_candidates" validate:"gt=0"`

	ReviewThreshold float64 `json:"review_threshold" mapstructure:"review_threshold" validate:"gte=0,lte=1"`

	OracleTimeout      time.Duration `json:"oracle_timeout" mapstructure:"oracle_timeout" validate:"gte=0"`
	OracleCatalogLimit int           `json:"oracle_catalog_limit" mapstructure:"oracle_catalog_limit" validate:"gt=0"`
	OracleMaxResults   int           `json:"oracle_max_results" mapstructure:"oracle_max_results" validate:"gt=0"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() *Config {
	return &Config{
		AliasConfidence:    0.95,
		FuzzyThreshold:     0.75,
		ResolvedThreshold:  0.85,
		MaxFuzzyCandidates: 5,
		ReviewThreshold:    0.7,
		OracleTimeout:      15 * time.Second,
		OracleCatalogLimit: 100,
		OracleMaxResults:   3,
	}
}

// Validate checks field ranges and the relations between thresholds
func (c *Config) Validate() error {
	if err := validation.Struct("sku", c); err != nil {
		return err
	}
	if c.FuzzyThreshold > c.ResolvedThreshold {
		return fmt.Errorf("fuzzy threshold %.2f cannot exceed resolved threshold %.2f",
			c.FuzzyThreshold, c.ResolvedThreshold)
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
