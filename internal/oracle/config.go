// Package oracle implements the SKU resolver's last tier: an HTTP completion
// service asked to pick catalog entries for a description, with an optional
// redis cache in front of it.
package oracle

import (
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Config describes the completion endpoint and the cache
type Config struct {
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey       string        `json:"-" mapstructure:"api_key"`
	APIKeyHeader string        `json:"api_key_header" mapstructure:"api_key_header" validate:"required"`
	Model        string        `json:"model" mapstructure:"model"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
	MaxResults   int           `json:"max_results" mapstructure:"max_results" validate:"gt=0,lte=10"`

	RedisAddr   string        `json:"redis_addr" mapstructure:"redis_addr"`
	RedisDB     int           `json:"redis_db" mapstructure:"redis_db" validate:"gte=0"`
	CacheTTL    time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" validate:"gte=0"`
	CachePrefix string        `json:"cache_prefix" mapstructure:"cache_prefix"`
}

// DefaultConfig returns a configuration with the oracle disabled
func DefaultConfig() *Config {
	return &Config{
		APIKeyHeader: "Authorization",
		Timeout:      15 * time.Second,
		MaxResults:   3,
		CacheTTL:     24 * time.Hour,
		CachePrefix:  "auditflow:sku-oracle:",
	}
}

// Enabled reports whether an endpoint is configured
func (c *Config) Enabled() bool {
	return c.Endpoint != ""
}

// CacheEnabled reports whether a redis address is configured
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.CacheTTL > 0
}

// Validate checks field ranges
func (c *Config) Validate() error {
	return validation.Struct("oracle", c)
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
