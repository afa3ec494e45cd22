package postgres

import (
	"fmt"
	"time"
)

const defaultQueryTimeout = 10 * time.Second

// Config holds configuration for the PostgreSQL record store backend.
type Config struct {
	Pool PoolConfig

	// AutoMigrate applies the embedded schema migrations on startup.
	AutoMigrate bool

	// QueryTimeout is the maximum time a query can run before timing out.
	// Default: 10 seconds
	// Set to a negative value to use context timeouts only
	QueryTimeout time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("invalid pool config: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.QueryTimeout == 0 {
		c.QueryTimeout = defaultQueryTimeout
	}
}
