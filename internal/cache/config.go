// internal/cache/config.go
package cache

import (
	"errors"
	"fmt"
	"time"
)

// Config bounds the cache
type Config struct {
	MaxBytes         int64         `yaml:"max_bytes" json:"max_bytes"`
	DefaultTTL       time.Duration `yaml:"default_ttl" json:"default_ttl"`
	DefaultEntrySize int64         `yaml:"default_entry_size" json:"default_entry_size"`
}

// DefaultConfig returns the stock limits: 50MiB ceiling, 5 minute TTL
func DefaultConfig() Config {
	return Config{
		MaxBytes:         50 * 1024 * 1024,
		DefaultTTL:       5 * time.Minute,
		DefaultEntrySize: 1024,
	}
}

// ApplyDefaults fills in zero values
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.MaxBytes == 0 {
		c.MaxBytes = defaults.MaxBytes
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = defaults.DefaultTTL
	}
	if c.DefaultEntrySize == 0 {
		c.DefaultEntrySize = defaults.DefaultEntrySize
	}
}

// Validate checks configuration
func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return fmt.Errorf("cache: max bytes must be positive, got %d", c.MaxBytes)
	}
	if c.DefaultTTL <= 0 {
		return errors.New("cache: default ttl must be positive")
	}
	if c.DefaultEntrySize <= 0 {
		return errors.New("cache: default entry size must be positive")
	}
	return nil
}
