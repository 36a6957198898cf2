// internal/prefetch/config.go
package prefetch

import (
	"fmt"
	"time"
)

// Config tunes the route prefetcher
type Config struct {
	HoverDelay     time.Duration `yaml:"hover_delay" json:"hover_delay"`
	RouteMarkerTTL time.Duration `yaml:"route_marker_ttl" json:"route_marker_ttl"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`

	// RatePerSecond limits fresh loads; zero means unlimited
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
	Burst         int     `yaml:"burst" json:"burst"`
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{
		HoverDelay:     100 * time.Millisecond,
		RouteMarkerTTL: 5 * time.Minute,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		Burst:          1,
	}
}

// ApplyDefaults fills in zero values. MaxRetries is left alone when
// negative so retries can be turned off with -1.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.HoverDelay == 0 {
		c.HoverDelay = defaults.HoverDelay
	}
	if c.RouteMarkerTTL == 0 {
		c.RouteMarkerTTL = defaults.RouteMarkerTTL
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.Burst == 0 {
		c.Burst = defaults.Burst
	}
}

// Validate checks configuration
func (c Config) Validate() error {
	if c.HoverDelay < 0 {
		return fmt.Errorf("%w: hover delay must not be negative", ErrInvalidConfig)
	}
	if c.RouteMarkerTTL <= 0 {
		return fmt.Errorf("%w: route marker ttl must be positive", ErrInvalidConfig)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("%w: retry base delay must be positive", ErrInvalidConfig)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidConfig)
	}
	if c.Burst < 1 {
		return fmt.Errorf("%w: burst must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// retries returns the effective retry count
func (c Config) retries() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}
