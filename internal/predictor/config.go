// internal/predictor/config.go
package predictor

import (
	"errors"
	"time"
)

// Config tunes prediction
type Config struct {
	MaxPredictions int `yaml:"max_predictions" json:"max_predictions"`

	// Downlinks below SlowNetworkMbps get a single prediction. A negative
	// value turns the cut off.
	SlowNetworkMbps float64       `yaml:"slow_network_mbps" json:"slow_network_mbps"`
	HistorySize     int           `yaml:"history_size" json:"history_size"`
	DwellThreshold  time.Duration `yaml:"dwell_threshold" json:"dwell_threshold"`
}

// DefaultConfig returns the stock tuning
func DefaultConfig() Config {
	return Config{
		MaxPredictions:  3,
		SlowNetworkMbps: 1.5,
		HistorySize:     100,
		DwellThreshold:  5 * time.Second,
	}
}

// ApplyDefaults fills in zero values. A negative SlowNetworkMbps is kept.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.MaxPredictions == 0 {
		c.MaxPredictions = defaults.MaxPredictions
	}
	if c.SlowNetworkMbps == 0 {
		c.SlowNetworkMbps = defaults.SlowNetworkMbps
	}
	if c.HistorySize == 0 {
		c.HistorySize = defaults.HistorySize
	}
	if c.DwellThreshold == 0 {
		c.DwellThreshold = defaults.DwellThreshold
	}
}

// Validate checks configuration
func (c Config) Validate() error {
	if c.MaxPredictions < 1 {
		return errors.New("predictor: max predictions must be at least 1")
	}
	if c.HistorySize < 1 {
		return errors.New("predictor: history size must be at least 1")
	}
	if c.DwellThreshold < 0 {
		return errors.New("predictor: dwell threshold must not be negative")
	}
	return nil
}
