// internal/config/env.go
package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides cfg from NAVACCEL_* environment variables.
// Unparseable values are ignored.
func LoadFromEnv(cfg *Config) {
	if addr := os.Getenv("NAVACCEL_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	if logLevel := os.Getenv("NAVACCEL_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat := os.Getenv("NAVACCEL_LOG_FORMAT"); logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}

	// Cache settings
	if v := os.Getenv("NAVACCEL_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := os.Getenv("NAVACCEL_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}

	// Prefetch settings
	if v := os.Getenv("NAVACCEL_HOVER_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Prefetch.HoverDelay = d
		}
	}
	if v := os.Getenv("NAVACCEL_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Prefetch.MaxRetries = n
		}
	}
	if v := os.Getenv("NAVACCEL_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Prefetch.RatePerSecond = f
		}
	}

	// Predictor settings
	if v := os.Getenv("NAVACCEL_MAX_PREDICTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Predictor.MaxPredictions = n
		}
	}
	if v := os.Getenv("NAVACCEL_SLOW_NETWORK_MBPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Predictor.SlowNetworkMbps = f
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
