// internal/config/config.go
package config

import (
	"errors"
	"fmt"

	"github.com/FairForge/navaccel/internal/accelerator"
	"github.com/FairForge/navaccel/internal/cache"
	"github.com/FairForge/navaccel/internal/logging"
	"github.com/FairForge/navaccel/internal/nav"
	"github.com/FairForge/navaccel/internal/predictor"
	"github.com/FairForge/navaccel/internal/prefetch"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Server    ServerConfig                `yaml:"server"`
	Cache     CacheConfig                 `yaml:"cache"`
	Prefetch  prefetch.Config             `yaml:"prefetch"`
	Predictor PredictorConfig             `yaml:"predictor"`
	Routes    []predictor.RouteDefinition `yaml:"routes"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Logging returns the logger settings for the process
func (s ServerConfig) Logging() logging.Config {
	return logging.Config{Level: s.LogLevel, Format: s.LogFormat}
}

type CacheConfig struct {
	cache.Config `yaml:",inline"`

	// Explicit eviction frees the cache down to MaxBytes * EvictTargetRatio
	EvictTargetRatio float64 `yaml:"evict_target_ratio"`
}

type PredictorConfig struct {
	predictor.Config `yaml:",inline"`

	RecentHistorySize int `yaml:"recent_history_size"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8090", LogLevel: logging.LevelInfo, LogFormat: logging.FormatJSON},
		Cache: CacheConfig{
			Config:           cache.DefaultConfig(),
			EvictTargetRatio: 0.8,
		},
		Prefetch: prefetch.DefaultConfig(),
		Predictor: PredictorConfig{
			Config:            predictor.DefaultConfig(),
			RecentHistorySize: 10,
		},
		Routes: DefaultRoutes(),
	}
	return cfg
}

// ApplyDefaults fills in zero values section by section
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = logging.LevelInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = logging.FormatJSON
	}
	c.Cache.Config.ApplyDefaults()
	if c.Cache.EvictTargetRatio == 0 {
		c.Cache.EvictTargetRatio = 0.8
	}
	c.Prefetch.ApplyDefaults()
	c.Predictor.Config.ApplyDefaults()
	if c.Predictor.RecentHistorySize == 0 {
		c.Predictor.RecentHistorySize = 10
	}
	if len(c.Routes) == 0 {
		c.Routes = DefaultRoutes()
	}
}

// Validate checks every section and that the routes form a valid graph
func (c *Config) Validate() error {
	logCfg := c.Server.Logging()
	if err := logCfg.Validate(); err != nil {
		return fmt.Errorf("%w: server: %w", ErrInvalidConfig, err)
	}
	if err := c.Cache.Config.Validate(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	if err := c.Prefetch.Validate(); err != nil {
		return fmt.Errorf("%w: prefetch: %w", ErrInvalidConfig, err)
	}
	if err := c.Predictor.Config.Validate(); err != nil {
		return fmt.Errorf("%w: predictor: %w", ErrInvalidConfig, err)
	}
	if err := c.Accelerator().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Graph(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Graph builds the route graph
func (c *Config) Graph() (*predictor.Graph, error) {
	return predictor.NewGraph(c.Routes)
}

// Accelerator returns the orchestrator settings
func (c *Config) Accelerator() accelerator.Config {
	return accelerator.Config{
		RecentHistorySize: c.Predictor.RecentHistorySize,
		EvictTargetRatio:  c.Cache.EvictTargetRatio,
	}
}

var allRoles = []nav.Role{nav.RoleUser, nav.RoleAgent, nav.RoleAdmin}

// DefaultRoutes is the dashboard's route graph
func DefaultRoutes() []predictor.RouteDefinition {
	return []predictor.RouteDefinition{
		{
			Path:  "/dashboard",
			Roles: allRoles,
			Children: []string{
				"/dashboard/deposit",
				"/dashboard/withdraw",
				"/dashboard/transactions",
				"/agent/queue",
				"/admin/users",
			},
		},
		{Path: "/dashboard/deposit", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/dashboard", "/dashboard/transactions"}},
		{Path: "/dashboard/withdraw", Roles: []nav.Role{nav.RoleUser}, Children: []string{"/dashboard", "/dashboard/transactions"}},
		{Path: "/dashboard/transactions", Roles: allRoles, Children: []string{"/dashboard"}},
		{Path: "/agent/queue", Roles: []nav.Role{nav.RoleAgent, nav.RoleAdmin}, Children: []string{"/agent/tickets", "/dashboard"}},
		{Path: "/agent/tickets", Roles: []nav.Role{nav.RoleAgent, nav.RoleAdmin}, Children: []string{"/agent/queue"}},
		{Path: "/admin/users", Roles: []nav.Role{nav.RoleAdmin}, Children: []string{"/admin/settings", "/dashboard"}},
		{Path: "/admin/settings", Roles: []nav.Role{nav.RoleAdmin}, Children: []string{"/admin/users"}},
	}
}
